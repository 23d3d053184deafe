package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/assert"
	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/cookies"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/query"
	"github.com/abdul-hamid-achik/reqflow/packages/redact"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
	"pkt.systems/pslog"
)

// Executor runs one entry to completion, including its private retry loop.
// It is stateless across entries; the store and jar it mutates belong to the
// calling file runner.
type Executor struct {
	transport http.Transport
	filter    *redact.Filter
	logger    pslog.Logger
	sleep     func(time.Duration)
}

func NewExecutor(transport http.Transport, filter *redact.Filter, logger pslog.Logger) *Executor {
	return &Executor{
		transport: transport,
		filter:    filter,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Execute drives the per-entry state machine: skip, first-attempt delay,
// exchange, captures, asserts, then the retry decision. A skip consumes no
// attempt; the delay applies only before the first attempt; retries use the
// retry interval instead.
func (x *Executor) Execute(ctx context.Context, entry *ast.Entry, store *vars.Store, jar *cookies.Jar, run *Options) *EntryResult {
	start := time.Now()
	result := &EntryResult{Index: entry.Index}

	eo, optErr := resolveOptions(entry, run, store)
	if optErr != nil {
		result.Errors = []*RunError{optErr}
		result.Status = StatusRuntimeError
		result.Duration = time.Since(start)
		return result
	}

	if eo.skip {
		result.Status = StatusSkipped
		result.Duration = time.Since(start)
		x.logger.Debug("entry skipped", "entry", entry.Index)
		return result
	}

	if eo.delay > 0 {
		x.logger.Debug("delay before first attempt", "entry", entry.Index, "delay", eo.delay.String())
		x.sleep(eo.delay)
	}

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, runtimeError(entry.Pos, "cancelled: %v", err))
			break
		}

		exchange, captures, asserts, errors := x.attempt(ctx, entry, store, jar, eo, run)
		if exchange != nil {
			result.Attempts = append(result.Attempts, exchange)
		}
		result.Captures = captures
		result.Asserts = asserts
		result.Errors = errors

		if len(errors) == 0 {
			break
		}
		hasBudget := eo.retry == -1 || attempt < eo.retry
		if !hasBudget {
			break
		}
		attempt++
		x.logger.Debug("retrying entry", "entry", entry.Index, "attempt", attempt+1, "pause", eo.retryInterval.String())
		x.sleep(eo.retryInterval)
	}

	result.Duration = time.Since(start)
	result.Status = terminalStatus(result)

	if result.Status == StatusSuccess && eo.output != "" {
		if ex := result.Exchange(); ex != nil && ex.Final() != nil {
			// The primary data output is deliberately outside the redaction
			// scope.
			if err := os.WriteFile(eo.output, ex.Final().Response.Body, 0o644); err != nil {
				result.Errors = append(result.Errors, runtimeError(entry.Pos, "writing output file: %v", err))
				result.Status = StatusRuntimeError
			}
		}
	}
	return result
}

func terminalStatus(r *EntryResult) EntryStatus {
	switch r.Class() {
	case ClassNone:
		return StatusSuccess
	case ClassAssert:
		return StatusAssertFailure
	default:
		return StatusRuntimeError
	}
}

// attempt performs exactly one exchange plus its captures and asserts.
// Captures run first and mutate the store only when every one of them
// succeeds; asserts never short-circuit.
func (x *Executor) attempt(ctx context.Context, entry *ast.Entry, store *vars.Store, jar *cookies.Jar, eo *entryOptions, run *Options) (*http.Exchange, []*CaptureOutcome, []*assert.Result, []*RunError) {
	req, rerr := buildRequest(entry.Request, store, run.BaseDir)
	if rerr != nil {
		return nil, nil, nil, []*RunError{rerr}
	}

	x.logger.Debug("executing request", "entry", entry.Index, "method", req.Method, "url", req.URL)
	exchange, err := x.transport.Execute(ctx, req, eo.exec, jar)
	if err != nil {
		return nil, nil, nil, []*RunError{runtimeError(entry.Request.Pos, "%v", err)}
	}
	final := exchange.Final()
	x.logger.Debug("response received",
		"entry", entry.Index,
		"status", final.Response.Status,
		"redirects", exchange.RedirectCount(),
		"duration", exchange.Duration().String(),
	)

	var errors []*RunError

	captures, capErr := x.evalCaptures(entry, exchange, store)
	if capErr != nil {
		return exchange, nil, nil, []*RunError{capErr}
	}
	// Captures are visible to the asserts of the same entry.
	for _, c := range captures {
		if c.Redact {
			x.filter.Add(c.Value.Render())
			store.SetSecret(c.Name, c.Value)
		} else {
			store.Set(c.Name, c.Value)
		}
	}

	asserts := x.evalAsserts(entry, exchange, store, &errors)
	for _, a := range asserts {
		if !a.Passed {
			errors = append(errors, &RunError{
				Class: ClassAssert,
				Pos:   a.Pos,
				Msg:   fmt.Sprintf("assert failure: %s (actual: %s, expected: %s)", a.Message, a.Actual, a.Expected),
			})
		}
	}
	return exchange, captures, asserts, errors
}

// evalCaptures evaluates every capture of the entry. A capture addressing
// something absent, or any query/filter error, fails the whole attempt and
// leaves the store untouched.
func (x *Executor) evalCaptures(entry *ast.Entry, exchange *http.Exchange, store *vars.Store) ([]*CaptureOutcome, *RunError) {
	if entry.Response == nil {
		return nil, nil
	}
	var out []*CaptureOutcome
	for _, c := range entry.Response.Captures {
		v, found, err := query.Evaluate(c.Query, exchange, store)
		if err != nil {
			return nil, runtimeError(c.Pos, "capture %s: %v", c.Name, err)
		}
		if !found {
			return nil, runtimeError(c.Pos, "capture %s: query returned nothing", c.Name)
		}
		v, err = query.ApplyFilters(c.Filters, v, store)
		if err != nil {
			return nil, runtimeError(c.Pos, "capture %s: %v", c.Name, err)
		}
		out = append(out, &CaptureOutcome{Name: c.Name, Value: v, Redact: c.Redact})
	}
	return out, nil
}

// evalAsserts runs the implicit status/version/header expectations and then
// the explicit [Asserts] section. Query errors inside an assert are runtime
// errors but do not stop the remaining asserts.
func (x *Executor) evalAsserts(entry *ast.Entry, exchange *http.Exchange, store *vars.Store, errors *[]*RunError) []*assert.Result {
	if entry.Response == nil {
		return nil
	}
	spec := entry.Response
	resp := exchange.Final().Response
	var out []*assert.Result

	if spec.Version != "" && spec.Version != "HTTP" {
		out = append(out, &assert.Result{
			Passed:   resp.Version == spec.Version,
			Source:   "version",
			Actual:   resp.Version,
			Expected: spec.Version,
			Message:  fmt.Sprintf("expected version %s, got %s", spec.Version, resp.Version),
			Pos:      spec.Pos,
		})
	}
	if spec.Status != 0 {
		out = append(out, &assert.Result{
			Passed:   resp.Status == spec.Status,
			Source:   "status",
			Actual:   fmt.Sprintf("%d", resp.Status),
			Expected: fmt.Sprintf("%d", spec.Status),
			Message:  fmt.Sprintf("expected status %d, got %d", spec.Status, resp.Status),
			Pos:      spec.Pos,
		})
	}
	for _, h := range spec.Headers {
		expected, err := vars.Render(h.Value, store)
		if err != nil {
			*errors = append(*errors, runtimeError(h.Pos, "header %s: %v", h.Name, err))
			continue
		}
		values := resp.Headers.Values(h.Name)
		passed := false
		for _, v := range values {
			if v == expected {
				passed = true
				break
			}
		}
		out = append(out, &assert.Result{
			Passed:   passed,
			Source:   "header " + h.Name,
			Actual:   fmt.Sprintf("%v", values),
			Expected: expected,
			Message:  fmt.Sprintf("expected header %s: %s, got %v", h.Name, expected, values),
			Pos:      h.Pos,
		})
	}

	for _, a := range spec.Asserts {
		v, found, err := query.Evaluate(a.Query, exchange, store)
		if err != nil {
			*errors = append(*errors, runtimeError(a.Pos, "%v", err))
			continue
		}
		if found && len(a.Filters) > 0 {
			v, err = query.ApplyFilters(a.Filters, v, store)
			if err != nil {
				// A filter failing on an absent-tolerant predicate still
				// counts as "nothing there".
				if a.Predicate.Kind == ast.PredExists {
					found = false
				} else {
					*errors = append(*errors, runtimeError(a.Pos, "%v", err))
					continue
				}
			}
		}
		r := assert.Evaluate(a.Predicate, v, found, store)
		r.Source = describeAssert(a)
		r.Pos = a.Pos
		out = append(out, r)
	}
	return out
}

func describeAssert(a *ast.Assert) string {
	s := a.Query.Kind.String()
	if !a.Query.Param.IsZero() {
		s += fmt.Sprintf(" %q", a.Query.Param.Raw)
	}
	for _, f := range a.Filters {
		s += " " + f.Kind.String()
	}
	s += " "
	if a.Predicate.Not {
		s += "not "
	}
	s += a.Predicate.Kind.String()
	return s
}
