package runner

import (
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/value"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
)

// Options are the run-level defaults an entry inherits; its [Options]
// section overrides them per entry.
type Options struct {
	Timeout         time.Duration
	ConnectTimeout  time.Duration
	FollowRedirect  bool
	MaxRedirects    int
	Insecure        bool
	Retry           int // 0 none, >0 bounded, -1 unlimited
	RetryInterval   time.Duration
	Delay           time.Duration
	ContinueOnError bool
	Verbose         bool
	// BaseDir resolves file,...; bodies relative to the scenario file.
	BaseDir string
	// CookieInput preloads the jar from a Netscape cookie file before the
	// first entry; CookieOutput persists the jar after the last one.
	CookieInput  string
	CookieOutput string
}

const DefaultRetryInterval = time.Second

// entryOptions is the resolved option set for one entry, with templated
// variable overrides already applied to the store.
type entryOptions struct {
	skip          bool
	delay         time.Duration
	retry         int
	retryInterval time.Duration
	verbose       bool
	output        string
	exec          http.ExecOptions
}

// resolveOptions merges entry [Options] over run options. Variable overrides
// are bound into the store before anything else of the entry is evaluated.
func resolveOptions(entry *ast.Entry, run *Options, store *vars.Store) (*entryOptions, *RunError) {
	eo := &entryOptions{
		delay:         run.Delay,
		retry:         run.Retry,
		retryInterval: run.RetryInterval,
		verbose:       run.Verbose,
		exec: http.ExecOptions{
			Timeout:        run.Timeout,
			ConnectTimeout: run.ConnectTimeout,
			FollowRedirect: run.FollowRedirect,
			MaxRedirects:   run.MaxRedirects,
			Insecure:       run.Insecure,
		},
	}
	if eo.retryInterval <= 0 {
		eo.retryInterval = DefaultRetryInterval
	}
	opts := entry.Options
	if opts == nil {
		return eo, nil
	}

	for _, spec := range opts.Variables {
		rendered, err := vars.Render(spec.Value, store)
		if err != nil {
			return nil, runtimeError(spec.Pos, "option variable %s: %v", spec.Name, err)
		}
		store.Set(spec.Name, value.NewString(rendered))
	}

	if opts.Skip != nil {
		eo.skip = *opts.Skip
	}
	if opts.Delay != nil {
		eo.delay = *opts.Delay
	}
	if opts.Retry != nil {
		eo.retry = *opts.Retry
	}
	if opts.RetryInterval != nil {
		eo.retryInterval = *opts.RetryInterval
	}
	if opts.FollowRedirect != nil {
		eo.exec.FollowRedirect = *opts.FollowRedirect
	}
	if opts.Insecure != nil {
		eo.exec.Insecure = *opts.Insecure
	}
	if opts.Verbose != nil {
		eo.verbose = *opts.Verbose
	}
	eo.output = opts.Output
	return eo, nil
}
