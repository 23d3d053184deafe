package runner

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/cookies"
	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/core/parser"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/redact"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
	"pkt.systems/pslog"
)

// FileRunner executes one scenario file at a time. Each run gets its own
// clone of the base store and its own cookie jar, so concurrent runs of the
// same runner never share mutable state through it.
type FileRunner struct {
	transport http.Transport
	filter    *redact.Filter
	logger    pslog.Logger
	opts      *Options
}

func NewFileRunner(transport http.Transport, filter *redact.Filter, logger pslog.Logger, opts *Options) *FileRunner {
	if opts == nil {
		opts = &Options{}
	}
	return &FileRunner{
		transport: transport,
		filter:    filter,
		logger:    logger,
		opts:      opts,
	}
}

// Run parses and executes the file at path. Entries run strictly in order;
// the first failing entry stops the file unless ContinueOnError is set.
// Skipped entries never stop a file.
func (r *FileRunner) Run(ctx context.Context, path string, base *vars.Store) *FileResult {
	start := time.Now()
	result := &FileResult{Path: path}

	scenario, err := parser.ParseFile(path)
	if err != nil {
		result.Err = classifyParseError(err)
		result.Duration = time.Since(start)
		return result
	}

	jar, jarErr := r.loadJar()
	if jarErr != nil {
		result.Err = &RunError{Class: ClassConfig, Msg: jarErr.Error()}
		result.Duration = time.Since(start)
		return result
	}

	opts := *r.opts
	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Dir(path)
	}

	result.Entries = r.runEntries(ctx, scenario, base.Clone(), jar, &opts)
	result.Duration = time.Since(start)

	if opts.CookieOutput != "" {
		if err := jar.WriteFile(opts.CookieOutput); err != nil {
			result.Err = &RunError{Class: ClassRuntime, Msg: "writing cookie file: " + err.Error()}
		}
	}
	return result
}

// RunParsed executes an already parsed scenario, used by callers that parse
// up front to separate syntax errors from execution.
func (r *FileRunner) RunParsed(ctx context.Context, scenario *ast.ScenarioFile, base *vars.Store) *FileResult {
	start := time.Now()
	result := &FileResult{Path: scenario.Path}

	jar, jarErr := r.loadJar()
	if jarErr != nil {
		result.Err = &RunError{Class: ClassConfig, Msg: jarErr.Error()}
		result.Duration = time.Since(start)
		return result
	}

	opts := *r.opts
	if opts.BaseDir == "" && scenario.Path != "" {
		opts.BaseDir = filepath.Dir(scenario.Path)
	}

	result.Entries = r.runEntries(ctx, scenario, base.Clone(), jar, &opts)
	result.Duration = time.Since(start)

	if opts.CookieOutput != "" {
		if err := jar.WriteFile(opts.CookieOutput); err != nil {
			result.Err = &RunError{Class: ClassRuntime, Msg: "writing cookie file: " + err.Error()}
		}
	}
	return result
}

func (r *FileRunner) runEntries(ctx context.Context, scenario *ast.ScenarioFile, store *vars.Store, jar *cookies.Jar, opts *Options) []*EntryResult {
	exec := NewExecutor(r.transport, r.filter, r.logger)
	var results []*EntryResult
	for _, entry := range scenario.Entries {
		er := exec.Execute(ctx, entry, store, jar, opts)
		results = append(results, er)
		if er.Status == StatusAssertFailure || er.Status == StatusRuntimeError {
			if !opts.ContinueOnError {
				break
			}
		}
	}
	return results
}

func (r *FileRunner) loadJar() (*cookies.Jar, error) {
	if r.opts.CookieInput == "" {
		return cookies.NewJar(), nil
	}
	return cookies.LoadFile(r.opts.CookieInput)
}

func classifyParseError(err error) *RunError {
	var perr *parser.Error
	if errors.As(err, &perr) {
		return &RunError{
			Class: ClassParse,
			Pos:   ast.Position{Line: perr.Line, Column: perr.Column},
			Msg:   perr.Message,
		}
	}
	// Unreadable file rather than bad syntax.
	return &RunError{Class: ClassRuntime, Msg: err.Error()}
}
