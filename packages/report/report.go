package report

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/reqflow/packages/core/runner"
	"github.com/google/uuid"
)

// RunReport aggregates every file result of one invocation under a unique
// run identifier.
type RunReport struct {
	RunID    uuid.UUID
	Started  time.Time
	Duration time.Duration
	Files    []*runner.FileResult
}

func New(files []*runner.FileResult, started time.Time) *RunReport {
	return &RunReport{
		RunID:    uuid.New(),
		Started:  started,
		Duration: time.Since(started),
		Files:    files,
	}
}

// Class is the highest error severity across the whole run, driving the
// process exit code.
func (r *RunReport) Class() runner.ErrorClass {
	worst := runner.ClassNone
	for _, f := range r.Files {
		if c := f.Class(); c > worst {
			worst = c
		}
	}
	return worst
}

func (r *RunReport) Success() bool {
	for _, f := range r.Files {
		if !f.Success() {
			return false
		}
	}
	return true
}

// Counts returns entry totals across all files.
func (r *RunReport) Counts() (passed, failed, skipped int) {
	for _, f := range r.Files {
		p, fl, s := f.Counts()
		passed += p
		failed += fl
		skipped += s
	}
	return passed, failed, skipped
}

// Stats summarizes entry durations across the run.
type Stats struct {
	Entries int
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
}

// Stats records every executed entry duration, skipped entries excluded.
// The histogram tracks microseconds from 1us to 60s.
func (r *RunReport) Stats() *Stats {
	h := hdrhistogram.New(1, 60_000_000, 3)
	for _, f := range r.Files {
		for _, e := range f.Entries {
			if e.Status == runner.StatusSkipped {
				continue
			}
			h.RecordValue(e.Duration.Microseconds())
		}
	}
	if h.TotalCount() == 0 {
		return &Stats{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return &Stats{
		Entries: int(h.TotalCount()),
		Min:     us(h.Min()),
		Max:     us(h.Max()),
		Mean:    us(int64(h.Mean())),
		P50:     us(h.ValueAtQuantile(50)),
		P95:     us(h.ValueAtQuantile(95)),
		P99:     us(h.ValueAtQuantile(99)),
	}
}
