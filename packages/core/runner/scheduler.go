package runner

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/abdul-hamid-achik/reqflow/packages/vars"
	"golang.org/x/time/rate"
	"pkt.systems/pslog"
)

// Job is one unit of scheduled work: a scenario file, possibly repeated.
// Seq is the job's position in the overall run and fixes its slot in the
// result slice no matter which worker finishes first.
type Job struct {
	Seq        int
	Path       string
	Repetition int // 1-based when --repeat is used, else 0
}

// Scheduler fans jobs out to a bounded worker pool. Every job runs against
// its own store clone and jar (the file runner guarantees that), so workers
// share nothing but the dispatch channel and the result slice.
type Scheduler struct {
	runner     *FileRunner
	logger     pslog.Logger
	workers    int
	limiter    *rate.Limiter
	failFast   bool
	onComplete func(Job, *FileResult)
}

type SchedulerOption func(*Scheduler)

// WithWorkers sets the pool size. One worker degrades to strictly
// sequential execution in job order.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRateLimit caps job starts per second across all workers.
func WithRateLimit(perSecond float64) SchedulerOption {
	return func(s *Scheduler) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithFailFast stops dispatching new jobs after the first failed one.
// Jobs already running are left to finish.
func WithFailFast() SchedulerOption {
	return func(s *Scheduler) { s.failFast = true }
}

// WithCompletionHook registers a callback invoked as each job finishes, in
// completion order. Calls are serialized; the hook never runs concurrently
// with itself.
func WithCompletionHook(fn func(Job, *FileResult)) SchedulerOption {
	return func(s *Scheduler) { s.onComplete = fn }
}

func NewScheduler(runner *FileRunner, logger pslog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		logger:  logger,
		workers: runtime.NumCPU(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run executes every job and returns results indexed by Job.Seq, so the
// returned slice order is deterministic across worker counts. Each job gets
// a fresh clone of the base store.
func (s *Scheduler) Run(ctx context.Context, jobs []Job, base *vars.Store) []*FileResult {
	results := make([]*FileResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := s.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	s.logger.Debug("scheduling jobs", "jobs", len(jobs), "workers", workers)

	queue := make(chan Job)
	var wg sync.WaitGroup
	var mu sync.Mutex

	// Fail fast only gates dispatch. The run context stays untouched so a
	// sibling job already executing finishes normally.
	var stopped atomic.Bool

	finish := func(job Job, res *FileResult) {
		mu.Lock()
		defer mu.Unlock()
		results[job.Seq] = res
		if s.onComplete != nil {
			s.onComplete(job, res)
		}
		if s.failFast && !res.Success() {
			stopped.Store(true)
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if stopped.Load() {
					finish(job, notRunResult(job, nil))
					continue
				}
				if err := ctx.Err(); err != nil {
					finish(job, notRunResult(job, err))
					continue
				}
				if s.limiter != nil {
					if err := s.limiter.Wait(ctx); err != nil {
						finish(job, notRunResult(job, err))
						continue
					}
				}
				finish(job, s.runner.Run(ctx, job.Path, base))
			}
		}()
	}

dispatch:
	for _, job := range jobs {
		if stopped.Load() {
			break
		}
		select {
		case queue <- job:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(queue)
	wg.Wait()

	// Jobs never dispatched still need a slot so reporting stays aligned.
	for i, job := range jobs {
		if results[i] == nil {
			results[i] = notRunResult(job, ctx.Err())
		}
	}
	return results
}

func notRunResult(job Job, err error) *FileResult {
	msg := "job not run"
	if err != nil {
		msg = "job not run: " + err.Error()
	}
	return &FileResult{
		Path: job.Path,
		Err:  &RunError{Class: ClassRuntime, Msg: msg},
	}
}
