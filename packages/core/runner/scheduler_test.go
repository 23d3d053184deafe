package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/abdul-hamid-achik/reqflow/packages/cookies"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusTransport answers by URL so scheduler tests stay independent of
// which worker picks up which job: /ok succeeds, everything else fails.
type statusTransport struct {
	mu    sync.Mutex
	calls int
}

func (s *statusTransport) Execute(ctx context.Context, req *http.Request, opts http.ExecOptions, jar *cookies.Jar) (*http.Exchange, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	status := 500
	if strings.HasSuffix(req.URL, "/ok") {
		status = 200
	}
	ex := jsonResponse(status, `{}`)
	ex.Calls[0].Request = req
	return ex, nil
}

func (s *statusTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func schedulerFixture(t *testing.T) (passing, failing string) {
	t.Helper()
	dir := t.TempDir()
	passing = filepath.Join(dir, "pass.reqflow")
	require.NoError(t, os.WriteFile(passing, []byte("GET http://stub/ok\nHTTP 200\n"), 0o644))
	failing = filepath.Join(dir, "fail.reqflow")
	require.NoError(t, os.WriteFile(failing, []byte("GET http://stub/bad\nHTTP 200\n"), 0o644))
	return passing, failing
}

func buildSchedulerJobs(paths ...string) []Job {
	jobs := make([]Job, len(paths))
	for i, p := range paths {
		jobs[i] = Job{Seq: i, Path: p}
	}
	return jobs
}

func TestScheduler_ResultsIndexedBySeq(t *testing.T) {
	passing, failing := schedulerFixture(t)
	jobs := buildSchedulerJobs(passing, failing, passing, failing, passing, passing)

	for _, workers := range []int{1, 4} {
		runner := newTestRunner(&statusTransport{}, &Options{})
		sched := NewScheduler(runner, testLogger(), WithWorkers(workers))
		results := sched.Run(context.Background(), jobs, vars.NewStore())

		require.Len(t, results, len(jobs))
		for i, res := range results {
			require.NotNil(t, res, "workers=%d seq=%d", workers, i)
			assert.Equal(t, jobs[i].Path, res.Path)
			assert.Equal(t, jobs[i].Path == passing, res.Success(),
				"workers=%d seq=%d", workers, i)
		}
	}
}

func TestScheduler_SameOutcomeAcrossWorkerCounts(t *testing.T) {
	passing, failing := schedulerFixture(t)
	jobs := buildSchedulerJobs(passing, failing, passing, failing)

	outcome := func(workers int) []bool {
		runner := newTestRunner(&statusTransport{}, &Options{})
		sched := NewScheduler(runner, testLogger(), WithWorkers(workers))
		results := sched.Run(context.Background(), jobs, vars.NewStore())
		out := make([]bool, len(results))
		for i, r := range results {
			out[i] = r.Success()
		}
		return out
	}

	assert.Equal(t, outcome(1), outcome(2))
	assert.Equal(t, outcome(1), outcome(8))
}

func TestScheduler_FailFastSkipsRemainingJobs(t *testing.T) {
	passing, failing := schedulerFixture(t)
	jobs := buildSchedulerJobs(failing, passing, passing, passing)

	transport := &statusTransport{}
	runner := newTestRunner(transport, &Options{})
	sched := NewScheduler(runner, testLogger(), WithWorkers(1), WithFailFast())
	results := sched.Run(context.Background(), jobs, vars.NewStore())

	require.Len(t, results, len(jobs))
	assert.False(t, results[0].Success())
	// With one worker the failure cancels dispatch before the rest start.
	for _, res := range results[1:] {
		require.NotNil(t, res.Err)
		assert.Equal(t, ClassRuntime, res.Err.Class)
		assert.Contains(t, res.Err.Msg, "job not run")
	}
	assert.Equal(t, 1, transport.count())
}

// handshakeTransport sequences two jobs: the failing request waits until the
// gated request is in flight, and the gated request waits for release. The
// failure is therefore guaranteed to land while the other job is mid-file.
type handshakeTransport struct {
	statusTransport
	gatedInFlight chan struct{}
	release       <-chan struct{}
	once          sync.Once
}

func (g *handshakeTransport) Execute(ctx context.Context, req *http.Request, opts http.ExecOptions, jar *cookies.Jar) (*http.Exchange, error) {
	switch {
	case strings.Contains(req.URL, "/gated"):
		g.once.Do(func() { close(g.gatedInFlight) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case strings.HasSuffix(req.URL, "/bad"):
		select {
		case <-g.gatedInFlight:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.statusTransport.Execute(ctx, req, opts, jar)
}

func TestScheduler_FailFastLeavesInFlightJobsRunning(t *testing.T) {
	dir := t.TempDir()
	slow := filepath.Join(dir, "slow.reqflow")
	content := "GET http://stub/ok\nHTTP 200\n\nGET http://stub/gated/ok\nHTTP 200\n"
	require.NoError(t, os.WriteFile(slow, []byte(content), 0o644))
	failing := filepath.Join(dir, "fail.reqflow")
	require.NoError(t, os.WriteFile(failing, []byte("GET http://stub/bad\nHTTP 200\n"), 0o644))

	release := make(chan struct{})
	transport := &handshakeTransport{
		gatedInFlight: make(chan struct{}),
		release:       release,
	}
	var once sync.Once
	hook := func(job Job, res *FileResult) {
		if job.Path == failing {
			once.Do(func() { close(release) })
		}
	}

	runner := newTestRunner(transport, &Options{})
	sched := NewScheduler(runner, testLogger(),
		WithWorkers(2), WithFailFast(), WithCompletionHook(hook))
	results := sched.Run(context.Background(), buildSchedulerJobs(slow, failing), vars.NewStore())

	require.Len(t, results, 2)
	assert.False(t, results[1].Success())

	// The in-flight job completes instead of being aborted.
	require.Nil(t, results[0].Err)
	require.Len(t, results[0].Entries, 2)
	for _, e := range results[0].Entries {
		assert.Equal(t, StatusSuccess, e.Status)
	}
	assert.True(t, results[0].Success())
}

func TestScheduler_CompletionHookSeesEveryJob(t *testing.T) {
	passing, _ := schedulerFixture(t)
	jobs := buildSchedulerJobs(passing, passing, passing, passing, passing)

	var mu sync.Mutex
	seen := map[int]bool{}
	inHook := false
	hook := func(job Job, res *FileResult) {
		// Calls are serialized under the scheduler mutex.
		mu.Lock()
		require.False(t, inHook, "hook ran concurrently with itself")
		inHook = true
		seen[job.Seq] = res.Success()
		inHook = false
		mu.Unlock()
	}

	runner := newTestRunner(&statusTransport{}, &Options{})
	sched := NewScheduler(runner, testLogger(), WithWorkers(4), WithCompletionHook(hook))
	sched.Run(context.Background(), jobs, vars.NewStore())

	require.Len(t, seen, len(jobs))
	for seq, ok := range seen {
		assert.True(t, ok, "seq=%d", seq)
	}
}

func TestScheduler_RepetitionsAreIsolated(t *testing.T) {
	// Each repetition reruns the capture against a fresh store clone, so a
	// variable captured in one repetition never leaks into another.
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.reqflow")
	content := `GET http://stub/ok
HTTP 200
[Asserts]
variable "leak" not exists

GET http://stub/ok
HTTP 200
[Captures]
leak: status
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	jobs := []Job{
		{Seq: 0, Path: path, Repetition: 1},
		{Seq: 1, Path: path, Repetition: 2},
		{Seq: 2, Path: path, Repetition: 3},
	}
	base := vars.NewStore()
	runner := newTestRunner(&statusTransport{}, &Options{})
	sched := NewScheduler(runner, testLogger(), WithWorkers(1))
	results := sched.Run(context.Background(), jobs, base)

	for i, res := range results {
		assert.True(t, res.Success(), "repetition %d", i+1)
	}
	assert.False(t, base.Has("leak"))
}

func TestScheduler_NoJobs(t *testing.T) {
	runner := newTestRunner(&statusTransport{}, &Options{})
	sched := NewScheduler(runner, testLogger())
	results := sched.Run(context.Background(), nil, vars.NewStore())
	assert.Empty(t, results)
}

func TestScheduler_CancelledContextFillsSlots(t *testing.T) {
	passing, _ := schedulerFixture(t)
	jobs := buildSchedulerJobs(passing, passing)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := newTestRunner(&statusTransport{}, &Options{})
	sched := NewScheduler(runner, testLogger(), WithWorkers(1))
	results := sched.Run(ctx, jobs, vars.NewStore())

	require.Len(t, results, len(jobs))
	for _, res := range results {
		require.NotNil(t, res)
		assert.False(t, res.Success())
	}
}
