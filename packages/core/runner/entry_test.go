package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/cookies"
	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/core/parser"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/redact"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"
)

// stubTransport hands back canned exchanges, one per attempt, and records
// every request it saw.
type stubTransport struct {
	mu        sync.Mutex
	requests  []*http.Request
	responses []*http.Exchange
	err       error
}

func (s *stubTransport) Execute(ctx context.Context, req *http.Request, opts http.ExecOptions, jar *cookies.Jar) (*http.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func (s *stubTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubTransport) request(i int) *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func jsonResponse(status int, body string) *http.Exchange {
	return &http.Exchange{Calls: []*http.Call{{
		Request: &http.Request{Method: "GET", URL: "http://stub/"},
		Response: &http.Response{
			Status:  status,
			Version: "HTTP/1.1",
			Headers: http.HeaderList{}.Add("Content-Type", "application/json"),
			Body:    []byte(body),
		},
		Timings: http.Timings{Total: time.Millisecond},
	}}}
}

func parseEntry(t *testing.T, src string) *ast.Entry {
	t.Helper()
	f, err := parser.ParseString(src)
	require.NoError(t, err)
	require.Len(t, f.Entries, 1)
	return f.Entries[0]
}

func testLogger() pslog.Logger {
	return pslog.NewStructured(io.Discard)
}

func newTestExecutor(transport http.Transport) (*Executor, *[]time.Duration) {
	x := NewExecutor(transport, redact.NewFilter(), testLogger())
	var slept []time.Duration
	x.sleep = func(d time.Duration) { slept = append(slept, d) }
	return x, &slept
}

func TestExecute_SuccessWithCapturesAndAsserts(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(200, `{"token":"abc123","count":3}`),
	}}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/login
HTTP 200
[Captures]
token: jsonpath "$.token"
[Asserts]
jsonpath "$.count" == 3
variable "token" == "abc123"
`)
	store := vars.NewStore()
	result := x.Execute(context.Background(), entry, store, cookies.NewJar(), &Options{})

	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Attempts, 1)
	require.Len(t, result.Captures, 1)
	assert.Equal(t, "token", result.Captures[0].Name)

	// Captures bind before the asserts of the same entry run.
	require.Len(t, result.Asserts, 3) // implicit status + two explicit
	for _, a := range result.Asserts {
		assert.True(t, a.Passed, a.Source)
	}
	v, ok := store.Get("token")
	require.True(t, ok)
	assert.Equal(t, "abc123", v.Value.Render())
}

func TestExecute_SkipConsumesNoAttempt(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(200, `{}`)}}
	x, slept := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/
[Options]
skip: true
delay: 5s
`)
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Empty(t, result.Attempts)
	assert.Equal(t, 0, transport.calls())
	assert.Empty(t, *slept)
}

func TestExecute_DelayOnlyBeforeFirstAttempt(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(500, `{}`),
		jsonResponse(200, `{}`),
	}}
	x, slept := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/
[Options]
delay: 2s
retry: 3
retry-interval: 100
HTTP 200
`)
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 2, transport.calls())
	// One delay, then one retry pause. The delay is not repeated.
	require.Equal(t, []time.Duration{2 * time.Second, 100 * time.Millisecond}, *slept)
}

func TestExecute_RetryBudgetExhausts(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(404, `{}`)}}
	x, slept := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/
[Options]
retry: 2
retry-interval: 50
HTTP 200
`)
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	// Initial attempt plus two retries.
	assert.Equal(t, StatusAssertFailure, result.Status)
	assert.Equal(t, 3, transport.calls())
	assert.Len(t, result.Attempts, 3)
	assert.Len(t, *slept, 2)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, ClassAssert, result.Errors[0].Class)
}

func TestExecute_NoRetryByDefault(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(500, `{}`)}}
	x, slept := newTestExecutor(transport)
	entry := parseEntry(t, "GET http://stub/\nHTTP 200\n")
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	assert.Equal(t, StatusAssertFailure, result.Status)
	assert.Equal(t, 1, transport.calls())
	assert.Empty(t, *slept)
}

func TestExecute_RunLevelRetryApplies(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(500, `{}`),
		jsonResponse(500, `{}`),
		jsonResponse(200, `{}`),
	}}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, "GET http://stub/\nHTTP 200\n")
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{
		Retry:         5,
		RetryInterval: time.Millisecond,
	})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 3, transport.calls())
}

func TestExecute_CaptureFailureLeavesStoreUntouched(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(200, `{"present":"yes"}`),
	}}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/
HTTP 200
[Captures]
first: jsonpath "$.present"
second: jsonpath "$.absent"
`)
	store := vars.NewStore()
	result := x.Execute(context.Background(), entry, store, cookies.NewJar(), &Options{})

	assert.Equal(t, StatusRuntimeError, result.Status)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Msg, "capture second")
	// All-or-nothing: the first capture must not have bound either.
	assert.False(t, store.Has("first"))
}

func TestExecute_RedactedCaptureFeedsFilter(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(200, `{"token":"s3cret-token"}`),
	}}
	filter := redact.NewFilter()
	x := NewExecutor(transport, filter, testLogger())
	entry := parseEntry(t, `GET http://stub/
HTTP 200
[Captures]
token: jsonpath "$.token" redact
`)
	store := vars.NewStore()
	result := x.Execute(context.Background(), entry, store, cookies.NewJar(), &Options{})

	require.Equal(t, StatusSuccess, result.Status)
	assert.Contains(t, store.SecretValues(), "s3cret-token")
	assert.Equal(t, "got "+redact.Mask, filter.Apply("got s3cret-token"))
}

func TestExecute_AssertsNeverShortCircuit(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(200, `{"a":1,"b":2}`),
	}}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/
HTTP 200
[Asserts]
jsonpath "$.a" == 99
jsonpath "$.b" == 2
jsonpath "$.a" == 98
`)
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	assert.Equal(t, StatusAssertFailure, result.Status)
	require.Len(t, result.Asserts, 4) // implicit status + three explicit
	assert.True(t, result.Asserts[0].Passed)
	assert.False(t, result.Asserts[1].Passed)
	assert.True(t, result.Asserts[2].Passed)
	assert.False(t, result.Asserts[3].Passed)
	assert.Len(t, result.Errors, 2)
}

func TestExecute_ImplicitExpectations(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(200, `{}`),
	}}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/
HTTP/2 201
X-Request-Id: abc
`)
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	assert.Equal(t, StatusAssertFailure, result.Status)
	require.Len(t, result.Asserts, 3)
	assert.Equal(t, "version", result.Asserts[0].Source)
	assert.False(t, result.Asserts[0].Passed)
	assert.Equal(t, "status", result.Asserts[1].Source)
	assert.False(t, result.Asserts[1].Passed)
	assert.Equal(t, "header X-Request-Id", result.Asserts[2].Source)
	assert.False(t, result.Asserts[2].Passed)
}

func TestExecute_FilterErrorUnderExistsMeansAbsent(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(200, `{"name":"ada"}`),
	}}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/
HTTP 200
[Asserts]
jsonpath "$.name" toInt not exists
`)
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Asserts, 2)
	assert.True(t, result.Asserts[1].Passed)
}

func TestExecute_TransportErrorIsRuntime(t *testing.T) {
	transport := &stubTransport{err: fmt.Errorf("connection refused")}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, "GET http://stub/\n")
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	assert.Equal(t, StatusRuntimeError, result.Status)
	assert.Empty(t, result.Attempts)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, ClassRuntime, result.Errors[0].Class)
	assert.Contains(t, result.Errors[0].Msg, "connection refused")
}

func TestExecute_OptionVariableBindsBeforeRequest(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(200, `{}`)}}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/{{region}}/items
[Options]
variable: region=eu-west-1
`)
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "http://stub/eu-west-1/items", transport.request(0).URL)
}

func TestExecute_UndefinedOptionVariableFailsEntry(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(200, `{}`)}}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/
[Options]
variable: derived={{missing}}
`)
	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})

	assert.Equal(t, StatusRuntimeError, result.Status)
	assert.Equal(t, 0, transport.calls())
}

func TestExecute_OutputWritesFinalBody(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(200, `{"saved":true}`),
	}}
	x, _ := newTestExecutor(transport)
	entry := parseEntry(t, `GET http://stub/
[Options]
output: placeholder
HTTP 200
`)
	out := filepath.Join(t.TempDir(), "body.json")
	entry.Options.Output = out

	result := x.Execute(context.Background(), entry, vars.NewStore(), cookies.NewJar(), &Options{})
	require.Equal(t, StatusSuccess, result.Status)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, `{"saved":true}`, string(data))
}

func TestExecute_CancelledContext(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(200, `{}`)}}
	x, _ := newTestExecutor(transport)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry := parseEntry(t, "GET http://stub/\n")
	result := x.Execute(ctx, entry, vars.NewStore(), cookies.NewJar(), &Options{})

	assert.Equal(t, StatusRuntimeError, result.Status)
	assert.Equal(t, 0, transport.calls())
}
