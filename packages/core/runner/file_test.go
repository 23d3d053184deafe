package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/core/parser"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/redact"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseScenario(t *testing.T, src string) *ast.ScenarioFile {
	t.Helper()
	f, err := parser.ParseString(src)
	require.NoError(t, err)
	return f
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.reqflow")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestRunner(transport http.Transport, opts *Options) *FileRunner {
	return NewFileRunner(transport, redact.NewFilter(), testLogger(), opts)
}

func TestFileRunner_StopsAtFirstFailure(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(500, `{}`),
		jsonResponse(200, `{}`),
	}}
	path := writeScenario(t, `GET http://stub/one
HTTP 200

GET http://stub/two
HTTP 200
`)
	result := newTestRunner(transport, &Options{}).Run(context.Background(), path, vars.NewStore())

	require.Len(t, result.Entries, 1)
	assert.Equal(t, StatusAssertFailure, result.Entries[0].Status)
	assert.Equal(t, 1, transport.calls())
	assert.False(t, result.Success())

	passed, failed, skipped := result.Counts()
	assert.Equal(t, 0, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, skipped)
}

func TestFileRunner_ContinueOnError(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(500, `{}`),
		jsonResponse(200, `{}`),
	}}
	path := writeScenario(t, `GET http://stub/one
HTTP 200

GET http://stub/two
HTTP 200
`)
	result := newTestRunner(transport, &Options{ContinueOnError: true}).
		Run(context.Background(), path, vars.NewStore())

	require.Len(t, result.Entries, 2)
	assert.Equal(t, StatusAssertFailure, result.Entries[0].Status)
	assert.Equal(t, StatusSuccess, result.Entries[1].Status)
	assert.Equal(t, ClassAssert, result.Class())
}

func TestFileRunner_SkippedEntriesNeverStopTheFile(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(200, `{}`)}}
	path := writeScenario(t, `GET http://stub/one
[Options]
skip: true

GET http://stub/two
HTTP 200
`)
	result := newTestRunner(transport, &Options{}).Run(context.Background(), path, vars.NewStore())

	require.Len(t, result.Entries, 2)
	assert.Equal(t, StatusSkipped, result.Entries[0].Status)
	assert.Equal(t, StatusSuccess, result.Entries[1].Status)
	assert.True(t, result.Success())
}

func TestFileRunner_CapturesFlowAcrossEntries(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(200, `{"token":"tok-42"}`),
		jsonResponse(200, `{}`),
	}}
	path := writeScenario(t, `POST http://stub/login
HTTP 200
[Captures]
token: jsonpath "$.token"

GET http://stub/me
Authorization: Bearer {{token}}
HTTP 200
`)
	result := newTestRunner(transport, &Options{}).Run(context.Background(), path, vars.NewStore())

	require.True(t, result.Success())
	auth, ok := transport.request(1).Headers.Get("Authorization")
	require.True(t, ok)
	assert.Equal(t, "Bearer tok-42", auth)
}

func TestFileRunner_BaseStoreIsNeverMutated(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{
		jsonResponse(200, `{"token":"tok-42"}`),
	}}
	path := writeScenario(t, `GET http://stub/
HTTP 200
[Captures]
token: jsonpath "$.token"
`)
	base := vars.NewStore()
	result := newTestRunner(transport, &Options{}).Run(context.Background(), path, base)

	require.True(t, result.Success())
	assert.False(t, base.Has("token"))
}

func TestFileRunner_ParseErrorClassifies(t *testing.T) {
	path := writeScenario(t, "NOT A SCENARIO\n")
	result := newTestRunner(&stubTransport{}, &Options{}).Run(context.Background(), path, vars.NewStore())

	require.NotNil(t, result.Err)
	assert.Equal(t, ClassParse, result.Err.Class)
	assert.Equal(t, 1, result.Err.Pos.Line)
	assert.Empty(t, result.Entries)
	assert.Equal(t, ClassParse, result.Class())
}

func TestFileRunner_MissingFileIsRuntime(t *testing.T) {
	result := newTestRunner(&stubTransport{}, &Options{}).
		Run(context.Background(), filepath.Join(t.TempDir(), "nope.reqflow"), vars.NewStore())

	require.NotNil(t, result.Err)
	assert.Equal(t, ClassRuntime, result.Err.Class)
}

func TestFileRunner_MalformedCookieInputIsConfig(t *testing.T) {
	cookieFile := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(cookieFile, []byte("not a cookie line\n"), 0o644))

	path := writeScenario(t, "GET http://stub/\n")
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(200, `{}`)}}
	result := newTestRunner(transport, &Options{CookieInput: cookieFile}).
		Run(context.Background(), path, vars.NewStore())

	require.NotNil(t, result.Err)
	assert.Equal(t, ClassConfig, result.Err.Class)
	assert.Equal(t, 0, transport.calls())
}

func TestFileRunner_CookieOutputPersistsJar(t *testing.T) {
	out := filepath.Join(t.TempDir(), "jar.txt")
	path := writeScenario(t, "GET http://stub/\n")
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(200, `{}`)}}
	result := newTestRunner(transport, &Options{CookieOutput: out}).
		Run(context.Background(), path, vars.NewStore())

	require.True(t, result.Success())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "#"))
}

func TestFileRunner_RunParsed(t *testing.T) {
	transport := &stubTransport{responses: []*http.Exchange{jsonResponse(200, `{}`)}}
	f := mustParseScenario(t, "GET http://stub/\nHTTP 200\n")
	result := newTestRunner(transport, &Options{}).RunParsed(context.Background(), f, vars.NewStore())

	require.Len(t, result.Entries, 1)
	assert.True(t, result.Success())
}
