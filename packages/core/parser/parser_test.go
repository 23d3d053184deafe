package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginScenario = `# Sign in, then use the session.
POST https://api.example.com/login
Content-Type: application/json
{
  "user": "{{user}}",
  "password": "{{password}}"
}

HTTP 200
[Captures]
token: jsonpath "$.token" redact
session_id: cookie "session"
[Asserts]
status == 200
jsonpath "$.token" exists
header "Content-Type" startsWith "application/json"

GET https://api.example.com/me
Authorization: Bearer {{token}}

HTTP 200
[Asserts]
jsonpath "$.user" == "{{user}}"
`

func TestParseString_TwoEntryScenario(t *testing.T) {
	f, err := ParseString(loginScenario)
	require.NoError(t, err)
	require.Len(t, f.Entries, 2)

	first := f.Entries[0]
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, "POST", first.Request.Method)
	assert.Equal(t, "https://api.example.com/login", first.Request.URL.Raw)
	require.Len(t, first.Request.Headers, 1)
	assert.Equal(t, "Content-Type", first.Request.Headers[0].Name)
	require.NotNil(t, first.Request.Body)
	assert.Equal(t, ast.BodyJSON, first.Request.Body.Kind)
	assert.Contains(t, first.Request.Body.Text.Raw, `"user": "{{user}}"`)

	require.NotNil(t, first.Response)
	assert.Equal(t, 200, first.Response.Status)
	require.Len(t, first.Response.Captures, 2)
	assert.Equal(t, "token", first.Response.Captures[0].Name)
	assert.Equal(t, ast.QueryJSONPath, first.Response.Captures[0].Query.Kind)
	assert.True(t, first.Response.Captures[0].Redact)
	assert.Equal(t, "session_id", first.Response.Captures[1].Name)
	assert.Equal(t, ast.QueryCookie, first.Response.Captures[1].Query.Kind)
	assert.False(t, first.Response.Captures[1].Redact)
	require.Len(t, first.Response.Asserts, 3)

	second := f.Entries[1]
	assert.Equal(t, 2, second.Index)
	assert.Equal(t, "GET", second.Request.Method)
	require.Len(t, second.Request.Headers, 1)
	assert.Equal(t, "Bearer {{token}}", second.Request.Headers[0].Value.Raw)
	require.Len(t, second.Response.Asserts, 1)
}

func TestParseString_Sections(t *testing.T) {
	f, err := ParseString(`GET https://example.com/search
[QueryParams]
q: golang
page: 2
[BasicAuth]
bob: s3cret
[Options]
retry: 3
retry-interval: 500
delay: 2s
skip: false
location: true
insecure: true
output: out.bin
variable: region=eu-west-1
`)
	require.NoError(t, err)
	req := f.Entries[0].Request
	require.Len(t, req.QueryParams, 2)
	assert.Equal(t, "q", req.QueryParams[0].Name)
	assert.Equal(t, "golang", req.QueryParams[0].Value.Raw)
	require.NotNil(t, req.BasicAuth)
	assert.Equal(t, "bob", req.BasicAuth.User.Raw)

	opts := f.Entries[0].Options
	require.NotNil(t, opts.Retry)
	assert.Equal(t, 3, *opts.Retry)
	require.NotNil(t, opts.RetryInterval)
	assert.Equal(t, 500*time.Millisecond, *opts.RetryInterval)
	require.NotNil(t, opts.Delay)
	assert.Equal(t, 2*time.Second, *opts.Delay)
	require.NotNil(t, opts.Skip)
	assert.False(t, *opts.Skip)
	require.NotNil(t, opts.FollowRedirect)
	assert.True(t, *opts.FollowRedirect)
	require.NotNil(t, opts.Insecure)
	assert.True(t, *opts.Insecure)
	assert.Equal(t, "out.bin", opts.Output)
	require.Len(t, opts.Variables, 1)
	assert.Equal(t, "region", opts.Variables[0].Name)
	assert.Equal(t, "eu-west-1", opts.Variables[0].Value.Raw)
}

func TestParseString_FormParams(t *testing.T) {
	f, err := ParseString(`POST https://example.com/form
[FormParams]
name: ada
role: admin
`)
	require.NoError(t, err)
	require.Len(t, f.Entries[0].Request.FormParams, 2)
	assert.Equal(t, "role", f.Entries[0].Request.FormParams[1].Name)
}

func TestParseString_BodyKinds(t *testing.T) {
	f, err := ParseString("POST https://example.com/a\n```\nline one\nline two\n```\n")
	require.NoError(t, err)
	body := f.Entries[0].Request.Body
	require.NotNil(t, body)
	assert.Equal(t, ast.BodyText, body.Kind)
	assert.Equal(t, "line one\nline two", body.Text.Raw)

	f, err = ParseString("POST https://example.com/b\nbase64,aGVsbG8=;\n")
	require.NoError(t, err)
	body = f.Entries[0].Request.Body
	assert.Equal(t, ast.BodyBase64, body.Kind)
	assert.Equal(t, "aGVsbG8=", body.Text.Raw)

	f, err = ParseString("POST https://example.com/c\nfile,payload.json;\n")
	require.NoError(t, err)
	body = f.Entries[0].Request.Body
	assert.Equal(t, ast.BodyFile, body.Kind)
	assert.Equal(t, "payload.json", body.File)

	f, err = ParseString("POST https://example.com/d\n\"one line\"\n")
	require.NoError(t, err)
	body = f.Entries[0].Request.Body
	assert.Equal(t, ast.BodyText, body.Kind)
	assert.Equal(t, "one line", body.Text.Raw)
}

func TestParseString_JSONBodyBalancesBraces(t *testing.T) {
	// Braces inside string values must not close the body.
	f, err := ParseString(`POST https://example.com/x
{
  "note": "curly } inside",
  "nested": {"a": [1, 2]}
}
`)
	require.NoError(t, err)
	body := f.Entries[0].Request.Body
	require.NotNil(t, body)
	assert.Equal(t, ast.BodyJSON, body.Kind)
	assert.Contains(t, body.Text.Raw, `"nested": {"a": [1, 2]}`)
}

func TestParseString_ResponseVariants(t *testing.T) {
	// Bare HTTP accepts any version and status.
	f, err := ParseString("GET https://example.com/\n\nHTTP *\n")
	require.NoError(t, err)
	assert.Equal(t, 0, f.Entries[0].Response.Status)
	assert.Equal(t, "HTTP", f.Entries[0].Response.Version)

	f, err = ParseString("GET https://example.com/\n\nHTTP/2 204\n")
	require.NoError(t, err)
	assert.Equal(t, 204, f.Entries[0].Response.Status)
	assert.Equal(t, "HTTP/2", f.Entries[0].Response.Version)

	// Expected response headers.
	f, err = ParseString("GET https://example.com/\n\nHTTP 200\nContent-Type: text/html\n")
	require.NoError(t, err)
	require.Len(t, f.Entries[0].Response.Headers, 1)
	assert.Equal(t, "text/html", f.Entries[0].Response.Headers[0].Value.Raw)
}

func TestParseString_AssertLines(t *testing.T) {
	f, err := ParseString(`GET https://example.com/
HTTP 200
[Asserts]
status >= 200
header "Vary" count 2
jsonpath "$.items" count == 3
jsonpath "$.tags" includes "beta"
jsonpath "$.name" not exists
body matches "^<html"
jsonpath "$.price" toFloat < 10.5
jsonpath "$.ids" nth 0 == 1
duration < 1000
`)
	require.NoError(t, err)
	asserts := f.Entries[0].Response.Asserts
	require.Len(t, asserts, 9)

	// "count 2" after a query is the count predicate, not the filter.
	a := asserts[1]
	assert.Empty(t, a.Filters)
	assert.Equal(t, ast.PredCount, a.Predicate.Kind)
	require.NotNil(t, a.Predicate.Expected)
	assert.Equal(t, int64(2), a.Predicate.Expected.Integer)

	// "count == 3" is the count filter feeding an equality.
	a = asserts[2]
	require.Len(t, a.Filters, 1)
	assert.Equal(t, ast.FilterCount, a.Filters[0].Kind)
	assert.Equal(t, ast.PredEquals, a.Predicate.Kind)

	a = asserts[4]
	assert.True(t, a.Predicate.Not)
	assert.Equal(t, ast.PredExists, a.Predicate.Kind)

	a = asserts[6]
	require.Len(t, a.Filters, 1)
	assert.Equal(t, ast.FilterToFloat, a.Filters[0].Kind)
	assert.Equal(t, ast.PredLess, a.Predicate.Kind)
	assert.Equal(t, 10.5, a.Predicate.Expected.Float)

	a = asserts[7]
	require.Len(t, a.Filters, 1)
	assert.Equal(t, ast.FilterNth, a.Filters[0].Kind)
	assert.Equal(t, 0, a.Filters[0].N)
}

func TestParseString_RegexLiteral(t *testing.T) {
	f, err := ParseString(`GET https://example.com/
HTTP 200
[Asserts]
jsonpath "$.token" matches /tok-\d+/
header "Location" matches /\/users\/\d+/
`)
	require.NoError(t, err)
	asserts := f.Entries[0].Response.Asserts

	lit := asserts[0].Predicate.Expected
	require.Equal(t, ast.LitRegex, lit.Kind)
	assert.Equal(t, `tok-\d+`, lit.Regex)

	// Escaped slashes belong to the pattern.
	lit = asserts[1].Predicate.Expected
	require.Equal(t, ast.LitRegex, lit.Kind)
	assert.Equal(t, `/users/\d+`, lit.Regex)
}

func TestParseString_ListLiteral(t *testing.T) {
	f, err := ParseString(`GET https://example.com/
HTTP 200
[Asserts]
jsonpath "$.tags" == ["a", "b", 3, true, null]
`)
	require.NoError(t, err)
	lit := f.Entries[0].Response.Asserts[0].Predicate.Expected
	require.Equal(t, ast.LitList, lit.Kind)
	require.Len(t, lit.List, 5)
	assert.Equal(t, ast.LitString, lit.List[0].Kind)
	assert.Equal(t, int64(3), lit.List[2].Integer)
	assert.True(t, lit.List[3].Bool)
	assert.Equal(t, ast.LitNull, lit.List[4].Kind)
}

func TestParseString_Errors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		line    int
		message string
	}{
		{"empty file", "\n\n# only comments\n", 1, "no entries"},
		{"bad request line", "FETCH https://example.com/\n", 1, "expected a request line"},
		{"unknown section", "GET https://example.com/\n[Bogus]\n", 2, "unknown request section"},
		{"unknown option", "GET https://example.com/\n[Options]\nspeed: fast\n", 3, "unknown option"},
		{"bad retry", "GET https://example.com/\n[Options]\nretry: -2\n", 3, "retry"},
		{"bad status", "GET https://example.com/\n\nHTTP 999\n", 3, "invalid status code"},
		{"bad version", "GET https://example.com/\n\nHTTP/3 200\n", 3, "invalid HTTP version"},
		{"unterminated fence", "POST https://example.com/\n```\nbody\n", 2, "unterminated"},
		{"unterminated json", "POST https://example.com/\n{\n\"a\": 1\n", 2, "unterminated JSON"},
		{"unknown query", "GET https://example.com/\nHTTP 200\n[Asserts]\nweight == 3\n", 4, "unknown query"},
		{"unknown predicate", "GET https://example.com/\nHTTP 200\n[Asserts]\nstatus equals 3\n", 4, "unknown predicate"},
		{"missing param", "GET https://example.com/\nHTTP 200\n[Asserts]\nheader exists\n", 4, "quoted string"},
		{"trailing content", "GET https://example.com/\nHTTP 200\n[Asserts]\nstatus == 200 extra\n", 4, "trailing content"},
		{"unterminated regex", "GET https://example.com/\nHTTP 200\n[Asserts]\nbody matches /abc\n", 4, "unterminated regex"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseString(tc.content)
			require.Error(t, err)
			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.line, perr.Line)
			assert.Contains(t, perr.Message, tc.message)
		})
	}
}

func TestParseFile_AttachesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smoke.reqflow")
	require.NoError(t, os.WriteFile(path, []byte("GET https://example.com/\n"), 0o644))

	f, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path)

	_, err = ParseFile(filepath.Join(dir, "missing.reqflow"))
	require.Error(t, err)

	// Parse errors carry the file name.
	bad := filepath.Join(dir, "bad.reqflow")
	require.NoError(t, os.WriteFile(bad, []byte("NOPE\n"), 0o644))
	_, err = ParseFile(bad)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, bad, perr.File)
}

func TestTemplate_Parts(t *testing.T) {
	tpl := Template("Bearer {{token}} for {{user}}")
	require.Len(t, tpl.Parts, 4)
	assert.Equal(t, "Bearer ", tpl.Parts[0].Literal)
	assert.Equal(t, "token", tpl.Parts[1].Variable)
	assert.Equal(t, " for ", tpl.Parts[2].Literal)
	assert.Equal(t, "user", tpl.Parts[3].Variable)

	// Unclosed braces are literal text.
	tpl = Template("a {{open")
	require.Len(t, tpl.Parts, 1)
	assert.Equal(t, "a {{open", tpl.Parts[0].Literal)
}
