// Package query evaluates typed extraction expressions against a realized
// HTTP exchange. Each query kind has one pure evaluation function; results
// may flow through an ordered filter chain before being captured or asserted.
package query

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/value"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
	"github.com/tidwall/gjson"
)

// Error is a query evaluation failure. It carries the position and the query
// text so a failing entry can be reproduced.
type Error struct {
	Pos   ast.Position
	Query string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: query %s: %s", e.Pos.Line, e.Pos.Column, e.Query, e.Msg)
}

func newError(q *ast.Query, format string, args ...any) *Error {
	return &Error{Pos: q.Pos, Query: q.Kind.String(), Msg: fmt.Sprintf(format, args...)}
}

// Evaluate runs one query against the final call of an exchange. found is
// false when the query addresses something absent (missing header, missing
// JSON field): "exists"-style predicates act on it, captures treat it as an
// error.
func Evaluate(q *ast.Query, ex *http.Exchange, store *vars.Store) (v value.Value, found bool, err error) {
	final := ex.Final()
	if final == nil {
		return value.Value{}, false, newError(q, "no response available")
	}
	resp := final.Response

	param := ""
	if !q.Param.IsZero() {
		param, err = vars.Render(q.Param, store)
		if err != nil {
			return value.Value{}, false, newError(q, "%v", err)
		}
	}

	switch q.Kind {
	case ast.QueryStatus:
		return value.NewInteger(int64(resp.Status)), true, nil

	case ast.QueryVersion:
		return value.NewString(strings.TrimPrefix(resp.Version, "HTTP/")), true, nil

	case ast.QueryHeader:
		values := resp.Headers.Values(param)
		switch len(values) {
		case 0:
			return value.Value{}, false, nil
		case 1:
			return value.NewString(values[0]), true, nil
		default:
			list := make([]value.Value, len(values))
			for i, s := range values {
				list[i] = value.NewString(s)
			}
			return value.NewList(list), true, nil
		}

	case ast.QueryCookie:
		return evalCookie(q, param, resp)

	case ast.QueryBody:
		text, terr := resp.Text()
		if terr != nil {
			return value.Value{}, false, newError(q, "%v", terr)
		}
		return value.NewString(text), true, nil

	case ast.QueryBytes:
		return value.NewBytes(resp.Body), true, nil

	case ast.QueryJSONPath:
		return evalJSONPath(q, param, resp)

	case ast.QueryRegex:
		return evalRegex(q, param, resp)

	case ast.QuerySHA256:
		sum := sha256.Sum256(resp.Body)
		return value.NewBytes(sum[:]), true, nil

	case ast.QueryMD5:
		sum := md5.Sum(resp.Body)
		return value.NewBytes(sum[:]), true, nil

	case ast.QueryURL:
		return value.NewString(ex.EffectiveURL()), true, nil

	case ast.QueryRedirects:
		return value.NewInteger(int64(ex.RedirectCount())), true, nil

	case ast.QueryDuration:
		return value.NewInteger(ex.Duration().Milliseconds()), true, nil

	case ast.QueryCertificate:
		return evalCertificate(q, param, resp)

	case ast.QueryVariable:
		variable, ok := store.Get(param)
		if !ok {
			return value.Value{}, false, nil
		}
		return variable.Value, true, nil

	default:
		return value.Value{}, false, newError(q, "unsupported query kind")
	}
}

// evalCookie resolves a cookie path like "token" or "token[Domain]".
func evalCookie(q *ast.Query, param string, resp *http.Response) (value.Value, bool, error) {
	name := param
	attribute := "Value"
	if idx := strings.IndexByte(param, '['); idx >= 0 && strings.HasSuffix(param, "]") {
		name = param[:idx]
		attribute = param[idx+1 : len(param)-1]
	}
	for _, c := range resp.Cookies() {
		if c.Name != name {
			continue
		}
		switch strings.ToLower(attribute) {
		case "value":
			return value.NewString(c.Value), true, nil
		case "domain":
			if c.Domain == "" {
				return value.Value{}, false, nil
			}
			return value.NewString(c.Domain), true, nil
		case "path":
			if c.Path == "" {
				return value.Value{}, false, nil
			}
			return value.NewString(c.Path), true, nil
		case "secure":
			if !c.Secure {
				return value.Value{}, false, nil
			}
			return value.Unit(), true, nil
		case "httponly":
			if !c.HTTPOnly {
				return value.Value{}, false, nil
			}
			return value.Unit(), true, nil
		case "expires":
			if c.Expires == "" {
				return value.Value{}, false, nil
			}
			return value.NewString(c.Expires), true, nil
		case "max-age":
			if c.MaxAge == "" {
				return value.Value{}, false, nil
			}
			return value.NewString(c.MaxAge), true, nil
		default:
			return value.Value{}, false, newError(q, "unknown cookie attribute %q", attribute)
		}
	}
	return value.Value{}, false, nil
}

func evalJSONPath(q *ast.Query, path string, resp *http.Response) (value.Value, bool, error) {
	if !gjson.ValidBytes(resp.Body) {
		return value.Value{}, false, newError(q, "response body is not valid JSON")
	}
	normalized := normalizeJSONPath(path)
	if normalized == "" {
		return value.FromAny(gjson.ParseBytes(resp.Body).Value()), true, nil
	}
	result := gjson.GetBytes(resp.Body, normalized)
	if !result.Exists() {
		return value.Value{}, false, nil
	}
	return value.FromAny(result.Value()), true, nil
}

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// normalizeJSONPath maps the "$.a.b[0]" notation onto gjson's dotted syntax.
func normalizeJSONPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = bracketIndex.ReplaceAllString(path, ".$1")
	path = strings.ReplaceAll(path, `['`, ".")
	path = strings.ReplaceAll(path, `']`, "")
	path = strings.TrimPrefix(path, ".")
	return path
}

// evalRegex matches the body text; group 1 is returned when the pattern has
// one, otherwise the whole match.
func evalRegex(q *ast.Query, pattern string, resp *http.Response) (value.Value, bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return value.Value{}, false, newError(q, "invalid regex %q: %v", pattern, err)
	}
	text, terr := resp.Text()
	if terr != nil {
		return value.Value{}, false, newError(q, "%v", terr)
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return value.Value{}, false, nil
	}
	if len(m) > 1 {
		return value.NewString(m[1]), true, nil
	}
	return value.NewString(m[0]), true, nil
}

func evalCertificate(q *ast.Query, field string, resp *http.Response) (value.Value, bool, error) {
	cert := resp.Certificate
	if cert == nil {
		return value.Value{}, false, nil
	}
	switch strings.ToLower(field) {
	case "subject":
		return value.NewString(cert.Subject), true, nil
	case "issuer":
		return value.NewString(cert.Issuer), true, nil
	case "start-date":
		return value.NewString(cert.StartDate.UTC().Format("2006-01-02T15:04:05Z")), true, nil
	case "expire-date":
		return value.NewString(cert.ExpireDate.UTC().Format("2006-01-02T15:04:05Z")), true, nil
	case "serial-number":
		return value.NewString(cert.SerialNumber), true, nil
	default:
		return value.Value{}, false, newError(q, "unknown certificate field %q", field)
	}
}
