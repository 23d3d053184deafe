package http

import (
	"fmt"
	"strings"
	"time"
)

// Header is one wire header line. Order and duplicates are preserved, the
// assert engine distinguishes single-valued from repeated headers.
type Header struct {
	Name  string
	Value string
}

type HeaderList []Header

func (h HeaderList) Add(name, value string) HeaderList {
	return append(h, Header{Name: name, Value: value})
}

// Get returns the first value of a header, case-insensitively.
func (h HeaderList) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Values returns every value of a header in wire order.
func (h HeaderList) Values(name string) []string {
	var out []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr.Value)
		}
	}
	return out
}

// Request is the realized wire request of one attempt.
type Request struct {
	Method  string
	URL     string
	Headers HeaderList
	Body    []byte
}

// Response is the realized response of one attempt.
type Response struct {
	Status      int
	Version     string // "HTTP/1.0", "HTTP/1.1", "HTTP/2"
	Headers     HeaderList
	Body        []byte
	Certificate *Certificate
}

func (r *Response) ContentType() string {
	ct, _ := r.Headers.Get("Content-Type")
	return ct
}

func (r *Response) IsJSON() bool {
	return strings.Contains(r.ContentType(), "json")
}

func (r *Response) IsHTML() bool {
	return strings.Contains(r.ContentType(), "html")
}

// Text decodes the body using the charset of the Content-Type header.
// UTF-8 is the default; latin-1 is decoded byte-wise.
func (r *Response) Text() (string, error) {
	charset := "utf-8"
	ct := strings.ToLower(r.ContentType())
	if idx := strings.Index(ct, "charset="); idx >= 0 {
		charset = strings.Trim(strings.TrimSpace(ct[idx+len("charset="):]), `"`)
		if sep := strings.IndexByte(charset, ';'); sep >= 0 {
			charset = strings.TrimSpace(charset[:sep])
		}
	}
	return DecodeText(r.Body, charset)
}

// DecodeText decodes raw bytes with a named charset.
func DecodeText(body []byte, charset string) (string, error) {
	switch strings.ToLower(charset) {
	case "utf-8", "utf8", "us-ascii", "ascii", "":
		return string(body), nil
	case "iso-8859-1", "latin1", "latin-1":
		runes := make([]rune, len(body))
		for i, b := range body {
			runes[i] = rune(b)
		}
		return string(runes), nil
	default:
		return "", fmt.Errorf("unsupported charset %q", charset)
	}
}

// SetCookie is one parsed Set-Cookie response header.
type SetCookie struct {
	Name              string
	Value             string
	Domain            string
	Path              string
	Secure            bool
	HTTPOnly          bool
	Expires           string
	MaxAge            string
}

// ParseSetCookie parses a raw Set-Cookie header value.
func ParseSetCookie(raw string) (SetCookie, bool) {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return SetCookie{}, false
	}
	name, val, found := strings.Cut(strings.TrimSpace(parts[0]), "=")
	if !found || name == "" {
		return SetCookie{}, false
	}
	c := SetCookie{Name: name, Value: val}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		k, v, _ := strings.Cut(p, "=")
		switch strings.ToLower(k) {
		case "domain":
			c.Domain = strings.TrimPrefix(v, ".")
		case "path":
			c.Path = v
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		case "expires":
			c.Expires = v
		case "max-age":
			c.MaxAge = v
		}
	}
	return c, true
}

// Cookies parses every Set-Cookie header of the response, in wire order.
func (r *Response) Cookies() []SetCookie {
	var out []SetCookie
	for _, raw := range r.Headers.Values("Set-Cookie") {
		if c, ok := ParseSetCookie(raw); ok {
			out = append(out, c)
		}
	}
	return out
}

// Certificate carries the fields of the server leaf certificate that the
// query engine exposes.
type Certificate struct {
	Subject      string
	Issuer       string
	StartDate    time.Time
	ExpireDate   time.Time
	SerialNumber string
}

// Timings is the per-attempt breakdown measured with httptrace.
type Timings struct {
	DNS       time.Duration
	Connect   time.Duration
	TLS       time.Duration
	FirstByte time.Duration
	Total     time.Duration
}

// Call is one request/response pair. An exchange holds several calls when
// redirects are followed.
type Call struct {
	Request  *Request
	Response *Response
	Timings  Timings
}

// Exchange is the realized request/response chain of one attempt. Queries,
// captures and asserts run against the final call.
type Exchange struct {
	Calls []*Call
}

// Final returns the last call of the chain.
func (e *Exchange) Final() *Call {
	if len(e.Calls) == 0 {
		return nil
	}
	return e.Calls[len(e.Calls)-1]
}

// RedirectCount is the number of followed redirects.
func (e *Exchange) RedirectCount() int {
	if len(e.Calls) == 0 {
		return 0
	}
	return len(e.Calls) - 1
}

// EffectiveURL is the URL of the final call.
func (e *Exchange) EffectiveURL() string {
	if c := e.Final(); c != nil {
		return c.Request.URL
	}
	return ""
}

// Duration sums the per-call totals of the chain.
func (e *Exchange) Duration() time.Duration {
	var d time.Duration
	for _, c := range e.Calls {
		d += c.Timings.Total
	}
	return d
}
