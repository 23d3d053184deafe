// Package parser turns scenario text into the entry AST. The syntax is line
// oriented: a request line (method + URL), header lines, bracketed sections,
// an optional body, then an optional expected response introduced by an HTTP
// status line with its own [Captures] and [Asserts] sections.
package parser

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
)

// Error is a parse failure with its source position.
type Error struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

var methods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
	"HEAD": true, "OPTIONS": true, "CONNECT": true, "TRACE": true,
	"LINK": true, "UNLINK": true, "PURGE": true, "LOCK": true, "UNLOCK": true,
	"PROPFIND": true, "VIEW": true,
}

type parser struct {
	file  string
	lines []string
	pos   int // 0-based index into lines
}

// ParseFile reads and parses one scenario file.
func ParseFile(path string) (*ast.ScenarioFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	f, perr := ParseString(string(data))
	if perr != nil {
		if e, ok := perr.(*Error); ok {
			e.File = path
		}
		return nil, perr
	}
	f.Path = path
	return f, nil
}

// ParseString parses scenario text.
func ParseString(content string) (*ast.ScenarioFile, error) {
	p := &parser{lines: strings.Split(content, "\n")}
	file := &ast.ScenarioFile{}
	for {
		p.skipBlank()
		if p.done() {
			break
		}
		entry, err := p.parseEntry()
		if err != nil {
			return nil, err
		}
		entry.Index = len(file.Entries) + 1
		file.Entries = append(file.Entries, entry)
	}
	if len(file.Entries) == 0 {
		return nil, p.errorf(1, 1, "scenario file contains no entries")
	}
	return file, nil
}

func (p *parser) done() bool { return p.pos >= len(p.lines) }

func (p *parser) current() string { return p.lines[p.pos] }

func (p *parser) lineNo() int { return p.pos + 1 }

func (p *parser) errorf(line, col int, format string, args ...any) *Error {
	return &Error{File: p.file, Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) skipBlank() {
	for !p.done() {
		t := strings.TrimSpace(p.current())
		if t == "" || strings.HasPrefix(t, "#") {
			p.pos++
			continue
		}
		return
	}
}

func isRequestLine(line string) bool {
	fields := strings.Fields(strings.TrimSpace(line))
	return len(fields) >= 2 && methods[fields[0]]
}

func isResponseLine(line string) bool {
	t := strings.TrimSpace(line)
	return t == "HTTP" || strings.HasPrefix(t, "HTTP ") || strings.HasPrefix(t, "HTTP/")
}

func isSectionLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]")
}

// atEntryBoundary reports whether the current line starts a new request or a
// response block.
func (p *parser) atEntryBoundary() bool {
	line := p.current()
	return isRequestLine(line) || isResponseLine(line)
}

func (p *parser) parseEntry() (*ast.Entry, error) {
	entry := &ast.Entry{Pos: ast.Position{Line: p.lineNo(), Column: 1}}
	req, opts, err := p.parseRequest()
	if err != nil {
		return nil, err
	}
	entry.Request = req
	entry.Options = opts

	p.skipBlank()
	if !p.done() && isResponseLine(p.current()) {
		resp, err := p.parseResponse()
		if err != nil {
			return nil, err
		}
		entry.Response = resp
	}
	return entry, nil
}

func (p *parser) parseRequest() (*ast.RequestSpec, *ast.Options, error) {
	line := strings.TrimSpace(p.current())
	method, rawURL, found := strings.Cut(line, " ")
	if !found || !methods[method] {
		return nil, nil, p.errorf(p.lineNo(), 1, "expected a request line (method and URL), got %q", line)
	}
	req := &ast.RequestSpec{
		Method: method,
		URL:    Template(strings.TrimSpace(rawURL)),
		Pos:    ast.Position{Line: p.lineNo(), Column: 1},
	}
	opts := &ast.Options{}
	p.pos++

	// Header lines directly follow the request line.
	headers, err := p.parseHeaderLines()
	if err != nil {
		return nil, nil, err
	}
	req.Headers = headers

	// Bracketed sections and the body, until the next boundary.
	for {
		p.skipBlank()
		if p.done() || p.atEntryBoundary() {
			return req, opts, nil
		}
		line := strings.TrimSpace(p.current())
		switch {
		case isSectionLine(line):
			name := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			switch name {
			case "QueryParams":
				p.pos++
				params, err := p.parseParamLines()
				if err != nil {
					return nil, nil, err
				}
				req.QueryParams = append(req.QueryParams, params...)
			case "FormParams":
				p.pos++
				params, err := p.parseParamLines()
				if err != nil {
					return nil, nil, err
				}
				req.FormParams = append(req.FormParams, params...)
			case "BasicAuth":
				p.pos++
				auth, err := p.parseBasicAuth()
				if err != nil {
					return nil, nil, err
				}
				req.BasicAuth = auth
			case "Options":
				p.pos++
				if err := p.parseOptions(opts); err != nil {
					return nil, nil, err
				}
			default:
				return nil, nil, p.errorf(p.lineNo(), 1, "unknown request section [%s]", name)
			}
		default:
			if req.Body != nil {
				return nil, nil, p.errorf(p.lineNo(), 1, "unexpected content after request body: %q", line)
			}
			body, err := p.parseBody()
			if err != nil {
				return nil, nil, err
			}
			req.Body = body
		}
	}
}

func (p *parser) parseHeaderLines() ([]*ast.HeaderSpec, error) {
	var out []*ast.HeaderSpec
	for !p.done() {
		line := strings.TrimSpace(p.current())
		if line == "" || strings.HasPrefix(line, "#") || isSectionLine(line) || p.atEntryBoundary() {
			return out, nil
		}
		name, val, found := strings.Cut(line, ":")
		if !found || strings.ContainsAny(strings.TrimSpace(name), " \t\"") {
			// Not a header line, likely the body.
			return out, nil
		}
		out = append(out, &ast.HeaderSpec{
			Name:  strings.TrimSpace(name),
			Value: Template(strings.TrimSpace(val)),
			Pos:   ast.Position{Line: p.lineNo(), Column: 1},
		})
		p.pos++
	}
	return out, nil
}

func (p *parser) parseParamLines() ([]*ast.ParamSpec, error) {
	var out []*ast.ParamSpec
	for !p.done() {
		line := strings.TrimSpace(p.current())
		if line == "" || strings.HasPrefix(line, "#") || isSectionLine(line) || p.atEntryBoundary() {
			return out, nil
		}
		name, val, found := strings.Cut(line, ":")
		if !found {
			return nil, p.errorf(p.lineNo(), 1, "expected \"name: value\", got %q", line)
		}
		out = append(out, &ast.ParamSpec{
			Name:  strings.TrimSpace(name),
			Value: Template(strings.TrimSpace(val)),
			Pos:   ast.Position{Line: p.lineNo(), Column: 1},
		})
		p.pos++
	}
	return out, nil
}

func (p *parser) parseBasicAuth() (*ast.BasicAuthSpec, error) {
	p.skipBlank()
	if p.done() {
		return nil, p.errorf(p.lineNo(), 1, "expected \"user: password\" after [BasicAuth]")
	}
	line := strings.TrimSpace(p.current())
	user, pass, found := strings.Cut(line, ":")
	if !found {
		return nil, p.errorf(p.lineNo(), 1, "expected \"user: password\", got %q", line)
	}
	auth := &ast.BasicAuthSpec{
		User:     Template(strings.TrimSpace(user)),
		Password: Template(strings.TrimSpace(pass)),
		Pos:      ast.Position{Line: p.lineNo(), Column: 1},
	}
	p.pos++
	return auth, nil
}

func (p *parser) parseOptions(opts *ast.Options) error {
	opts.Pos = ast.Position{Line: p.lineNo(), Column: 1}
	for !p.done() {
		line := strings.TrimSpace(p.current())
		if line == "" || strings.HasPrefix(line, "#") || isSectionLine(line) || p.atEntryBoundary() {
			return nil
		}
		lineNo := p.lineNo()
		key, val, found := strings.Cut(line, ":")
		if !found {
			return p.errorf(lineNo, 1, "expected \"option: value\", got %q", line)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "skip":
			b, err := parseBool(val)
			if err != nil {
				return p.errorf(lineNo, 1, "skip: %v", err)
			}
			opts.Skip = &b
		case "delay":
			d, err := parseDuration(val)
			if err != nil {
				return p.errorf(lineNo, 1, "delay: %v", err)
			}
			opts.Delay = &d
		case "retry":
			n, err := strconv.Atoi(val)
			if err != nil || n < -1 {
				return p.errorf(lineNo, 1, "retry: expected -1, 0 or a positive count, got %q", val)
			}
			opts.Retry = &n
		case "retry-interval":
			d, err := parseDuration(val)
			if err != nil {
				return p.errorf(lineNo, 1, "retry-interval: %v", err)
			}
			opts.RetryInterval = &d
		case "location":
			b, err := parseBool(val)
			if err != nil {
				return p.errorf(lineNo, 1, "location: %v", err)
			}
			opts.FollowRedirect = &b
		case "insecure":
			b, err := parseBool(val)
			if err != nil {
				return p.errorf(lineNo, 1, "insecure: %v", err)
			}
			opts.Insecure = &b
		case "verbose":
			b, err := parseBool(val)
			if err != nil {
				return p.errorf(lineNo, 1, "verbose: %v", err)
			}
			opts.Verbose = &b
		case "output":
			opts.Output = val
		case "variable":
			name, v, ok := strings.Cut(val, "=")
			if !ok || strings.TrimSpace(name) == "" {
				return p.errorf(lineNo, 1, "variable: expected \"name=value\", got %q", val)
			}
			opts.Variables = append(opts.Variables, &ast.VariableSpec{
				Name:  strings.TrimSpace(name),
				Value: Template(v),
				Pos:   ast.Position{Line: lineNo, Column: 1},
			})
		default:
			return p.errorf(lineNo, 1, "unknown option %q", key)
		}
		p.pos++
	}
	return nil
}

func (p *parser) parseBody() (*ast.BodySpec, error) {
	line := strings.TrimSpace(p.current())
	pos := ast.Position{Line: p.lineNo(), Column: 1}
	switch {
	case strings.HasPrefix(line, "```"):
		return p.parseFencedBody(pos)
	case strings.HasPrefix(line, "base64,") && strings.HasSuffix(line, ";"):
		payload := strings.TrimSuffix(strings.TrimPrefix(line, "base64,"), ";")
		p.pos++
		return &ast.BodySpec{Kind: ast.BodyBase64, Text: ast.NewTemplate(payload), Pos: pos}, nil
	case strings.HasPrefix(line, "file,") && strings.HasSuffix(line, ";"):
		path := strings.TrimSuffix(strings.TrimPrefix(line, "file,"), ";")
		p.pos++
		return &ast.BodySpec{Kind: ast.BodyFile, File: path, Pos: pos}, nil
	case strings.HasPrefix(line, "{") || strings.HasPrefix(line, "["):
		return p.parseJSONBody(pos)
	case strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`) && len(line) >= 2:
		p.pos++
		return &ast.BodySpec{Kind: ast.BodyText, Text: Template(line[1 : len(line)-1]), Pos: pos}, nil
	default:
		return nil, p.errorf(pos.Line, 1, "unexpected line %q: not a header, section, body or response", line)
	}
}

func (p *parser) parseFencedBody(pos ast.Position) (*ast.BodySpec, error) {
	p.pos++
	var lines []string
	for !p.done() {
		if strings.TrimSpace(p.current()) == "```" {
			p.pos++
			return &ast.BodySpec{Kind: ast.BodyText, Text: Template(strings.Join(lines, "\n")), Pos: pos}, nil
		}
		lines = append(lines, p.current())
		p.pos++
	}
	return nil, p.errorf(pos.Line, 1, "unterminated ``` body block")
}

// parseJSONBody consumes lines until braces and brackets balance. Quoted
// strings are tracked so a brace inside a value does not end the body.
func (p *parser) parseJSONBody(pos ast.Position) (*ast.BodySpec, error) {
	var lines []string
	depth := 0
	for !p.done() {
		line := p.current()
		inString := false
		escaped := false
		for _, r := range line {
			if escaped {
				escaped = false
				continue
			}
			switch r {
			case '\\':
				if inString {
					escaped = true
				}
			case '"':
				inString = !inString
			case '{', '[':
				if !inString {
					depth++
				}
			case '}', ']':
				if !inString {
					depth--
				}
			}
		}
		lines = append(lines, line)
		p.pos++
		if depth == 0 {
			return &ast.BodySpec{Kind: ast.BodyJSON, Text: Template(strings.Join(lines, "\n")), Pos: pos}, nil
		}
	}
	return nil, p.errorf(pos.Line, 1, "unterminated JSON body")
}

func (p *parser) parseResponse() (*ast.ResponseSpec, error) {
	line := strings.TrimSpace(p.current())
	resp := &ast.ResponseSpec{Pos: ast.Position{Line: p.lineNo(), Column: 1}}

	version := line
	rest := ""
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		version = line[:idx]
		rest = strings.TrimSpace(line[idx+1:])
	}
	switch version {
	case "HTTP", "HTTP/1.0", "HTTP/1.1", "HTTP/2":
	default:
		return nil, p.errorf(p.lineNo(), 1, "invalid HTTP version %q", version)
	}
	resp.Version = version
	if rest != "" && rest != "*" {
		status, err := strconv.Atoi(rest)
		if err != nil || status < 100 || status > 599 {
			return nil, p.errorf(p.lineNo(), 1, "invalid status code %q", rest)
		}
		resp.Status = status
	}
	p.pos++

	headers, err := p.parseHeaderLines()
	if err != nil {
		return nil, err
	}
	resp.Headers = headers

	for {
		p.skipBlank()
		if p.done() || isRequestLine(p.current()) {
			return resp, nil
		}
		line := strings.TrimSpace(p.current())
		if !isSectionLine(line) {
			return nil, p.errorf(p.lineNo(), 1, "unexpected line in response block: %q", line)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
		switch name {
		case "Captures":
			p.pos++
			caps, err := p.parseCaptures()
			if err != nil {
				return nil, err
			}
			resp.Captures = append(resp.Captures, caps...)
		case "Asserts":
			p.pos++
			asserts, err := p.parseAsserts()
			if err != nil {
				return nil, err
			}
			resp.Asserts = append(resp.Asserts, asserts...)
		default:
			return nil, p.errorf(p.lineNo(), 1, "unknown response section [%s]", name)
		}
	}
}

func (p *parser) parseCaptures() ([]*ast.Capture, error) {
	var out []*ast.Capture
	for !p.done() {
		line := strings.TrimSpace(p.current())
		if line == "" || strings.HasPrefix(line, "#") || isSectionLine(line) || p.atEntryBoundary() {
			return out, nil
		}
		lineNo := p.lineNo()
		name, rest, found := strings.Cut(line, ":")
		if !found {
			return nil, p.errorf(lineNo, 1, "expected \"name: query\", got %q", line)
		}
		lx := newLexer(strings.TrimSpace(rest), p.file, lineNo)
		q, err := lx.parseQuery()
		if err != nil {
			return nil, err
		}
		filters, err := lx.parseFilters()
		if err != nil {
			return nil, err
		}
		capture := &ast.Capture{
			Name:    strings.TrimSpace(name),
			Query:   q,
			Filters: filters,
			Pos:     ast.Position{Line: lineNo, Column: 1},
		}
		if lx.acceptWord("redact") {
			capture.Redact = true
		}
		if !lx.atEnd() {
			return nil, lx.errorf("unexpected trailing content %q", lx.remaining())
		}
		out = append(out, capture)
		p.pos++
	}
	return out, nil
}

func (p *parser) parseAsserts() ([]*ast.Assert, error) {
	var out []*ast.Assert
	for !p.done() {
		line := strings.TrimSpace(p.current())
		if line == "" || strings.HasPrefix(line, "#") || isSectionLine(line) || p.atEntryBoundary() {
			return out, nil
		}
		lineNo := p.lineNo()
		lx := newLexer(line, p.file, lineNo)
		q, err := lx.parseQuery()
		if err != nil {
			return nil, err
		}
		filters, err := lx.parseFilters()
		if err != nil {
			return nil, err
		}
		pred, err := lx.parsePredicate()
		if err != nil {
			return nil, err
		}
		if !lx.atEnd() {
			return nil, lx.errorf("unexpected trailing content %q", lx.remaining())
		}
		out = append(out, &ast.Assert{
			Query:     q,
			Filters:   filters,
			Predicate: pred,
			Pos:       ast.Position{Line: lineNo, Column: 1},
		})
		p.pos++
	}
	return out, nil
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("expected true or false, got %q", s)
	}
}

// parseDuration accepts Go duration syntax plus a bare integer meaning
// milliseconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Template parses {{name}} placeholders out of a raw string.
func Template(raw string) ast.Template {
	t := ast.Template{Raw: raw}
	rest := raw
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			break
		}
		name := strings.TrimSpace(rest[start+2 : start+end])
		if name == "" {
			break
		}
		if start > 0 {
			t.Parts = append(t.Parts, ast.TemplatePart{Literal: rest[:start]})
		}
		t.Parts = append(t.Parts, ast.TemplatePart{Variable: name})
		rest = rest[start+end+2:]
	}
	if rest != "" || len(t.Parts) == 0 {
		t.Parts = append(t.Parts, ast.TemplatePart{Literal: rest})
	}
	return t
}
