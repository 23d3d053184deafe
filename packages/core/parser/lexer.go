package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
)

// lexer scans one capture or assert line: a query, an optional filter chain
// and, for asserts, a predicate.
type lexer struct {
	input string
	file  string
	line  int
	pos   int
}

func newLexer(input, file string, line int) *lexer {
	return &lexer{input: input, file: file, line: line}
}

func (l *lexer) errorf(format string, args ...any) *Error {
	return &Error{File: l.file, Line: l.line, Column: l.pos + 1, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) position() ast.Position {
	return ast.Position{Line: l.line, Column: l.pos + 1}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t') {
		l.pos++
	}
}

func (l *lexer) atEnd() bool {
	l.skipSpace()
	return l.pos >= len(l.input)
}

func (l *lexer) remaining() string {
	return strings.TrimSpace(l.input[l.pos:])
}

// peekWord returns the next bare word without consuming it.
func (l *lexer) peekWord() string {
	l.skipSpace()
	end := l.pos
	for end < len(l.input) && !isSpaceByte(l.input[end]) {
		end++
	}
	return l.input[l.pos:end]
}

func (l *lexer) readWord() string {
	w := l.peekWord()
	l.skipSpace()
	l.pos += len(w)
	return w
}

// acceptWord consumes the next word only when it matches.
func (l *lexer) acceptWord(w string) bool {
	if l.peekWord() == w {
		l.readWord()
		return true
	}
	return false
}

func isSpaceByte(b byte) bool { return b == ' ' || b == '\t' }

// readQuoted consumes a double-quoted string, handling the usual escapes.
func (l *lexer) readQuoted() (string, error) {
	l.skipSpace()
	if l.pos >= len(l.input) || l.input[l.pos] != '"' {
		return "", l.errorf("expected a quoted string")
	}
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch c {
		case '"':
			l.pos++
			return b.String(), nil
		case '\\':
			l.pos++
			if l.pos >= len(l.input) {
				return "", l.errorf("unterminated escape in string")
			}
			switch l.input[l.pos] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '/':
				b.WriteByte('/')
			default:
				return "", l.errorf("unknown escape \\%c", l.input[l.pos])
			}
			l.pos++
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return "", l.errorf("unterminated string")
}

// readRegex consumes a slash-delimited pattern. Only the closing slash is
// escapable; every other backslash belongs to the pattern itself.
func (l *lexer) readRegex() (string, error) {
	l.pos++ // opening '/'
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/':
			b.WriteByte('/')
			l.pos += 2
		case c == '/':
			l.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return "", l.errorf("unterminated regex")
}

var queryKinds = map[string]ast.QueryKind{
	"status":      ast.QueryStatus,
	"version":     ast.QueryVersion,
	"header":      ast.QueryHeader,
	"cookie":      ast.QueryCookie,
	"body":        ast.QueryBody,
	"bytes":       ast.QueryBytes,
	"jsonpath":    ast.QueryJSONPath,
	"regex":       ast.QueryRegex,
	"sha256":      ast.QuerySHA256,
	"md5":         ast.QueryMD5,
	"url":         ast.QueryURL,
	"redirects":   ast.QueryRedirects,
	"duration":    ast.QueryDuration,
	"certificate": ast.QueryCertificate,
	"variable":    ast.QueryVariable,
}

// queryNeedsParam lists kinds taking a quoted parameter.
var queryNeedsParam = map[ast.QueryKind]bool{
	ast.QueryHeader:      true,
	ast.QueryCookie:      true,
	ast.QueryJSONPath:    true,
	ast.QueryRegex:       true,
	ast.QueryCertificate: true,
	ast.QueryVariable:    true,
}

func (l *lexer) parseQuery() (*ast.Query, error) {
	pos := l.position()
	word := l.readWord()
	kind, ok := queryKinds[word]
	if !ok {
		return nil, l.errorf("unknown query %q", word)
	}
	q := &ast.Query{Kind: kind, Pos: pos}
	if queryNeedsParam[kind] {
		param, err := l.readQuoted()
		if err != nil {
			return nil, err
		}
		q.Param = Template(param)
	}
	return q, nil
}

var filterKinds = map[string]ast.FilterKind{
	"count":        ast.FilterCount,
	"nth":          ast.FilterNth,
	"regex":        ast.FilterRegex,
	"replace":      ast.FilterReplace,
	"split":        ast.FilterSplit,
	"toInt":        ast.FilterToInt,
	"toFloat":      ast.FilterToFloat,
	"decode":       ast.FilterDecode,
	"format":       ast.FilterFormat,
	"base64Decode": ast.FilterBase64Decode,
	"urlDecode":    ast.FilterURLDecode,
	"htmlUnescape": ast.FilterHTMLUnescape,
}

// parseFilters consumes filter words until a predicate keyword, "redact" or
// line end. "count" doubles as the count predicate when it is directly
// followed by an integer at the end of the line.
func (l *lexer) parseFilters() ([]*ast.Filter, error) {
	var out []*ast.Filter
	for {
		word := l.peekWord()
		kind, ok := filterKinds[word]
		if !ok {
			return out, nil
		}
		if word == "count" && l.countIsPredicate() {
			return out, nil
		}
		pos := l.position()
		l.readWord()
		f := &ast.Filter{Kind: kind, Pos: pos}
		switch kind {
		case ast.FilterNth:
			n := l.readWord()
			idx, err := strconv.Atoi(n)
			if err != nil || idx < 0 {
				return nil, l.errorf("nth: expected a non-negative index, got %q", n)
			}
			f.N = idx
		case ast.FilterRegex, ast.FilterSplit, ast.FilterDecode, ast.FilterFormat:
			arg, err := l.readQuoted()
			if err != nil {
				return nil, err
			}
			f.Arg = Template(arg)
		case ast.FilterReplace:
			arg, err := l.readQuoted()
			if err != nil {
				return nil, err
			}
			arg2, err := l.readQuoted()
			if err != nil {
				return nil, err
			}
			f.Arg = Template(arg)
			f.Arg2 = Template(arg2)
		}
		out = append(out, f)
	}
}

// countIsPredicate looks past "count" for an integer that ends the line.
func (l *lexer) countIsPredicate() bool {
	save := l.pos
	defer func() { l.pos = save }()
	l.readWord() // count
	next := l.readWord()
	if _, err := strconv.ParseInt(next, 10, 64); err != nil {
		return false
	}
	return l.atEnd()
}

var predicateKinds = map[string]ast.PredicateKind{
	"==":           ast.PredEquals,
	"!=":           ast.PredNotEquals,
	">":            ast.PredGreater,
	">=":           ast.PredGreaterOrEqual,
	"<":            ast.PredLess,
	"<=":           ast.PredLessOrEqual,
	"startsWith":   ast.PredStartsWith,
	"endsWith":     ast.PredEndsWith,
	"contains":     ast.PredContains,
	"includes":     ast.PredIncludes,
	"matches":      ast.PredMatches,
	"exists":       ast.PredExists,
	"isEmpty":      ast.PredIsEmpty,
	"count":        ast.PredCount,
	"isInteger":    ast.PredIsInteger,
	"isFloat":      ast.PredIsFloat,
	"isBoolean":    ast.PredIsBoolean,
	"isString":     ast.PredIsString,
	"isCollection": ast.PredIsCollection,
	"schema":       ast.PredSchema,
}

// predicateTakesValue lists kinds expecting an expected-value literal.
var predicateTakesValue = map[ast.PredicateKind]bool{
	ast.PredEquals:         true,
	ast.PredNotEquals:      true,
	ast.PredGreater:        true,
	ast.PredGreaterOrEqual: true,
	ast.PredLess:           true,
	ast.PredLessOrEqual:    true,
	ast.PredStartsWith:     true,
	ast.PredEndsWith:       true,
	ast.PredContains:       true,
	ast.PredIncludes:       true,
	ast.PredMatches:        true,
	ast.PredCount:          true,
	ast.PredSchema:         true,
}

func (l *lexer) parsePredicate() (*ast.Predicate, error) {
	pos := l.position()
	not := l.acceptWord("not")
	word := l.readWord()
	kind, ok := predicateKinds[word]
	if !ok {
		return nil, l.errorf("unknown predicate %q", word)
	}
	pred := &ast.Predicate{Kind: kind, Not: not, Pos: pos}
	if predicateTakesValue[kind] {
		lit, err := l.parseLiteral()
		if err != nil {
			return nil, err
		}
		pred.Expected = lit
	}
	return pred, nil
}

func (l *lexer) parseLiteral() (*ast.Literal, error) {
	l.skipSpace()
	pos := l.position()
	if l.pos >= len(l.input) {
		return nil, l.errorf("expected a value")
	}
	switch c := l.input[l.pos]; {
	case c == '"':
		s, err := l.readQuoted()
		if err != nil {
			return nil, err
		}
		return &ast.Literal{Kind: ast.LitString, Str: Template(s), Pos: pos}, nil
	case c == '/':
		pattern, err := l.readRegex()
		if err != nil {
			return nil, err
		}
		return &ast.Literal{Kind: ast.LitRegex, Regex: pattern, Pos: pos}, nil
	case c == '[':
		return l.parseListLiteral(pos)
	default:
		word := l.readWord()
		switch word {
		case "null":
			return &ast.Literal{Kind: ast.LitNull, Pos: pos}, nil
		case "true":
			return &ast.Literal{Kind: ast.LitBool, Bool: true, Pos: pos}, nil
		case "false":
			return &ast.Literal{Kind: ast.LitBool, Bool: false, Pos: pos}, nil
		}
		if n, err := strconv.ParseInt(word, 10, 64); err == nil {
			return &ast.Literal{Kind: ast.LitInteger, Integer: n, Pos: pos}, nil
		}
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			return &ast.Literal{Kind: ast.LitFloat, Float: f, Pos: pos}, nil
		}
		return nil, l.errorf("invalid value %q", word)
	}
}

func (l *lexer) parseListLiteral(pos ast.Position) (*ast.Literal, error) {
	l.pos++ // consume '['
	lit := &ast.Literal{Kind: ast.LitList, Pos: pos}
	for {
		l.skipSpace()
		if l.pos < len(l.input) && l.input[l.pos] == ']' {
			l.pos++
			return lit, nil
		}
		item, err := l.parseListItem()
		if err != nil {
			return nil, err
		}
		lit.List = append(lit.List, item)
		l.skipSpace()
		if l.pos < len(l.input) && l.input[l.pos] == ',' {
			l.pos++
			continue
		}
		if l.pos < len(l.input) && l.input[l.pos] == ']' {
			l.pos++
			return lit, nil
		}
		return nil, l.errorf("expected ',' or ']' in list")
	}
}

// parseListItem parses a scalar inside a list, where words end at ',' or ']'.
func (l *lexer) parseListItem() (*ast.Literal, error) {
	l.skipSpace()
	pos := l.position()
	if l.pos < len(l.input) && l.input[l.pos] == '"' {
		s, err := l.readQuoted()
		if err != nil {
			return nil, err
		}
		return &ast.Literal{Kind: ast.LitString, Str: Template(s), Pos: pos}, nil
	}
	end := l.pos
	for end < len(l.input) && l.input[end] != ',' && l.input[end] != ']' {
		end++
	}
	word := strings.TrimSpace(l.input[l.pos:end])
	l.pos = end
	switch word {
	case "null":
		return &ast.Literal{Kind: ast.LitNull, Pos: pos}, nil
	case "true":
		return &ast.Literal{Kind: ast.LitBool, Bool: true, Pos: pos}, nil
	case "false":
		return &ast.Literal{Kind: ast.LitBool, Bool: false, Pos: pos}, nil
	}
	if n, err := strconv.ParseInt(word, 10, 64); err == nil {
		return &ast.Literal{Kind: ast.LitInteger, Integer: n, Pos: pos}, nil
	}
	if f, err := strconv.ParseFloat(word, 64); err == nil {
		return &ast.Literal{Kind: ast.LitFloat, Float: f, Pos: pos}, nil
	}
	return nil, l.errorf("invalid list element %q", word)
}
