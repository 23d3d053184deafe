package query

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/value"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
)

// FilterError is a failure inside an ordered filter chain.
type FilterError struct {
	Pos    ast.Position
	Filter string
	Msg    string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%d:%d: filter %s: %s", e.Pos.Line, e.Pos.Column, e.Filter, e.Msg)
}

func filterErr(f *ast.Filter, format string, args ...any) *FilterError {
	return &FilterError{Pos: f.Pos, Filter: f.Kind.String(), Msg: fmt.Sprintf(format, args...)}
}

// ApplyFilters runs the ordered chain on a query result.
func ApplyFilters(filters []*ast.Filter, v value.Value, store *vars.Store) (value.Value, error) {
	var err error
	for _, f := range filters {
		v, err = applyFilter(f, v, store)
		if err != nil {
			return value.Value{}, err
		}
	}
	return v, nil
}

func applyFilter(f *ast.Filter, v value.Value, store *vars.Store) (value.Value, error) {
	switch f.Kind {
	case ast.FilterCount:
		n, ok := v.Count()
		if !ok {
			return value.Value{}, filterErr(f, "cannot count a %s", v.Kind())
		}
		return value.NewInteger(int64(n)), nil

	case ast.FilterNth:
		list, ok := v.AsList()
		if !ok {
			return value.Value{}, filterErr(f, "expected a list, got %s", v.Kind())
		}
		if f.N < 0 || f.N >= len(list) {
			return value.Value{}, filterErr(f, "index %d out of range (len %d)", f.N, len(list))
		}
		return list[f.N], nil

	case ast.FilterRegex:
		pattern, err := vars.Render(f.Arg, store)
		if err != nil {
			return value.Value{}, filterErr(f, "%v", err)
		}
		s, ok := v.AsString()
		if !ok {
			return value.Value{}, filterErr(f, "expected a string, got %s", v.Kind())
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return value.Value{}, filterErr(f, "invalid regex %q: %v", pattern, err)
		}
		m := re.FindStringSubmatch(s)
		if m == nil {
			return value.Value{}, filterErr(f, "pattern %q did not match", pattern)
		}
		if len(m) > 1 {
			return value.NewString(m[1]), nil
		}
		return value.NewString(m[0]), nil

	case ast.FilterReplace:
		old, err := vars.Render(f.Arg, store)
		if err != nil {
			return value.Value{}, filterErr(f, "%v", err)
		}
		repl, err := vars.Render(f.Arg2, store)
		if err != nil {
			return value.Value{}, filterErr(f, "%v", err)
		}
		s, ok := v.AsString()
		if !ok {
			return value.Value{}, filterErr(f, "expected a string, got %s", v.Kind())
		}
		return value.NewString(strings.ReplaceAll(s, old, repl)), nil

	case ast.FilterSplit:
		sep, err := vars.Render(f.Arg, store)
		if err != nil {
			return value.Value{}, filterErr(f, "%v", err)
		}
		s, ok := v.AsString()
		if !ok {
			return value.Value{}, filterErr(f, "expected a string, got %s", v.Kind())
		}
		parts := strings.Split(s, sep)
		list := make([]value.Value, len(parts))
		for i, p := range parts {
			list[i] = value.NewString(p)
		}
		return value.NewList(list), nil

	case ast.FilterToInt:
		switch v.Kind() {
		case value.KindInteger:
			return v, nil
		case value.KindFloat:
			fv, _ := v.AsFloat()
			return value.NewInteger(int64(fv)), nil
		case value.KindString:
			s, _ := v.AsString()
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return value.Value{}, filterErr(f, "cannot convert %q to integer", s)
			}
			return value.NewInteger(n), nil
		default:
			return value.Value{}, filterErr(f, "cannot convert a %s to integer", v.Kind())
		}

	case ast.FilterToFloat:
		switch v.Kind() {
		case value.KindFloat:
			return v, nil
		case value.KindInteger:
			fv, _ := v.AsFloat()
			return value.NewFloat(fv), nil
		case value.KindString:
			s, _ := v.AsString()
			fv, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return value.Value{}, filterErr(f, "cannot convert %q to float", s)
			}
			return value.NewFloat(fv), nil
		default:
			return value.Value{}, filterErr(f, "cannot convert a %s to float", v.Kind())
		}

	case ast.FilterDecode:
		charset, err := vars.Render(f.Arg, store)
		if err != nil {
			return value.Value{}, filterErr(f, "%v", err)
		}
		b, ok := v.AsBytes()
		if !ok {
			return value.Value{}, filterErr(f, "expected bytes, got %s", v.Kind())
		}
		s, err := http.DecodeText(b, charset)
		if err != nil {
			return value.Value{}, filterErr(f, "%v", err)
		}
		return value.NewString(s), nil

	case ast.FilterFormat:
		verb, err := vars.Render(f.Arg, store)
		if err != nil {
			return value.Value{}, filterErr(f, "%v", err)
		}
		return value.NewString(fmt.Sprintf(verb, v.ToAny())), nil

	case ast.FilterBase64Decode:
		s, ok := v.AsString()
		if !ok {
			return value.Value{}, filterErr(f, "expected a string, got %s", v.Kind())
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return value.Value{}, filterErr(f, "invalid base64: %v", err)
		}
		return value.NewBytes(b), nil

	case ast.FilterURLDecode:
		s, ok := v.AsString()
		if !ok {
			return value.Value{}, filterErr(f, "expected a string, got %s", v.Kind())
		}
		decoded, err := url.QueryUnescape(s)
		if err != nil {
			return value.Value{}, filterErr(f, "invalid url encoding: %v", err)
		}
		return value.NewString(decoded), nil

	case ast.FilterHTMLUnescape:
		s, ok := v.AsString()
		if !ok {
			return value.Value{}, filterErr(f, "expected a string, got %s", v.Kind())
		}
		return value.NewString(html.UnescapeString(s)), nil

	default:
		return value.Value{}, filterErr(f, "unsupported filter")
	}
}
