// Package assert evaluates predicates against query results. Comparisons are
// type-strict: a type mismatch between actual and expected fails the assert
// deterministically with both sides reported, it is never coerced.
package assert

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/value"
	"github.com/abdul-hamid-achik/reqflow/packages/vars"
)

// Result is the outcome of one assert. All asserts of an entry are evaluated
// even after an earlier one failed.
type Result struct {
	Passed   bool
	Source   string // "status", "header Content-Type", "jsonpath $.id == 3" ...
	Actual   string
	Expected string
	Message  string
	Pos      ast.Position
}

// LiteralValue converts a predicate literal into a runtime value. String
// literals are templates, so predicates can reference variables.
func LiteralValue(lit *ast.Literal, store *vars.Store) (value.Value, error) {
	switch lit.Kind {
	case ast.LitNull:
		return value.Null(), nil
	case ast.LitBool:
		return value.NewBool(lit.Bool), nil
	case ast.LitInteger:
		return value.NewInteger(lit.Integer), nil
	case ast.LitFloat:
		return value.NewFloat(lit.Float), nil
	case ast.LitString:
		s, err := vars.Render(lit.Str, store)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewString(s), nil
	case ast.LitList:
		list := make([]value.Value, len(lit.List))
		for i, item := range lit.List {
			v, err := LiteralValue(item, store)
			if err != nil {
				return value.Value{}, err
			}
			list[i] = v
		}
		return value.NewList(list), nil
	case ast.LitRegex:
		re, err := regexp.Compile(lit.Regex)
		if err != nil {
			return value.Value{}, fmt.Errorf("invalid regex pattern /%s/: %v", lit.Regex, err)
		}
		return value.NewRegex(re), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported literal kind")
	}
}

// Evaluate runs one predicate. found is false when the underlying query
// addressed something absent.
func Evaluate(pred *ast.Predicate, actual value.Value, found bool, store *vars.Store) *Result {
	r := &Result{Pos: pred.Pos}
	if found {
		r.Actual = fmt.Sprintf("%s <%s>", actual.Kind(), actual.Render())
	} else {
		r.Actual = "none"
	}

	var expected value.Value
	if pred.Expected != nil {
		var err error
		expected, err = LiteralValue(pred.Expected, store)
		if err != nil {
			r.Message = err.Error()
			return r
		}
		r.Expected = describeExpected(pred, expected)
	} else {
		r.Expected = describeExpected(pred, value.Value{})
	}

	// Absent values only satisfy the existence family of predicates.
	if !found {
		switch pred.Kind {
		case ast.PredExists:
			r.Passed = pred.Not
		default:
			r.Passed = false
			r.Message = "query returned nothing"
		}
		if pred.Not && pred.Kind == ast.PredExists && r.Passed {
			r.Message = ""
		}
		return r
	}

	passed, msg := eval(pred.Kind, actual, expected)
	if pred.Not {
		passed = !passed
		if !passed {
			msg = fmt.Sprintf("expected not %s", r.Expected)
		} else {
			msg = ""
		}
	}
	r.Passed = passed
	if !passed && r.Message == "" {
		r.Message = msg
	}
	return r
}

func describeExpected(pred *ast.Predicate, expected value.Value) string {
	prefix := ""
	if pred.Not {
		prefix = "not "
	}
	switch pred.Kind {
	case ast.PredExists, ast.PredIsEmpty, ast.PredIsInteger, ast.PredIsFloat,
		ast.PredIsBoolean, ast.PredIsString, ast.PredIsCollection:
		return prefix + pred.Kind.String()
	default:
		return fmt.Sprintf("%s%s %s <%s>", prefix, pred.Kind, expected.Kind(), expected.Render())
	}
}

func eval(kind ast.PredicateKind, actual, expected value.Value) (bool, string) {
	switch kind {
	case ast.PredEquals:
		if !comparableKinds(actual, expected) {
			return false, typeMismatch(actual, expected)
		}
		if actual.Equal(expected) {
			return true, ""
		}
		return false, fmt.Sprintf("expected %s <%s>, got %s <%s>",
			expected.Kind(), expected.Render(), actual.Kind(), actual.Render())

	case ast.PredNotEquals:
		if !comparableKinds(actual, expected) {
			return false, typeMismatch(actual, expected)
		}
		if !actual.Equal(expected) {
			return true, ""
		}
		return false, fmt.Sprintf("expected a value different from <%s>", expected.Render())

	case ast.PredGreater, ast.PredGreaterOrEqual, ast.PredLess, ast.PredLessOrEqual:
		cmp, ok := actual.Compare(expected)
		if !ok {
			return false, typeMismatch(actual, expected)
		}
		passed := false
		switch kind {
		case ast.PredGreater:
			passed = cmp > 0
		case ast.PredGreaterOrEqual:
			passed = cmp >= 0
		case ast.PredLess:
			passed = cmp < 0
		case ast.PredLessOrEqual:
			passed = cmp <= 0
		}
		if passed {
			return true, ""
		}
		return false, fmt.Sprintf("expected <%s> %s <%s>", actual.Render(), kind, expected.Render())

	case ast.PredStartsWith:
		a, e, mismatch := bothStrings(actual, expected)
		if mismatch != "" {
			return false, mismatch
		}
		if strings.HasPrefix(a, e) {
			return true, ""
		}
		return false, fmt.Sprintf("<%s> does not start with <%s>", a, e)

	case ast.PredEndsWith:
		a, e, mismatch := bothStrings(actual, expected)
		if mismatch != "" {
			return false, mismatch
		}
		if strings.HasSuffix(a, e) {
			return true, ""
		}
		return false, fmt.Sprintf("<%s> does not end with <%s>", a, e)

	case ast.PredContains:
		a, e, mismatch := bothStrings(actual, expected)
		if mismatch != "" {
			return false, mismatch
		}
		if strings.Contains(a, e) {
			return true, ""
		}
		return false, fmt.Sprintf("<%s> does not contain <%s>", a, e)

	case ast.PredIncludes:
		list, ok := actual.AsList()
		if !ok {
			return false, fmt.Sprintf("expected a collection, got %s", actual.Kind())
		}
		for _, item := range list {
			if comparableKinds(item, expected) && item.Equal(expected) {
				return true, ""
			}
		}
		return false, fmt.Sprintf("collection does not include %s <%s>", expected.Kind(), expected.Render())

	case ast.PredCount:
		n, ok := actual.Count()
		if !ok {
			return false, fmt.Sprintf("cannot count a %s", actual.Kind())
		}
		want, ok := expected.AsInteger()
		if !ok {
			return false, fmt.Sprintf("count expects an integer, got %s", expected.Kind())
		}
		if int64(n) == want {
			return true, ""
		}
		return false, fmt.Sprintf("expected count %d, got %d", want, n)

	case ast.PredMatches:
		a, ok := actual.AsString()
		if !ok {
			return false, fmt.Sprintf("expected a string, got %s <%s>", actual.Kind(), actual.Render())
		}
		if re, ok := expected.AsRegex(); ok {
			if re.MatchString(a) {
				return true, ""
			}
			return false, fmt.Sprintf("<%s> does not match /%s/", a, re.String())
		}
		e, ok := expected.AsString()
		if !ok {
			return false, fmt.Sprintf("predicate value must be a string or regex, got %s", expected.Kind())
		}
		matched, err := matchString(e, a)
		if err != nil {
			return false, err.Error()
		}
		if matched {
			return true, ""
		}
		return false, fmt.Sprintf("<%s> does not match /%s/", a, e)

	case ast.PredExists:
		return true, ""

	case ast.PredIsEmpty:
		n, ok := actual.Count()
		if !ok {
			return false, fmt.Sprintf("cannot check emptiness of a %s", actual.Kind())
		}
		if n == 0 {
			return true, ""
		}
		return false, fmt.Sprintf("expected empty, got %d elements", n)

	case ast.PredIsInteger:
		return kindCheck(actual, value.KindInteger)
	case ast.PredIsFloat:
		return kindCheck(actual, value.KindFloat)
	case ast.PredIsBoolean:
		return kindCheck(actual, value.KindBool)
	case ast.PredIsString:
		return kindCheck(actual, value.KindString)
	case ast.PredIsCollection:
		if actual.Kind() == value.KindList || actual.Kind() == value.KindObject {
			return true, ""
		}
		return false, fmt.Sprintf("expected a collection, got %s", actual.Kind())

	case ast.PredSchema:
		schema, ok := expected.AsString()
		if !ok {
			return false, "schema predicate expects a string"
		}
		return validateSchema(actual, schema)

	default:
		return false, fmt.Sprintf("unsupported predicate %s", kind)
	}
}

func kindCheck(actual value.Value, want value.Kind) (bool, string) {
	if actual.Kind() == want {
		return true, ""
	}
	return false, fmt.Sprintf("expected a %s, got %s", want, actual.Kind())
}

// comparableKinds reports whether equality between the two kinds is
// meaningful. Numbers compare across integer/float, nothing else crosses.
func comparableKinds(a, b value.Value) bool {
	numeric := func(v value.Value) bool {
		return v.Kind() == value.KindInteger || v.Kind() == value.KindFloat
	}
	if numeric(a) && numeric(b) {
		return true
	}
	return a.Kind() == b.Kind()
}

func typeMismatch(actual, expected value.Value) string {
	return fmt.Sprintf("type mismatch: actual is %s <%s>, expected is %s <%s>",
		actual.Kind(), actual.Render(), expected.Kind(), expected.Render())
}

func bothStrings(actual, expected value.Value) (string, string, string) {
	a, ok := actual.AsString()
	if !ok {
		return "", "", fmt.Sprintf("expected a string, got %s <%s>", actual.Kind(), actual.Render())
	}
	e, ok := expected.AsString()
	if !ok {
		return "", "", fmt.Sprintf("predicate value must be a string, got %s", expected.Kind())
	}
	return a, e, ""
}
