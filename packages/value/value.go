package value

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the runtime type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindString
	KindBytes
	KindList
	KindObject
	KindRegex
	KindUnit
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	case KindRegex:
		return "regex"
	case KindUnit:
		return "unit"
	default:
		return "unknown"
	}
}

// Pair is one insertion-ordered field of an object value.
type Pair struct {
	Key   string
	Value Value
}

// Value is the tagged union flowing through queries, filters, captures and
// predicates. Comparisons are type-strict: integers and floats compare with
// each other, everything else only with its own kind.
type Value struct {
	kind  Kind
	str   string
	num   int64
	fnum  float64
	boolv bool
	bytes []byte
	list  []Value
	obj   []Pair
	re    *regexp.Regexp
}

func Null() Value                 { return Value{kind: KindNull} }
func Unit() Value                 { return Value{kind: KindUnit} }
func NewBool(b bool) Value        { return Value{kind: KindBool, boolv: b} }
func NewInteger(i int64) Value    { return Value{kind: KindInteger, num: i} }
func NewFloat(f float64) Value    { return Value{kind: KindFloat, fnum: f} }
func NewString(s string) Value    { return Value{kind: KindString, str: s} }
func NewBytes(b []byte) Value     { return Value{kind: KindBytes, bytes: b} }
func NewList(vs []Value) Value    { return Value{kind: KindList, list: vs} }
func NewObject(ps []Pair) Value   { return Value{kind: KindObject, obj: ps} }
func NewRegex(re *regexp.Regexp) Value { return Value{kind: KindRegex, re: re} }

// FromAny converts a decoded JSON value (the encoding/json and gjson shape)
// into a Value.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case bool:
		return NewBool(x)
	case float64:
		if x == float64(int64(x)) {
			return NewInteger(int64(x))
		}
		return NewFloat(x)
	case int:
		return NewInteger(int64(x))
	case int64:
		return NewInteger(x)
	case string:
		return NewString(x)
	case []any:
		list := make([]Value, len(x))
		for i, item := range x {
			list[i] = FromAny(item)
		}
		return NewList(list)
	case map[string]any:
		// Map iteration order is random while object equality is positional,
		// so pairs are keyed in sorted order.
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]Pair, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, Pair{Key: k, Value: FromAny(x[k])})
		}
		return NewObject(pairs)
	default:
		return NewString(fmt.Sprintf("%v", x))
	}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload when the value is a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolv, true
}

func (v Value) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.num, true
}

// AsFloat widens integers, so numeric predicates can compare across the two
// numeric kinds.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.fnum, true
	case KindInteger:
		return float64(v.num), true
	default:
		return 0, false
	}
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) AsObject() ([]Pair, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

func (v Value) AsRegex() (*regexp.Regexp, bool) {
	if v.kind != KindRegex {
		return nil, false
	}
	return v.re, true
}

// ObjectGet looks up a field of an object value.
func (v Value) ObjectGet(key string) (Value, bool) {
	for _, p := range v.obj {
		if p.Key == key {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Count returns the cardinality of collections and the byte/char length of
// scalars that have one.
func (v Value) Count() (int, bool) {
	switch v.kind {
	case KindList:
		return len(v.list), true
	case KindObject:
		return len(v.obj), true
	case KindString:
		return len(v.str), true
	case KindBytes:
		return len(v.bytes), true
	default:
		return 0, false
	}
}

func (v Value) isNumber() bool {
	return v.kind == KindInteger || v.kind == KindFloat
}

// Equal implements type-strict equality. The only cross-kind comparison
// allowed is integer against float.
func (v Value) Equal(o Value) bool {
	if v.isNumber() && o.isNumber() {
		a, _ := v.AsFloat()
		b, _ := o.AsFloat()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull, KindUnit:
		return true
	case KindBool:
		return v.boolv == o.boolv
	case KindString:
		return v.str == o.str
	case KindBytes:
		return string(v.bytes) == string(o.bytes)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for i := range v.obj {
			if v.obj[i].Key != o.obj[i].Key || !v.obj[i].Value.Equal(o.obj[i].Value) {
				return false
			}
		}
		return true
	case KindRegex:
		return o.re != nil && v.re != nil && v.re.String() == o.re.String()
	default:
		return false
	}
}

// Compare orders two values: -1, 0 or 1. Only numbers order against numbers
// and strings against strings; anything else is not comparable.
func (v Value) Compare(o Value) (int, bool) {
	if v.isNumber() && o.isNumber() {
		a, _ := v.AsFloat()
		b, _ := o.AsFloat()
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		default:
			return 0, true
		}
	}
	if v.kind == KindString && o.kind == KindString {
		return strings.Compare(v.str, o.str), true
	}
	return 0, false
}

// Render formats the value for diagnostics and reports.
func (v Value) Render() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindUnit:
		return "unit"
	case KindBool:
		return strconv.FormatBool(v.boolv)
	case KindInteger:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.fnum, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case KindString:
		return v.str
	case KindBytes:
		return "hex," + hex.EncodeToString(v.bytes) + ";"
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.Render()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindObject:
		return fmt.Sprintf("object(%d fields)", len(v.obj))
	case KindRegex:
		return "/" + v.re.String() + "/"
	default:
		return ""
	}
}

// ToAny converts back to the encoding/json shape, used by report writers.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull, KindUnit:
		return nil
	case KindBool:
		return v.boolv
	case KindInteger:
		return v.num
	case KindFloat:
		return v.fnum
	case KindString:
		return v.str
	case KindBytes:
		return hex.EncodeToString(v.bytes)
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for _, p := range v.obj {
			out[p.Key] = p.Value.ToAny()
		}
		return out
	case KindRegex:
		return v.re.String()
	default:
		return nil
	}
}
