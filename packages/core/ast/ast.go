package ast

import "time"

// ScenarioFile is the parsed form of one scenario file: an ordered list of
// request/response entries.
type ScenarioFile struct {
	Path    string
	Entries []*Entry
}

// Entry is one request plus its optional expected response. Entries are
// immutable once parsed.
type Entry struct {
	Index    int // 1-based position in the file
	Request  *RequestSpec
	Response *ResponseSpec
	Options  *Options
	Pos      Position
}

type RequestSpec struct {
	Method      string
	URL         Template
	Headers     []*HeaderSpec
	QueryParams []*ParamSpec
	FormParams  []*ParamSpec
	BasicAuth   *BasicAuthSpec
	Body        *BodySpec
	Pos         Position
}

type HeaderSpec struct {
	Name  string
	Value Template
	Pos   Position
}

type ParamSpec struct {
	Name  string
	Value Template
	Pos   Position
}

type BasicAuthSpec struct {
	User     Template
	Password Template
	Pos      Position
}

type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyText
	BodyJSON
	BodyBase64
	BodyFile
)

type BodySpec struct {
	Kind BodyKind
	Text Template
	// File holds a relative path for BodyFile bodies.
	File string
	Pos  Position
}

// ResponseSpec carries the expected status/version/header lines plus the
// capture and assert sections.
type ResponseSpec struct {
	Version  string // "HTTP/1.0", "HTTP/1.1", "HTTP/2", "HTTP" (any)
	Status   int    // 0 means any status
	Headers  []*HeaderSpec
	Captures []*Capture
	Asserts  []*Assert
	Pos      Position
}

// Capture extracts a query result into a named variable. Captures are
// mandatory: a failing capture fails the whole entry.
type Capture struct {
	Name    string
	Query   *Query
	Filters []*Filter
	Redact  bool
	Pos     Position
}

// Assert pairs a query (plus optional filter chain) with a predicate.
type Assert struct {
	Query     *Query
	Filters   []*Filter
	Predicate *Predicate
	Pos       Position
}

type QueryKind int

const (
	QueryStatus QueryKind = iota
	QueryVersion
	QueryHeader
	QueryCookie
	QueryBody
	QueryBytes
	QueryJSONPath
	QueryRegex
	QuerySHA256
	QueryMD5
	QueryURL
	QueryRedirects
	QueryDuration
	QueryCertificate
	QueryVariable
)

func (k QueryKind) String() string {
	switch k {
	case QueryStatus:
		return "status"
	case QueryVersion:
		return "version"
	case QueryHeader:
		return "header"
	case QueryCookie:
		return "cookie"
	case QueryBody:
		return "body"
	case QueryBytes:
		return "bytes"
	case QueryJSONPath:
		return "jsonpath"
	case QueryRegex:
		return "regex"
	case QuerySHA256:
		return "sha256"
	case QueryMD5:
		return "md5"
	case QueryURL:
		return "url"
	case QueryRedirects:
		return "redirects"
	case QueryDuration:
		return "duration"
	case QueryCertificate:
		return "certificate"
	case QueryVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// Query is a typed extraction expression over an HTTP exchange. Param holds
// the header name, cookie path, jsonpath expression, regex pattern,
// certificate attribute or variable name depending on the kind.
type Query struct {
	Kind  QueryKind
	Param Template
	Pos   Position
}

type FilterKind int

const (
	FilterCount FilterKind = iota
	FilterNth
	FilterRegex
	FilterReplace
	FilterSplit
	FilterToInt
	FilterToFloat
	FilterDecode
	FilterFormat
	FilterBase64Decode
	FilterURLDecode
	FilterHTMLUnescape
)

func (k FilterKind) String() string {
	switch k {
	case FilterCount:
		return "count"
	case FilterNth:
		return "nth"
	case FilterRegex:
		return "regex"
	case FilterReplace:
		return "replace"
	case FilterSplit:
		return "split"
	case FilterToInt:
		return "toInt"
	case FilterToFloat:
		return "toFloat"
	case FilterDecode:
		return "decode"
	case FilterFormat:
		return "format"
	case FilterBase64Decode:
		return "base64Decode"
	case FilterURLDecode:
		return "urlDecode"
	case FilterHTMLUnescape:
		return "htmlUnescape"
	default:
		return "unknown"
	}
}

// Filter is one step of an ordered Value -> Value transformation chain.
type Filter struct {
	Kind FilterKind
	Arg  Template
	Arg2 Template
	N    int
	Pos  Position
}

type PredicateKind int

const (
	PredEquals PredicateKind = iota
	PredNotEquals
	PredGreater
	PredGreaterOrEqual
	PredLess
	PredLessOrEqual
	PredStartsWith
	PredEndsWith
	PredContains
	PredIncludes
	PredMatches
	PredExists
	PredIsEmpty
	PredCount
	PredIsInteger
	PredIsFloat
	PredIsBoolean
	PredIsString
	PredIsCollection
	PredSchema
)

func (k PredicateKind) String() string {
	switch k {
	case PredEquals:
		return "=="
	case PredNotEquals:
		return "!="
	case PredGreater:
		return ">"
	case PredGreaterOrEqual:
		return ">="
	case PredLess:
		return "<"
	case PredLessOrEqual:
		return "<="
	case PredStartsWith:
		return "startsWith"
	case PredEndsWith:
		return "endsWith"
	case PredContains:
		return "contains"
	case PredIncludes:
		return "includes"
	case PredMatches:
		return "matches"
	case PredExists:
		return "exists"
	case PredIsEmpty:
		return "isEmpty"
	case PredCount:
		return "count"
	case PredIsInteger:
		return "isInteger"
	case PredIsFloat:
		return "isFloat"
	case PredIsBoolean:
		return "isBoolean"
	case PredIsString:
		return "isString"
	case PredIsCollection:
		return "isCollection"
	case PredSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// Predicate compares a query result against an expected literal. Not negates
// the outcome ("not exists", "not contains" ...).
type Predicate struct {
	Kind     PredicateKind
	Not      bool
	Expected *Literal
	Pos      Position
}

type LiteralKind int

const (
	LitNull LiteralKind = iota
	LitBool
	LitInteger
	LitFloat
	LitString
	LitList
	LitRegex
)

// Literal is a typed expected value on the right-hand side of a predicate.
// Strings are templates so predicates can reference variables; regex
// patterns stay raw.
type Literal struct {
	Kind    LiteralKind
	Bool    bool
	Integer int64
	Float   float64
	Str     Template
	List    []*Literal
	Regex   string
	Pos     Position
}

// Options is the per-entry option bag, overriding run-level settings.
// Duration and count fields use pointers so "unset" stays distinguishable.
type Options struct {
	Skip           *bool
	Delay          *time.Duration
	Retry          *int // 0 none, >0 bounded, -1 unlimited
	RetryInterval  *time.Duration
	FollowRedirect *bool
	Insecure       *bool
	Verbose        *bool
	Output         string // redirect response body to this file
	Variables      []*VariableSpec
	Pos            Position
}

// VariableSpec is an entry-scoped variable override declared in [Options].
type VariableSpec struct {
	Name  string
	Value Template
	Pos   Position
}

// Template is a string with {{name}} placeholders, kept as parsed parts so
// rendering never re-scans the raw text.
type Template struct {
	Raw   string
	Parts []TemplatePart
	Pos   Position
}

type TemplatePart struct {
	Literal  string
	Variable string // non-empty for a {{name}} part
}

// IsZero reports whether the template was never set.
func (t Template) IsZero() bool { return t.Raw == "" && len(t.Parts) == 0 }

// NewTemplate builds a template holding a single literal part, used by tests
// and programmatic entry construction.
func NewTemplate(s string) Template {
	return Template{Raw: s, Parts: []TemplatePart{{Literal: s}}}
}

// Position locates a construct in its source file.
type Position struct {
	Line   int
	Column int
}
