package assert

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/reqflow/packages/value"
	"github.com/xeipuuv/gojsonschema"
)

// validateSchema checks a value against an inline JSON schema document.
func validateSchema(actual value.Value, schema string) (bool, string) {
	doc, err := json.Marshal(actual.ToAny())
	if err != nil {
		return false, fmt.Sprintf("cannot marshal value: %v", err)
	}
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}
	if result.Valid() {
		return true, ""
	}
	var msgs []string
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return false, "schema validation failed: " + strings.Join(msgs, "; ")
}

// matchString compiles and applies a regex predicate pattern. Surrounding
// slashes are accepted for symmetry with the scenario syntax.
func matchString(pattern, s string) (bool, error) {
	pattern = strings.TrimSuffix(strings.TrimPrefix(pattern, "/"), "/")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern /%s/: %v", pattern, err)
	}
	return re.MatchString(s), nil
}
