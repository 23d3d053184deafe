package vars

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/reqflow/packages/builtin"
	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
)

var generators = builtin.NewRegistry()

// Render expands a template against the store. A placeholder naming no
// variable falls through to the generator registry ({{newUuid}} and
// friends); an undefined name that is neither is an error, never silently
// left in place.
func Render(t ast.Template, s *Store) (string, error) {
	if len(t.Parts) == 0 {
		return t.Raw, nil
	}
	var b strings.Builder
	for _, part := range t.Parts {
		if part.Variable == "" {
			b.WriteString(part.Literal)
			continue
		}
		if v, ok := s.Get(part.Variable); ok {
			b.WriteString(v.Value.Render())
			continue
		}
		if generated, ok := generators.Call(part.Variable); ok {
			b.WriteString(generated)
			continue
		}
		return "", fmt.Errorf("undefined variable %q", part.Variable)
	}
	return b.String(), nil
}
