package vars

import (
	"testing"

	"github.com/abdul-hamid-achik/reqflow/packages/core/parser"
	"github.com/abdul-hamid-achik/reqflow/packages/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InsertionOrder(t *testing.T) {
	s := NewStore()
	s.Set("b", value.NewString("2"))
	s.Set("a", value.NewString("1"))
	s.Set("b", value.NewString("3")) // rebind keeps the slot

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Name)
	assert.Equal(t, "a", all[1].Name)
	assert.Equal(t, "3", all[0].Value.Render())
}

func TestStore_SecretValues(t *testing.T) {
	s := NewStore()
	s.Set("host", value.NewString("example.com"))
	s.SetSecret("token", value.NewString("hunter2"))
	s.SetSecret("key", value.NewString("s3cret"))

	assert.Equal(t, []string{"hunter2", "s3cret"}, s.SecretValues())
}

func TestStore_CloneIsolation(t *testing.T) {
	s := NewStore()
	s.Set("a", value.NewString("1"))

	c := s.Clone()
	c.Set("a", value.NewString("changed"))
	c.Set("b", value.NewString("new"))

	orig, _ := s.Get("a")
	assert.Equal(t, "1", orig.Value.Render())
	assert.False(t, s.Has("b"))
}

func TestInject_DualBindingFails(t *testing.T) {
	_, err := Inject(
		map[string]value.Value{"token": value.NewString("public")},
		map[string]string{"token": "secret"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both as a variable and a secret")
}

func TestInject_Ordering(t *testing.T) {
	s, err := Inject(
		map[string]value.Value{"b": value.NewString("2"), "a": value.NewString("1")},
		map[string]string{"z": "zz"},
	)
	require.NoError(t, err)

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)
	assert.Equal(t, "z", all[2].Name)
	assert.True(t, all[2].Secret)
}

func TestRender(t *testing.T) {
	s := NewStore()
	s.Set("name", value.NewString("world"))
	s.Set("n", value.NewInteger(3))

	tpl := parser.Template("hello {{name}}, take {{n}}")

	out, err := Render(tpl, s)
	require.NoError(t, err)
	assert.Equal(t, "hello world, take 3", out)
}

func TestRender_UndefinedVariable(t *testing.T) {
	s := NewStore()
	tpl := parser.Template("{{missing}}")

	_, err := Render(tpl, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undefined variable "missing"`)
}

func TestRender_GeneratorFallthrough(t *testing.T) {
	s := NewStore()
	tpl := parser.Template("id-{{newUuid}}")

	out, err := Render(tpl, s)
	require.NoError(t, err)
	assert.Regexp(t, `^id-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, out)

	again, err := Render(tpl, s)
	require.NoError(t, err)
	assert.NotEqual(t, out, again)
}

func TestRender_VariableShadowsGenerator(t *testing.T) {
	s := NewStore()
	s.Set("newUuid", value.NewString("pinned"))

	out, err := Render(parser.Template("{{newUuid}}"), s)
	require.NoError(t, err)
	assert.Equal(t, "pinned", out)
}
