package vars

import (
	"fmt"
	"sort"

	"github.com/abdul-hamid-achik/reqflow/packages/value"
)

// Variable binds a name to a value with a visibility. Secret variables feed
// the redaction set of their run.
type Variable struct {
	Name   string
	Value  value.Value
	Secret bool
}

// Store is the insertion-ordered variable table owned by exactly one file
// runner. It is never shared between jobs, so it needs no locking.
type Store struct {
	names  []string
	byName map[string]*Variable
}

func NewStore() *Store {
	return &Store{byName: make(map[string]*Variable)}
}

// Set binds a public variable, replacing any previous binding but keeping its
// original insertion slot.
func (s *Store) Set(name string, v value.Value) {
	s.put(&Variable{Name: name, Value: v})
}

// SetSecret binds a secret variable.
func (s *Store) SetSecret(name string, v value.Value) {
	s.put(&Variable{Name: name, Value: v, Secret: true})
}

func (s *Store) put(v *Variable) {
	if _, ok := s.byName[v.Name]; !ok {
		s.names = append(s.names, v.Name)
	}
	s.byName[v.Name] = v
}

func (s *Store) Get(name string) (*Variable, bool) {
	v, ok := s.byName[name]
	return v, ok
}

func (s *Store) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// All returns variables in insertion order.
func (s *Store) All() []*Variable {
	out := make([]*Variable, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.byName[name])
	}
	return out
}

func (s *Store) Len() int { return len(s.names) }

// SecretValues returns the rendered values of every secret binding, in
// insertion order, for the redaction filter.
func (s *Store) SecretValues() []string {
	var out []string
	for _, name := range s.names {
		if v := s.byName[name]; v.Secret {
			out = append(out, v.Value.Render())
		}
	}
	return out
}

// Clone deep-copies the store so each job starts from an identical,
// independently mutable table.
func (s *Store) Clone() *Store {
	c := NewStore()
	for _, name := range s.names {
		v := s.byName[name]
		c.put(&Variable{Name: v.Name, Value: v.Value, Secret: v.Secret})
	}
	return c
}

// Inject builds the initial store from run configuration. A name bound both
// public and secret is a configuration error, caught before any entry runs.
func Inject(public map[string]value.Value, secret map[string]string) (*Store, error) {
	for name := range secret {
		if _, dup := public[name]; dup {
			return nil, fmt.Errorf("variable %q is defined both as a variable and a secret", name)
		}
	}
	s := NewStore()
	for _, name := range sortedKeys(public) {
		s.Set(name, public[name])
	}
	for _, name := range sortedKeysStr(secret) {
		s.SetSecret(name, value.NewString(secret[name]))
	}
	return s, nil
}

func sortedKeys(m map[string]value.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysStr(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
