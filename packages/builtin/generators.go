// Package builtin provides generator functions usable anywhere a template
// placeholder is: {{newUuid}} expands to a fresh UUID v4, {{newDate}} to the
// current UTC time. A placeholder only falls through to a generator when no
// variable of that name is bound, so scenarios can always shadow them.
package builtin

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Func produces one generated value. Every expansion calls the function
// again, two {{newUuid}} in one request render two different UUIDs.
type Func func() string

type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["newUuid"] = newUUID
	r.funcs["newDate"] = newDate
	r.funcs["newTimestamp"] = newTimestamp
	r.funcs["randomInt"] = randomInt
	r.funcs["randomString"] = randomString
}

func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Call invokes the named generator. The second return is false when no such
// generator exists.
func (r *Registry) Call(name string) (string, bool) {
	fn, ok := r.funcs[name]
	if !ok {
		return "", false
	}
	return fn(), true
}

// Has reports whether a generator is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

func newUUID() string {
	return uuid.New().String()
}

func newDate() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func newTimestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

func randomInt() string {
	return strconv.Itoa(rand.Intn(1_000_000))
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = alphanumeric[rand.Intn(len(alphanumeric))]
	}
	return string(b)
}
