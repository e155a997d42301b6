package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindingsPrecedence(t *testing.T) {
	b := NewBindings(
		map[string]interface{}{"port": 80, "root": "/srv", "tier": "default"},
		map[string]interface{}{"port": 8080, "tier": "play"},
		map[string]interface{}{"tier": "host"},
	)

	v, ok := b.Get("port")
	assert.True(t, ok)
	assert.Equal(t, 8080, v)

	v, _ = b.Get("tier")
	assert.Equal(t, "host", v)

	v, _ = b.Get("root")
	assert.Equal(t, "/srv", v)

	_, ok = b.Get("missing")
	assert.False(t, ok)
}

func TestBindingsFactsShadowEverything(t *testing.T) {
	b := NewBindings(
		map[string]interface{}{"tier": "default"},
		nil,
		map[string]interface{}{"tier": "host"},
	)
	b.SetFact("tier", "runtime")

	v, _ := b.Get("tier")
	assert.Equal(t, "runtime", v)
	assert.Equal(t, "runtime", b.Flatten()["tier"])
}

func TestBindingsReplaceNotMerge(t *testing.T) {
	b := NewBindings(
		map[string]interface{}{"db": map[string]interface{}{"host": "localhost", "port": 5432}},
		map[string]interface{}{"db": map[string]interface{}{"host": "db1"}},
		nil,
	)
	v, _ := b.Get("db")
	// The colliding name replaces the whole value; no deep merge.
	assert.Equal(t, map[string]interface{}{"host": "db1"}, v)
}

func TestBindingsFlattenDoesNotAliasLayers(t *testing.T) {
	b := NewBindings(map[string]interface{}{"a": 1}, nil, nil)
	flat := b.Flatten()
	flat["a"] = 99
	v, _ := b.Get("a")
	assert.Equal(t, 1, v)
}

func TestBindingsSetFacts(t *testing.T) {
	b := NewBindings(nil, nil, nil)
	b.SetFacts(map[string]interface{}{"x": 1, "y": 2})
	assert.True(t, b.Has("x"))
	assert.True(t, b.Has("y"))
	assert.ElementsMatch(t, []string{"x", "y"}, b.FactNames())
}
