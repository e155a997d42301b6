package pkg

import (
	"github.com/convergerun/converge/pkg/common"
)

// Bindings is the layered variable binding set for one host. Layers shadow
// each other strictly later-wins on name collision: defaults < play vars <
// host vars < runtime facts. Structured values are never partially merged;
// a colliding name replaces the whole value.
type Bindings struct {
	defaults map[string]interface{}
	play     map[string]interface{}
	host     map[string]interface{}
	facts    map[string]interface{}
}

// NewBindings builds a binding set from the three static layers. The facts
// layer starts empty and is only mutated through SetFact during a run.
func NewBindings(defaults, play, host map[string]interface{}) *Bindings {
	return &Bindings{
		defaults: common.CopyMap(defaults),
		play:     common.CopyMap(play),
		host:     common.CopyMap(host),
		facts:    make(map[string]interface{}),
	}
}

// Flatten merges the layers into a single map, later layers winning.
func (b *Bindings) Flatten() map[string]interface{} {
	merged := make(map[string]interface{})
	for _, layer := range []map[string]interface{}{b.defaults, b.play, b.host, b.facts} {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// Get looks a name up across the layers, later layers winning.
func (b *Bindings) Get(name string) (interface{}, bool) {
	if v, ok := b.facts[name]; ok {
		return v, true
	}
	if v, ok := b.host[name]; ok {
		return v, true
	}
	if v, ok := b.play[name]; ok {
		return v, true
	}
	v, ok := b.defaults[name]
	return v, ok
}

// Has reports whether a name is bound in any layer.
func (b *Bindings) Has(name string) bool {
	_, ok := b.Get(name)
	return ok
}

// SetFact binds a name in the runtime-facts layer, shadowing all static
// layers. This is the only mutation path during a run.
func (b *Bindings) SetFact(name string, value interface{}) {
	b.facts[name] = value
}

// SetFacts binds multiple names in the runtime-facts layer.
func (b *Bindings) SetFacts(values map[string]interface{}) {
	for k, v := range values {
		b.facts[k] = v
	}
}

// FactNames returns the names currently bound in the runtime-facts layer.
func (b *Bindings) FactNames() []string {
	names := make([]string, 0, len(b.facts))
	for k := range b.facts {
		names = append(names, k)
	}
	return names
}
