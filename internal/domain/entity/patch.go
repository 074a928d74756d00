package entity

import (
	"maps"
	"slices"
)

// Patch is a sparse payload keyed by field or relation name. It serves both
// create and update. Scalars carry their value (nil for null), single relations
// a string id or nil, and Many relations a []string of child ids.
type Patch struct {
	entries map[string]any
}

// NewPatch creates an empty patch.
func NewPatch() *Patch {
	return &Patch{entries: make(map[string]any)}
}

// Set marks name as present with value v.
func (p *Patch) Set(name string, v any) *Patch {
	p.entries[name] = v
	return p
}

// SetNull marks name as present with an explicit null.
func (p *Patch) SetNull(name string) *Patch {
	p.entries[name] = nil
	return p
}

// Field returns the entry for name; absent entries yield None.
func (p *Patch) Field(name string) Optional[any] {
	if p == nil {
		return None[any]()
	}
	v, ok := p.entries[name]
	if !ok {
		return None[any]()
	}
	return Some(v)
}

// Names returns the present names in sorted order.
func (p *Patch) Names() []string {
	if p == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(p.entries))
}

// Len returns the number of present entries.
func (p *Patch) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}
