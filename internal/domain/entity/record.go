package entity

import (
	"maps"
	"slices"
	"time"
)

// Record is a stored instance of a schema.
type Record struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Version is bumped by the store on every write.
	Version int64
	// Values holds scalar fields by name; a missing or nil entry is null.
	Values map[string]any
	// Refs holds set single relations by relation name.
	Refs map[string]string
	// Children holds the ids of included Many relations.
	Children map[string][]string
}

// NewRecord creates an empty record with the given id.
func NewRecord(id string) *Record {
	return &Record{
		ID:       id,
		Values:   make(map[string]any),
		Refs:     make(map[string]string),
		Children: make(map[string][]string),
	}
}

// Get returns the value of a scalar or built-in field.
func (r *Record) Get(name string) any {
	switch name {
	case FieldID:
		return r.ID
	case FieldCreatedAt:
		return r.CreatedAt
	case FieldUpdatedAt:
		return r.UpdatedAt
	}
	return r.Values[name]
}

// Ref returns a single relation id and whether it is set.
func (r *Record) Ref(name string) (string, bool) {
	id, ok := r.Refs[name]
	return id, ok && id != ""
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := &Record{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Version:   r.Version,
		Values:    make(map[string]any, len(r.Values)),
		Refs:      maps.Clone(r.Refs),
		Children:  make(map[string][]string, len(r.Children)),
	}
	for k, v := range r.Values {
		if list, ok := v.([]string); ok {
			v = slices.Clone(list)
		}
		c.Values[k] = v
	}
	if c.Refs == nil {
		c.Refs = make(map[string]string)
	}
	for k, v := range r.Children {
		c.Children[k] = slices.Clone(v)
	}
	return c
}
