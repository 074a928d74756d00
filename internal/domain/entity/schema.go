// Package entity describes records generically: a Schema lists an entity's fields,
// relations and constraints, and every service, store and codec works from it.
package entity

import "slices"

// Kind is the value type of a scalar field.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
	KindTime
	KindStrings
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindTime:
		return "time"
	case KindStrings:
		return "strings"
	default:
		return "unknown"
	}
}

// Ordered reports whether range operators apply to the kind.
func (k Kind) Ordered() bool {
	return k == KindFloat || k == KindInt || k == KindTime
}

// Cardinality of a relation as seen from the owning schema.
type Cardinality int

const (
	// One is a single reference held by this record.
	One Cardinality = iota
	// Many is a collection held by back-references on the target records.
	Many
)

// Built-in field names present on every schema.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Field describes one scalar attribute.
type Field struct {
	Name     string
	Column   string
	Kind     Kind
	Nullable bool
	// Required fields must be present on create.
	Required bool
	// Unique fields hold distinct non-null values across a collection.
	Unique bool
	// Rules is a go-playground/validator tag applied to non-null values.
	Rules string
}

// Relation links a schema to a target schema.
type Relation struct {
	Name        string
	Target      string
	Cardinality Cardinality
	// Column is the store column of a One relation.
	Column string
	// Inverse names the One relation on the target that points back, for Many relations.
	Inverse string
}

// Schema describes an entity type.
type Schema struct {
	// Name is the singular entity name, e.g. "claim".
	Name string
	// Collection is the store collection.
	Collection string
	// Path is the URL segment, e.g. "claims".
	Path      string
	Fields    []Field
	Relations []Relation
}

var builtinFields = []Field{
	{Name: FieldID, Column: "_id", Kind: KindString, Rules: "min=1,max=256"},
	{Name: FieldCreatedAt, Column: "created_at", Kind: KindTime, Required: true},
	{Name: FieldUpdatedAt, Column: "updated_at", Kind: KindTime, Required: true},
}

// BuiltinFields returns the id and timestamp fields shared by all schemas.
func BuiltinFields() []Field {
	return slices.Clone(builtinFields)
}

// IsBuiltin reports whether name is one of the built-in fields.
func IsBuiltin(name string) bool {
	return name == FieldID || name == FieldCreatedAt || name == FieldUpdatedAt
}

// AllFields returns the built-in fields followed by the schema's own fields.
func (s *Schema) AllFields() []Field {
	return append(BuiltinFields(), s.Fields...)
}

// Field looks up a scalar or built-in field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range builtinFields {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// UniqueFields returns the schema's own fields flagged Unique.
func (s *Schema) UniqueFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Unique {
			out = append(out, f)
		}
	}
	return out
}

// Relation looks up a relation by name.
func (s *Schema) Relation(name string) (Relation, bool) {
	for _, r := range s.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// RelationsOf returns the relations with the given cardinality.
func (s *Schema) RelationsOf(c Cardinality) []Relation {
	var out []Relation
	for _, r := range s.Relations {
		if r.Cardinality == c {
			out = append(out, r)
		}
	}
	return out
}

// Includes returns the names of all Many relations, the default include set.
func (s *Schema) Includes() []string {
	var names []string
	for _, r := range s.RelationsOf(Many) {
		names = append(names, r.Name)
	}
	return names
}

// Column maps a field or One relation name to its store column.
func (s *Schema) Column(name string) (string, bool) {
	if f, ok := s.Field(name); ok {
		return f.Column, true
	}
	if r, ok := s.Relation(name); ok && r.Cardinality == One {
		return r.Column, true
	}
	return "", false
}
