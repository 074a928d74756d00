package entity

import (
	"errors"
	"fmt"
)

// Catalog is the set of schemas known to the service. Relations are resolved
// through it by target name.
type Catalog struct {
	schemas map[string]*Schema
	order   []*Schema
}

// NewCatalog registers schemas and checks that every relation resolves.
func NewCatalog(schemas ...*Schema) (*Catalog, error) {
	c := &Catalog{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		if _, dup := c.schemas[s.Name]; dup {
			return nil, fmt.Errorf("duplicate schema %q", s.Name)
		}
		c.schemas[s.Name] = s
		c.order = append(c.order, s)
	}

	var errs []error
	for _, s := range c.order {
		for _, r := range s.Relations {
			target, ok := c.schemas[r.Target]
			if !ok {
				errs = append(errs, fmt.Errorf("%s.%s: unknown target %q", s.Name, r.Name, r.Target))
				continue
			}
			switch r.Cardinality {
			case One:
				if r.Column == "" {
					errs = append(errs, fmt.Errorf("%s.%s: missing column", s.Name, r.Name))
				}
			case Many:
				inv, found := target.Relation(r.Inverse)
				if !found || inv.Cardinality != One || inv.Target != s.Name {
					errs = append(errs, fmt.Errorf("%s.%s: inverse %q is not a single relation on %s",
						s.Name, r.Name, r.Inverse, target.Name))
				}
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// MustCatalog is NewCatalog that panics on error, for static schema sets.
func MustCatalog(schemas ...*Schema) *Catalog {
	c, err := NewCatalog(schemas...)
	if err != nil {
		panic(err)
	}
	return c
}

// Schema returns the schema registered under name.
func (c *Catalog) Schema(name string) (*Schema, bool) {
	s, ok := c.schemas[name]
	return s, ok
}

// Schemas returns all schemas in registration order.
func (c *Catalog) Schemas() []*Schema {
	return append([]*Schema(nil), c.order...)
}

// Target returns the target schema of a relation.
func (c *Catalog) Target(r Relation) *Schema {
	return c.schemas[r.Target]
}
