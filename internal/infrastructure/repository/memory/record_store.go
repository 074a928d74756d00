// Package memory provides an in-memory record store used in mock mode and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/errs"
)

// RecordStore keeps records per collection, guarded by a single lock.
type RecordStore struct {
	mu      sync.RWMutex
	catalog *entity.Catalog
	data    map[string]map[string]*entity.Record
}

// NewRecordStore creates an empty store for the schemas in catalog.
func NewRecordStore(catalog *entity.Catalog) *RecordStore {
	return &RecordStore{
		catalog: catalog,
		data:    make(map[string]map[string]*entity.Record),
	}
}

// Insert stores a copy of rec with version 1.
func (s *RecordStore) Insert(_ context.Context, schema *entity.Schema, rec *entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(schema)
	if _, exists := coll[rec.ID]; exists {
		return fmt.Errorf("%s %q: %w", schema.Name, rec.ID, errs.ErrAlreadyExists)
	}
	if err := checkUnique(schema, coll, rec); err != nil {
		return err
	}

	rec.Version = 1
	coll[rec.ID] = stored(rec)
	return nil
}

// Find returns copies of the matching records.
func (s *RecordStore) Find(_ context.Context, schema *entity.Schema, q entity.Query) ([]*entity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*entity.Record
	for _, rec := range s.data[schema.Collection] {
		ok, err := matches(schema, rec, q.Filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	sortKeys := q.Sort
	if len(sortKeys) == 0 {
		sortKeys = []entity.Sort{{Field: entity.FieldID}}
	}
	slices.SortStableFunc(matched, func(a, b *entity.Record) int {
		for _, key := range sortKeys {
			c := compareNullable(a.Get(key.Field), b.Get(key.Field))
			if key.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})

	matched = paginate(matched, q.Skip, q.Limit)

	out := make([]*entity.Record, 0, len(matched))
	for _, rec := range matched {
		c := rec.Clone()
		for _, name := range q.Include {
			children, err := s.children(schema, name, rec.ID)
			if err != nil {
				return nil, err
			}
			c.Children[name] = children
		}
		out = append(out, c)
	}
	return out, nil
}

// Count returns the number of matching records.
func (s *RecordStore) Count(_ context.Context, schema *entity.Schema, f entity.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.data[schema.Collection] {
		ok, err := matches(schema, rec, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Exists reports whether id is stored.
func (s *RecordStore) Exists(_ context.Context, schema *entity.Schema, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[schema.Collection][id]
	return ok, nil
}

// Update replaces the record when the stored version matches.
func (s *RecordStore) Update(_ context.Context, schema *entity.Schema, rec *entity.Record, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(schema)
	current, ok := coll[rec.ID]
	if !ok || current.Version != expectedVersion {
		return fmt.Errorf("%s %q: %w", schema.Name, rec.ID, errs.ErrConcurrentModification)
	}
	if err := checkUnique(schema, coll, rec); err != nil {
		return err
	}

	rec.Version = expectedVersion + 1
	coll[rec.ID] = stored(rec)
	return nil
}

// Delete removes the record.
func (s *RecordStore) Delete(_ context.Context, schema *entity.Schema, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(schema)
	if _, ok := coll[id]; !ok {
		return fmt.Errorf("%s %q: %w", schema.Name, id, errs.ErrNotFound)
	}
	delete(coll, id)
	return nil
}

// SetReference sets or clears a single relation on every listed record that exists.
func (s *RecordStore) SetReference(
	_ context.Context,
	schema *entity.Schema,
	relation string,
	ids []string,
	value *string,
) error {
	if _, ok := schema.Relation(relation); !ok {
		return fmt.Errorf("%s has no relation %q", schema.Name, relation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(schema)
	for _, id := range ids {
		rec, ok := coll[id]
		if !ok {
			continue
		}
		if value == nil {
			delete(rec.Refs, relation)
		} else {
			rec.Refs[relation] = *value
		}
		rec.Version++
	}
	return nil
}

// Reset drops all data.
func (s *RecordStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]map[string]*entity.Record)
}

func (s *RecordStore) collection(schema *entity.Schema) map[string]*entity.Record {
	coll, ok := s.data[schema.Collection]
	if !ok {
		coll = make(map[string]*entity.Record)
		s.data[schema.Collection] = coll
	}
	return coll
}

// children must be called with the lock held.
func (s *RecordStore) children(schema *entity.Schema, relation, parentID string) ([]string, error) {
	rel, ok := schema.Relation(relation)
	if !ok || rel.Cardinality != entity.Many {
		return nil, fmt.Errorf("%s has no collection %q", schema.Name, relation)
	}
	target := s.catalog.Target(rel)

	ids := []string{}
	for id, child := range s.data[target.Collection] {
		if ref, set := child.Ref(rel.Inverse); set && ref == parentID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// checkUnique rejects rec when another record holds the same value in a
// unique field. Null values never collide.
func checkUnique(schema *entity.Schema, coll map[string]*entity.Record, rec *entity.Record) error {
	for _, f := range schema.UniqueFields() {
		value := rec.Get(f.Name)
		if value == nil {
			continue
		}
		for id, other := range coll {
			if id == rec.ID {
				continue
			}
			if c, ok := compare(value, other.Get(f.Name)); ok && c == 0 {
				return fmt.Errorf("%s %s %v: %w", schema.Name, f.Name, value, errs.ErrAlreadyExists)
			}
		}
	}
	return nil
}

func stored(rec *entity.Record) *entity.Record {
	c := rec.Clone()
	clear(c.Children)
	return c
}

func paginate(records []*entity.Record, skip, limit int64) []*entity.Record {
	if skip >= int64(len(records)) {
		return nil
	}
	records = records[skip:]
	if limit > 0 && limit < int64(len(records)) {
		records = records[:limit]
	}
	return records
}

func matches(schema *entity.Schema, rec *entity.Record, f entity.Filter) (bool, error) {
	for _, c := range f {
		var value any
		if _, ok := schema.Field(c.Field); ok {
			value = rec.Get(c.Field)
		} else if rel, isRel := schema.Relation(c.Field); isRel && rel.Cardinality == entity.One {
			if ref, set := rec.Ref(c.Field); set {
				value = ref
			}
		} else {
			return false, fmt.Errorf("%s has no filterable field %q", schema.Name, c.Field)
		}

		if !matchCondition(value, c) {
			return false, nil
		}
	}
	return true, nil
}

func matchCondition(value any, c entity.Condition) bool {
	if value == nil {
		return false
	}
	switch c.Op {
	case entity.OpEq:
		if list, ok := value.([]string); ok {
			s, isString := c.Value.(string)
			return isString && slices.Contains(list, s)
		}
		cmp, ok := compare(value, c.Value)
		return ok && cmp == 0
	case entity.OpIn:
		s, ok := value.(string)
		candidates, isList := c.Value.([]string)
		return ok && isList && slices.Contains(candidates, s)
	case entity.OpGt, entity.OpGte, entity.OpLt, entity.OpLte:
		cmp, ok := compare(value, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case entity.OpGt:
			return cmp > 0
		case entity.OpGte:
			return cmp >= 0
		case entity.OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

// compareNullable orders nulls first, as the document store does.
func compareNullable(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := compare(a, b)
	return c
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case float64:
		if y, ok := toFloat(b); ok {
			return cmpFloat(x, y), true
		}
	case int64:
		if y, ok := toFloat(b); ok {
			return cmpFloat(float64(x), y), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
