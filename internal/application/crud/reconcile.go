package crud

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/errs"
	"github.com/lllypuk/claimservice/internal/domain/uuid"
)

// Relink moves children of a Many relation onto or off a parent.
type Relink struct {
	Relation string
	Target   *entity.Schema
	Inverse  string
	Attach   []string
	Detach   []string
}

// Mutation is a fully formed write produced from a sparse payload.
type Mutation struct {
	Record          *entity.Record
	ExpectedVersion int64
	Relinks         []Relink
}

// Reconciler merges sparse payloads into records of one schema.
type Reconciler struct {
	schema  *entity.Schema
	catalog *entity.Catalog
	store   Store
}

// NewReconciler creates a reconciler for schema.
func NewReconciler(schema *entity.Schema, catalog *entity.Catalog, store Store) *Reconciler {
	return &Reconciler{schema: schema, catalog: catalog, store: store}
}

// Build turns a create payload into a new record. Relations are linked best
// effort: ids that do not resolve are dropped without error.
func (r *Reconciler) Build(ctx context.Context, payload *entity.Patch) (*Mutation, error) {
	if err := r.checkNames(payload); err != nil {
		return nil, err
	}

	id := uuid.NewUUID().String()
	if v, ok := payload.Field(entity.FieldID).Get(); ok {
		checked, err := r.check(entity.FieldID, v)
		if err != nil {
			return nil, err
		}
		id = checked.(string)
	}
	rec := entity.NewRecord(id)

	for _, f := range r.schema.AllFields() {
		if f.Name == entity.FieldID {
			continue
		}
		v, ok := payload.Field(f.Name).Get()
		if !ok {
			if f.Required {
				return nil, entity.NewFieldError(f.Name, "is required")
			}
			continue
		}
		if err := r.assign(rec, f, v); err != nil {
			return nil, err
		}
	}

	m := &Mutation{Record: rec}
	for _, rel := range r.schema.Relations {
		v, ok := payload.Field(rel.Name).Get()
		if !ok {
			continue
		}
		if rel.Cardinality == entity.One {
			if err := r.link(ctx, rec, rel, v); err != nil {
				return nil, err
			}
			continue
		}

		ids, err := idList(rel.Name, v)
		if err != nil {
			return nil, err
		}
		resolved, err := resolveIDs(ctx, r.store, r.catalog.Target(rel), ids)
		if err != nil {
			return nil, err
		}
		if len(resolved) > 0 {
			m.Relinks = append(m.Relinks, r.relink(rel, resolved, nil))
		}
	}

	return m, nil
}

// Reconcile applies an update payload to current. Absent entries leave the
// record untouched; present entries overwrite, null included.
func (r *Reconciler) Reconcile(ctx context.Context, current *entity.Record, patch *entity.Patch) (*Mutation, error) {
	if err := r.checkNames(patch); err != nil {
		return nil, err
	}

	rec := current.Clone()
	if v, ok := patch.Field(entity.FieldID).Get(); ok {
		if id, isString := v.(string); !isString || id != current.ID {
			return nil, entity.NewFieldError(entity.FieldID, "is immutable")
		}
	}

	for _, f := range r.schema.AllFields() {
		if f.Name == entity.FieldID {
			continue
		}
		v, ok := patch.Field(f.Name).Get()
		if !ok {
			continue
		}
		if err := r.assign(rec, f, v); err != nil {
			return nil, err
		}
	}

	m := &Mutation{Record: rec, ExpectedVersion: current.Version}
	for _, rel := range r.schema.Relations {
		v, ok := patch.Field(rel.Name).Get()
		if !ok {
			continue
		}
		if rel.Cardinality == entity.One {
			if err := r.link(ctx, rec, rel, v); err != nil {
				return nil, err
			}
			continue
		}

		ids, err := idList(rel.Name, v)
		if err != nil {
			return nil, err
		}
		resolved, err := resolveIDs(ctx, r.store, r.catalog.Target(rel), ids)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 && len(resolved) == 0 {
			return nil, fmt.Errorf("%s %v: %w", rel.Name, ids, errs.ErrNotFound)
		}
		m.Relinks = append(m.Relinks, r.relink(rel, resolved, current.Children[rel.Name]))
		rec.Children[rel.Name] = resolved
	}

	return m, nil
}

// Persist writes an update mutation. A version mismatch is re-checked: a record
// that is gone yields errs.ErrNotFound, otherwise errs.ErrConcurrentModification.
// Nothing is retried.
func (r *Reconciler) Persist(ctx context.Context, m *Mutation) error {
	err := r.store.Update(ctx, r.schema, m.Record, m.ExpectedVersion)
	if err == nil {
		return r.ApplyRelinks(ctx, m.Record.ID, m.Relinks)
	}
	if !errors.Is(err, errs.ErrConcurrentModification) {
		return fmt.Errorf("failed to update %s %q: %w", r.schema.Name, m.Record.ID, err)
	}

	exists, existsErr := r.store.Exists(ctx, r.schema, m.Record.ID)
	if existsErr != nil {
		return fmt.Errorf("failed to re-check %s %q: %w", r.schema.Name, m.Record.ID, existsErr)
	}
	if !exists {
		return fmt.Errorf("%s %q: %w", r.schema.Name, m.Record.ID, errs.ErrNotFound)
	}
	return fmt.Errorf("%s %q: %w", r.schema.Name, m.Record.ID, err)
}

// ApplyRelinks detaches and then attaches children for each relink.
func (r *Reconciler) ApplyRelinks(ctx context.Context, parentID string, relinks []Relink) error {
	for _, l := range relinks {
		if len(l.Detach) > 0 {
			if err := r.store.SetReference(ctx, l.Target, l.Inverse, l.Detach, nil); err != nil {
				return fmt.Errorf("failed to detach %s: %w", l.Relation, err)
			}
		}
		if len(l.Attach) > 0 {
			if err := r.store.SetReference(ctx, l.Target, l.Inverse, l.Attach, &parentID); err != nil {
				return fmt.Errorf("failed to attach %s: %w", l.Relation, err)
			}
		}
	}
	return nil
}

func (r *Reconciler) relink(rel entity.Relation, want, have []string) Relink {
	l := Relink{Relation: rel.Name, Target: r.catalog.Target(rel), Inverse: rel.Inverse}
	for _, id := range want {
		if !slices.Contains(have, id) {
			l.Attach = append(l.Attach, id)
		}
	}
	for _, id := range have {
		if !slices.Contains(want, id) {
			l.Detach = append(l.Detach, id)
		}
	}
	return l
}

// link resolves a single relation; an unknown id or null leaves it unset.
func (r *Reconciler) link(ctx context.Context, rec *entity.Record, rel entity.Relation, v any) error {
	delete(rec.Refs, rel.Name)
	if v == nil {
		return nil
	}
	id, ok := v.(string)
	if !ok {
		return entity.NewFieldError(rel.Name, "must be an id")
	}

	exists, err := r.store.Exists(ctx, r.catalog.Target(rel), id)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", rel.Name, err)
	}
	if exists {
		rec.Refs[rel.Name] = id
	}
	return nil
}

func (r *Reconciler) assign(rec *entity.Record, f entity.Field, v any) error {
	checked, err := f.Check(v)
	if err != nil {
		return err
	}
	switch f.Name {
	case entity.FieldCreatedAt:
		rec.CreatedAt = checked.(time.Time)
	case entity.FieldUpdatedAt:
		rec.UpdatedAt = checked.(time.Time)
	default:
		if checked == nil {
			delete(rec.Values, f.Name)
		} else {
			rec.Values[f.Name] = checked
		}
	}
	return nil
}

func (r *Reconciler) check(name string, v any) (any, error) {
	f, _ := r.schema.Field(name)
	return f.Check(v)
}

func (r *Reconciler) checkNames(p *entity.Patch) error {
	for _, name := range p.Names() {
		if _, ok := r.schema.Field(name); ok {
			continue
		}
		if _, ok := r.schema.Relation(name); ok {
			continue
		}
		return entity.NewFieldError(name, "unknown field")
	}
	return nil
}

func idList(name string, v any) ([]string, error) {
	switch ids := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return ids, nil
	default:
		return nil, entity.NewFieldError(name, "must be a list of ids")
	}
}

// resolveIDs returns the subset of ids stored for schema, deduplicated, in request order.
func resolveIDs(ctx context.Context, store QueryStore, s *entity.Schema, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := store.Find(ctx, s, entity.Query{
		Filter: entity.Filter{entity.In(entity.FieldID, ids)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s ids: %w", s.Name, err)
	}

	stored := make(map[string]struct{}, len(found))
	for _, rec := range found {
		stored[rec.ID] = struct{}{}
	}
	var resolved []string
	for _, id := range ids {
		if _, ok := stored[id]; ok && !slices.Contains(resolved, id) {
			resolved = append(resolved, id)
		}
	}
	return resolved, nil
}
