package crud

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/lllypuk/claimservice/internal/application/appcore"
	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/errs"
)

// QueryComposer turns find-many requests against one schema into store queries.
type QueryComposer struct {
	schema  *entity.Schema
	catalog *entity.Catalog
	store   QueryStore
}

// NewQueryComposer creates a composer for schema.
func NewQueryComposer(schema *entity.Schema, catalog *entity.Catalog, store QueryStore) *QueryComposer {
	return &QueryComposer{schema: schema, catalog: catalog, store: store}
}

// Schema returns the composer's schema.
func (q *QueryComposer) Schema() *entity.Schema {
	return q.schema
}

// Compose builds the store query for args. base conditions are AND-ed with the
// request's own filter. The second result is true when the filter can match
// nothing, so the store need not be asked.
func (q *QueryComposer) Compose(
	ctx context.Context,
	args FindManyArgs,
	base ...entity.Condition,
) (entity.Query, bool, error) {
	var query entity.Query

	if args.Skip != nil {
		if err := appcore.ValidateNonNegative("skip", *args.Skip); err != nil {
			return query, false, err
		}
		query.Skip = int64(*args.Skip)
	}
	if args.Take != nil {
		if err := appcore.ValidateNonNegative("take", *args.Take); err != nil {
			return query, false, err
		}
		query.Limit = int64(*args.Take)
	}

	sortKeys, err := ParseSort(q.schema, args.SortBy)
	if err != nil {
		return query, false, err
	}
	query.Sort = sortKeys

	filter, none, err := q.composeFilter(ctx, args.Where, base)
	if err != nil {
		return query, false, err
	}
	query.Filter = filter
	query.Include = q.schema.Includes()

	return query, none || (args.Take != nil && *args.Take == 0), nil
}

// List returns the records matching args in order.
func (q *QueryComposer) List(ctx context.Context, args FindManyArgs, base ...entity.Condition) ([]*entity.Record, error) {
	query, none, err := q.Compose(ctx, args, base...)
	if err != nil {
		return nil, err
	}
	if none {
		return []*entity.Record{}, nil
	}

	records, err := q.store.Find(ctx, q.schema, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", q.schema.Name, err)
	}
	return records, nil
}

// Count returns the number of records matching where, ignoring sort and pagination.
func (q *QueryComposer) Count(ctx context.Context, where Where, base ...entity.Condition) (int64, error) {
	filter, none, err := q.composeFilter(ctx, where, base)
	if err != nil {
		return 0, err
	}
	if none {
		return 0, nil
	}

	n, err := q.store.Count(ctx, q.schema, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", q.schema.Name, err)
	}
	return n, nil
}

// GetByID is a find-many with an id filter and no pagination, taking the first match.
func (q *QueryComposer) GetByID(ctx context.Context, id string) (*entity.Record, error) {
	records, err := q.List(ctx, FindManyArgs{
		Where: Where{Conditions: []entity.Condition{entity.Eq(entity.FieldID, id)}},
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s %q: %w", q.schema.Name, id, errs.ErrNotFound)
	}
	return records[0], nil
}

func (q *QueryComposer) composeFilter(
	ctx context.Context,
	where Where,
	base []entity.Condition,
) (entity.Filter, bool, error) {
	filter := append(entity.Filter{}, base...)

	for _, c := range where.Conditions {
		if c.Value == nil {
			continue
		}
		cond, err := q.checkCondition(c)
		if err != nil {
			return nil, false, err
		}
		filter = append(filter, cond)
	}

	for _, name := range slices.Sorted(maps.Keys(where.Related)) {
		ids := where.Related[name]
		rel, ok := q.schema.Relation(name)
		if !ok || rel.Cardinality != entity.Many {
			return nil, false, entity.NewFieldError(name, "unknown relation filter")
		}
		if len(ids) == 0 {
			continue
		}

		owners, err := q.ownersOf(ctx, rel, ids)
		if err != nil {
			return nil, false, err
		}
		if len(owners) == 0 {
			return nil, true, nil
		}
		filter = append(filter, entity.In(entity.FieldID, owners))
	}

	return filter, false, nil
}

// ownersOf returns the ids of records of this schema that hold any of the given children.
func (q *QueryComposer) ownersOf(ctx context.Context, rel entity.Relation, childIDs []string) ([]string, error) {
	target := q.catalog.Target(rel)
	children, err := q.store.Find(ctx, target, entity.Query{
		Filter: entity.Filter{entity.In(entity.FieldID, childIDs)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s filter: %w", rel.Name, err)
	}

	var owners []string
	for _, child := range children {
		if owner, ok := child.Ref(rel.Inverse); ok && !slices.Contains(owners, owner) {
			owners = append(owners, owner)
		}
	}
	return owners, nil
}

func (q *QueryComposer) checkCondition(c entity.Condition) (entity.Condition, error) {
	if c.Op == "" {
		c.Op = entity.OpEq
	}

	if f, ok := q.schema.Field(c.Field); ok {
		return checkFieldCondition(f, c)
	}

	if rel, ok := q.schema.Relation(c.Field); ok && rel.Cardinality == entity.One {
		switch c.Value.(type) {
		case string:
			if c.Op == entity.OpEq {
				return c, nil
			}
		case []string:
			if c.Op == entity.OpIn {
				return c, nil
			}
		}
		return c, entity.NewFieldError(c.Field, "relation filters accept an id or a list of ids")
	}

	return c, entity.NewFieldError(c.Field, "unknown filter field")
}

func checkFieldCondition(f entity.Field, c entity.Condition) (entity.Condition, error) {
	switch {
	case c.Op == entity.OpIn:
		if _, ok := c.Value.([]string); !ok || f.Kind != entity.KindString {
			return c, entity.NewFieldError(f.Name, "in filters apply to string fields only")
		}
		return c, nil
	case slices.Contains(entity.RangeOps, c.Op):
		if !f.Kind.Ordered() {
			return c, entity.NewFieldError(f.Name, fmt.Sprintf("%s is not supported for %s fields", c.Op, f.Kind))
		}
	case c.Op != entity.OpEq:
		return c, entity.NewFieldError(f.Name, "unknown operator "+string(c.Op))
	}

	// A list field matches when it contains the value.
	if f.Kind == entity.KindStrings {
		if _, ok := c.Value.(string); !ok {
			return c, entity.NewFieldError(f.Name, "must be a string")
		}
		return c, nil
	}

	v, err := f.Normalize(c.Value)
	if err != nil {
		return c, err
	}
	c.Value = v
	return c, nil
}
