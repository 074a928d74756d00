package httphandler

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/lllypuk/claimservice/internal/application/crud"
	"github.com/lllypuk/claimservice/internal/domain/entity"
)

const wherePrefix = "where."

// ParseFindManyArgs reads skip, take, sortBy and where.* from query parameters.
func ParseFindManyArgs(schema *entity.Schema, q url.Values) (crud.FindManyArgs, error) {
	where, err := ParseWhere(schema, q)
	if err != nil {
		return crud.FindManyArgs{}, err
	}

	args := crud.FindManyArgs{Where: where, SortBy: q.Get("sortBy")}
	if args.Skip, err = intParam(q, "skip"); err != nil {
		return crud.FindManyArgs{}, err
	}
	if args.Take, err = intParam(q, "take"); err != nil {
		return crud.FindManyArgs{}, err
	}
	return args, nil
}

func intParam(q url.Values, name string) (*int, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, entity.NewFieldError(name, "must be an integer")
	}
	return &n, nil
}

// ParseWhere reads filter parameters:
//
//	where.<field>=v          equality on a field or single relation
//	where.<field>.<op>=v     op is gt, gte, lt or lte
//	where.<many>=id1,id2     records owning any of the children
func ParseWhere(schema *entity.Schema, q url.Values) (crud.Where, error) {
	var where crud.Where

	keys := make([]string, 0, len(q))
	for key := range q {
		if strings.HasPrefix(key, wherePrefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	for _, key := range keys {
		name, op, hasOp := strings.Cut(strings.TrimPrefix(key, wherePrefix), ".")
		if !hasOp {
			op = string(entity.OpEq)
		}

		for _, raw := range q[key] {
			if rel, ok := schema.Relation(name); ok && rel.Cardinality == entity.Many {
				if hasOp {
					return crud.Where{}, entity.NewFieldError(key, "operators do not apply to "+name)
				}
				if where.Related == nil {
					where.Related = make(map[string][]string)
				}
				where.Related[name] = append(where.Related[name], splitIDs(raw)...)
				continue
			}

			cond, err := parseCondition(schema, name, entity.Op(op), raw)
			if err != nil {
				return crud.Where{}, err
			}
			where.Conditions = append(where.Conditions, cond)
		}
	}
	return where, nil
}

func parseCondition(schema *entity.Schema, name string, op entity.Op, raw string) (entity.Condition, error) {
	if op != entity.OpEq && !slices.Contains(entity.RangeOps, op) {
		return entity.Condition{}, entity.NewFieldError(name, "unknown operator "+string(op))
	}

	if f, ok := schema.Field(name); ok {
		v, err := f.ParseText(raw)
		if err != nil {
			return entity.Condition{}, err
		}
		return entity.Condition{Field: name, Op: op, Value: v}, nil
	}
	if _, ok := schema.Relation(name); ok {
		return entity.Condition{Field: name, Op: op, Value: raw}, nil
	}
	return entity.Condition{}, entity.NewFieldError(name, "unknown filter field")
}

func splitIDs(raw string) []string {
	var ids []string
	for id := range strings.SplitSeq(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
