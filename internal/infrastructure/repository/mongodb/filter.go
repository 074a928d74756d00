package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/lllypuk/claimservice/internal/domain/entity"
)

//nolint:gochecknoglobals // operator table
var operators = map[entity.Op]string{
	entity.OpGt:  "$gt",
	entity.OpGte: "$gte",
	entity.OpLt:  "$lt",
	entity.OpLte: "$lte",
	entity.OpIn:  "$in",
}

// buildFilter translates conditions into a MongoDB filter. Each condition is
// its own clause under $and so repeated fields do not overwrite each other.
func buildFilter(s *entity.Schema, f entity.Filter) (bson.M, error) {
	if len(f) == 0 {
		return bson.M{}, nil
	}

	clauses := make(bson.A, 0, len(f))
	for _, c := range f {
		column, ok := s.Column(c.Field)
		if !ok {
			return nil, fmt.Errorf("%s has no filterable field %q", s.Name, c.Field)
		}

		if c.Op == entity.OpEq || c.Op == "" {
			clauses = append(clauses, bson.M{column: c.Value})
			continue
		}
		op, known := operators[c.Op]
		if !known {
			return nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		clauses = append(clauses, bson.M{column: bson.M{op: c.Value}})
	}
	return bson.M{"$and": clauses}, nil
}

// buildSort translates sort keys; the id is the default order.
func buildSort(s *entity.Schema, keys []entity.Sort) (bson.D, error) {
	if len(keys) == 0 {
		return bson.D{{Key: "_id", Value: 1}}, nil
	}

	sort := make(bson.D, 0, len(keys))
	for _, k := range keys {
		column, ok := s.Column(k.Field)
		if !ok {
			return nil, fmt.Errorf("%s has no sortable field %q", s.Name, k.Field)
		}
		dir := 1
		if k.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: column, Value: dir})
	}
	return sort, nil
}
