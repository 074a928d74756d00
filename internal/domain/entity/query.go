package entity

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	// OpIn matches any of a []string of values.
	OpIn Op = "in"
)

// RangeOps lists the operators that require an ordered kind.
var RangeOps = []Op{OpGt, OpGte, OpLt, OpLte}

// Condition narrows a result set on one field or single relation.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Eq builds an equality condition.
func Eq(field string, v any) Condition {
	return Condition{Field: field, Op: OpEq, Value: v}
}

// In builds a membership condition.
func In(field string, values []string) Condition {
	return Condition{Field: field, Op: OpIn, Value: values}
}

// Filter is a conjunction of conditions.
type Filter []Condition

// Sort orders results by one field.
type Sort struct {
	Field string
	Desc  bool
}

// Query is the store-level form of a find-many request.
type Query struct {
	Filter Filter
	Sort   []Sort
	Skip   int64
	// Limit of zero means no limit.
	Limit int64
	// Include lists the Many relations whose child ids are loaded.
	Include []string
}
