package mongodb

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/lllypuk/claimservice/internal/domain/entity"
)

// recordToDocument maps a record onto its stored shape. Null fields and unset
// relations are written as explicit nulls.
func recordToDocument(s *entity.Schema, rec *entity.Record, version int64) bson.M {
	doc := bson.M{
		"_id":        rec.ID,
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
		versionField: version,
	}
	for _, f := range s.Fields {
		doc[f.Column] = rec.Values[f.Name]
	}
	for _, rel := range s.RelationsOf(entity.One) {
		if id, ok := rec.Ref(rel.Name); ok {
			doc[rel.Column] = id
		} else {
			doc[rel.Column] = nil
		}
	}
	return doc
}

// documentToRecord is the inverse of recordToDocument.
func documentToRecord(s *entity.Schema, doc bson.M) (*entity.Record, error) {
	id, ok := doc["_id"].(string)
	if !ok {
		return nil, fmt.Errorf("document has non-string _id %v", doc["_id"])
	}
	rec := entity.NewRecord(id)

	var err error
	if rec.CreatedAt, err = timeValue(doc["created_at"]); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if rec.UpdatedAt, err = timeValue(doc["updated_at"]); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	if v, isNumber := intValue(doc[versionField]); isNumber {
		rec.Version = v
	}

	for _, f := range s.Fields {
		raw, present := doc[f.Column]
		if !present || raw == nil {
			continue
		}
		v, convErr := fromBSON(f.Kind, raw)
		if convErr != nil {
			return nil, fmt.Errorf("%s: %w", f.Column, convErr)
		}
		rec.Values[f.Name] = v
	}
	for _, rel := range s.RelationsOf(entity.One) {
		if ref, isString := doc[rel.Column].(string); isString && ref != "" {
			rec.Refs[rel.Name] = ref
		}
	}
	return rec, nil
}

func fromBSON(kind entity.Kind, raw any) (any, error) {
	switch kind {
	case entity.KindString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case entity.KindFloat:
		switch n := raw.(type) {
		case float64:
			return n, nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case entity.KindInt:
		if n, ok := intValue(raw); ok {
			return n, nil
		}
	case entity.KindTime:
		return timeValue(raw)
	case entity.KindStrings:
		if arr, ok := raw.(bson.A); ok {
			out := make([]string, 0, len(arr))
			for _, item := range arr {
				s, isString := item.(string)
				if !isString {
					return nil, fmt.Errorf("unexpected list element %T", item)
				}
				out = append(out, s)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s field", raw, kind)
}

func timeValue(raw any) (time.Time, error) {
	switch t := raw.(type) {
	case bson.DateTime:
		return t.Time().UTC(), nil
	case time.Time:
		return t.UTC(), nil
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("unexpected %T for time field", raw)
}

func intValue(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
