package httphandler

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/errs"
)

// idRef is the object form of a relation reference.
type idRef struct {
	ID string `json:"id"`
}

// DecodePatch decodes a create or update body against schema. A key that is
// absent stays absent; null is an explicit null. Values are left to the service
// for type and constraint checks.
func DecodePatch(schema *entity.Schema, body []byte) (*entity.Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, fmt.Errorf("request body must be a JSON object: %w", errs.ErrInvalidInput)
	}

	patch := entity.NewPatch()
	for name, value := range raw {
		if err := decodeEntry(schema, patch, name, value); err != nil {
			return nil, err
		}
	}
	return patch, nil
}

func decodeEntry(schema *entity.Schema, patch *entity.Patch, name string, value json.RawMessage) error {
	isNull := bytes.Equal(bytes.TrimSpace(value), []byte("null"))

	if _, ok := schema.Field(name); ok {
		if isNull {
			patch.SetNull(name)
			return nil
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return entity.NewFieldError(name, "malformed value")
		}
		patch.Set(name, v)
		return nil
	}

	rel, ok := schema.Relation(name)
	if !ok {
		return entity.NewFieldError(name, "unknown field")
	}

	if rel.Cardinality == entity.One {
		if isNull {
			patch.SetNull(name)
			return nil
		}
		id, err := decodeRef(value)
		if err != nil {
			return entity.NewFieldError(name, "must be an id or an object with an id")
		}
		patch.Set(name, id)
		return nil
	}

	if isNull {
		return entity.NewFieldError(name, "must be a list of ids")
	}
	ids, err := DecodeIDs(value)
	if err != nil {
		return entity.NewFieldError(name, "must be a list of ids")
	}
	patch.Set(name, ids)
	return nil
}

// decodeRef accepts "id" or {"id":"id"}.
func decodeRef(value json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(value, &id); err == nil {
		return id, nil
	}
	var ref idRef
	if err := json.Unmarshal(value, &ref); err != nil {
		return "", err
	}
	if ref.ID == "" {
		return "", fmt.Errorf("missing id")
	}
	return ref.ID, nil
}

// DecodeIDs decodes a list whose items are string ids or {"id":...} objects.
func DecodeIDs(body []byte) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("expected a list of ids: %w", errs.ErrInvalidInput)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := decodeRef(item)
		if err != nil {
			return nil, fmt.Errorf("expected a list of ids: %w", errs.ErrInvalidInput)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RecordJSON encodes a record in schema order: built-in fields, scalar fields,
// then relations. A single relation is {"id":...} or null; a many relation is
// a list of {"id":...}.
type RecordJSON struct {
	Schema *entity.Schema
	Record *entity.Record
}

// MarshalJSON implements json.Marshaler.
func (r RecordJSON) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(name string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(data)
		return nil
	}

	for _, f := range r.Schema.AllFields() {
		if err := write(f.Name, r.Record.Get(f.Name)); err != nil {
			return nil, err
		}
	}
	for _, rel := range r.Schema.Relations {
		var v any
		if rel.Cardinality == entity.One {
			if id, ok := r.Record.Ref(rel.Name); ok {
				v = idRef{ID: id}
			}
		} else {
			children := r.Record.Children[rel.Name]
			refs := make([]idRef, 0, len(children))
			for _, id := range children {
				refs = append(refs, idRef{ID: id})
			}
			v = refs
		}
		if err := write(rel.Name, v); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeRecords wraps records for encoding.
func EncodeRecords(schema *entity.Schema, records []*entity.Record) []RecordJSON {
	out := make([]RecordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, RecordJSON{Schema: schema, Record: rec})
	}
	return out
}
