package event

import "time"

// RecordChanged reports a write to a single record. Relation and RelatedIDs are set
// only for connect, disconnect and replace.
type RecordChanged struct {
	Entity     string
	Change     string
	RecordID   string
	Relation   string
	RelatedIDs []string
	At         time.Time
	Meta       Metadata
}

// NewRecordChanged creates an event stamped with the current time.
func NewRecordChanged(entity, change, recordID string, metadata Metadata) *RecordChanged {
	return &RecordChanged{
		Entity:   entity,
		Change:   change,
		RecordID: recordID,
		At:       time.Now().UTC(),
		Meta:     metadata,
	}
}

// WithRelation attaches the relation name and affected child ids.
func (e *RecordChanged) WithRelation(relation string, ids []string) *RecordChanged {
	e.Relation = relation
	e.RelatedIDs = append([]string(nil), ids...)
	return e
}

// EventType returns "<entity>.<change>".
func (e *RecordChanged) EventType() string {
	return e.Entity + "." + e.Change
}

func (e *RecordChanged) AggregateID() string   { return e.RecordID }
func (e *RecordChanged) AggregateType() string { return e.Entity }
func (e *RecordChanged) OccurredAt() time.Time { return e.At }
func (e *RecordChanged) Metadata() Metadata    { return e.Meta }
