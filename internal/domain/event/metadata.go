package event

import "time"

// Metadata carries request context along with an event.
type Metadata struct {
	UserID        string    `json:"user_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// NewMetadata creates metadata stamped with the current time.
func NewMetadata(userID, correlationID string) Metadata {
	return Metadata{
		UserID:        userID,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}
