package crud

import (
	"context"

	"github.com/lllypuk/claimservice/internal/domain/entity"
)

// CommandStore defines the writes the services perform.
// interface declared on the consumer side (application layer)
type CommandStore interface {
	// Insert stores a new record with version 1. A duplicate id yields errs.ErrAlreadyExists.
	Insert(ctx context.Context, s *entity.Schema, rec *entity.Record) error

	// Update replaces a record if its stored version equals expectedVersion and bumps
	// the version. A key or version mismatch yields errs.ErrConcurrentModification.
	Update(ctx context.Context, s *entity.Schema, rec *entity.Record, expectedVersion int64) error

	// Delete removes a record. A missing key yields errs.ErrNotFound.
	Delete(ctx context.Context, s *entity.Schema, id string) error

	// SetReference points the single relation of every listed record at value,
	// or clears it when value is nil.
	SetReference(ctx context.Context, s *entity.Schema, relation string, ids []string, value *string) error
}

// QueryStore defines the reads the services perform.
// interface declared on the consumer side (application layer)
type QueryStore interface {
	// Find returns the records matching q, with the Many relations in q.Include loaded.
	Find(ctx context.Context, s *entity.Schema, q entity.Query) ([]*entity.Record, error)

	// Count returns the number of records matching f.
	Count(ctx context.Context, s *entity.Schema, f entity.Filter) (int64, error)

	// Exists reports whether a record with the id is stored.
	Exists(ctx context.Context, s *entity.Schema, id string) (bool, error)
}

// Store combines Command and Query interfaces
type Store interface {
	CommandStore
	QueryStore
}
