// Package store persists events. The stored list is the source of truth at
// call time; the recurrence engine only ever sees snapshots taken from it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"roomcal/internal/model"
)

// ErrNotFound is returned when an id has no stored event.
var ErrNotFound = errors.New("event not found")

// Store is the persistence collaborator of the booking service.
type Store interface {
	// List returns every stored event.
	List(ctx context.Context) ([]model.Event, error)
	Get(ctx context.Context, id string) (model.Event, error)
	// Create assigns ids and timestamps and inserts all rows or none.
	Create(ctx context.Context, events ...model.Event) ([]model.Event, error)
	// Update overwrites an existing row, keeping its id and CreatedAt.
	Update(ctx context.Context, ev model.Event) (model.Event, error)
	// Delete removes the given rows. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error
	// Replace deletes the given rows and inserts the new ones atomically.
	Replace(ctx context.Context, deleteIDs []string, create []model.Event) ([]model.Event, error)
	Close() error
}

// stamp prepares rows for insertion.
func stamp(events []model.Event, now time.Time) []model.Event {
	out := make([]model.Event, len(events))
	for i, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		ev.CreatedAt, ev.UpdatedAt = now, now
		out[i] = ev
	}
	return out
}
