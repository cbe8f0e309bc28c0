package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"roomcal/internal/model"
)

// Memory is a volatile Store guarded by an RWMutex. It keeps insertion
// order.
type Memory struct {
	mu     sync.RWMutex
	events []model.Event

	// Now is the clock used for timestamps.
	Now func() time.Time
}

func NewMemory(seed ...model.Event) *Memory {
	m := &Memory{Now: time.Now}
	m.events = stamp(seed, m.Now().UTC())
	return m
}

func (m *Memory) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

func (m *Memory) List(ctx context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events), nil
}

func (m *Memory) Get(ctx context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.index(id); i >= 0 {
		return m.events[i], nil
	}
	return model.Event{}, ErrNotFound
}

func (m *Memory) Create(ctx context.Context, events ...model.Event) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := stamp(events, m.now())
	m.events = append(m.events, rows...)
	return rows, nil
}

func (m *Memory) Update(ctx context.Context, ev model.Event) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(ev.ID)
	if i < 0 {
		return model.Event{}, ErrNotFound
	}
	ev.CreatedAt = m.events[i].CreatedAt
	ev.UpdatedAt = m.now()
	m.events[i] = ev
	return ev, nil
}

func (m *Memory) Delete(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(ids)
	return nil
}

func (m *Memory) Replace(ctx context.Context, deleteIDs []string, create []model.Event) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(deleteIDs)
	rows := stamp(create, m.now())
	m.events = append(m.events, rows...)
	return rows, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) index(id string) int {
	return slices.IndexFunc(m.events, func(ev model.Event) bool { return ev.ID == id })
}

func (m *Memory) remove(ids []string) {
	if len(ids) == 0 {
		return
	}
	m.events = slices.DeleteFunc(m.events, func(ev model.Event) bool {
		return slices.Contains(ids, ev.ID)
	})
}
