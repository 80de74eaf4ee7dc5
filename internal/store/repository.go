package store

import (
	"context"
	"errors"

	"github.com/retreat896/MobileDev-Assignment02/pkg/robots"
)

var (
	// ErrNotFound is returned when no robot has the requested ID.
	ErrNotFound = errors.New("robot not found")

	// ErrUnavailable wraps failures of the underlying database.
	ErrUnavailable = errors.New("database not reachable")
)

// Repository is the robot storage the HTTP handlers use. Inputs are assumed
// to be validated by the caller.
type Repository interface {
	List(ctx context.Context) ([]robots.Robot, error)
	Get(ctx context.Context, id string) (robots.Robot, error)
	Create(ctx context.Context, d robots.Draft) (robots.Robot, error)
	Update(ctx context.Context, id string, p robots.Patch) (robots.Robot, error)
	Delete(ctx context.Context, id string) error

	// Replace swaps the whole collection for the given robots, keyed by ID.
	Replace(ctx context.Context, all map[string]robots.Robot) error
	// Reset removes every robot and restarts ID assignment.
	Reset(ctx context.Context) error
}

var (
	_ Repository = (*Memory)(nil)
	_ Repository = (*MySQL)(nil)
)

// Memory is a Repository kept in process memory.
type Memory struct {
	items *Store[robots.Robot]
}

// NewMemory returns an empty in-memory repository with IDs like "rbt_000001".
func NewMemory() *Memory {
	return &Memory{items: New[robots.Robot]("rbt")}
}

func (m *Memory) List(ctx context.Context) ([]robots.Robot, error) {
	return m.items.List(), nil
}

func (m *Memory) Get(ctx context.Context, id string) (robots.Robot, error) {
	r, ok := m.items.Get(id)
	if !ok {
		return robots.Robot{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) Create(ctx context.Context, d robots.Draft) (robots.Robot, error) {
	id := m.items.NextID()
	r := robots.FromDraft(robots.ID(id), d)
	m.items.Set(id, r)
	return r, nil
}

func (m *Memory) Update(ctx context.Context, id string, p robots.Patch) (robots.Robot, error) {
	updated, ok, err := m.items.Update(id, func(r robots.Robot) (robots.Robot, error) {
		return p.Apply(r), nil
	})
	if err != nil {
		return robots.Robot{}, err
	}
	if !ok {
		return robots.Robot{}, ErrNotFound
	}
	return updated, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if !m.items.Delete(id) {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) Replace(ctx context.Context, all map[string]robots.Robot) error {
	snapshot := make(map[string]robots.Robot, len(all))
	for id, r := range all {
		r.ID = robots.ID(id)
		snapshot[id] = r
	}
	m.items.LoadSnapshot(snapshot)
	return nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.items.Reset()
	return nil
}
