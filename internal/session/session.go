// Package session keeps per-client server-side state keyed by an id that the
// client carries in a signed cookie.
package session

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrVersionConflict = errors.New("session version conflict")
)

// Data is everything persisted for one session.
type Data struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`

	// Cart holds product ids in the order they were added.
	Cart []string `json:"cart,omitempty"`
}

func (d *Data) Clone() *Data {
	c := *d
	c.Cart = slices.Clone(d.Cart)
	return &c
}

// Store persists sessions with optimistic versioning.
type Store interface {
	// Create stores a new session, stamping CreatedAt/UpdatedAt and Version=1.
	Create(ctx context.Context, d *Data) error

	// Get returns nil, nil for an unknown or expired id.
	Get(ctx context.Context, id string) (*Data, error)

	// Update writes d if its Version matches the stored one, then bumps
	// d.Version and d.UpdatedAt. ErrVersionConflict or ErrNotFound otherwise.
	Update(ctx context.Context, d *Data) error

	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}
