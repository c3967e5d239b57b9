package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// PathStateStore persists navigation state snapshots.
// A snapshot is the full list of [pathKey, state] entries stored under one key.
type PathStateStore interface {
	// Save replaces the snapshot stored under key.
	Save(ctx context.Context, key string, entries []domain.PathStateEntry) error

	// Load retrieves the snapshot stored under key.
	// Returns domain.ErrStateNotFound if nothing was saved yet.
	Load(ctx context.Context, key string) ([]domain.PathStateEntry, error)

	// Delete removes the snapshot stored under key.
	Delete(ctx context.Context, key string) error

	// List returns the stored keys.
	List(ctx context.Context) ([]string, error)
}
