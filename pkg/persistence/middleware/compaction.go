package middleware

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

type compactionMiddleware struct {
	ports.PathStateStore
}

// NewCompactionMiddleware drops entries holding only default values before
// they are saved. A missing entry loads as the default state.
func NewCompactionMiddleware() Middleware {
	return func(next ports.PathStateStore) ports.PathStateStore {
		return &compactionMiddleware{PathStateStore: next}
	}
}

func (m *compactionMiddleware) Save(ctx context.Context, key string, entries []domain.PathStateEntry) error {
	kept := make([]domain.PathStateEntry, 0, len(entries))
	for _, e := range entries {
		if !e.State.IsZero() {
			kept = append(kept, e)
		}
	}
	return m.PathStateStore.Save(ctx, key, kept)
}
