// Package middleware decorates path state stores with encryption at rest and
// compaction.
package middleware

import "github.com/aretw0/arbor/pkg/ports"

// Middleware allows wrapping a PathStateStore to add behavior.
type Middleware func(ports.PathStateStore) ports.PathStateStore

// Chain wraps store with mws. The first middleware is the outermost one.
func Chain(store ports.PathStateStore, mws ...Middleware) ports.PathStateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
