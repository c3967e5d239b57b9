package navstate

import (
	"context"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// SetActive replaces the set of active node ids and marks matching paths as
// current. A first pass runs immediately; a second one runs after the
// debounce delay to catch paths materialized by expansions in between.
// Every path ending in an id is updated, not just one.
func (s *Store) SetActive(ctx context.Context, ids []string) {
	next := make(map[string]bool, len(ids))
	for _, id := range ids {
		next[id] = true
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev := s.active
	s.active = next
	s.mu.Unlock()

	removed := difference(prev, next)
	added := difference(next, prev)
	s.reconcile(ctx, removed, added)
	s.schedule(context.WithoutCancel(ctx))
}

// Settle runs the pending settling pass now.
func (s *Store) Settle(ctx context.Context) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.settle(ctx)
}

func (s *Store) schedule(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		if s.timer != timer {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		s.settle(ctx)
	})
	s.timer = timer
}

// settle reconciles against the active set seen by the previous settling
// pass. Every active id is treated as newly active so late paths are found.
func (s *Store) settle(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	active := copySet(s.active)
	removed := difference(s.settled, active)
	s.settled = active
	s.mu.Unlock()

	s.reconcile(ctx, removed, active)
}

func (s *Store) reconcile(ctx context.Context, removed, added map[string]bool) {
	if len(removed) == 0 && len(added) == 0 {
		return
	}

	// Path lookups walk the graph and must not run under the state lock.
	var found []string
	if s.finder != nil {
		for id := range added {
			for _, path := range s.finder.Paths(id) {
				found = append(found, domain.PathKey(path))
			}
		}
	}

	s.mu.Lock()
	changed := 0
	for _, k := range s.order {
		st := s.entries[k]
		id := domain.LastID(domain.SplitPathKey(k))
		switch {
		case removed[id] && !added[id] && st.Current:
			st.Current = false
		case added[id] && !st.Current:
			st.Current = true
		default:
			continue
		}
		s.entries[k] = st
		changed++
	}
	for _, k := range found {
		if st := s.entries[k]; !st.Current {
			st.Current = true
			s.setLocked(k, st)
			changed++
		}
	}
	if changed == 0 {
		s.mu.Unlock()
		return
	}
	entries, version := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("Reconciled active paths", "changed", changed)
	s.save(ctx, entries, version)
}

func difference(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for id := range a {
		if !b[id] {
			out[id] = true
		}
	}
	return out
}

func copySet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
