// Package navstate keeps the per-path UI state of a navigation tree.
//
// State is keyed by path, not by node, because the same node can appear at
// several places in the graph. Every mutation is written through to a
// ports.PathStateStore; write failures are logged and the in-memory state
// stays authoritative.
package navstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "navtree-state"

// DefaultDebounce is the delay of the settling pass after an active-set change.
const DefaultDebounce = 500 * time.Millisecond

// PathFinder lists every known path from the root to a node.
// *graph.Graph implements it.
type PathFinder interface {
	Paths(id string) [][]string
}

// Store holds path state in memory and writes it through to persistence.
type Store struct {
	mu      sync.Mutex
	entries map[string]domain.PathState
	order   []string
	active  map[string]bool
	settled map[string]bool
	timer   *time.Timer
	closed  bool
	version uint64

	saveMu sync.Mutex
	saved  uint64

	persist  ports.PathStateStore
	key      string
	debounce time.Duration
	finder   PathFinder
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures the Store.
type Option func(*Store)

// WithKey sets the storage key of the snapshot.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithDebounce sets the delay of the settling pass run after SetActive.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

// WithPathFinder lets SetActive reach paths that have no state entry yet.
func WithPathFinder(f PathFinder) Option {
	return func(s *Store) {
		s.finder = f
	}
}

// WithLocker serializes snapshot writes across processes sharing the backend.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(s *Store) {
		s.locker = locker
		s.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a Store. A nil persist keeps state in memory only.
func New(persist ports.PathStateStore, opts ...Option) *Store {
	s := &Store{
		entries:  make(map[string]domain.PathState),
		active:   make(map[string]bool),
		settled:  make(map[string]bool),
		persist:  persist,
		key:      DefaultKey,
		debounce: DefaultDebounce,
		lockTTL:  5 * time.Second,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the storage key.
func (s *Store) Key() string {
	return s.key
}

// Load seeds the store from persistence. A missing snapshot leaves it empty.
// Loaded entries replace the in-memory ones with the same path.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	entries, err := s.persist.Load(ctx, s.key)
	if errors.Is(err, domain.ErrStateNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn("Failed to load path state", "key", s.key, "err", err)
		return fmt.Errorf("load path state %q: %w", s.key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.setLocked(e.Key, e.State)
	}
	s.logger.Debug("Loaded path state", "key", s.key, "entries", len(entries))
	return nil
}

// Item returns the state of path, creating a default entry on first access.
func (s *Store) Item(path []string) domain.PathState {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := domain.PathKey(path)
	st, ok := s.entries[k]
	if !ok {
		s.setLocked(k, st)
	}
	return st
}

// SetItem updates one flag of path and persists the snapshot.
func (s *Store) SetItem(ctx context.Context, path []string, key domain.StateKey, value bool) error {
	s.mu.Lock()
	k := domain.PathKey(path)
	next, err := s.entries[k].With(key, value)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.setLocked(k, next)
	entries, version := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, entries, version)
	return nil
}

// Toggle flips one flag of path and returns its new value.
func (s *Store) Toggle(ctx context.Context, path []string, key domain.StateKey) (bool, error) {
	s.mu.Lock()
	k := domain.PathKey(path)
	current, err := s.entries[k].Get(key)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	next, _ := s.entries[k].With(key, !current)
	s.setLocked(k, next)
	entries, version := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, entries, version)
	return !current, nil
}

// IsOpen reports the open flag of path.
func (s *Store) IsOpen(path []string) bool { return s.Item(path).Open }

// IsCurrent reports the current flag of path.
func (s *Store) IsCurrent(path []string) bool { return s.Item(path).Current }

// IsAlternateTree reports the alternateTree flag of path.
func (s *Store) IsAlternateTree(path []string) bool { return s.Item(path).AlternateTree }

// Entries returns every entry in insertion order.
func (s *Store) Entries() []domain.PathStateEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, _ := s.snapshotLocked()
	return entries
}

// Active returns the current active set.
func (s *Store) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for id := range s.active {
		out = append(out, id)
	}
	return out
}

// Compact drops entries equal to the default state and persists the result.
func (s *Store) Compact(ctx context.Context) int {
	s.mu.Lock()
	kept := s.order[:0]
	removed := 0
	for _, k := range s.order {
		if s.entries[k].IsZero() {
			delete(s.entries, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	if removed == 0 {
		s.mu.Unlock()
		return 0
	}
	entries, version := s.snapshotLocked()
	s.mu.Unlock()

	s.save(ctx, entries, version)
	return removed
}

// Close stops the pending settling pass.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}

func (s *Store) setLocked(k string, st domain.PathState) {
	if _, ok := s.entries[k]; !ok {
		s.order = append(s.order, k)
	}
	s.entries[k] = st
}

func (s *Store) snapshotLocked() ([]domain.PathStateEntry, uint64) {
	entries := make([]domain.PathStateEntry, 0, len(s.order))
	for _, k := range s.order {
		entries = append(entries, domain.PathStateEntry{Key: k, State: s.entries[k]})
	}
	s.version++
	return entries, s.version
}

// save writes a snapshot unless a newer one was written already.
func (s *Store) save(ctx context.Context, entries []domain.PathStateEntry, version uint64) {
	if s.persist == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if version <= s.saved {
		return
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, s.key, s.lockTTL)
		if err != nil {
			s.logger.Warn("Failed to lock path state", "key", s.key, "err", err)
			s.metrics.StateWrite(err)
			return
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to unlock path state", "key", s.key, "err", err)
			}
		}()
	}

	err := s.persist.Save(ctx, s.key, entries)
	s.metrics.StateWrite(err)
	if err != nil {
		s.logger.Warn("Failed to persist path state", "key", s.key, "err", err)
		return
	}
	s.saved = version
}
