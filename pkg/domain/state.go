package domain

import (
	"encoding/json"
	"fmt"
)

// StateKey names one flag of a PathState.
type StateKey string

const (
	StateOpen          StateKey = "open"
	StateCurrent       StateKey = "current"
	StateAlternateTree StateKey = "alternateTree"
)

// PathState is the UI state of one path through the graph.
type PathState struct {
	Open          bool `json:"open"`
	Current       bool `json:"current"`
	AlternateTree bool `json:"alternateTree"`
}

// IsZero reports whether the state equals the defaults.
func (s PathState) IsZero() bool {
	return !s.Open && !s.Current && !s.AlternateTree
}

// Get reads one flag.
func (s PathState) Get(key StateKey) (bool, error) {
	switch key {
	case StateOpen:
		return s.Open, nil
	case StateCurrent:
		return s.Current, nil
	case StateAlternateTree:
		return s.AlternateTree, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidStateKey, key)
}

// With returns a copy with one flag set.
func (s PathState) With(key StateKey, value bool) (PathState, error) {
	switch key {
	case StateOpen:
		s.Open = value
	case StateCurrent:
		s.Current = value
	case StateAlternateTree:
		s.AlternateTree = value
	default:
		return s, fmt.Errorf("%w: %q", ErrInvalidStateKey, key)
	}
	return s, nil
}

// PathStateEntry is one persisted [pathKey, state] pair.
type PathStateEntry struct {
	Key   string
	State PathState
}

// MarshalJSON encodes the entry as a two element array.
func (e PathStateEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Key, e.State})
}

// UnmarshalJSON decodes a two element array.
func (e *PathStateEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("path state entry: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Key); err != nil {
		return fmt.Errorf("path state entry key: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.State); err != nil {
		return fmt.Errorf("path state entry value: %w", err)
	}
	return nil
}
