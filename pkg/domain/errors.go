package domain

import (
	"errors"
	"fmt"
)

// Graph errors
var (
	// ErrNodeNotFound is returned when an id has no corresponding node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidID is returned when a node id is empty or contains the path separator.
	ErrInvalidID = errors.New("invalid node id")
)

// Extension errors
var (
	// ErrDuplicateExtension is returned when an extension id is registered twice.
	ErrDuplicateExtension = errors.New("extension already registered")

	// ErrExtensionNotFound is returned when removing an unknown extension.
	ErrExtensionNotFound = errors.New("extension not found")
)

// Persistence errors
var (
	// ErrStateNotFound is returned when no path state is stored under a key.
	ErrStateNotFound = errors.New("path state not found")

	// ErrInvalidStateKey is returned for a state key other than open, current or alternateTree.
	ErrInvalidStateKey = errors.New("unknown path state key")
)

// ContributorError wraps a failure raised by extension code: a connector,
// resolver, action or drag-and-drop callback.
type ContributorError struct {
	ExtensionID string
	NodeID      string
	Op          string
	Err         error
}

func (e *ContributorError) Error() string {
	if e.ExtensionID == "" {
		return fmt.Sprintf("%s failed for node %q: %v", e.Op, e.NodeID, e.Err)
	}
	return fmt.Sprintf("extension %q: %s failed for node %q: %v", e.ExtensionID, e.Op, e.NodeID, e.Err)
}

func (e *ContributorError) Unwrap() error {
	return e.Err
}

// Recover converts a panic raised by contributor code into a ContributorError.
// It must be called directly by a deferred function.
func Recover(extensionID, nodeID, op string, err *error) {
	if r := recover(); r != nil {
		*err = &ContributorError{
			ExtensionID: extensionID,
			NodeID:      nodeID,
			Op:          op,
			Err:         fmt.Errorf("panic: %v", r),
		}
	}
}
