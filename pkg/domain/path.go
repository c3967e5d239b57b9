package domain

import (
	"fmt"
	"strings"
)

// ValidateID rejects ids that cannot take part in a path key.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.Contains(id, PathSeparator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidID, id, PathSeparator)
	}
	return nil
}

// PathKey joins a path of node ids into a state key.
func PathKey(path []string) string {
	return strings.Join(path, PathSeparator)
}

// SplitPathKey is the inverse of PathKey.
func SplitPathKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, PathSeparator)
}

// ParentPath returns the path without its last element.
func ParentPath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	return path[:len(path)-1]
}

// LastID returns the trailing id of a path, or "" for an empty path.
func LastID(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

// SamePath compares two paths element by element.
func SamePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ContainsID reports whether id already appears on the path.
func ContainsID(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}
