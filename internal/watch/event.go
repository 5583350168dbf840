package watch

import (
	"sort"
	"time"
)

// ChangeKind represents the kind of file change.
type ChangeKind int

const (
	KindCreated ChangeKind = iota
	KindModified
	KindDeleted
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ChangeEvent is one raw filesystem change as reported by the watcher.
// Events are ephemeral: the debouncer consumes and discards them.
type ChangeEvent struct {
	Path      string
	Kind      ChangeKind
	Timestamp time.Time
}

// ChangeSet is the union of all paths touched during one debounce window.
type ChangeSet struct {
	paths       map[string]struct{}
	WindowStart time.Time
	WindowEnd   time.Time
}

// newChangeSet opens a window starting at the given instant.
func newChangeSet(start time.Time) *ChangeSet {
	return &ChangeSet{
		paths:       make(map[string]struct{}),
		WindowStart: start,
	}
}

// add records a touched path.
func (cs *ChangeSet) add(path string) {
	cs.paths[path] = struct{}{}
}

// Len returns the number of distinct paths in the set.
func (cs *ChangeSet) Len() int {
	return len(cs.paths)
}

// Contains reports whether path is part of the set.
func (cs *ChangeSet) Contains(path string) bool {
	_, ok := cs.paths[path]
	return ok
}

// Paths returns the touched paths in sorted order.
func (cs *ChangeSet) Paths() []string {
	paths := make([]string, 0, len(cs.paths))
	for p := range cs.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
