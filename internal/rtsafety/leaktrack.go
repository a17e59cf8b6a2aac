// SPDX-License-Identifier: MIT

package rtsafety

import (
	"fmt"
	"sync"
)

// LeakTracker records named resources (hardware fd handles, file locks, ...)
// so tests can assert everything opened was also closed. It is generic over
// the resource type; no package in this module registers with it.
type LeakTracker struct {
	mu        sync.Mutex
	resources map[string]any
}

// NewLeakTracker creates an empty tracker.
func NewLeakTracker() *LeakTracker {
	return &LeakTracker{resources: make(map[string]any)}
}

// Track registers a resource under name. A duplicate name overwrites silently
// (callers are expected to Untrack before reusing a name).
func (t *LeakTracker) Track(name string, resource any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resources[name] = resource
}

// Untrack removes a resource from tracking. Safe to call on an unknown name.
func (t *LeakTracker) Untrack(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.resources, name)
}

// Leaked returns the names of all resources still tracked.
func (t *LeakTracker) Leaked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.resources))
	for name := range t.resources {
		names = append(names, name)
	}
	return names
}

// Count returns the number of tracked resources.
func (t *LeakTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.resources)
}

// AssertEmpty returns an error naming every leaked resource, or nil.
func (t *LeakTracker) AssertEmpty() error {
	leaked := t.Leaked()
	if len(leaked) == 0 {
		return nil
	}
	return fmt.Errorf("leaked resources: %v", leaked)
}
