package ply

import (
	"fmt"
	"path/filepath"
)

// Event is a kernel-materialized probe target found under the tracefs
// events directory. Name is the "<group>/<event>" suffix, which is the form
// delete directives expect.
type Event struct {
	Path string
	Name string
}

// discoverEvents enumerates the events the kernel actually created for the
// (group, id) namespace. The kernel is the source of truth here: directives
// may have been silently rejected, and events may survive from an earlier
// incarnation, so callers reconcile against this observed set rather than
// their own bookkeeping. An empty result is a valid outcome.
func discoverEvents(root, group string, id uint64) ([]Event, error) {
	eventsDir := filepath.Join(root, "events")
	pattern := filepath.Join(eventsDir, group, fmt.Sprintf("p%x_*", id))
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("event discovery glob %q: %w", pattern, err)
	}

	events := make([]Event, 0, len(paths))
	for _, p := range paths {
		name, err := filepath.Rel(eventsDir, p)
		if err != nil {
			return nil, fmt.Errorf("event path %q outside events directory: %w", p, err)
		}
		events = append(events, Event{Path: p, Name: filepath.ToSlash(name)})
	}
	return events, nil
}
