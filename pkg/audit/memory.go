package audit

import (
	"context"
	"sync"
)

// MemoryRecorder keeps entries in process memory with a bounded size.
// Intended for tests and single-node deployments without a database.
type MemoryRecorder struct {
	mu         sync.RWMutex
	entries    []*Entry
	maxEntries int
}

// NewMemoryRecorder creates an in-memory recorder holding at most maxEntries.
func NewMemoryRecorder(maxEntries int) *MemoryRecorder {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryRecorder{maxEntries: maxEntries}
}

// Record appends the entry, evicting the oldest entries when full
func (r *MemoryRecorder) Record(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.maxEntries {
		// Drop the oldest 10% to amortize eviction cost
		drop := r.maxEntries / 10
		if drop < 1 {
			drop = 1
		}
		r.entries = append(r.entries[:0], r.entries[drop:]...)
	}

	copied := *entry
	r.entries = append(r.entries, &copied)
	return nil
}

// Search returns entries matching the filter, newest first
func (r *MemoryRecorder) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !matches(e, filter) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Len returns the number of stored entries
func (r *MemoryRecorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns a snapshot of all stored entries, oldest first
func (r *MemoryRecorder) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Close releases the recorder
func (r *MemoryRecorder) Close() error {
	return nil
}

func matches(e *Entry, filter SearchFilter) bool {
	if filter.StartTime != nil && e.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && e.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.PerformedBy != "" && e.PerformedBy != filter.PerformedBy {
		return false
	}
	if filter.Status != nil && e.Status != *filter.Status {
		return false
	}
	if filter.Severity != nil && e.Severity != *filter.Severity {
		return false
	}
	if len(filter.Actions) > 0 {
		found := false
		for _, a := range filter.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
