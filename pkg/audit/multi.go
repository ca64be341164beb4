package audit

import (
	"context"
	"fmt"
	"strings"
)

// MultiRecorder fans entries out to several recorders. A failure in one
// recorder does not stop delivery to the others.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a fan-out recorder
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

// Record delivers the entry to every recorder, collecting failures
func (m *MultiRecorder) Record(ctx context.Context, entry *Entry) error {
	var errs []string
	for _, r := range m.recorders {
		if err := r.Record(ctx, entry); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d recorders failed: %s", len(errs), len(m.recorders), strings.Join(errs, "; "))
	}
	return nil
}

// Search queries the first recorder that succeeds
func (m *MultiRecorder) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	var lastErr error
	for _, r := range m.recorders {
		entries, err := r.Search(ctx, filter)
		if err == nil {
			return entries, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no recorders configured")
	}
	return nil, lastErr
}

// Close closes every recorder, returning the first error
func (m *MultiRecorder) Close() error {
	var first error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
