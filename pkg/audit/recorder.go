package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/pkg/notify"
	"github.com/wardenhq/warden/pkg/observability"
)

// Recorder persists audit entries. Implementations return errors; the Emitter
// decides what to do with them.
type Recorder interface {
	// Record persists a single entry
	Record(ctx context.Context, entry *Entry) error

	// Search returns persisted entries matching the filter
	Search(ctx context.Context, filter SearchFilter) ([]*Entry, error)

	// Close flushes and releases the recorder
	Close() error
}

// Emitter is the write-side facade handed to the authorization engine and the
// session lifecycle manager. It stamps entries, swallows recorder failures,
// and forwards high-severity events to the notification sink.
type Emitter struct {
	recorder Recorder
	sink     notify.Sink
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewEmitter creates an emitter. sink and metrics may be nil.
func NewEmitter(recorder Recorder, sink notify.Sink, logger *observability.Logger, metrics *observability.Metrics) *Emitter {
	if sink == nil {
		sink = notify.NewNoopSink()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Emitter{
		recorder: recorder,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
	}
}

// Record persists the entry best-effort. A write failure is logged and
// swallowed so the originating operation is never blocked by its audit trail.
func (e *Emitter) Record(ctx context.Context, entry *Entry) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityLow
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}

	if err := e.recorder.Record(ctx, entry); err != nil {
		e.logger.WithError(err).
			WithField("action", string(entry.Action)).
			Warn("audit write failed, entry dropped")
		if e.metrics != nil {
			e.metrics.AuditWriteFailures.Inc()
		}
		return
	}

	if e.metrics != nil {
		e.metrics.AuditEntriesTotal.WithLabelValues(string(entry.Severity)).Inc()
	}

	if entry.Severity == SeverityHigh || entry.Severity == SeverityCritical {
		e.notifyHighSeverity(ctx, entry)
	}
}

// NotifyUser forwards an event to a single user, fire-and-forget
func (e *Emitter) NotifyUser(ctx context.Context, userID, eventType string, payload map[string]interface{}) {
	if err := e.sink.SendToUser(ctx, userID, eventType, payload); err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Warn("notification dropped")
		if e.metrics != nil {
			e.metrics.NotificationFailures.Inc()
		}
		return
	}
	if e.metrics != nil {
		e.metrics.NotificationsTotal.WithLabelValues("user").Inc()
	}
}

// NotifyRole forwards an event to every member of a role, fire-and-forget
func (e *Emitter) NotifyRole(ctx context.Context, role, eventType string, payload map[string]interface{}) {
	if err := e.sink.SendToRole(ctx, role, eventType, payload); err != nil {
		e.logger.WithError(err).WithField("role", role).Warn("notification dropped")
		if e.metrics != nil {
			e.metrics.NotificationFailures.Inc()
		}
		return
	}
	if e.metrics != nil {
		e.metrics.NotificationsTotal.WithLabelValues("role").Inc()
	}
}

func (e *Emitter) notifyHighSeverity(ctx context.Context, entry *Entry) {
	payload := map[string]interface{}{
		"action":       string(entry.Action),
		"performed_by": entry.PerformedBy,
		"resource":     entry.ResourceType,
		"resource_id":  entry.ResourceID,
		"severity":     string(entry.Severity),
		"timestamp":    entry.Timestamp,
	}
	if err := e.sink.Broadcast(ctx, string(entry.Action), payload); err != nil {
		e.logger.WithError(err).Warn("high-severity broadcast dropped")
		if e.metrics != nil {
			e.metrics.NotificationFailures.Inc()
		}
		return
	}
	if e.metrics != nil {
		e.metrics.NotificationsTotal.WithLabelValues("broadcast").Inc()
	}
}
