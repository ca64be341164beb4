package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/observability"
)

// Retention policy defaults.
const (
	DefaultInactivityWindow = 30 * 24 * time.Hour
	DefaultRetentionWindow  = 90 * 24 * time.Hour
	DefaultBatchSize        = 500
	defaultRevokeWorkers    = 8
)

// CleanupResult counts what one sweep did.
type CleanupResult struct {
	Expired  int `json:"expired"`
	Inactive int `json:"inactive"`
	Deleted  int `json:"deleted"`
}

// SweeperConfig tunes the retention sweep.
type SweeperConfig struct {
	InactivityWindow time.Duration
	RetentionWindow  time.Duration
	BatchSize        int
}

func (c *SweeperConfig) applyDefaults() {
	if c.InactivityWindow <= 0 {
		c.InactivityWindow = DefaultInactivityWindow
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = DefaultRetentionWindow
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
}

// Sweeper applies the retention policy in three independent steps:
//
//  1. revoke non-terminal sessions past their deadline (reason expired)
//  2. revoke non-terminal sessions idle past the inactivity window
//     (reason inactive)
//  3. hard-delete sessions created before the retention window,
//     regardless of state
//
// Each step commits on its own; a failure in a later step never rolls
// back an earlier one. The sweep works in bounded batches through plain
// store queries and takes no locks, so it cannot block validation.
type Sweeper struct {
	store   Store
	manager *Manager
	emitter *audit.Emitter
	logger  *observability.Logger
	metrics *observability.Metrics
	cfg     SweeperConfig

	now func() time.Time
}

// NewSweeper builds a sweeper. Revocations go through the manager so
// each swept session produces the same audit trail as a manual revoke.
func NewSweeper(store Store, manager *Manager, emitter *audit.Emitter, logger *observability.Logger, metrics *observability.Metrics, cfg SweeperConfig) *Sweeper {
	cfg.applyDefaults()
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Sweeper{
		store:   store,
		manager: manager,
		emitter: emitter,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Run executes one full sweep. The returned counts are valid even when
// the error is non-nil: steps that completed keep their effects.
func (s *Sweeper) Run(ctx context.Context) (CleanupResult, error) {
	start := time.Now()
	now := s.now().UTC()
	var result CleanupResult
	var errs []error

	expired, err := s.revokeStep(ctx, ReasonExpired, func(ctx context.Context, limit int) ([]*Session, error) {
		return s.store.FindExpired(ctx, now, limit)
	})
	result.Expired = expired
	if err != nil {
		errs = append(errs, fmt.Errorf("expiry step: %w", err))
	}

	threshold := now.Add(-s.cfg.InactivityWindow)
	inactive, err := s.revokeStep(ctx, ReasonInactive, func(ctx context.Context, limit int) ([]*Session, error) {
		return s.store.FindInactive(ctx, threshold, limit)
	})
	result.Inactive = inactive
	if err != nil {
		errs = append(errs, fmt.Errorf("inactivity step: %w", err))
	}

	deleted, err := s.deleteStep(ctx, now.Add(-s.cfg.RetentionWindow))
	result.Deleted = deleted
	if err != nil {
		errs = append(errs, fmt.Errorf("retention step: %w", err))
	}

	runErr := errors.Join(errs...)
	s.finishRun(ctx, result, start, runErr)
	return result, runErr
}

// revokeStep drains one find-and-revoke query in bounded batches,
// revoking each batch's sessions concurrently.
func (s *Sweeper) revokeStep(ctx context.Context, reason RevokeReason, find func(context.Context, int) ([]*Session, error)) (int, error) {
	total := 0
	for {
		batch, err := find(ctx, s.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(defaultRevokeWorkers)
		for _, sess := range batch {
			sess := sess
			g.Go(func() error {
				return s.manager.Revoke(gctx, sess.ID, reason)
			})
		}
		if err := g.Wait(); err != nil {
			return total, err
		}
		total += len(batch)

		if len(batch) < s.cfg.BatchSize {
			return total, nil
		}
	}
}

func (s *Sweeper) deleteStep(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for {
		n, err := s.store.DeleteCreatedBefore(ctx, cutoff, s.cfg.BatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.cfg.BatchSize {
			return total, nil
		}
	}
}

func (s *Sweeper) finishRun(ctx context.Context, result CleanupResult, start time.Time, runErr error) {
	log := s.logger.
		WithField("expired", result.Expired).
		WithField("inactive", result.Inactive).
		WithField("deleted", result.Deleted).
		WithField("duration", time.Since(start).String())
	if runErr != nil {
		log.WithError(runErr).Warn("cleanup sweep finished with errors")
	} else {
		log.Info("cleanup sweep finished")
	}

	if s.metrics != nil {
		status := "ok"
		if runErr != nil {
			status = "error"
		}
		s.metrics.SweepRunsTotal.WithLabelValues(status).Inc()
		s.metrics.SweepSessionsTotal.WithLabelValues("expired").Add(float64(result.Expired))
		s.metrics.SweepSessionsTotal.WithLabelValues("inactive").Add(float64(result.Inactive))
		s.metrics.SweepSessionsTotal.WithLabelValues("deleted").Add(float64(result.Deleted))
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}

	if s.emitter != nil {
		status := audit.StatusSuccess
		summary := fmt.Sprintf("expired=%d inactive=%d deleted=%d", result.Expired, result.Inactive, result.Deleted)
		if runErr != nil {
			status = audit.StatusFailure
			summary += " error=" + runErr.Error()
		}
		s.emitter.Record(ctx, &audit.Entry{
			Action:         audit.ActionSessionCleanup,
			ResourceType:   "session",
			Status:         status,
			Severity:       audit.SeverityLow,
			ChangesSummary: summary,
		})
	}
}
