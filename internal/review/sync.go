package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/logging"
	"github.com/zulandar/coursereel/internal/metrics"
	"github.com/zulandar/coursereel/internal/store"
)

const defaultSyncInterval = time.Second

// Target is where reconciled items are written. *store.Store implements it;
// fn runs under the store's writer lock.
type Target interface {
	ApplyReview(ctx context.Context, id string, fn func(item.WorkItem) (item.WorkItem, bool)) (item.WorkItem, bool, error)
}

// SyncOptions configures a Synchronizer.
type SyncOptions struct {
	Ledger   Store
	Target   Target
	Interval time.Duration
	Metrics  *metrics.Metrics
	Logger   *logrus.Logger
}

// Synchronizer pulls the review ledger and reconciles it into the store.
type Synchronizer struct {
	ledger   Store
	target   Target
	interval time.Duration
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// NewSynchronizer returns a synchronizer. Interval defaults to one second.
func NewSynchronizer(opts SyncOptions) *Synchronizer {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Synchronizer{
		ledger:   opts.Ledger,
		target:   opts.Target,
		interval: interval,
		metrics:  opts.Metrics,
		log:      logging.Component(opts.Logger, "review-sync"),
	}
}

// Run reconciles on every interval until ctx is cancelled. A failed pass is
// logged and retried on the next tick.
func (s *Synchronizer) Run(ctx context.Context) error {
	if s.ledger == nil || s.target == nil {
		return fmt.Errorf("review: ledger and target are required")
	}
	s.log.WithField("interval", s.interval).Info("review synchronizer starting")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("review synchronizer stopped")
			return nil
		default:
		}

		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.metrics.SyncFailed()
			s.log.WithError(err).Warn("review sync pass failed")
		}

		sleepWithContext(ctx, s.interval)
	}
}

// RunOnce performs one full pass and returns how many items changed.
func (s *Synchronizer) RunOnce(ctx context.Context) (int, error) {
	decisions, err := s.ledger.ListDecisions(ctx, "")
	if err != nil {
		return 0, err
	}

	byContent := make(map[string][]Decision)
	var order []string
	for _, d := range decisions {
		if _, seen := byContent[d.ContentID]; !seen {
			order = append(order, d.ContentID)
		}
		byContent[d.ContentID] = append(byContent[d.ContentID], d)
	}

	applied := 0
	var errs []error
	for _, id := range order {
		_, changed, err := s.apply(ctx, id, byContent[id])
		if errors.Is(err, store.ErrNotFound) {
			// Decisions can outlive a deleted draft.
			s.log.WithField("item_id", id).Debug("decisions for unknown item skipped")
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			applied++
		}
	}
	return applied, errors.Join(errs...)
}

// SyncItem reconciles a single item immediately, for callers that just
// recorded a decision and should not wait for the next tick.
func (s *Synchronizer) SyncItem(ctx context.Context, id string) (item.WorkItem, bool, error) {
	decisions, err := s.ledger.ListDecisions(ctx, id)
	if err != nil {
		return item.WorkItem{}, false, err
	}
	return s.apply(ctx, id, decisions)
}

func (s *Synchronizer) apply(ctx context.Context, id string, decisions []Decision) (item.WorkItem, bool, error) {
	var applied Decision
	w, changed, err := s.target.ApplyReview(ctx, id, func(cur item.WorkItem) (item.WorkItem, bool) {
		next, d, ok := reconcile(cur, decisions)
		applied = d
		return next, ok
	})
	if err != nil {
		return item.WorkItem{}, false, fmt.Errorf("review: apply %s: %w", id, err)
	}
	if changed {
		s.metrics.ReviewApplied(string(applied.Stage), string(applied.Status))
		s.log.WithFields(logrus.Fields{
			"item_id": id,
			"version": w.Version,
			"stage":   applied.Stage,
			"status":  applied.Status,
		}).Info("review decision applied")
	}
	return w, changed, nil
}

// sleepWithContext sleeps for duration d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
