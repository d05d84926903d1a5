package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/zulandar/coursereel/internal/logging"
	"github.com/zulandar/coursereel/internal/review"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// PendingSource lists review requests still waiting for a verdict.
type PendingSource interface {
	PendingRequests(ctx context.Context) ([]review.Pending, error)
}

// Digest periodically posts the list of items awaiting review.
type Digest struct {
	source   PendingSource
	notifier *Notifier
	cron     *cron.Cron
	now      func() time.Time
	log      *logrus.Entry
}

// NewDigest schedules the digest on a 5-field cron expression.
func NewDigest(expr string, source PendingSource, notifier *Notifier, logger *logrus.Logger) (*Digest, error) {
	if _, err := cronParser.Parse(expr); err != nil {
		return nil, fmt.Errorf("notify: digest schedule %q: %w", expr, err)
	}
	d := &Digest{
		source:   source,
		notifier: notifier,
		cron:     cron.New(cron.WithParser(cronParser)),
		now:      time.Now,
		log:      logging.Component(logger, "digest"),
	}
	if _, err := d.cron.AddFunc(expr, func() {
		if err := d.Post(context.Background()); err != nil {
			d.log.WithError(err).Warn("digest failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("notify: schedule digest: %w", err)
	}
	return d, nil
}

// Start runs the schedule until ctx is cancelled.
func (d *Digest) Start(ctx context.Context) {
	d.cron.Start()
	go func() {
		<-ctx.Done()
		<-d.cron.Stop().Done()
	}()
}

// Post sends one digest now. Nothing is posted when the queue is empty.
func (d *Digest) Post(ctx context.Context) error {
	pending, err := d.source.PendingRequests(ctx)
	if err != nil {
		return fmt.Errorf("notify: load pending reviews: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}
	return d.notifier.Broadcast(ctx, FormatDigest(pending, d.now()))
}

// FormatDigest renders the pending-review digest.
func FormatDigest(pending []review.Pending, now time.Time) Message {
	title := fmt.Sprintf("검토 대기 %d건", len(pending))
	var b strings.Builder
	for _, p := range pending {
		wait := now.Sub(p.RequestedAt).Round(time.Minute)
		fmt.Fprintf(&b, "• [%s] %s (%s, v%d) - %s 대기\n", StageLabel(p.Stage), p.Title, p.ContentID, p.Version, wait)
	}
	return Message{
		Text:  title,
		Title: title,
		Body:  b.String(),
		Color: "#f59e0b",
	}
}
