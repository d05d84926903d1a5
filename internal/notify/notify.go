// Package notify posts reviewer notifications to chat platforms. Delivery is
// best effort: a failing adapter is logged and never blocks the workflow.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/logging"
)

// Field is a key-value pair rendered next to the message body.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Message is a platform-neutral chat message.
type Message struct {
	Text   string // fallback / plain text
	Title  string
	Body   string
	Color  string // hex sidebar color, e.g. "#36a64f"
	Fields []Field
}

// Adapter delivers messages to one chat platform.
type Adapter interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// ReviewNotice describes a submitted review request.
type ReviewNotice struct {
	ContentID   string
	Version     int
	Stage       item.ReviewStage
	Title       string
	Category    string
	Department  string
	CreatorName string
}

// Notifier fans messages out to every configured adapter.
type Notifier struct {
	adapters []Adapter
	log      *logrus.Entry
}

// New returns a notifier. Nil adapters are skipped.
func New(logger *logrus.Logger, adapters ...Adapter) *Notifier {
	n := &Notifier{log: logging.Component(logger, "notify")}
	for _, a := range adapters {
		if a != nil {
			n.adapters = append(n.adapters, a)
		}
	}
	return n
}

// Enabled reports whether any adapter is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.adapters) > 0
}

// Broadcast sends msg to every adapter and joins the failures.
func (n *Notifier) Broadcast(ctx context.Context, msg Message) error {
	if !n.Enabled() {
		return nil
	}
	var errs []error
	for _, a := range n.adapters {
		if err := a.Send(ctx, msg); err != nil {
			n.log.WithError(err).WithField("adapter", a.Name()).Warn("notification failed")
			errs = append(errs, fmt.Errorf("notify: %s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ReviewRequested announces a new review request.
func (n *Notifier) ReviewRequested(ctx context.Context, notice ReviewNotice) error {
	return n.Broadcast(ctx, FormatReviewRequest(notice))
}

// StageLabel returns the display name of a review stage.
func StageLabel(stage item.ReviewStage) string {
	switch stage {
	case item.StageScript:
		return "1차(스크립트)"
	case item.StageFinal:
		return "2차(최종)"
	}
	return string(stage)
}

// FormatReviewRequest renders a review request notice.
func FormatReviewRequest(n ReviewNotice) Message {
	title := fmt.Sprintf("%s 검토 요청: %s", StageLabel(n.Stage), n.Title)
	dept := n.Department
	if strings.TrimSpace(dept) == "" {
		dept = "전사"
	}
	return Message{
		Text:  title,
		Title: title,
		Body:  fmt.Sprintf("%s (v%d)", n.ContentID, n.Version),
		Color: "#3b82f6",
		Fields: []Field{
			{Name: "카테고리", Value: n.Category, Short: true},
			{Name: "대상", Value: dept, Short: true},
			{Name: "제작자", Value: n.CreatorName, Short: true},
		},
	}
}
