// Package review reconciles the externally owned review ledger into work
// item status. Reconcile is pure; Synchronizer drives it on an interval or on
// demand; Ledger is the gorm-backed review store.
package review

import (
	"context"
	"strings"
	"time"

	"github.com/zulandar/coursereel/internal/item"
)

// Status is a reviewer's verdict for one stage.
type Status string

const (
	StatusPending  Status = "REVIEW_PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// ParseStatus converts a raw verdict string. "PENDING" is accepted as an
// alias of REVIEW_PENDING.
func ParseStatus(value string) (Status, bool) {
	switch v := strings.ToUpper(strings.TrimSpace(value)); v {
	case string(StatusPending), "PENDING":
		return StatusPending, true
	case string(StatusApproved), "APPROVE":
		return StatusApproved, true
	case string(StatusRejected), "REJECT":
		return StatusRejected, true
	}
	return "", false
}

// Decision is one ledger entry. Seq is the ledger's monotonic sequence and
// breaks timestamp ties. Version 0 applies to whatever version is current.
type Decision struct {
	Seq       int64            `json:"seq"`
	ContentID string           `json:"contentId"`
	Version   int              `json:"version"`
	Stage     item.ReviewStage `json:"stage"`
	Status    Status           `json:"status"`
	Comment   string           `json:"comment,omitempty"`
	Reviewer  string           `json:"reviewer,omitempty"`
	At        time.Time        `json:"timestamp"`
}

// Mark returns the ordering key of the decision.
func (d Decision) Mark() item.DecisionMark {
	return item.DecisionMark{At: d.At, Seq: d.Seq}
}

// Request is what the authoring side submits when asking for a review.
type Request struct {
	ContentID       string           `json:"contentId"`
	Version         int              `json:"version"`
	Stage           item.ReviewStage `json:"stage"`
	Title           string           `json:"title"`
	Department      string           `json:"department"`
	CreatorName     string           `json:"creatorName"`
	ContentCategory string           `json:"contentCategory"`
	ScriptText      string           `json:"scriptText"`
	VideoURL        string           `json:"videoUrl,omitempty"`
}

// Store is the review store consumed by the core.
type Store interface {
	SubmitReviewRequest(ctx context.Context, req Request) error
	// ListDecisions returns the decisions of one item, or of every item when
	// contentID is empty, in ledger order.
	ListDecisions(ctx context.Context, contentID string) ([]Decision, error)
}
