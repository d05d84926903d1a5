package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/models"
)

// ErrNoRequest is returned when a decision is recorded for a stage that was
// never submitted.
var ErrNoRequest = errors.New("review: no review request for content and stage")

// Ledger is the gorm-backed review store. Requests and decisions are
// append-only rows; the decision row id is the ledger sequence.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedger returns a ledger on db.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// SubmitReviewRequest records a request and the REVIEW_PENDING decision that
// opens the stage.
func (l *Ledger) SubmitReviewRequest(ctx context.Context, req Request) error {
	if req.ContentID == "" {
		return fmt.Errorf("review: contentID is required")
	}
	if req.Stage != item.StageScript && req.Stage != item.StageFinal {
		return fmt.Errorf("review: invalid stage %q", req.Stage)
	}
	now := l.now()
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.ReviewRequest{
			ContentID:       req.ContentID,
			Version:         req.Version,
			Stage:           string(req.Stage),
			Title:           req.Title,
			Department:      req.Department,
			CreatorName:     req.CreatorName,
			ContentCategory: req.ContentCategory,
			ScriptText:      req.ScriptText,
			VideoURL:        req.VideoURL,
			CreatedAt:       now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("review: submit %s: %w", req.ContentID, err)
		}
		pending := models.ReviewDecision{
			ContentID: req.ContentID,
			Version:   req.Version,
			Stage:     string(req.Stage),
			Status:    string(StatusPending),
			Reviewer:  req.CreatorName,
			DecidedAt: now,
		}
		if err := tx.Create(&pending).Error; err != nil {
			return fmt.Errorf("review: open stage for %s: %w", req.ContentID, err)
		}
		return nil
	})
}

// RecordDecision appends a reviewer verdict. The decision applies to the
// version of the most recent request for the stage.
func (l *Ledger) RecordDecision(ctx context.Context, contentID string, stage item.ReviewStage, status Status, comment, reviewer string) (Decision, error) {
	var req models.ReviewRequest
	err := l.db.WithContext(ctx).
		Where("content_id = ? AND stage = ?", contentID, string(stage)).
		Order("id DESC").First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{}, fmt.Errorf("%w: %s %s", ErrNoRequest, contentID, stage)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("review: find request for %s: %w", contentID, err)
	}

	row := models.ReviewDecision{
		ContentID: contentID,
		Version:   req.Version,
		Stage:     string(stage),
		Status:    string(status),
		Comment:   comment,
		Reviewer:  reviewer,
		DecidedAt: l.now(),
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Decision{}, fmt.Errorf("review: record decision for %s: %w", contentID, err)
	}
	return toDecision(row), nil
}

// ListDecisions returns decisions in ledger order.
func (l *Ledger) ListDecisions(ctx context.Context, contentID string) ([]Decision, error) {
	q := l.db.WithContext(ctx).Order("id ASC")
	if contentID != "" {
		q = q.Where("content_id = ?", contentID)
	}
	var rows []models.ReviewDecision
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("review: list decisions: %w", err)
	}
	out := make([]Decision, len(rows))
	for i, r := range rows {
		out[i] = toDecision(r)
	}
	return out, nil
}

// Pending is a submitted request still waiting for a verdict.
type Pending struct {
	Request
	RequestedAt time.Time `json:"requestedAt"`
}

// PendingRequests returns the latest request of each item whose stage has no
// verdict yet, oldest first.
func (l *Ledger) PendingRequests(ctx context.Context) ([]Pending, error) {
	var reqs []models.ReviewRequest
	if err := l.db.WithContext(ctx).Order("id ASC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("review: list requests: %w", err)
	}
	decisions, err := l.ListDecisions(ctx, "")
	if err != nil {
		return nil, err
	}

	type key struct {
		content string
		version int
		stage   string
	}
	verdict := make(map[key]Status)
	for _, d := range decisions {
		verdict[key{d.ContentID, d.Version, string(d.Stage)}] = d.Status
	}
	latestReq := make(map[string]models.ReviewRequest)
	var order []string
	for _, r := range reqs {
		if _, seen := latestReq[r.ContentID]; !seen {
			order = append(order, r.ContentID)
		}
		latestReq[r.ContentID] = r
	}

	var out []Pending
	for _, id := range order {
		r := latestReq[id]
		if verdict[key{r.ContentID, r.Version, r.Stage}] != StatusPending {
			continue
		}
		out = append(out, Pending{Request: fromRequestRow(r), RequestedAt: r.CreatedAt})
	}
	return out, nil
}

func toDecision(r models.ReviewDecision) Decision {
	stage, _ := item.ParseStage(r.Stage)
	status, _ := ParseStatus(r.Status)
	return Decision{
		Seq:       int64(r.ID),
		ContentID: r.ContentID,
		Version:   r.Version,
		Stage:     stage,
		Status:    status,
		Comment:   r.Comment,
		Reviewer:  r.Reviewer,
		At:        r.DecidedAt,
	}
}

func fromRequestRow(r models.ReviewRequest) Request {
	stage, _ := item.ParseStage(r.Stage)
	return Request{
		ContentID:       r.ContentID,
		Version:         r.Version,
		Stage:           stage,
		Title:           r.Title,
		Department:      r.Department,
		CreatorName:     r.CreatorName,
		ContentCategory: r.ContentCategory,
		ScriptText:      r.ScriptText,
		VideoURL:        r.VideoURL,
	}
}
