// Package authoring is the command surface used by the HTTP API and the CLI.
// It composes the store, the pipeline executor, the review ledger, and the
// notifier; every state change still goes through the store.
package authoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zulandar/coursereel/internal/catalog"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/logging"
	"github.com/zulandar/coursereel/internal/metrics"
	"github.com/zulandar/coursereel/internal/notify"
	"github.com/zulandar/coursereel/internal/pipeline"
	"github.com/zulandar/coursereel/internal/review"
	"github.com/zulandar/coursereel/internal/scope"
	"github.com/zulandar/coursereel/internal/store"
	"github.com/zulandar/coursereel/internal/validate"
)

const notifyTimeout = 10 * time.Second

// Options configures a Service.
type Options struct {
	Store    *store.Store
	Executor *pipeline.Executor
	Reviews  review.Store
	Notifier *notify.Notifier // optional
	Metrics  *metrics.Metrics // optional
	Logger   *logrus.Logger
}

// Service exposes the authoring commands.
type Service struct {
	store    *store.Store
	executor *pipeline.Executor
	reviews  review.Store
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// New returns a Service.
func New(opts Options) *Service {
	return &Service{
		store:    opts.Store,
		executor: opts.Executor,
		reviews:  opts.Reviews,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		log:      logging.Component(opts.Logger, "authoring"),
	}
}

// Catalog returns the catalog the store validates against.
func (s *Service) Catalog() catalog.Lookup { return s.store.Catalog() }

// Get returns one item.
func (s *Service) Get(id string) (item.WorkItem, error) { return s.store.Get(id) }

// List returns the filtered, sorted items.
func (s *Service) List(f store.Filter) []item.WorkItem { return s.store.List(f) }

// CreateDraft creates a new DRAFT item.
func (s *Service) CreateDraft(ctx context.Context, sc scope.Scope, patch store.MetadataPatch) (item.WorkItem, validate.Result, error) {
	return s.store.CreateDraft(ctx, sc, patch)
}

// UpdateMetadata edits descriptive fields.
func (s *Service) UpdateMetadata(ctx context.Context, id string, sc scope.Scope, patch store.MetadataPatch) (item.WorkItem, validate.Result, error) {
	return s.store.UpdateMetadata(ctx, id, sc, patch)
}

// AddSourceFiles records file metadata reported by file transport.
func (s *Service) AddSourceFiles(ctx context.Context, id string, sc scope.Scope, files []item.SourceFile) (item.WorkItem, validate.Result, error) {
	return s.store.AddSourceFiles(ctx, id, sc, files)
}

// RemoveSourceFile detaches a source file.
func (s *Service) RemoveSourceFile(ctx context.Context, id string, sc scope.Scope, fileID string) (item.WorkItem, error) {
	return s.store.RemoveSourceFile(ctx, id, sc, fileID)
}

// UpdateScript replaces the script text.
func (s *Service) UpdateScript(ctx context.Context, id string, sc scope.Scope, text string) (item.WorkItem, error) {
	return s.store.UpdateScript(ctx, id, sc, text)
}

// DeleteDraft removes a DRAFT or FAILED item.
func (s *Service) DeleteDraft(ctx context.Context, id string, sc scope.Scope) error {
	return s.store.DeleteDraft(ctx, id, sc)
}

// RunPipeline admits a generation job; generation continues asynchronously.
func (s *Service) RunPipeline(ctx context.Context, id string, sc scope.Scope, mode item.PipelineMode) (item.WorkItem, validate.Result, error) {
	if s.executor == nil {
		return item.WorkItem{}, validate.Result{}, fmt.Errorf("authoring: pipeline executor not configured")
	}
	return s.executor.Run(ctx, id, sc, mode)
}

// Retry re-dispatches a FAILED item.
func (s *Service) Retry(ctx context.Context, id string, sc scope.Scope) (item.WorkItem, validate.Result, error) {
	if s.executor == nil {
		return item.WorkItem{}, validate.Result{}, fmt.Errorf("authoring: pipeline executor not configured")
	}
	return s.executor.Retry(ctx, id, sc)
}

// Validate previews the review gate the item would be submitted to next.
func (s *Service) Validate(id string, sc scope.Scope) (validate.Result, error) {
	w, err := s.store.Get(id)
	if err != nil {
		return validate.Result{}, err
	}
	return s.store.Validator().ForReview(w, sc, validate.ModeFor(w)), nil
}

// RequestReview validates the item, submits it to the review store, and marks
// it REVIEW_PENDING. Reviewers are notified after the item is marked.
func (s *Service) RequestReview(ctx context.Context, id string, sc scope.Scope) (item.WorkItem, validate.Result, error) {
	if s.reviews == nil {
		return item.WorkItem{}, validate.Result{}, fmt.Errorf("authoring: review store not configured")
	}
	var notice notify.ReviewNotice
	w, result, err := s.store.RequestReview(ctx, id, sc, func(cur item.WorkItem, stage item.ReviewStage) error {
		req := s.buildRequest(cur, stage)
		notice = notify.ReviewNotice{
			ContentID:   req.ContentID,
			Version:     req.Version,
			Stage:       stage,
			Title:       req.Title,
			Category:    req.ContentCategory,
			Department:  req.Department,
			CreatorName: req.CreatorName,
		}
		return s.reviews.SubmitReviewRequest(ctx, req)
	})
	if err != nil || !result.OK {
		return w, result, err
	}

	s.metrics.ReviewRequested(string(w.ReviewStage))
	if s.notifier.Enabled() {
		go func() {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			defer cancel()
			if err := s.notifier.ReviewRequested(nctx, notice); err != nil {
				s.log.WithError(err).WithField("item_id", notice.ContentID).Warn("review notification incomplete")
			}
		}()
	}
	return w, result, nil
}

func (s *Service) buildRequest(w item.WorkItem, stage item.ReviewStage) review.Request {
	cat := s.store.Catalog()
	names := make([]string, 0, len(w.TargetDeptIDs))
	for _, id := range w.TargetDeptIDs {
		names = append(names, cat.DepartmentName(id))
	}
	dept := strings.Join(names, ", ")
	if dept == "" {
		dept = "전사"
	}
	req := review.Request{
		ContentID:       w.ID,
		Version:         w.Version,
		Stage:           stage,
		Title:           w.Title,
		Department:      dept,
		CreatorName:     w.CreatedByName,
		ContentCategory: w.CategoryLabel,
		ScriptText:      w.Script,
	}
	if stage == item.StageFinal {
		req.VideoURL = w.VideoURL
	}
	return req
}

// ReopenRejected starts a new version of a rejected item.
func (s *Service) ReopenRejected(ctx context.Context, id string, sc scope.Scope) (item.WorkItem, error) {
	return s.store.ReopenRejected(ctx, id, sc)
}
