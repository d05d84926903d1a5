package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zulandar/coursereel/internal/events"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/rework"
	"github.com/zulandar/coursereel/internal/scope"
	"github.com/zulandar/coursereel/internal/validate"
)

// Assets are the outputs a finished generation job writes back.
type Assets struct {
	Script       string
	VideoURL     string
	ThumbnailURL string
}

// RetryMode picks the mode a retry re-dispatches, from asset presence: video
// only once an approved script exists, otherwise the script again.
func RetryMode(w item.WorkItem) item.PipelineMode {
	if strings.TrimSpace(w.Script) != "" && w.ScriptApprovedAt != nil {
		return item.ModeVideoOnly
	}
	return item.ModeScriptOnly
}

// BeginPipeline admits a generation job. Admission is the single-flight gate:
// while any item is RUNNING the call fails with *ConflictError and nothing
// changes. A normal run needs a DRAFT item; a retry needs a FAILED one and
// ignores mode in favor of RetryMode. Validation issues are returned as data
// with no state change.
func (s *Store) BeginPipeline(ctx context.Context, id string, sc scope.Scope, mode item.PipelineMode, retry bool) (item.WorkItem, validate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, validate.Result{}, err
	}
	if running, ok := s.runningLocked(""); ok {
		return cur.Clone(), validate.Result{}, &ConflictError{RunningID: running}
	}

	if retry {
		if cur.Status != item.StatusFailed {
			return cur.Clone(), validate.Result{}, fmt.Errorf("store: retry %s in status %s: %w", id, cur.Status, ErrInvalidState)
		}
		mode = RetryMode(*cur)
	} else {
		if cur.Status != item.StatusDraft {
			return cur.Clone(), validate.Result{}, fmt.Errorf("store: run %s in status %s: %w", id, cur.Status, ErrInvalidState)
		}
		if _, ok := item.ParseMode(string(mode)); !ok {
			return cur.Clone(), validate.Result{}, fmt.Errorf("store: run %s: unknown mode %q: %w", id, mode, ErrInvalidState)
		}
	}

	result := s.validator.ForPipeline(*cur, sc, mode)
	if !result.OK {
		return cur.Clone(), result, nil
	}

	now := s.now()
	next := cur.Clone()
	next.Status = item.StatusGenerating
	next.FailedReason = ""
	next.Pipeline = item.Pipeline{
		Mode:      mode,
		State:     item.PipelineRunning,
		Stage:     initialStage(mode),
		StartedAt: &now,
	}
	if mode == item.ModeVideoOnly || mode == item.ModeFull {
		next.VideoURL = ""
		next.ThumbnailURL = ""
	}
	next.UpdatedAt = now

	out, err := s.commitLocked(ctx, next, events.PipelineStarted)
	if err != nil {
		return item.WorkItem{}, validate.Result{}, err
	}
	s.itemLog(out).WithFields(logrus.Fields{"mode": mode, "retry": retry}).Info("generation job admitted")
	return out, result, nil
}

func initialStage(mode item.PipelineMode) string {
	if mode == item.ModeVideoOnly {
		return item.PipelineStageVideo
	}
	return item.PipelineStageUpload
}

// ReportProgress records a progress tick of the running job. Progress never
// decreases and stays below 100 until CompletePipeline. Ticks are published
// but not written through; the repository sees the job again when it ends.
func (s *Store) ReportProgress(ctx context.Context, id, stage string, progress int, message string) (item.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, err
	}
	if cur.Pipeline.State != item.PipelineRunning {
		return cur.Clone(), fmt.Errorf("store: progress for %s: pipeline %s: %w", id, cur.Pipeline.State, ErrInvalidState)
	}

	progress = min(progress, 99)
	progress = max(progress, cur.Pipeline.Progress)
	cur.Pipeline.Progress = progress
	if stage != "" {
		cur.Pipeline.Stage = stage
	}
	cur.Pipeline.Message = message
	cur.UpdatedAt = s.now()

	out := cur.Clone()
	s.publish(events.PipelineProgress, out)
	return out, nil
}

// CompletePipeline finishes the running job successfully and writes the
// assets its mode produces.
func (s *Store) CompletePipeline(ctx context.Context, id string, assets Assets) (item.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, err
	}
	if cur.Pipeline.State != item.PipelineRunning {
		return cur.Clone(), fmt.Errorf("store: complete %s: pipeline %s: %w", id, cur.Pipeline.State, ErrInvalidState)
	}

	now := s.now()
	next := cur.Clone()
	switch next.Pipeline.Mode {
	case item.ModeScriptOnly:
		next.Script = assets.Script
	case item.ModeVideoOnly:
		next.VideoURL = assets.VideoURL
		next.ThumbnailURL = assets.ThumbnailURL
	case item.ModeFull:
		next.Script = assets.Script
		next.VideoURL = assets.VideoURL
		next.ThumbnailURL = assets.ThumbnailURL
	}
	next.Status = item.StatusDraft
	next.FailedReason = ""
	next.Pipeline.State = item.PipelineSuccess
	next.Pipeline.Stage = item.PipelineStageDone
	next.Pipeline.Progress = 100
	next.Pipeline.FinishedAt = &now
	next.Pipeline.Message = ""
	next.UpdatedAt = now

	out, err := s.commitLocked(ctx, next, events.PipelineSucceeded)
	if err != nil {
		// A lost result still ends the job and frees the generation slot.
		failed := cur.Clone()
		s.failLocked(&failed, UnsavedResultReason)
		if s.repo != nil {
			if serr := s.repo.Save(ctx, failed); serr != nil {
				s.itemLog(failed).WithError(serr).Error("save failed job state")
			}
		}
		out = s.settleLocked(failed, events.PipelineFailed)
		s.itemLog(out).WithError(err).Error("generation result not saved")
		return out, err
	}
	s.itemLog(out).WithField("mode", out.Pipeline.Mode).Info("generation job succeeded")
	return out, nil
}

// FailPipeline ends the running job as a PipelineFailure.
func (s *Store) FailPipeline(ctx context.Context, id, reason string) (item.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, err
	}
	if cur.Pipeline.State != item.PipelineRunning {
		return cur.Clone(), fmt.Errorf("store: fail %s: pipeline %s: %w", id, cur.Pipeline.State, ErrInvalidState)
	}

	next := cur.Clone()
	s.failLocked(&next, reason)
	out, err := s.commitLocked(ctx, next, events.PipelineFailed)
	if err != nil {
		out = s.settleLocked(next, events.PipelineFailed)
		s.itemLog(out).WithError(err).Error("failed job state not saved")
		return out, err
	}
	s.itemLog(out).WithFields(logrus.Fields{"mode": out.Pipeline.Mode, "reason": reason}).Warn("generation job failed")
	return out, nil
}

func (s *Store) failLocked(w *item.WorkItem, reason string) {
	now := s.now()
	w.Status = item.StatusFailed
	w.FailedReason = reason
	w.Pipeline.State = item.PipelineFailed
	w.Pipeline.FinishedAt = &now
	w.Pipeline.Message = reason
	w.UpdatedAt = now
}

// SubmitFunc hands a validated item to the review store. It runs under the
// store lock, so the item cannot change between validation and submission.
type SubmitFunc func(w item.WorkItem, stage item.ReviewStage) error

// RequestReview validates the item for its next review gate and, when clean,
// submits it and marks it REVIEW_PENDING. Issues are returned as data; a
// submit error leaves the item untouched.
func (s *Store) RequestReview(ctx context.Context, id string, sc scope.Scope, submit SubmitFunc) (item.WorkItem, validate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, validate.Result{}, err
	}
	mode := validate.ModeFor(*cur)
	result := s.validator.ForReview(*cur, sc, mode)
	if !result.OK {
		return cur.Clone(), result, nil
	}

	stage := item.StageScript
	if mode == validate.ModeFinal {
		stage = item.StageFinal
	}
	if submit != nil {
		if err := submit(cur.Clone(), stage); err != nil {
			return cur.Clone(), result, fmt.Errorf("store: submit %s for %s review: %w", id, stage, err)
		}
	}

	next := cur.Clone()
	next.Status = item.StatusReviewPending
	next.ReviewStage = stage
	next.RejectedStage = item.StageNone
	next.RejectedComment = ""
	next.UpdatedAt = s.now()

	out, err := s.commitLocked(ctx, next, events.ReviewRequested)
	if err != nil {
		return item.WorkItem{}, validate.Result{}, err
	}
	s.itemLog(out).WithField("stage", stage).Info("review requested")
	return out, result, nil
}

// ApplyReview runs a reconciliation function against the item under the
// writer lock and commits the result when it reports a change.
func (s *Store) ApplyReview(ctx context.Context, id string, fn func(item.WorkItem) (item.WorkItem, bool)) (item.WorkItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, false, err
	}
	next, changed := fn(cur.Clone())
	if !changed {
		return cur.Clone(), false, nil
	}
	if next.ID != cur.ID {
		return cur.Clone(), false, fmt.Errorf("store: review for %s returned item %s: %w", id, next.ID, ErrInvalidState)
	}
	out, err := s.commitLocked(ctx, next, events.ReviewApplied)
	if err != nil {
		return item.WorkItem{}, false, err
	}
	return out, true, nil
}

// ReopenRejected archives the rejected version and opens the next one.
func (s *Store) ReopenRejected(ctx context.Context, id string, sc scope.Scope) (item.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, err
	}
	if cur.Status != item.StatusRejected {
		return cur.Clone(), fmt.Errorf("store: reopen %s in status %s: %w", id, cur.Status, ErrInvalidState)
	}
	next, err := rework.Reopen(cur.Clone(), sc, s.cat, s.now())
	if err != nil {
		return cur.Clone(), fmt.Errorf("store: reopen %s: %w", id, err)
	}

	out, err := s.commitLocked(ctx, next, events.ItemReopened)
	if err != nil {
		return item.WorkItem{}, err
	}
	s.itemLog(out).WithField("previous_version", cur.Version).Info("rejected item reopened")
	return out, nil
}
