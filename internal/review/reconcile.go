package review

import (
	"time"

	"github.com/zulandar/coursereel/internal/item"
)

// Reconcile applies the authoritative decisions to w and reports whether
// anything changed. It is idempotent: a decision at or before the stage's
// last applied mark is ignored, so a second pass over the same set is a
// no-op.
//
// A FINAL decision takes precedence; SCRIPT decisions are only evaluated when
// no FINAL decision exists for the current version. Items with a running
// generation job are left alone until the job finishes.
func Reconcile(w item.WorkItem, decisions []Decision) (item.WorkItem, bool) {
	next, _, changed := reconcile(w, decisions)
	return next, changed
}

func reconcile(w item.WorkItem, decisions []Decision) (item.WorkItem, Decision, bool) {
	if w.Pipeline.State == item.PipelineRunning {
		return w, Decision{}, false
	}

	script, hasScript := latest(w, decisions, item.StageScript)
	final, hasFinal := latest(w, decisions, item.StageFinal)

	switch {
	case hasFinal:
		if !w.FinalDecision.Before(final.Mark()) {
			return w, Decision{}, false
		}
		next := applyFinal(w.Clone(), final)
		return next, final, true
	case hasScript:
		if !w.ScriptDecision.Before(script.Mark()) {
			return w, Decision{}, false
		}
		next := applyScript(w.Clone(), script)
		return next, script, true
	}
	return w, Decision{}, false
}

// latest selects the most recent decision of a stage that belongs to the
// item's current version. Equal marks resolve to the one observed last.
func latest(w item.WorkItem, decisions []Decision, stage item.ReviewStage) (Decision, bool) {
	var best Decision
	found := false
	for _, d := range decisions {
		if d.ContentID != w.ID || d.Stage != stage {
			continue
		}
		if d.Version != 0 && d.Version != w.Version {
			continue
		}
		if d.Version == 0 && d.At.Before(w.VersionStartedAt) {
			continue
		}
		switch d.Status {
		case StatusPending, StatusApproved, StatusRejected:
		default:
			continue
		}
		if !found || !d.Mark().Before(best.Mark()) {
			best = d
			found = true
		}
	}
	return best, found
}

func applyFinal(w item.WorkItem, d Decision) item.WorkItem {
	before := w.Clone()
	w.FinalDecision = d.Mark()
	switch d.Status {
	case StatusApproved:
		w.Status = item.StatusApproved
		w.ReviewStage = item.StageNone
		w.RejectedStage = item.StageNone
		w.RejectedComment = ""
		if w.ScriptApprovedAt == nil {
			w.ScriptApprovedAt = timePtr(d.At)
		}
		if w.PublishedAt == nil {
			w.PublishedAt = timePtr(d.At)
		}
	case StatusRejected:
		w.Status = item.StatusRejected
		w.ReviewStage = item.StageNone
		w.RejectedStage = item.StageFinal
		w.RejectedComment = d.Comment
	case StatusPending:
		w.Status = item.StatusReviewPending
		w.ReviewStage = item.StageFinal
		w.RejectedStage = item.StageNone
		w.RejectedComment = ""
	}
	touch(before, &w, d.At)
	return w
}

func applyScript(w item.WorkItem, d Decision) item.WorkItem {
	before := w.Clone()
	w.ScriptDecision = d.Mark()
	switch d.Status {
	case StatusApproved:
		w.Status = item.StatusDraft
		w.ReviewStage = item.StageNone
		w.RejectedStage = item.StageNone
		w.RejectedComment = ""
		if w.ScriptApprovedAt == nil {
			w.ScriptApprovedAt = timePtr(d.At)
		}
	case StatusRejected:
		w.Status = item.StatusRejected
		w.ReviewStage = item.StageNone
		w.RejectedStage = item.StageScript
		w.RejectedComment = d.Comment
		w.ScriptApprovedAt = nil
	case StatusPending:
		w.Status = item.StatusReviewPending
		w.ReviewStage = item.StageScript
		w.RejectedStage = item.StageNone
		w.RejectedComment = ""
	}
	touch(before, &w, d.At)
	return w
}

// touch advances UpdatedAt to the decision time when a status field changed.
// The clock is never consulted, so a late reconcile cannot reorder items.
func touch(before item.WorkItem, w *item.WorkItem, at time.Time) {
	if !statusChanged(before, *w) {
		return
	}
	if at.After(w.UpdatedAt) {
		w.UpdatedAt = at
	}
}

func statusChanged(a, b item.WorkItem) bool {
	return a.Status != b.Status ||
		a.ReviewStage != b.ReviewStage ||
		a.RejectedStage != b.RejectedStage ||
		a.RejectedComment != b.RejectedComment ||
		!sameTime(a.ScriptApprovedAt, b.ScriptApprovedAt) ||
		!sameTime(a.PublishedAt, b.PublishedAt)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
