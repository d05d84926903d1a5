// Package rework reopens rejected work items as a new version.
package rework

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/coursereel/internal/catalog"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/scope"
)

// ErrNotRejected is returned when the item is not in REJECTED status.
var ErrNotRejected = errors.New("rework: item is not rejected")

// Reason builds the version-history label for a rejected version.
func Reason(w item.WorkItem) string {
	var b strings.Builder
	switch w.RejectedStage {
	case item.StageScript:
		b.WriteString("1차(스크립트) 검토 반려")
	case item.StageFinal:
		b.WriteString("2차(최종) 검토 반려")
	default:
		b.WriteString("검토 반려")
	}
	if c := strings.TrimSpace(w.RejectedComment); c != "" {
		fmt.Fprintf(&b, ": %s", c)
	}
	return b.String()
}

// Reopen archives the current version of a rejected item and returns the next
// version as an editable draft. Script and source files carry over; video,
// thumbnail, stage-1 approval, and applied review marks do not. Audience fields
// are normalized again in case the catalog changed since the last edit.
func Reopen(w item.WorkItem, sc scope.Scope, cat catalog.Lookup, now time.Time) (item.WorkItem, error) {
	if w.Status != item.StatusRejected {
		return w, fmt.Errorf("%w (status %s)", ErrNotRejected, w.Status)
	}

	next := w.Clone()
	next.VersionHistory = append(next.VersionHistory, w.Snapshot(Reason(w), now))
	next.Version = w.Version + 1
	next.VersionStartedAt = now

	next.Status = item.StatusDraft
	next.ReviewStage = item.StageNone
	next.RejectedStage = item.StageNone
	next.RejectedComment = ""
	next.FailedReason = ""
	next.ScriptApprovedAt = nil
	next.PublishedAt = nil
	next.ScriptDecision = item.DecisionMark{}
	next.FinalDecision = item.DecisionMark{}

	next.VideoURL = ""
	next.ThumbnailURL = ""
	next.Pipeline = item.IdlePipeline()

	next.CategoryID = cat.ResolveCategory(next.CategoryID)
	next.CategoryLabel = cat.CategoryLabel(next.CategoryID)
	t := scope.Normalize(scope.Targets{
		CategoryID:    next.CategoryID,
		IsMandatory:   next.IsMandatory,
		TargetDeptIDs: next.TargetDeptIDs,
	}, sc, cat)
	next.IsMandatory = t.IsMandatory
	next.TargetDeptIDs = t.TargetDeptIDs

	next.UpdatedAt = now
	return next, nil
}
