package item

import "strings"

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusGenerating    Status = "GENERATING"
	StatusReviewPending Status = "REVIEW_PENDING"
	StatusRejected      Status = "REJECTED"
	StatusApproved      Status = "APPROVED"
	StatusFailed        Status = "FAILED"
)

var allStatuses = []Status{
	StatusDraft,
	StatusGenerating,
	StatusReviewPending,
	StatusRejected,
	StatusApproved,
	StatusFailed,
}

// AllStatuses returns the ordered list of canonical statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ReviewStage identifies one of the two approval gates.
type ReviewStage string

const (
	StageNone   ReviewStage = ""
	StageScript ReviewStage = "SCRIPT"
	StageFinal  ReviewStage = "FINAL"
)

// ParseStage converts a raw stage string into a ReviewStage.
func ParseStage(value string) (ReviewStage, bool) {
	switch ReviewStage(strings.ToUpper(strings.TrimSpace(value))) {
	case StageScript:
		return StageScript, true
	case StageFinal:
		return StageFinal, true
	}
	return StageNone, false
}

// ValidTransitions maps each status to the statuses it may move to. Review
// decisions may also re-apply the current status, which is not a transition.
var ValidTransitions = map[Status][]Status{
	StatusDraft:         {StatusGenerating, StatusReviewPending},
	StatusGenerating:    {StatusDraft, StatusFailed},
	StatusReviewPending: {StatusDraft, StatusApproved, StatusRejected, StatusFailed},
	StatusRejected:      {StatusDraft},
	StatusFailed:        {StatusGenerating},
}

// CanTransition reports whether from → to is an allowed lifecycle move.
func CanTransition(from, to Status) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// legacyStatus describes how an older status value maps onto the canonical
// enum. Two vocabularies exist in stored data: the original five-value set
// (draft/generating/review/rejected/published) and the document-centric set
// that encoded the review stage into the status name.
type legacyStatus struct {
	status Status
	stage  ReviewStage
}

var statusMigrations = map[string]legacyStatus{
	// canonical
	"DRAFT":          {StatusDraft, StageNone},
	"GENERATING":     {StatusGenerating, StageNone},
	"REVIEW_PENDING": {StatusReviewPending, StageNone},
	"REJECTED":       {StatusRejected, StageNone},
	"APPROVED":       {StatusApproved, StageNone},
	"FAILED":         {StatusFailed, StageNone},

	// five-value set
	"REVIEW":    {StatusReviewPending, StageNone},
	"PUBLISHED": {StatusApproved, StageNone},
	"ERROR":     {StatusFailed, StageNone},

	// document-centric set
	"SCRIPT_REVIEW_PENDING": {StatusReviewPending, StageScript},
	"FINAL_REVIEW_PENDING":  {StatusReviewPending, StageFinal},
	"SCRIPT_REJECTED":       {StatusRejected, StageScript},
	"FINAL_REJECTED":        {StatusRejected, StageFinal},
	"SCRIPT_APPROVED":       {StatusDraft, StageNone},
	"IN_PROGRESS":           {StatusGenerating, StageNone},
	"PROCESSING":            {StatusGenerating, StageNone},
}

// ParseStatus normalizes a raw status string from either vocabulary. The
// returned stage is non-empty only when the raw value encoded one.
func ParseStatus(value string) (Status, ReviewStage, bool) {
	key := strings.ToUpper(strings.TrimSpace(value))
	key = strings.ReplaceAll(key, "-", "_")
	m, ok := statusMigrations[key]
	if !ok {
		return "", StageNone, false
	}
	return m.status, m.stage, true
}

// IsEditableStatus reports whether the status alone permits authoring edits.
func IsEditableStatus(s Status) bool {
	switch s {
	case StatusReviewPending, StatusApproved, StatusRejected, StatusGenerating:
		return false
	}
	return true
}
