// Package item defines the content work item, its lifecycle statuses, and the
// predicates that decide what may change at each point of the lifecycle.
package item

import (
	"slices"
	"time"
)

// PipelineMode selects which assets a generation job produces.
type PipelineMode string

const (
	ModeScriptOnly PipelineMode = "SCRIPT_ONLY"
	ModeVideoOnly  PipelineMode = "VIDEO_ONLY"
	ModeFull       PipelineMode = "FULL"
)

// ParseMode converts a raw mode string into a PipelineMode.
func ParseMode(value string) (PipelineMode, bool) {
	switch PipelineMode(value) {
	case ModeScriptOnly, ModeVideoOnly, ModeFull:
		return PipelineMode(value), true
	}
	return "", false
}

// PipelineState is the execution state of the most recent generation job.
type PipelineState string

const (
	PipelineIdle    PipelineState = "IDLE"
	PipelineRunning PipelineState = "RUNNING"
	PipelineSuccess PipelineState = "SUCCESS"
	PipelineFailed  PipelineState = "FAILED"
)

// Pipeline stage labels reported while a job runs.
const (
	PipelineStageUpload    = "UPLOAD"
	PipelineStageScript    = "SCRIPT"
	PipelineStageVideo     = "VIDEO"
	PipelineStageThumbnail = "THUMBNAIL"
	PipelineStageDone      = "DONE"
)

// Pipeline captures the execution metadata of the current or last job.
type Pipeline struct {
	Mode       PipelineMode  `json:"mode,omitempty"`
	State      PipelineState `json:"state"`
	Stage      string        `json:"stage,omitempty"`
	Progress   int           `json:"progress"`
	StartedAt  *time.Time    `json:"startedAt,omitempty"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// IdlePipeline returns a pipeline reset to its initial state.
func IdlePipeline() Pipeline {
	return Pipeline{State: PipelineIdle}
}

// SourceFile is the metadata of an uploaded source document. The bytes live in
// file transport; only what transport reported is recorded here.
type SourceFile struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	MIME    string    `json:"mime"`
	AddedAt time.Time `json:"addedAt"`
}

// DecisionMark identifies the last review decision applied for a stage.
// Ordering is by timestamp, then by ledger sequence.
type DecisionMark struct {
	At  time.Time `json:"at"`
	Seq int64     `json:"seq"`
}

// IsZero reports whether no decision has been applied.
func (m DecisionMark) IsZero() bool {
	return m.At.IsZero() && m.Seq == 0
}

// Before reports whether m sorts strictly before o.
func (m DecisionMark) Before(o DecisionMark) bool {
	if !m.At.Equal(o.At) {
		return m.At.Before(o.At)
	}
	return m.Seq < o.Seq
}

// VersionSnapshot is an immutable archive of one version of a work item.
type VersionSnapshot struct {
	Version          int          `json:"version"`
	Status           Status       `json:"status"`
	Reason           string       `json:"reason"`
	RecordedAt       time.Time    `json:"recordedAt"`
	Title            string       `json:"title"`
	CategoryID       string       `json:"categoryId"`
	TemplateID       string       `json:"templateId"`
	JobTrainingID    string       `json:"jobTrainingId,omitempty"`
	TargetDeptIDs    []string     `json:"targetDeptIds"`
	IsMandatory      bool         `json:"isMandatory"`
	SourceFiles      []SourceFile `json:"sourceFiles"`
	Script           string       `json:"script"`
	VideoURL         string       `json:"videoUrl,omitempty"`
	ThumbnailURL     string       `json:"thumbnailUrl,omitempty"`
	ScriptApprovedAt *time.Time   `json:"scriptApprovedAt,omitempty"`
	RejectedStage    ReviewStage  `json:"rejectedStage,omitempty"`
	RejectedComment  string       `json:"rejectedComment,omitempty"`
}

// WorkItem is the unit of production.
type WorkItem struct {
	ID               string            `json:"id"`
	Version          int               `json:"version"`
	VersionHistory   []VersionSnapshot `json:"versionHistory"`
	VersionStartedAt time.Time         `json:"versionStartedAt"`

	Title         string   `json:"title"`
	CategoryID    string   `json:"categoryId"`
	CategoryLabel string   `json:"categoryLabel"`
	TemplateID    string   `json:"templateId"`
	JobTrainingID string   `json:"jobTrainingId,omitempty"`
	TargetDeptIDs []string `json:"targetDeptIds"`
	IsMandatory   bool     `json:"isMandatory"`

	SourceFiles  []SourceFile `json:"sourceFiles"`
	Script       string       `json:"script"`
	VideoURL     string       `json:"videoUrl,omitempty"`
	ThumbnailURL string       `json:"thumbnailUrl,omitempty"`

	Status           Status       `json:"status"`
	ScriptApprovedAt *time.Time   `json:"scriptApprovedAt,omitempty"`
	PublishedAt      *time.Time   `json:"publishedAt,omitempty"`
	ReviewStage      ReviewStage  `json:"reviewStage,omitempty"`
	RejectedStage    ReviewStage  `json:"rejectedStage,omitempty"`
	RejectedComment  string       `json:"rejectedComment,omitempty"`
	FailedReason     string       `json:"failedReason,omitempty"`
	ScriptDecision   DecisionMark `json:"scriptDecision"`
	FinalDecision    DecisionMark `json:"finalDecision"`

	Pipeline Pipeline `json:"pipeline"`

	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	CreatedByName string    `json:"createdByName"`
}

// Clone returns a deep copy so callers never share slices or timestamps with
// the store's copy.
func (w WorkItem) Clone() WorkItem {
	out := w
	out.TargetDeptIDs = cloneStrings(w.TargetDeptIDs)
	out.SourceFiles = slices.Clone(w.SourceFiles)
	out.ScriptApprovedAt = cloneTime(w.ScriptApprovedAt)
	out.PublishedAt = cloneTime(w.PublishedAt)
	out.Pipeline.StartedAt = cloneTime(w.Pipeline.StartedAt)
	out.Pipeline.FinishedAt = cloneTime(w.Pipeline.FinishedAt)
	if w.VersionHistory != nil {
		out.VersionHistory = make([]VersionSnapshot, len(w.VersionHistory))
		for i, s := range w.VersionHistory {
			out.VersionHistory[i] = s.clone()
		}
	}
	return out
}

func (s VersionSnapshot) clone() VersionSnapshot {
	out := s
	out.TargetDeptIDs = cloneStrings(s.TargetDeptIDs)
	out.SourceFiles = slices.Clone(s.SourceFiles)
	out.ScriptApprovedAt = cloneTime(s.ScriptApprovedAt)
	return out
}

// PrimarySource returns the first source file, if any.
func (w WorkItem) PrimarySource() (SourceFile, bool) {
	if len(w.SourceFiles) == 0 {
		return SourceFile{}, false
	}
	return w.SourceFiles[0], true
}

// HasGeneratedOutput reports whether the item holds output that a metadata
// change would invalidate.
func (w WorkItem) HasGeneratedOutput() bool {
	return w.VideoURL != "" || w.Pipeline.State == PipelineSuccess
}

// ClearGenerated drops every generated asset and resets the pipeline.
func (w *WorkItem) ClearGenerated() {
	w.Script = ""
	w.VideoURL = ""
	w.ThumbnailURL = ""
	w.Pipeline = IdlePipeline()
}

// IsLocked reports whether authoring edits are blocked by status or a running
// job. It does not consider stage-1 approval; see IsContentLocked.
func (w WorkItem) IsLocked() bool {
	return !IsEditableStatus(w.Status) || w.Pipeline.State == PipelineRunning
}

// IsContentLocked reports whether metadata, source files, and script are
// frozen. Once stage 1 is approved only video regeneration and stage-2
// submission remain available until a rejection reopens the item.
func (w WorkItem) IsContentLocked() bool {
	return w.IsLocked() || w.ScriptApprovedAt != nil
}

// Snapshot captures the current version for the version history.
func (w WorkItem) Snapshot(reason string, at time.Time) VersionSnapshot {
	return VersionSnapshot{
		Version:          w.Version,
		Status:           w.Status,
		Reason:           reason,
		RecordedAt:       at,
		Title:            w.Title,
		CategoryID:       w.CategoryID,
		TemplateID:       w.TemplateID,
		JobTrainingID:    w.JobTrainingID,
		TargetDeptIDs:    cloneStrings(w.TargetDeptIDs),
		IsMandatory:      w.IsMandatory,
		SourceFiles:      slices.Clone(w.SourceFiles),
		Script:           w.Script,
		VideoURL:         w.VideoURL,
		ThumbnailURL:     w.ThumbnailURL,
		ScriptApprovedAt: cloneTime(w.ScriptApprovedAt),
		RejectedStage:    w.RejectedStage,
		RejectedComment:  w.RejectedComment,
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
