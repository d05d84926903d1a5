package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/models"
)

// ItemRepository persists work items as rows. It implements store.Repository.
type ItemRepository struct {
	db *gorm.DB
}

// NewItemRepository returns a repository on db.
func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// LoadAll returns every item in creation order. Status values from older
// vocabularies are migrated to the canonical enum.
func (r *ItemRepository) LoadAll(ctx context.Context) ([]item.WorkItem, error) {
	var rows []models.WorkItem
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("db: load items: %w", err)
	}
	out := make([]item.WorkItem, 0, len(rows))
	for _, row := range rows {
		w, err := FromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Save inserts or replaces the row of w.
func (r *ItemRepository) Save(ctx context.Context, w item.WorkItem) error {
	row, err := ToRow(w)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("db: save item %s: %w", w.ID, err)
	}
	return nil
}

// Delete removes the row of id.
func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&models.WorkItem{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("db: delete item %s: %w", id, err)
	}
	return nil
}

// ToRow converts an item to its row.
func ToRow(w item.WorkItem) (models.WorkItem, error) {
	history, err := marshalJSON(w.VersionHistory)
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("db: marshal history of %s: %w", w.ID, err)
	}
	targets, err := marshalJSON(w.TargetDeptIDs)
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("db: marshal targets of %s: %w", w.ID, err)
	}
	files, err := marshalJSON(w.SourceFiles)
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("db: marshal source files of %s: %w", w.ID, err)
	}
	pipeline, err := marshalJSON(w.Pipeline)
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("db: marshal pipeline of %s: %w", w.ID, err)
	}
	return models.WorkItem{
		ID:                w.ID,
		Version:           w.Version,
		VersionHistory:    history,
		VersionStartedAt:  w.VersionStartedAt,
		Title:             w.Title,
		CategoryID:        w.CategoryID,
		CategoryLabel:     w.CategoryLabel,
		TemplateID:        w.TemplateID,
		JobTrainingID:     w.JobTrainingID,
		TargetDeptIDs:     targets,
		IsMandatory:       w.IsMandatory,
		SourceFiles:       files,
		Script:            w.Script,
		VideoURL:          w.VideoURL,
		ThumbnailURL:      w.ThumbnailURL,
		Status:            string(w.Status),
		ScriptApprovedAt:  w.ScriptApprovedAt,
		PublishedAt:       w.PublishedAt,
		ReviewStage:       string(w.ReviewStage),
		RejectedStage:     string(w.RejectedStage),
		RejectedComment:   w.RejectedComment,
		FailedReason:      w.FailedReason,
		ScriptDecisionAt:  markTime(w.ScriptDecision),
		ScriptDecisionSeq: w.ScriptDecision.Seq,
		FinalDecisionAt:   markTime(w.FinalDecision),
		FinalDecisionSeq:  w.FinalDecision.Seq,
		Pipeline:          pipeline,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
		CreatedByName:     w.CreatedByName,
	}, nil
}

// FromRow converts a row to an item, migrating legacy status values.
func FromRow(row models.WorkItem) (item.WorkItem, error) {
	w := item.WorkItem{
		ID:               row.ID,
		Version:          max(row.Version, 1),
		VersionStartedAt: row.VersionStartedAt,
		Title:            row.Title,
		CategoryID:       row.CategoryID,
		CategoryLabel:    row.CategoryLabel,
		TemplateID:       row.TemplateID,
		JobTrainingID:    row.JobTrainingID,
		IsMandatory:      row.IsMandatory,
		Script:           row.Script,
		VideoURL:         row.VideoURL,
		ThumbnailURL:     row.ThumbnailURL,
		ScriptApprovedAt: row.ScriptApprovedAt,
		PublishedAt:      row.PublishedAt,
		RejectedComment:  row.RejectedComment,
		FailedReason:     row.FailedReason,
		ScriptDecision:   mark(row.ScriptDecisionAt, row.ScriptDecisionSeq),
		FinalDecision:    mark(row.FinalDecisionAt, row.FinalDecisionSeq),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		CreatedByName:    row.CreatedByName,
		TargetDeptIDs:    []string{},
		SourceFiles:      []item.SourceFile{},
		Pipeline:         item.IdlePipeline(),
	}

	status, encodedStage, ok := item.ParseStatus(row.Status)
	if !ok {
		return item.WorkItem{}, fmt.Errorf("db: item %s has unknown status %q", row.ID, row.Status)
	}
	w.Status = status
	w.ReviewStage, _ = item.ParseStage(row.ReviewStage)
	w.RejectedStage, _ = item.ParseStage(row.RejectedStage)
	switch status {
	case item.StatusReviewPending:
		if w.ReviewStage == item.StageNone {
			w.ReviewStage = encodedStage
		}
	case item.StatusRejected:
		if w.RejectedStage == item.StageNone {
			w.RejectedStage = encodedStage
		}
	}
	if w.VersionStartedAt.IsZero() {
		w.VersionStartedAt = w.CreatedAt
	}

	if err := unmarshalJSON(row.VersionHistory, &w.VersionHistory); err != nil {
		return item.WorkItem{}, fmt.Errorf("db: decode history of %s: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.TargetDeptIDs, &w.TargetDeptIDs); err != nil {
		return item.WorkItem{}, fmt.Errorf("db: decode targets of %s: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.SourceFiles, &w.SourceFiles); err != nil {
		return item.WorkItem{}, fmt.Errorf("db: decode source files of %s: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.Pipeline, &w.Pipeline); err != nil {
		return item.WorkItem{}, fmt.Errorf("db: decode pipeline of %s: %w", row.ID, err)
	}
	if w.TargetDeptIDs == nil {
		w.TargetDeptIDs = []string{}
	}
	if w.SourceFiles == nil {
		w.SourceFiles = []item.SourceFile{}
	}
	if w.Pipeline.State == "" {
		w.Pipeline.State = item.PipelineIdle
	}
	return w, nil
}

func markTime(m item.DecisionMark) *time.Time {
	if m.At.IsZero() {
		return nil
	}
	t := m.At
	return &t
}

func mark(at *time.Time, seq int64) item.DecisionMark {
	m := item.DecisionMark{Seq: seq}
	if at != nil {
		m.At = *at
	}
	return m
}
