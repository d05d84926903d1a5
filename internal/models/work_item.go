package models

import "time"

// WorkItem is the persisted row of a content work item. List-valued fields
// are stored as JSON text so the schema stays portable across sqlite and
// MySQL.
type WorkItem struct {
	ID               string `gorm:"primaryKey;size:32"`
	Version          int    `gorm:"not null;default:1"`
	VersionHistory   string `gorm:"type:text"`
	VersionStartedAt time.Time

	Title         string `gorm:"size:256"`
	CategoryID    string `gorm:"size:64;index"`
	CategoryLabel string `gorm:"size:128"`
	TemplateID    string `gorm:"size:64"`
	JobTrainingID string `gorm:"size:64"`
	TargetDeptIDs string `gorm:"type:text"`
	IsMandatory   bool   `gorm:"default:false"`

	SourceFiles  string `gorm:"type:text"`
	Script       string `gorm:"type:text"`
	VideoURL     string `gorm:"size:512"`
	ThumbnailURL string `gorm:"size:512"`

	Status            string `gorm:"size:32;default:DRAFT;index"`
	ScriptApprovedAt  *time.Time
	PublishedAt       *time.Time
	ReviewStage       string     `gorm:"size:16"`
	RejectedStage     string     `gorm:"size:16"`
	RejectedComment   string     `gorm:"type:text"`
	FailedReason      string     `gorm:"type:text"`
	ScriptDecisionAt  *time.Time `gorm:"precision:6"`
	ScriptDecisionSeq int64
	FinalDecisionAt   *time.Time `gorm:"precision:6"`
	FinalDecisionSeq  int64

	Pipeline string `gorm:"type:text"`

	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
	CreatedByName string    `gorm:"size:128;index"`
}
