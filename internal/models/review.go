package models

import "time"

// ReviewRequest is one submission of a work item version to a review stage.
type ReviewRequest struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ContentID       string `gorm:"size:32;not null;index"`
	Version         int    `gorm:"not null"`
	Stage           string `gorm:"size:16;not null"`
	Title           string `gorm:"size:256"`
	Department      string `gorm:"size:256"`
	CreatorName     string `gorm:"size:128"`
	ContentCategory string `gorm:"size:128"`
	ScriptText      string `gorm:"type:text"`
	VideoURL        string `gorm:"size:512"`
	CreatedAt       time.Time
}

// ReviewDecision is one entry of the review ledger. The autoincrement id is
// the ledger sequence used to order decisions sharing a timestamp.
type ReviewDecision struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	ContentID string    `gorm:"size:32;not null;index"`
	Version   int       `gorm:"not null"`
	Stage     string    `gorm:"size:16;not null"`
	Status    string    `gorm:"size:16;not null"`
	Comment   string    `gorm:"type:text"`
	Reviewer  string    `gorm:"size:128"`
	DecidedAt time.Time `gorm:"not null;index;precision:6"`
}
