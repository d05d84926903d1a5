package models

// Category is a selectable content category.
type Category struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:128;not null"`
	Kind     string `gorm:"size:16;not null"`
	Position int    `gorm:"default:0"`
}

// Department is a target audience department.
type Department struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:128;not null"`
	Position int    `gorm:"default:0"`
}

// Template is a video template.
type Template struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:128;not null"`
	Position int    `gorm:"default:0"`
}

// JobTraining is a job-training track that job-kind items belong to.
type JobTraining struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:128;not null"`
	Position int    `gorm:"default:0"`
}
