package db

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/coursereel/internal/catalog"
	"github.com/zulandar/coursereel/internal/models"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.WorkItem{},
		&models.ReviewRequest{},
		&models.ReviewDecision{},
		&models.Category{},
		&models.Department{},
		&models.Template{},
		&models.JobTraining{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedCatalog upserts the catalog rows from configuration. List order is kept
// in Position so the first entries stay the defaults.
func SeedCatalog(db *gorm.DB, data catalog.Data) error {
	for i, c := range data.CategoryList {
		row := models.Category{ID: c.ID, Name: c.Name, Kind: string(c.Kind), Position: i}
		if err := upsert(db, &row, "name", "kind", "position"); err != nil {
			return fmt.Errorf("db: seed category %q: %w", c.ID, err)
		}
	}
	for i, d := range data.DepartmentList {
		row := models.Department{ID: d.ID, Name: d.Name, Position: i}
		if err := upsert(db, &row, "name", "position"); err != nil {
			return fmt.Errorf("db: seed department %q: %w", d.ID, err)
		}
	}
	for i, t := range data.TemplateList {
		row := models.Template{ID: t.ID, Name: t.Name, Position: i}
		if err := upsert(db, &row, "name", "position"); err != nil {
			return fmt.Errorf("db: seed template %q: %w", t.ID, err)
		}
	}
	for i, j := range data.JobTrainingList {
		row := models.JobTraining{ID: j.ID, Name: j.Name, Position: i}
		if err := upsert(db, &row, "name", "position"); err != nil {
			return fmt.Errorf("db: seed job training %q: %w", j.ID, err)
		}
	}
	return nil
}

func upsert(db *gorm.DB, row interface{}, columns ...string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(row).Error
}

// LoadCatalog reads the catalog rows in position order.
func LoadCatalog(db *gorm.DB) (catalog.Data, error) {
	var (
		cats  []models.Category
		deps  []models.Department
		tmpls []models.Template
		jobs  []models.JobTraining
	)
	if err := db.Order("position ASC, id ASC").Find(&cats).Error; err != nil {
		return catalog.Data{}, fmt.Errorf("db: load categories: %w", err)
	}
	if err := db.Order("position ASC, id ASC").Find(&deps).Error; err != nil {
		return catalog.Data{}, fmt.Errorf("db: load departments: %w", err)
	}
	if err := db.Order("position ASC, id ASC").Find(&tmpls).Error; err != nil {
		return catalog.Data{}, fmt.Errorf("db: load templates: %w", err)
	}
	if err := db.Order("position ASC, id ASC").Find(&jobs).Error; err != nil {
		return catalog.Data{}, fmt.Errorf("db: load job trainings: %w", err)
	}

	var data catalog.Data
	for _, c := range cats {
		kind, ok := catalog.ParseKind(c.Kind)
		if !ok {
			kind = catalog.KindJob
		}
		data.CategoryList = append(data.CategoryList, catalog.Category{ID: c.ID, Name: c.Name, Kind: kind})
	}
	for _, d := range deps {
		data.DepartmentList = append(data.DepartmentList, catalog.Department{ID: d.ID, Name: d.Name})
	}
	for _, t := range tmpls {
		data.TemplateList = append(data.TemplateList, catalog.Template{ID: t.ID, Name: t.Name})
	}
	for _, j := range jobs {
		data.JobTrainingList = append(data.JobTrainingList, catalog.JobTraining{ID: j.ID, Name: j.Name})
	}
	return data, nil
}

// marshalJSON marshals a value to a JSON string, returning empty string for nil.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalJSON decodes s into v; an empty string leaves v untouched.
func unmarshalJSON(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
