package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/coursereel/internal/catalog"
	"github.com/zulandar/coursereel/internal/config"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want []string
	}{
		{
			name: "default local",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, Name: "coursereel", User: "root"},
			want: []string{"root@tcp(127.0.0.1:3306)/coursereel?", "parseTime=true", "charset=utf8mb4"},
		},
		{
			name: "password and custom port",
			cfg:  config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, Name: "reel", User: "reel", Password: "pw"},
			want: []string{"reel:pw@tcp(10.0.0.5:3307)/reel?"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("DSN() = %q, want to contain %q", got, w)
				}
			}
		})
	}
}

func TestConnect_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "coursereel.db")
	db, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(db)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if !db.Migrator().HasTable(&models.WorkItem{}) {
		t.Error("work_items table not created")
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"})
	if err == nil || !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("err = %v, want unsupported driver", err)
	}
}

func TestConnect_MySQLError(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server.
	_, err := Connect(config.DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Port: 1, Name: "nope", User: "root"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect to")
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 7 {
		t.Errorf("AllModels() returned %d models, want 7", got)
	}
}

// --- Items ---

func sampleItem(now time.Time) item.WorkItem {
	approved := now.Add(-time.Hour)
	started := now.Add(-time.Minute)
	return item.WorkItem{
		ID:               "ci-0000000001",
		Version:          2,
		VersionStartedAt: now,
		VersionHistory: []item.VersionSnapshot{{
			Version:         1,
			Status:          item.StatusRejected,
			Reason:          "1차(스크립트) 검토 반려: 용어 수정",
			RecordedAt:      now,
			Title:           "정보보안 기초",
			TargetDeptIDs:   []string{"d1"},
			SourceFiles:     []item.SourceFile{},
			RejectedStage:   item.StageScript,
			RejectedComment: "용어 수정",
		}},
		Title:            "정보보안 기초",
		CategoryID:       "job",
		CategoryLabel:    "직무",
		TemplateID:       "t1",
		JobTrainingID:    "jt1",
		TargetDeptIDs:    []string{"d1", "d2"},
		SourceFiles:      []item.SourceFile{{ID: "f1", Name: "guide.pdf", Size: 2 << 20, MIME: "application/pdf", AddedAt: now}},
		Script:           "스크립트",
		Status:           item.StatusReviewPending,
		ReviewStage:      item.StageFinal,
		ScriptApprovedAt: &approved,
		ScriptDecision:   item.DecisionMark{At: approved, Seq: 3},
		Pipeline:         item.Pipeline{Mode: item.ModeFull, State: item.PipelineSuccess, Stage: item.PipelineStageDone, Progress: 100, StartedAt: &started},
		CreatedAt:        now.Add(-2 * time.Hour),
		UpdatedAt:        now,
		CreatedByName:    "김작가",
	}
}

func TestItemRepository_RoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	w := sampleItem(now)

	if err := repo.Save(ctx, w); err != nil {
		t.Fatalf("Save: %v", err)
	}
	items, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("LoadAll = %d items, want 1", len(items))
	}
	got := items[0]
	if got.ID != w.ID || got.Version != 2 || got.Status != item.StatusReviewPending || got.ReviewStage != item.StageFinal {
		t.Errorf("core fields = %+v", got)
	}
	if len(got.TargetDeptIDs) != 2 || got.TargetDeptIDs[1] != "d2" {
		t.Errorf("TargetDeptIDs = %v", got.TargetDeptIDs)
	}
	if len(got.SourceFiles) != 1 || got.SourceFiles[0].Name != "guide.pdf" {
		t.Errorf("SourceFiles = %+v", got.SourceFiles)
	}
	if len(got.VersionHistory) != 1 || got.VersionHistory[0].RejectedStage != item.StageScript {
		t.Errorf("VersionHistory = %+v", got.VersionHistory)
	}
	if got.ScriptApprovedAt == nil || !got.ScriptApprovedAt.Equal(*w.ScriptApprovedAt) {
		t.Errorf("ScriptApprovedAt = %v", got.ScriptApprovedAt)
	}
	if got.ScriptDecision.Seq != 3 || !got.ScriptDecision.At.Equal(w.ScriptDecision.At) {
		t.Errorf("ScriptDecision = %+v", got.ScriptDecision)
	}
	if !got.FinalDecision.IsZero() {
		t.Errorf("FinalDecision = %+v, want zero", got.FinalDecision)
	}
	if got.Pipeline.Mode != item.ModeFull || got.Pipeline.Progress != 100 {
		t.Errorf("Pipeline = %+v", got.Pipeline)
	}
}

func TestItemRepository_SaveReplaces(t *testing.T) {
	db := testDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	w := sampleItem(time.Now().UTC())

	if err := repo.Save(ctx, w); err != nil {
		t.Fatalf("Save: %v", err)
	}
	w.Title = "정보보안 심화"
	w.Status = item.StatusApproved
	w.ReviewStage = item.StageNone
	if err := repo.Save(ctx, w); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	items, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("LoadAll = %d items, want 1", len(items))
	}
	if items[0].Title != "정보보안 심화" || items[0].Status != item.StatusApproved {
		t.Errorf("item = %+v", items[0])
	}
}

func TestItemRepository_Delete(t *testing.T) {
	db := testDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	w := sampleItem(time.Now().UTC())
	if err := repo.Save(ctx, w); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Delete(ctx, w.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	items, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("LoadAll = %d items after delete, want 0", len(items))
	}
}

func TestItemRepository_LoadOrder(t *testing.T) {
	db := testDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	base := time.Now().UTC()
	for i, id := range []string{"ci-b", "ci-a", "ci-c"} {
		w := item.WorkItem{ID: id, Version: 1, Status: item.StatusDraft, Pipeline: item.IdlePipeline(), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.Save(ctx, w); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	items, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	var ids []string
	for _, w := range items {
		ids = append(ids, w.ID)
	}
	if strings.Join(ids, ",") != "ci-b,ci-a,ci-c" {
		t.Errorf("order = %v, want creation order", ids)
	}
}

// --- Legacy rows ---

func TestFromRow_LegacyStatus(t *testing.T) {
	tests := []struct {
		raw       string
		status    item.Status
		reviewing item.ReviewStage
		rejected  item.ReviewStage
	}{
		{"draft", item.StatusDraft, item.StageNone, item.StageNone},
		{"review", item.StatusReviewPending, item.StageNone, item.StageNone},
		{"published", item.StatusApproved, item.StageNone, item.StageNone},
		{"script-review-pending", item.StatusReviewPending, item.StageScript, item.StageNone},
		{"FINAL_REVIEW_PENDING", item.StatusReviewPending, item.StageFinal, item.StageNone},
		{"SCRIPT_REJECTED", item.StatusRejected, item.StageNone, item.StageScript},
		{"processing", item.StatusGenerating, item.StageNone, item.StageNone},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			w, err := FromRow(models.WorkItem{ID: "ci-x", Status: tt.raw})
			if err != nil {
				t.Fatalf("FromRow: %v", err)
			}
			if w.Status != tt.status || w.ReviewStage != tt.reviewing || w.RejectedStage != tt.rejected {
				t.Errorf("got status=%s review=%q rejected=%q", w.Status, w.ReviewStage, w.RejectedStage)
			}
		})
	}
}

func TestFromRow_Defaults(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w, err := FromRow(models.WorkItem{ID: "ci-x", Status: "DRAFT", CreatedAt: created})
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	if w.Version != 1 {
		t.Errorf("Version = %d, want 1", w.Version)
	}
	if !w.VersionStartedAt.Equal(created) {
		t.Errorf("VersionStartedAt = %v, want creation time", w.VersionStartedAt)
	}
	if w.TargetDeptIDs == nil || w.SourceFiles == nil {
		t.Error("list fields should be empty, not nil")
	}
	if w.Pipeline.State != item.PipelineIdle {
		t.Errorf("Pipeline.State = %q, want IDLE", w.Pipeline.State)
	}
}

func TestFromRow_Errors(t *testing.T) {
	if _, err := FromRow(models.WorkItem{ID: "ci-x", Status: "ARCHIVED"}); err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Errorf("err = %v, want unknown status", err)
	}
	if _, err := FromRow(models.WorkItem{ID: "ci-x", Status: "DRAFT", TargetDeptIDs: "{bad"}); err == nil {
		t.Error("expected decode error for malformed targets")
	}
}

func TestMarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"nil returns empty", nil, ""},
		{"string slice", []string{"d1", "d2"}, `["d1","d2"]`},
		{"empty slice", []string{}, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marshalJSON(tt.input)
			if err != nil {
				t.Fatalf("marshalJSON() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("marshalJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarshalJSON_Error(t *testing.T) {
	// Channels cannot be marshaled to JSON.
	if _, err := marshalJSON(make(chan int)); err == nil {
		t.Fatal("expected error marshaling channel")
	}
}

// --- Catalog ---

func TestSeedCatalog_LoadCatalog(t *testing.T) {
	db := testDB(t)
	data := catalog.Data{
		CategoryList: []catalog.Category{
			{ID: "job", Name: "직무", Kind: catalog.KindJob},
			{ID: "mand", Name: "법정 필수", Kind: catalog.KindMandatory},
		},
		DepartmentList:  []catalog.Department{{ID: "d2", Name: "생산본부"}, {ID: "d1", Name: "영업본부"}},
		TemplateList:    []catalog.Template{{ID: "t1", Name: "기본"}},
		JobTrainingList: []catalog.JobTraining{{ID: "jt1", Name: "신입 영업"}},
	}
	if err := SeedCatalog(db, data); err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}
	// Re-seeding upserts rather than duplicating.
	data.CategoryList[0].Name = "직무 교육"
	if err := SeedCatalog(db, data); err != nil {
		t.Fatalf("SeedCatalog again: %v", err)
	}

	got, err := LoadCatalog(db)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(got.CategoryList) != 2 || got.CategoryList[0].Name != "직무 교육" || got.CategoryList[1].Kind != catalog.KindMandatory {
		t.Errorf("CategoryList = %+v", got.CategoryList)
	}
	if got.DepartmentList[0].ID != "d2" {
		t.Errorf("DepartmentList order = %+v, want seed order", got.DepartmentList)
	}
	if len(got.TemplateList) != 1 || len(got.JobTrainingList) != 1 {
		t.Errorf("templates/trainings = %+v %+v", got.TemplateList, got.JobTrainingList)
	}
}

func TestLoadCatalog_UnknownKindFallsBackToJob(t *testing.T) {
	db := testDB(t)
	if err := db.Create(&models.Category{ID: "x", Name: "기타", Kind: "OTHER"}).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := LoadCatalog(db)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if got.CategoryList[0].Kind != catalog.KindJob {
		t.Errorf("Kind = %q, want JOB", got.CategoryList[0].Kind)
	}
}
