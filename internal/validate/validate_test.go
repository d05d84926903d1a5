package validate

import (
	"testing"
	"time"

	"github.com/zulandar/coursereel/internal/catalog"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/scope"
)

func testValidator() Validator {
	cat := catalog.NewLookup(catalog.Data{
		CategoryList: []catalog.Category{
			{ID: "mand", Name: "법정 필수", Kind: catalog.KindMandatory},
			{ID: "job", Name: "직무", Kind: catalog.KindJob},
		},
		DepartmentList: []catalog.Department{
			{ID: "d1", Name: "영업본부"},
			{ID: "d2", Name: "개발본부"},
		},
		TemplateList:    []catalog.Template{{ID: "t1"}},
		JobTrainingList: []catalog.JobTraining{{ID: "jt1"}},
	})
	return New(cat, DefaultRules())
}

// readyDraft returns an item that passes the SCRIPT gate for a global creator.
func readyDraft() item.WorkItem {
	return item.WorkItem{
		ID:            "ci-1",
		Title:         "영업 기초 교육",
		CategoryID:    "job",
		TemplateID:    "t1",
		JobTrainingID: "jt1",
		TargetDeptIDs: []string{"d1"},
		SourceFiles:   []item.SourceFile{{ID: "f1", Name: "deck.pptx", Size: 1024}},
		Script:        "안녕하세요.",
		Status:        item.StatusDraft,
		Pipeline:      item.Pipeline{State: item.PipelineSuccess, Progress: 100},
	}
}

func codes(r Result) []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.Code
	}
	return out
}

// --- SourceFile ---

func TestSourceFile(t *testing.T) {
	v := testValidator()
	tests := []struct {
		name  string
		file  item.SourceFile
		codes []string
	}{
		{"ok", item.SourceFile{Name: "a.PDF", Size: 10}, nil},
		{"hwp ok", item.SourceFile{Name: "보고서.hwp", Size: 10}, nil},
		{"bad extension", item.SourceFile{Name: "a.exe", Size: 10}, []string{CodeSourceExtension}},
		{"no extension", item.SourceFile{Name: "README", Size: 10}, []string{CodeSourceExtension}},
		{"too large", item.SourceFile{Name: "a.pdf", Size: DefaultMaxSourceBytes + 1}, []string{CodeSourceSize}},
		{"at limit", item.SourceFile{Name: "a.pdf", Size: DefaultMaxSourceBytes}, nil},
		{"empty", item.SourceFile{Name: "a.pdf", Size: 0}, []string{CodeSourceSize}},
		{"both", item.SourceFile{Name: "a.zip", Size: -1}, []string{CodeSourceExtension, CodeSourceSize}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := v.SourceFile(tt.file)
			if len(issues) != len(tt.codes) {
				t.Fatalf("issues = %+v, want codes %v", issues, tt.codes)
			}
			for i, c := range tt.codes {
				if issues[i].Code != c {
					t.Errorf("issue[%d] = %q, want %q", i, issues[i].Code, c)
				}
			}
		})
	}
}

func TestRules_Custom(t *testing.T) {
	v := testValidator()
	v.Rules = Rules{MaxSourceBytes: 100, AllowedExtensions: []string{"txt"}}
	if len(v.SourceFile(item.SourceFile{Name: "a.txt", Size: 100})) != 0 {
		t.Error("a.txt of 100 bytes should pass custom rules")
	}
	if len(v.SourceFile(item.SourceFile{Name: "a.pdf", Size: 10})) != 1 {
		t.Error("pdf should be rejected by custom rules")
	}
}

// --- ForReview ---

func TestForReview_ScriptReady(t *testing.T) {
	r := testValidator().ForReview(readyDraft(), scope.Global("kim"), ModeScript)
	if !r.OK {
		t.Fatalf("expected OK, got %v", codes(r))
	}
	if r.Issues == nil {
		t.Error("Issues should be an empty slice, not nil")
	}
}

func TestForReview_CollectsEveryIssue(t *testing.T) {
	w := item.WorkItem{Title: "ab", Status: item.StatusReviewPending, Pipeline: item.Pipeline{State: item.PipelineRunning}}
	r := testValidator().ForReview(w, scope.Global("kim"), ModeFinal)
	if r.OK {
		t.Fatal("expected failure")
	}
	for _, c := range []string{
		CodeTitle, CodeCategory, CodeTemplate, CodeSourceMissing, CodeScript,
		CodePipelineRunning, CodeStatus, CodeStageOneApproval, CodeVideo,
	} {
		if !r.Has(c) {
			t.Errorf("missing issue %q in %v", c, codes(r))
		}
	}
	if len(r.Messages()) != len(r.Issues) {
		t.Error("Messages length mismatch")
	}
}

func TestForReview_Details(t *testing.T) {
	approved := time.Now()
	tests := []struct {
		name   string
		mutate func(*item.WorkItem)
		mode   Mode
		want   string
	}{
		{"title counted in runes", func(w *item.WorkItem) { w.Title = "교육" }, ModeScript, CodeTitle},
		{"unknown category", func(w *item.WorkItem) { w.CategoryID = "gone" }, ModeScript, CodeCategory},
		{"job category needs training", func(w *item.WorkItem) { w.JobTrainingID = "" }, ModeScript, CodeJobTraining},
		{"two sources", func(w *item.WorkItem) {
			w.SourceFiles = append(w.SourceFiles, item.SourceFile{Name: "b.pdf", Size: 1})
		}, ModeScript, CodeSourceMultiple},
		{"blank script", func(w *item.WorkItem) { w.Script = "  \n" }, ModeScript, CodeScript},
		{"failed pipeline", func(w *item.WorkItem) { w.Pipeline.State = item.PipelineFailed }, ModeScript, CodePipelineFailed},
		{"final without video", func(w *item.WorkItem) { w.ScriptApprovedAt = &approved }, ModeFinal, CodeVideo},
		{"final without approval", func(w *item.WorkItem) { w.VideoURL = "v.mp4" }, ModeFinal, CodeStageOneApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := readyDraft()
			tt.mutate(&w)
			r := testValidator().ForReview(w, scope.Global("kim"), tt.mode)
			if r.OK || !r.Has(tt.want) {
				t.Errorf("want issue %q, got %v", tt.want, codes(r))
			}
		})
	}
}

func TestForReview_FinalReady(t *testing.T) {
	approved := time.Now()
	w := readyDraft()
	w.ScriptApprovedAt = &approved
	w.VideoURL = "https://media/v.mp4"
	if r := testValidator().ForReview(w, scope.Global("kim"), ModeFinal); !r.OK {
		t.Errorf("expected OK, got %v", codes(r))
	}
	if ModeFor(w) != ModeFinal {
		t.Error("ModeFor should pick FINAL after stage-1 approval")
	}
	if ModeFor(readyDraft()) != ModeScript {
		t.Error("ModeFor should pick SCRIPT before approval")
	}
}

// --- ForPipeline ---

func TestForPipeline(t *testing.T) {
	approved := time.Now()
	tests := []struct {
		name   string
		mutate func(*item.WorkItem)
		mode   item.PipelineMode
		want   string
	}{
		{"full ok", func(w *item.WorkItem) { w.Script = "" }, item.ModeFull, ""},
		{"script only ok", func(w *item.WorkItem) {}, item.ModeScriptOnly, ""},
		{"video only needs approval", func(w *item.WorkItem) {}, item.ModeVideoOnly, CodeStageOneApproval},
		{"video only needs script", func(w *item.WorkItem) {
			w.ScriptApprovedAt = &approved
			w.Script = ""
		}, item.ModeVideoOnly, CodeScript},
		{"video only ok", func(w *item.WorkItem) { w.ScriptApprovedAt = &approved }, item.ModeVideoOnly, ""},
		{"full after approval", func(w *item.WorkItem) { w.ScriptApprovedAt = &approved }, item.ModeFull, CodeStageOneApproval},
		{"missing source", func(w *item.WorkItem) { w.SourceFiles = nil }, item.ModeFull, CodeSourceMissing},
		{"missing template", func(w *item.WorkItem) { w.TemplateID = "" }, item.ModeScriptOnly, CodeTemplate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := readyDraft()
			w.Title = ""
			tt.mutate(&w)
			r := testValidator().ForPipeline(w, scope.Global("kim"), tt.mode)
			if tt.want == "" {
				if !r.OK {
					t.Errorf("expected OK, got %v", codes(r))
				}
				return
			}
			if !r.Has(tt.want) {
				t.Errorf("want issue %q, got %v", tt.want, codes(r))
			}
		})
	}
}

// --- ScopeIssues ---

func TestScopeIssues(t *testing.T) {
	v := testValidator()
	tests := []struct {
		name      string
		category  string
		mandatory bool
		targets   []string
		scope     scope.Scope
		want      []string
	}{
		{"global job ok", "job", false, []string{"d1"}, scope.Global("kim"), nil},
		{"global company-wide ok", "job", true, nil, scope.Global("kim"), nil},
		{"mandatory unflagged", "mand", false, nil, scope.Global("kim"), []string{CodeMandatoryFlag}},
		{"mandatory with targets", "mand", true, []string{"d1"}, scope.Global("kim"), []string{CodeMandatoryTargets}},
		{"dept ok", "job", false, []string{"d1"}, scope.Dept("lee", "d1"), nil},
		{"dept mandatory category", "mand", true, nil, scope.Dept("lee", "d1"), []string{CodeDeptMandatoryCat}},
		{"dept mandatory flag", "job", true, []string{"d1"}, scope.Dept("lee", "d1"), []string{CodeDeptMandatory}},
		{"dept no targets", "job", false, nil, scope.Dept("lee", "d1"), []string{CodeDeptRequired}},
		{"dept outside scope", "job", false, []string{"d1", "d2"}, scope.Dept("lee", "d1"), []string{CodeDeptNotAllowed}},
		{"dept marker only", "job", false, []string{"ALL"}, scope.Dept("lee", "d1"), []string{CodeDeptNotAllowed, CodeDeptRequired}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := v.ScopeIssues(tt.category, tt.mandatory, tt.targets, tt.scope)
			if len(issues) != len(tt.want) {
				t.Fatalf("issues = %+v, want %v", issues, tt.want)
			}
			for i, c := range tt.want {
				if issues[i].Code != c {
					t.Errorf("issue[%d] = %q, want %q", i, issues[i].Code, c)
				}
				if !issues[i].Scope {
					t.Errorf("issue[%d] should be marked as a scope violation", i)
				}
			}
		})
	}
}

func TestScopeIssues_NamesDepartment(t *testing.T) {
	issues := testValidator().ScopeIssues("job", false, []string{"d2"}, scope.Dept("lee", "d1"))
	if len(issues) != 1 || issues[0].Message != "허용되지 않은 부서: 개발본부" {
		t.Errorf("issues = %+v", issues)
	}
}

func TestMerge(t *testing.T) {
	a := Result{Issues: []Issue{{Code: "a"}}}
	b := Result{Issues: []Issue{{Code: "b", Scope: true}}}
	m := Merge(a, b)
	if m.OK || len(m.Issues) != 2 || m.Issues[0].Code != "a" || m.Issues[1].Code != "b" {
		t.Errorf("Merge = %+v", m)
	}
	if got := m.ScopeViolations(); len(got) != 1 || got[0].Code != "b" {
		t.Errorf("ScopeViolations = %+v", got)
	}
	empty := Merge()
	if !empty.OK || empty.Issues == nil {
		t.Errorf("Merge() = %+v, want OK with empty issues", empty)
	}
}
