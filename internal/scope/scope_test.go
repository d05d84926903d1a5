package scope

import (
	"slices"
	"testing"

	"github.com/zulandar/coursereel/internal/catalog"
)

func testCatalog() catalog.Lookup {
	return catalog.NewLookup(catalog.Data{
		CategoryList: []catalog.Category{
			{ID: "mand", Name: "법정 필수", Kind: catalog.KindMandatory},
			{ID: "job", Name: "직무", Kind: catalog.KindJob},
		},
		DepartmentList: []catalog.Department{
			{ID: "d1", Name: "영업본부"},
			{ID: "d2", Name: "개발본부"},
			{ID: "d3", Name: "인사팀"},
		},
		TemplateList: []catalog.Template{{ID: "t1"}},
	})
}

func TestParseCreatorType(t *testing.T) {
	if ct, ok := ParseCreatorType("dept_creator"); !ok || ct != DeptCreator {
		t.Errorf("ParseCreatorType(dept_creator) = %q, %v", ct, ok)
	}
	if ct, ok := ParseCreatorType("GLOBAL_CREATOR"); !ok || ct != GlobalCreator {
		t.Errorf("ParseCreatorType(GLOBAL_CREATOR) = %q, %v", ct, ok)
	}
	if _, ok := ParseCreatorType("ADMIN"); ok {
		t.Error("ParseCreatorType(ADMIN) should fail")
	}
}

func TestScope_Allows(t *testing.T) {
	g := Global("kim")
	if !g.Allows("anything") {
		t.Error("global scope should allow every department")
	}
	d := Dept("lee", "d1")
	if !d.Allows("d1") || d.Allows("d2") {
		t.Error("dept scope allows mismatch")
	}
	if !d.IsDept() || g.IsDept() {
		t.Error("IsDept mismatch")
	}
}

func TestIsCompanyWideMarker(t *testing.T) {
	for _, m := range []string{"ALL", "all", " * ", "COMPANY", "__all__"} {
		if !IsCompanyWideMarker(m) {
			t.Errorf("IsCompanyWideMarker(%q) = false", m)
		}
	}
	if IsCompanyWideMarker("d1") {
		t.Error("d1 is not a marker")
	}
}

func TestNormalize(t *testing.T) {
	cat := testCatalog()
	tests := []struct {
		name          string
		in            Targets
		scope         Scope
		wantMandatory bool
		wantDepts     []string
	}{
		{
			name:          "mandatory category forces flag and company-wide",
			in:            Targets{CategoryID: "mand", TargetDeptIDs: []string{"d1"}},
			scope:         Global("kim"),
			wantMandatory: true,
			wantDepts:     []string{},
		},
		{
			name:          "mandatory category wins over dept scope",
			in:            Targets{CategoryID: "mand"},
			scope:         Dept("lee", "d1"),
			wantMandatory: true,
			wantDepts:     []string{},
		},
		{
			name:          "global keeps known departments in order without duplicates",
			in:            Targets{CategoryID: "job", TargetDeptIDs: []string{"d2", "d1", "d2", "unknown", " "}},
			scope:         Global("kim"),
			wantMandatory: false,
			wantDepts:     []string{"d2", "d1"},
		},
		{
			name:          "global marker means company-wide",
			in:            Targets{CategoryID: "job", TargetDeptIDs: []string{"d1", "ALL"}},
			scope:         Global("kim"),
			wantMandatory: false,
			wantDepts:     []string{},
		},
		{
			name:          "global may set mandatory on job category",
			in:            Targets{CategoryID: "job", IsMandatory: true},
			scope:         Global("kim"),
			wantMandatory: true,
			wantDepts:     []string{},
		},
		{
			name:          "dept drops departments outside scope and markers",
			in:            Targets{CategoryID: "job", TargetDeptIDs: []string{"d1", "d2", "*"}},
			scope:         Dept("lee", "d1", "d3"),
			wantMandatory: false,
			wantDepts:     []string{"d1"},
		},
		{
			name:          "dept cannot set mandatory",
			in:            Targets{CategoryID: "job", IsMandatory: true, TargetDeptIDs: []string{"d3"}},
			scope:         Dept("lee", "d3"),
			wantMandatory: false,
			wantDepts:     []string{"d3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in, tt.scope, cat)
			if got.IsMandatory != tt.wantMandatory {
				t.Errorf("IsMandatory = %v, want %v", got.IsMandatory, tt.wantMandatory)
			}
			if got.TargetDeptIDs == nil {
				t.Fatal("TargetDeptIDs should never be nil")
			}
			if !slices.Equal(got.TargetDeptIDs, tt.wantDepts) {
				t.Errorf("TargetDeptIDs = %v, want %v", got.TargetDeptIDs, tt.wantDepts)
			}
			if got.CategoryID != tt.in.CategoryID {
				t.Errorf("CategoryID = %q, want %q", got.CategoryID, tt.in.CategoryID)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	cat := testCatalog()
	sc := Dept("lee", "d1", "d2")
	once := Normalize(Targets{CategoryID: "job", IsMandatory: true, TargetDeptIDs: []string{"d2", "d9", "d1", "d2"}}, sc, cat)
	twice := Normalize(once, sc, cat)
	if once.IsMandatory != twice.IsMandatory || !slices.Equal(once.TargetDeptIDs, twice.TargetDeptIDs) {
		t.Errorf("Normalize not idempotent: %+v then %+v", once, twice)
	}
}
