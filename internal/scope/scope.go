// Package scope models the caller's authoring scope and the target rules that
// follow from it.
package scope

import (
	"slices"
	"strings"

	"github.com/zulandar/coursereel/internal/catalog"
)

// CreatorType is the authoring role supplied by the identity provider.
type CreatorType string

const (
	DeptCreator   CreatorType = "DEPT_CREATOR"
	GlobalCreator CreatorType = "GLOBAL_CREATOR"
)

// ParseCreatorType converts a raw role string into a CreatorType.
func ParseCreatorType(value string) (CreatorType, bool) {
	switch CreatorType(strings.ToUpper(strings.TrimSpace(value))) {
	case DeptCreator:
		return DeptCreator, true
	case GlobalCreator:
		return GlobalCreator, true
	}
	return "", false
}

// CompanyWideMarkers are sentinel department ids some clients send to mean
// "everyone". They are never stored; company-wide is the empty list.
var CompanyWideMarkers = []string{"ALL", "*", "COMPANY", "__ALL__"}

// Scope is the opaque authoring context of one caller.
type Scope struct {
	Type           CreatorType
	AllowedDeptIDs []string
	CreatorName    string
}

// Global returns a company-wide creator scope.
func Global(name string) Scope {
	return Scope{Type: GlobalCreator, CreatorName: name}
}

// Dept returns a department-restricted creator scope.
func Dept(name string, allowed ...string) Scope {
	return Scope{Type: DeptCreator, AllowedDeptIDs: allowed, CreatorName: name}
}

// IsDept reports whether the scope is department-restricted.
func (s Scope) IsDept() bool {
	return s.Type == DeptCreator
}

// Allows reports whether the scope may target the department.
func (s Scope) Allows(deptID string) bool {
	if !s.IsDept() {
		return true
	}
	return slices.Contains(s.AllowedDeptIDs, deptID)
}

// IsCompanyWideMarker reports whether id is a company-wide sentinel.
func IsCompanyWideMarker(id string) bool {
	id = strings.ToUpper(strings.TrimSpace(id))
	return slices.Contains(CompanyWideMarkers, id)
}

// Targets are the audience fields of a work item.
type Targets struct {
	CategoryID    string
	IsMandatory   bool
	TargetDeptIDs []string
}

// Normalize applies the category and scope rules to a requested audience:
//   - a mandatory category forces IsMandatory and an empty department list;
//   - sentinel markers mean company-wide, so a global creator gets the empty
//     list while a department creator loses the markers;
//   - unknown departments and departments outside a restricted scope are
//     dropped, duplicates removed, order preserved;
//   - a department creator can never set IsMandatory on a job category.
//
// Validation reports the same violations against the un-normalized request.
func Normalize(t Targets, s Scope, cat catalog.Lookup) Targets {
	out := Targets{CategoryID: t.CategoryID, IsMandatory: t.IsMandatory}
	if cat.IsMandatoryCategory(t.CategoryID) {
		out.IsMandatory = true
		out.TargetDeptIDs = []string{}
		return out
	}
	if s.IsDept() {
		out.IsMandatory = false
	}

	companyWide := false
	depts := make([]string, 0, len(t.TargetDeptIDs))
	for _, id := range t.TargetDeptIDs {
		id = strings.TrimSpace(id)
		switch {
		case id == "":
			continue
		case IsCompanyWideMarker(id):
			companyWide = true
			continue
		case !cat.HasDepartment(id), !s.Allows(id), slices.Contains(depts, id):
			continue
		}
		depts = append(depts, id)
	}
	if companyWide && !s.IsDept() {
		depts = depts[:0]
	}
	out.TargetDeptIDs = depts
	return out
}
