// Package validate decides whether a work item may move into a
// review-requested state or start a generation job. Every check runs; issues
// are collected and returned as data, never as errors.
package validate

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/coursereel/internal/catalog"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/scope"
)

// Mode selects which review gate is being checked.
type Mode string

const (
	ModeScript Mode = "SCRIPT"
	ModeFinal  Mode = "FINAL"
)

// ModeFor returns the review gate an item would be submitted to next.
func ModeFor(w item.WorkItem) Mode {
	if w.ScriptApprovedAt != nil {
		return ModeFinal
	}
	return ModeScript
}

// Issue codes.
const (
	CodeTitle            = "title"
	CodeCategory         = "category"
	CodeTemplate         = "template"
	CodeJobTraining      = "job_training"
	CodeSourceMissing    = "source_missing"
	CodeSourceMultiple   = "source_multiple"
	CodeSourceExtension  = "source_extension"
	CodeSourceSize       = "source_size"
	CodeScript           = "script"
	CodeVideo            = "video"
	CodeStageOneApproval = "stage_one_approval"
	CodePipelineRunning  = "pipeline_running"
	CodePipelineFailed   = "pipeline_failed"
	CodeStatus           = "status"
	CodeMandatoryFlag    = "mandatory_flag"
	CodeMandatoryTargets = "mandatory_targets"
	CodeDeptMandatoryCat = "dept_mandatory_category"
	CodeDeptMandatory    = "dept_mandatory_flag"
	CodeDeptRequired     = "dept_required"
	CodeDeptNotAllowed   = "dept_not_allowed"
)

// Issue is one human-readable problem. Scope marks authoring-scope violations.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Scope   bool   `json:"scope,omitempty"`
}

// Result is the outcome of a validation pass.
type Result struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues"`
}

// Messages returns the issue messages in order.
func (r Result) Messages() []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.Message
	}
	return out
}

// Has reports whether an issue with the code is present.
func (r Result) Has(code string) bool {
	return slices.ContainsFunc(r.Issues, func(is Issue) bool { return is.Code == code })
}

// ScopeViolations returns only the authoring-scope issues.
func (r Result) ScopeViolations() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Scope {
			out = append(out, is)
		}
	}
	return out
}

func newResult(issues []Issue) Result {
	if issues == nil {
		issues = []Issue{}
	}
	return Result{OK: len(issues) == 0, Issues: issues}
}

// Merge combines results, preserving issue order.
func Merge(results ...Result) Result {
	var issues []Issue
	for _, r := range results {
		issues = append(issues, r.Issues...)
	}
	return newResult(issues)
}

// Rules holds the source-file limits.
type Rules struct {
	MaxSourceBytes    int64
	AllowedExtensions []string
}

// DefaultMaxSourceBytes is the source file size ceiling.
const DefaultMaxSourceBytes = 50 * 1024 * 1024

// DefaultExtensions are the accepted source file extensions.
var DefaultExtensions = []string{"pdf", "ppt", "pptx", "doc", "docx", "hwp", "hwpx", "txt"}

// DefaultRules returns the production source-file limits.
func DefaultRules() Rules {
	return Rules{MaxSourceBytes: DefaultMaxSourceBytes, AllowedExtensions: slices.Clone(DefaultExtensions)}
}

func (r Rules) maxBytes() int64 {
	if r.MaxSourceBytes <= 0 {
		return DefaultMaxSourceBytes
	}
	return r.MaxSourceBytes
}

func (r Rules) extensions() []string {
	if len(r.AllowedExtensions) == 0 {
		return DefaultExtensions
	}
	return r.AllowedExtensions
}

// Validator evaluates items against a catalog and source-file rules.
type Validator struct {
	Catalog catalog.Lookup
	Rules   Rules
}

// New returns a Validator.
func New(cat catalog.Lookup, rules Rules) Validator {
	return Validator{Catalog: cat, Rules: rules}
}

// SourceFile checks the extension and size of one file's metadata.
func (v Validator) SourceFile(f item.SourceFile) []Issue {
	var issues []Issue
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
	if ext == "" || !slices.Contains(v.Rules.extensions(), ext) {
		issues = append(issues, Issue{
			Code:    CodeSourceExtension,
			Field:   "sourceFiles",
			Message: fmt.Sprintf("허용되지 않은 파일 형식입니다: %s", f.Name),
		})
	}
	if f.Size <= 0 || f.Size > v.Rules.maxBytes() {
		issues = append(issues, Issue{
			Code:    CodeSourceSize,
			Field:   "sourceFiles",
			Message: fmt.Sprintf("파일 크기는 %dMB 이하여야 합니다: %s", v.Rules.maxBytes()/(1024*1024), f.Name),
		})
	}
	return issues
}

// ForReview is the review-request gate. SCRIPT requires a complete draft with
// a script; FINAL additionally requires stage-1 approval and a video. Scope
// rules are evaluated for both modes.
func (v Validator) ForReview(w item.WorkItem, s scope.Scope, mode Mode) Result {
	var issues []Issue
	if utf8.RuneCountInString(strings.TrimSpace(w.Title)) < 3 {
		issues = append(issues, Issue{Code: CodeTitle, Field: "title", Message: "제목은 3자 이상이어야 합니다."})
	}
	issues = append(issues, v.content(w)...)
	if strings.TrimSpace(w.Script) == "" {
		issues = append(issues, Issue{Code: CodeScript, Field: "script", Message: "스크립트가 준비되지 않았습니다."})
	}
	switch w.Pipeline.State {
	case item.PipelineRunning:
		issues = append(issues, Issue{Code: CodePipelineRunning, Field: "pipeline", Message: "생성 작업이 진행 중입니다."})
	case item.PipelineFailed:
		issues = append(issues, Issue{Code: CodePipelineFailed, Field: "pipeline", Message: "생성 작업이 실패했습니다. 다시 시도하세요."})
	}
	if w.Status != item.StatusDraft {
		issues = append(issues, Issue{Code: CodeStatus, Field: "status", Message: "초안 상태에서만 검토를 요청할 수 있습니다."})
	}
	if mode == ModeFinal {
		if w.ScriptApprovedAt == nil {
			issues = append(issues, Issue{Code: CodeStageOneApproval, Field: "scriptApprovedAt", Message: "1차(스크립트) 검토 승인이 필요합니다."})
		}
		if strings.TrimSpace(w.VideoURL) == "" {
			issues = append(issues, Issue{Code: CodeVideo, Field: "videoUrl", Message: "영상이 준비되지 않았습니다."})
		}
	}
	issues = append(issues, v.ScopeIssues(w.CategoryID, w.IsMandatory, w.TargetDeptIDs, s)...)
	return newResult(issues)
}

// ForPipeline is the admission gate of a generation job: category, template,
// job training, the source file, and scope rules, plus the mode's own
// preconditions.
func (v Validator) ForPipeline(w item.WorkItem, s scope.Scope, mode item.PipelineMode) Result {
	issues := v.content(w)
	switch mode {
	case item.ModeVideoOnly:
		if w.ScriptApprovedAt == nil {
			issues = append(issues, Issue{Code: CodeStageOneApproval, Field: "scriptApprovedAt", Message: "1차(스크립트) 검토 승인이 필요합니다."})
		}
		if strings.TrimSpace(w.Script) == "" {
			issues = append(issues, Issue{Code: CodeScript, Field: "script", Message: "스크립트가 준비되지 않았습니다."})
		}
	case item.ModeScriptOnly, item.ModeFull:
		if w.ScriptApprovedAt != nil {
			issues = append(issues, Issue{Code: CodeStageOneApproval, Field: "scriptApprovedAt", Message: "1차 검토가 승인된 스크립트는 다시 생성할 수 없습니다."})
		}
	}
	issues = append(issues, v.ScopeIssues(w.CategoryID, w.IsMandatory, w.TargetDeptIDs, s)...)
	return newResult(issues)
}

func (v Validator) content(w item.WorkItem) []Issue {
	var issues []Issue
	if w.CategoryID == "" {
		issues = append(issues, Issue{Code: CodeCategory, Field: "categoryId", Message: "카테고리를 선택하세요."})
	} else if _, ok := v.Catalog.Category(w.CategoryID); !ok {
		issues = append(issues, Issue{Code: CodeCategory, Field: "categoryId", Message: fmt.Sprintf("알 수 없는 카테고리입니다: %s", w.CategoryID)})
	}
	if w.TemplateID == "" {
		issues = append(issues, Issue{Code: CodeTemplate, Field: "templateId", Message: "템플릿을 선택하세요."})
	}
	if v.Catalog.IsJobCategory(w.CategoryID) && w.JobTrainingID == "" {
		issues = append(issues, Issue{Code: CodeJobTraining, Field: "jobTrainingId", Message: "직무 교육을 선택하세요."})
	}
	switch len(w.SourceFiles) {
	case 0:
		issues = append(issues, Issue{Code: CodeSourceMissing, Field: "sourceFiles", Message: "원본 파일을 첨부하세요."})
	case 1:
		issues = append(issues, v.SourceFile(w.SourceFiles[0])...)
	default:
		issues = append(issues, Issue{Code: CodeSourceMultiple, Field: "sourceFiles", Message: "원본 파일은 1개만 첨부할 수 있습니다."})
	}
	return issues
}

// ScopeIssues evaluates the audience rules for a category/target selection.
func (v Validator) ScopeIssues(categoryID string, isMandatory bool, targetDeptIDs []string, s scope.Scope) []Issue {
	var issues []Issue
	mandatoryCat := v.Catalog.IsMandatoryCategory(categoryID)
	if mandatoryCat {
		if !isMandatory {
			issues = append(issues, Issue{Code: CodeMandatoryFlag, Field: "isMandatory", Message: "필수 교육 카테고리는 필수 지정이 해제될 수 없습니다.", Scope: true})
		}
		if len(targetDeptIDs) > 0 {
			issues = append(issues, Issue{Code: CodeMandatoryTargets, Field: "targetDeptIds", Message: "필수 교육은 전사 대상이어야 합니다.", Scope: true})
		}
	}
	if !s.IsDept() {
		return issues
	}
	if mandatoryCat {
		issues = append(issues, Issue{Code: CodeDeptMandatoryCat, Field: "categoryId", Message: "부서 제작자는 필수 교육 카테고리를 선택할 수 없습니다.", Scope: true})
	}
	if isMandatory && !mandatoryCat {
		issues = append(issues, Issue{Code: CodeDeptMandatory, Field: "isMandatory", Message: "부서 제작자는 필수 교육으로 지정할 수 없습니다.", Scope: true})
	}
	if !mandatoryCat {
		var concrete int
		for _, id := range targetDeptIDs {
			if scope.IsCompanyWideMarker(id) {
				issues = append(issues, Issue{Code: CodeDeptNotAllowed, Field: "targetDeptIds", Message: "허용되지 않은 부서: 전사", Scope: true})
				continue
			}
			concrete++
			if !s.Allows(id) {
				issues = append(issues, Issue{Code: CodeDeptNotAllowed, Field: "targetDeptIds", Message: fmt.Sprintf("허용되지 않은 부서: %s", v.Catalog.DepartmentName(id)), Scope: true})
			}
		}
		if concrete == 0 {
			issues = append(issues, Issue{Code: CodeDeptRequired, Field: "targetDeptIds", Message: "대상 부서를 1개 이상 선택하세요.", Scope: true})
		}
	}
	return issues
}
