package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/zulandar/coursereel/internal/events"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/scope"
	"github.com/zulandar/coursereel/internal/validate"
)

// MetadataPatch holds the descriptive fields an author may change. Nil fields
// are left untouched.
type MetadataPatch struct {
	Title         *string   `json:"title,omitempty"`
	CategoryID    *string   `json:"categoryId,omitempty"`
	TemplateID    *string   `json:"templateId,omitempty"`
	JobTrainingID *string   `json:"jobTrainingId,omitempty"`
	IsMandatory   *bool     `json:"isMandatory,omitempty"`
	TargetDeptIDs *[]string `json:"targetDeptIds,omitempty"`
}

// CreateDraft adds a new DRAFT item. The patch may pre-fill metadata; the
// returned result carries the scope issues of what was requested.
func (s *Store) CreateDraft(ctx context.Context, sc scope.Scope, patch MetadataPatch) (item.WorkItem, validate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for range 2 {
		if _, taken := s.items[id]; !taken {
			break
		}
		id = s.newID()
	}
	if _, taken := s.items[id]; taken {
		return item.WorkItem{}, validate.Result{}, fmt.Errorf("store: failed to generate unique id after retries")
	}

	now := s.now()
	draft := item.WorkItem{
		ID:               id,
		Version:          1,
		VersionStartedAt: now,
		CategoryID:       s.cat.DefaultCategoryID(),
		TemplateID:       s.cat.DefaultTemplateID(),
		TargetDeptIDs:    []string{},
		SourceFiles:      []item.SourceFile{},
		Status:           item.StatusDraft,
		Pipeline:         item.IdlePipeline(),
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedByName:    sc.CreatorName,
	}
	if sc.IsDept() && len(sc.AllowedDeptIDs) == 1 && patch.TargetDeptIDs == nil {
		draft.TargetDeptIDs = []string{sc.AllowedDeptIDs[0]}
	}
	next, result := s.applyMetadata(draft, sc, patch)
	next.CategoryLabel = s.cat.CategoryLabel(next.CategoryID)

	out, err := s.commitLocked(ctx, next, events.ItemCreated)
	if err != nil {
		return item.WorkItem{}, validate.Result{}, err
	}
	s.itemLog(out).WithField("creator", sc.CreatorName).Info("draft created")
	return out, result, nil
}

// UpdateMetadata applies patch to an editable item. The stored values are
// normalized against the category and the caller's scope; the returned result
// reports the violations of the patch as requested, so a disallowed department
// shows up as an issue even though it was not persisted.
//
// When a descriptive field changes on an item that already has generated
// output, every generated asset is cleared and the pipeline reset.
func (s *Store) UpdateMetadata(ctx context.Context, id string, sc scope.Scope, patch MetadataPatch) (item.WorkItem, validate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, validate.Result{}, err
	}
	if cur.IsContentLocked() {
		return cur.Clone(), validate.Result{}, fmt.Errorf("store: update %s: %w", id, ErrLocked)
	}

	next, result := s.applyMetadata(cur.Clone(), sc, patch)
	if !metadataChanged(*cur, next) {
		return cur.Clone(), result, nil
	}
	if cur.HasGeneratedOutput() {
		next.ClearGenerated()
		s.itemLog(next).Info("metadata changed after generation; generated assets cleared")
	}
	next.CategoryLabel = s.cat.CategoryLabel(next.CategoryID)
	next.UpdatedAt = s.now()

	out, err := s.commitLocked(ctx, next, events.ItemUpdated)
	if err != nil {
		return item.WorkItem{}, validate.Result{}, err
	}
	return out, result, nil
}

// applyMetadata overlays patch on w and normalizes the result. Unknown ids fall
// back to catalog defaults instead of failing.
func (s *Store) applyMetadata(w item.WorkItem, sc scope.Scope, patch MetadataPatch) (item.WorkItem, validate.Result) {
	if patch.Title != nil {
		w.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.CategoryID != nil {
		w.CategoryID = *patch.CategoryID
	}
	w.CategoryID = s.cat.ResolveCategory(w.CategoryID)
	if patch.TemplateID != nil {
		w.TemplateID = *patch.TemplateID
	}
	w.TemplateID = s.cat.ResolveTemplate(w.TemplateID)
	if patch.JobTrainingID != nil {
		w.JobTrainingID = *patch.JobTrainingID
	}
	if s.cat.IsJobCategory(w.CategoryID) {
		w.JobTrainingID = s.cat.ResolveJobTraining(w.JobTrainingID)
	} else {
		w.JobTrainingID = ""
	}

	requestedMandatory := w.IsMandatory
	if patch.IsMandatory != nil {
		requestedMandatory = *patch.IsMandatory
	}
	requestedTargets := w.TargetDeptIDs
	if patch.TargetDeptIDs != nil {
		requestedTargets = *patch.TargetDeptIDs
	}

	t := scope.Normalize(scope.Targets{
		CategoryID:    w.CategoryID,
		IsMandatory:   requestedMandatory,
		TargetDeptIDs: requestedTargets,
	}, sc, s.cat)

	// Fields the caller did not send are judged by their normalized value, so
	// a category switch is not blamed for the flags it forced.
	var issues []validate.Issue
	if patch.IsMandatory != nil || patch.TargetDeptIDs != nil || patch.CategoryID != nil {
		checkMandatory, checkTargets := t.IsMandatory, t.TargetDeptIDs
		if patch.IsMandatory != nil {
			checkMandatory = requestedMandatory
		}
		if patch.TargetDeptIDs != nil {
			checkTargets = requestedTargets
		}
		issues = s.validator.ScopeIssues(w.CategoryID, checkMandatory, checkTargets, sc)
	}
	w.IsMandatory = t.IsMandatory
	w.TargetDeptIDs = t.TargetDeptIDs

	return w, validate.Merge(validate.Result{Issues: issues})
}

// reachLocked refuses a department creator acting on an item whose category
// or targets fall outside their scope. A draft with no targets yet is still
// reachable.
func (s *Store) reachLocked(w item.WorkItem, sc scope.Scope) error {
	if !sc.IsDept() {
		return nil
	}
	for _, is := range s.validator.ScopeIssues(w.CategoryID, w.IsMandatory, w.TargetDeptIDs, sc) {
		if is.Code == validate.CodeDeptRequired {
			continue
		}
		return fmt.Errorf("store: %s (%s): %w", w.ID, is.Message, ErrOutOfScope)
	}
	return nil
}

func metadataChanged(a, b item.WorkItem) bool {
	return a.Title != b.Title ||
		a.CategoryID != b.CategoryID ||
		a.TemplateID != b.TemplateID ||
		a.JobTrainingID != b.JobTrainingID ||
		a.IsMandatory != b.IsMandatory ||
		!slices.Equal(a.TargetDeptIDs, b.TargetDeptIDs)
}

// AddSourceFiles records transport-supplied file metadata. Each file is
// re-validated; rejected files are reported in the result and skipped.
func (s *Store) AddSourceFiles(ctx context.Context, id string, sc scope.Scope, files []item.SourceFile) (item.WorkItem, validate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, validate.Result{}, err
	}
	if cur.IsContentLocked() {
		return cur.Clone(), validate.Result{}, fmt.Errorf("store: attach to %s: %w", id, ErrLocked)
	}
	if err := s.reachLocked(*cur, sc); err != nil {
		return cur.Clone(), validate.Result{}, err
	}

	next := cur.Clone()
	var issues []validate.Issue
	accepted := 0
	now := s.now()
	for _, f := range files {
		if fileIssues := s.validator.SourceFile(f); len(fileIssues) > 0 {
			issues = append(issues, fileIssues...)
			continue
		}
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.AddedAt = now
		next.SourceFiles = append(next.SourceFiles, f)
		accepted++
	}
	result := validate.Merge(validate.Result{Issues: issues})
	if accepted == 0 {
		return cur.Clone(), result, nil
	}
	next.UpdatedAt = now

	out, err := s.commitLocked(ctx, next, events.ItemUpdated)
	if err != nil {
		return item.WorkItem{}, validate.Result{}, err
	}
	s.itemLog(out).WithField("accepted", accepted).Info("source files attached")
	return out, result, nil
}

// RemoveSourceFile detaches one source file.
func (s *Store) RemoveSourceFile(ctx context.Context, id string, sc scope.Scope, fileID string) (item.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, err
	}
	if cur.IsContentLocked() {
		return cur.Clone(), fmt.Errorf("store: detach from %s: %w", id, ErrLocked)
	}
	if err := s.reachLocked(*cur, sc); err != nil {
		return cur.Clone(), err
	}
	idx := slices.IndexFunc(cur.SourceFiles, func(f item.SourceFile) bool { return f.ID == fileID })
	if idx < 0 {
		return cur.Clone(), fmt.Errorf("store: source file %w: %s", ErrNotFound, fileID)
	}

	next := cur.Clone()
	next.SourceFiles = slices.Delete(next.SourceFiles, idx, idx+1)
	next.UpdatedAt = s.now()
	return s.commitLocked(ctx, next, events.ItemUpdated)
}

// UpdateScript replaces the script text of an editable item.
func (s *Store) UpdateScript(ctx context.Context, id string, sc scope.Scope, text string) (item.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return item.WorkItem{}, err
	}
	if cur.IsContentLocked() {
		return cur.Clone(), fmt.Errorf("store: edit script of %s: %w", id, ErrLocked)
	}
	if err := s.reachLocked(*cur, sc); err != nil {
		return cur.Clone(), err
	}
	if cur.Script == text {
		return cur.Clone(), nil
	}

	next := cur.Clone()
	next.Script = text
	next.UpdatedAt = s.now()
	return s.commitLocked(ctx, next, events.ItemUpdated)
}

// DeleteDraft removes a DRAFT or FAILED item from the store entirely.
func (s *Store) DeleteDraft(ctx context.Context, id string, sc scope.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getLocked(id)
	if err != nil {
		return err
	}
	if cur.Status != item.StatusDraft && cur.Status != item.StatusFailed {
		return fmt.Errorf("store: delete %s in status %s: %w", id, cur.Status, ErrInvalidState)
	}
	if cur.Pipeline.State == item.PipelineRunning {
		return fmt.Errorf("store: delete %s while generating: %w", id, ErrLocked)
	}
	if err := s.reachLocked(*cur, sc); err != nil {
		return err
	}
	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			return fmt.Errorf("store: delete %s: %w", id, err)
		}
	}
	delete(s.items, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.ItemDeleted, ItemID: id, Timestamp: s.now()})
	}
	s.log.WithField("item_id", id).Info("item deleted")
	return nil
}
