package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/coursereel/internal/catalog"
	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/scope"
	"github.com/zulandar/coursereel/internal/store"
	"github.com/zulandar/coursereel/internal/validate"
)

var author = scope.Global("김작가")

func testStore(t *testing.T) *store.Store {
	t.Helper()
	return testStoreWithRepo(t, nil)
}

func testStoreWithRepo(t *testing.T, repo store.Repository) *store.Store {
	t.Helper()
	return store.New(store.Options{
		Repo: repo,
		Catalog: catalog.Data{
			CategoryList: []catalog.Category{{ID: "mand", Name: "법정 필수", Kind: catalog.KindMandatory}},
			TemplateList: []catalog.Template{{ID: "t1"}},
		},
		Rules: validate.DefaultRules(),
	})
}

func draftWithSource(t *testing.T, st *store.Store) item.WorkItem {
	t.Helper()
	ctx := context.Background()
	title := "개인정보 보호"
	w, _, err := st.CreateDraft(ctx, author, store.MetadataPatch{Title: &title})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	w, _, err = st.AddSourceFiles(ctx, w.ID, author, []item.SourceFile{{Name: "guide.pdf", Size: 1024}})
	if err != nil {
		t.Fatalf("AddSourceFiles: %v", err)
	}
	return w
}

// waitFor polls the store until cond holds for the item.
func waitFor(t *testing.T, st *store.Store, id string, cond func(item.WorkItem) bool) item.WorkItem {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		w, err := st.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if cond(w) {
			return w
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached; item = %+v", w)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExecutor_RunSucceeds(t *testing.T) {
	st := testStore(t)
	w := draftWithSource(t, st)
	var gotJob Job
	exec := NewExecutor(Options{
		Store: st,
		Generator: GeneratorFunc(func(ctx context.Context, job Job, progress ProgressFunc) (Output, error) {
			gotJob = job
			progress(Progress{Stage: item.PipelineStageScript, Percent: 50})
			return Output{Script: "완성된 스크립트"}, nil
		}),
	})
	defer exec.Close()

	started, result, err := exec.Run(context.Background(), w.ID, author, item.ModeScriptOnly)
	if err != nil || !result.OK {
		t.Fatalf("Run: %v %+v", err, result.Issues)
	}
	if started.Pipeline.State != item.PipelineRunning {
		t.Errorf("State = %s", started.Pipeline.State)
	}
	exec.Wait()

	got, _ := st.Get(w.ID)
	if got.Pipeline.State != item.PipelineSuccess || got.Script != "완성된 스크립트" || got.Status != item.StatusDraft {
		t.Errorf("got %s %q %s", got.Pipeline.State, got.Script, got.Status)
	}
	if gotJob.ItemID != w.ID || gotJob.Source.Name != "guide.pdf" || gotJob.Mode != item.ModeScriptOnly {
		t.Errorf("job = %+v", gotJob)
	}
}

func TestExecutor_GeneratorFailure(t *testing.T) {
	st := testStore(t)
	w := draftWithSource(t, st)
	exec := NewExecutor(Options{
		Store: st,
		Generator: GeneratorFunc(func(context.Context, Job, ProgressFunc) (Output, error) {
			return Output{}, errors.New("렌더링 실패")
		}),
	})
	defer exec.Close()

	if _, _, err := exec.Run(context.Background(), w.ID, author, item.ModeFull); err != nil {
		t.Fatalf("Run: %v", err)
	}
	exec.Wait()
	got, _ := st.Get(w.ID)
	if got.Status != item.StatusFailed || got.FailedReason != "렌더링 실패" {
		t.Errorf("status = %s reason = %q", got.Status, got.FailedReason)
	}
	if _, running := st.Running(); running {
		t.Error("failed job still holds the slot")
	}
}

// settleFailRepo refuses to save finished jobs while broken.
type settleFailRepo struct {
	mu     sync.Mutex
	broken bool
}

func (r *settleFailRepo) LoadAll(context.Context) ([]item.WorkItem, error) { return nil, nil }

func (r *settleFailRepo) Save(_ context.Context, w item.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken && (w.Pipeline.State == item.PipelineSuccess || w.Pipeline.State == item.PipelineFailed) {
		return errors.New("database is locked")
	}
	return nil
}

func (r *settleFailRepo) Delete(context.Context, string) error { return nil }

func (r *settleFailRepo) setBroken(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken = v
}

func TestExecutor_UnsavedResultReleasesSlot(t *testing.T) {
	repo := &settleFailRepo{broken: true}
	st := testStoreWithRepo(t, repo)
	a := draftWithSource(t, st)
	b := draftWithSource(t, st)
	exec := NewExecutor(Options{
		Store: st,
		Generator: GeneratorFunc(func(context.Context, Job, ProgressFunc) (Output, error) {
			return Output{Script: "완성된 스크립트"}, nil
		}),
	})
	defer exec.Close()

	if _, _, err := exec.Run(context.Background(), a.ID, author, item.ModeScriptOnly); err != nil {
		t.Fatalf("Run a: %v", err)
	}
	exec.Wait()
	got, _ := st.Get(a.ID)
	if got.Status != item.StatusFailed || got.Pipeline.State != item.PipelineFailed || got.FailedReason != store.UnsavedResultReason {
		t.Errorf("a = %s/%s %q", got.Status, got.Pipeline.State, got.FailedReason)
	}
	if _, running := st.Running(); running {
		t.Fatal("slot still held after the result write failed")
	}

	repo.setBroken(false)
	if _, _, err := exec.Run(context.Background(), b.ID, author, item.ModeScriptOnly); err != nil {
		t.Fatalf("Run b after recovery: %v", err)
	}
	exec.Wait()
	if got, _ := st.Get(b.ID); got.Pipeline.State != item.PipelineSuccess {
		t.Errorf("b pipeline = %s", got.Pipeline.State)
	}
}

func TestExecutor_EmptyOutputFails(t *testing.T) {
	tests := []struct {
		mode item.PipelineMode
		out  Output
		want string
	}{
		{item.ModeScriptOnly, Output{}, EmptyScriptReason},
		{item.ModeFull, Output{Script: "s"}, EmptyVideoReason},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			st := testStore(t)
			w := draftWithSource(t, st)
			exec := NewExecutor(Options{
				Store: st,
				Generator: GeneratorFunc(func(context.Context, Job, ProgressFunc) (Output, error) {
					return tt.out, nil
				}),
			})
			defer exec.Close()
			if _, _, err := exec.Run(context.Background(), w.ID, author, tt.mode); err != nil {
				t.Fatalf("Run: %v", err)
			}
			exec.Wait()
			got, _ := st.Get(w.ID)
			if got.FailedReason != tt.want {
				t.Errorf("FailedReason = %q, want %q", got.FailedReason, tt.want)
			}
		})
	}
}

func TestExecutor_SingleFlight(t *testing.T) {
	st := testStore(t)
	a := draftWithSource(t, st)
	b := draftWithSource(t, st)
	release := make(chan struct{})
	exec := NewExecutor(Options{
		Store: st,
		Generator: GeneratorFunc(func(ctx context.Context, job Job, _ ProgressFunc) (Output, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return Output{}, ctx.Err()
			}
			return Output{Script: "s"}, nil
		}),
	})
	defer exec.Close()

	if _, _, err := exec.Run(context.Background(), a.ID, author, item.ModeScriptOnly); err != nil {
		t.Fatalf("Run(a): %v", err)
	}
	_, _, err := exec.Run(context.Background(), b.ID, author, item.ModeScriptOnly)
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) || conflict.RunningID != a.ID {
		t.Fatalf("err = %v, want conflict on %s", err, a.ID)
	}

	close(release)
	exec.Wait()
	if _, _, err := exec.Run(context.Background(), b.ID, author, item.ModeScriptOnly); err != nil {
		t.Errorf("Run(b) after a finished: %v", err)
	}
}

func TestExecutor_ValidationRefusal(t *testing.T) {
	st := testStore(t)
	w, _, _ := st.CreateDraft(context.Background(), author, store.MetadataPatch{})
	called := false
	exec := NewExecutor(Options{
		Store: st,
		Generator: GeneratorFunc(func(context.Context, Job, ProgressFunc) (Output, error) {
			called = true
			return Output{}, nil
		}),
	})
	defer exec.Close()

	_, result, err := exec.Run(context.Background(), w.ID, author, item.ModeFull)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.OK {
		t.Error("expected validation refusal")
	}
	exec.Wait()
	if called {
		t.Error("generator ran for a refused job")
	}
}

func TestExecutor_Timeout(t *testing.T) {
	st := testStore(t)
	w := draftWithSource(t, st)
	exec := NewExecutor(Options{
		Store:   st,
		Timeout: 20 * time.Millisecond,
		Generator: GeneratorFunc(func(ctx context.Context, _ Job, _ ProgressFunc) (Output, error) {
			<-ctx.Done()
			return Output{}, ctx.Err()
		}),
	})
	defer exec.Close()

	if _, _, err := exec.Run(context.Background(), w.ID, author, item.ModeScriptOnly); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := waitFor(t, st, w.ID, func(w item.WorkItem) bool { return w.Status == item.StatusFailed })
	if got.FailedReason != TimeoutReason {
		t.Errorf("FailedReason = %q", got.FailedReason)
	}
}

func TestExecutor_CloseFailsRunningJob(t *testing.T) {
	st := testStore(t)
	w := draftWithSource(t, st)
	exec := NewExecutor(Options{
		Store: st,
		Generator: GeneratorFunc(func(ctx context.Context, _ Job, _ ProgressFunc) (Output, error) {
			<-ctx.Done()
			return Output{}, ctx.Err()
		}),
	})
	if _, _, err := exec.Run(context.Background(), w.ID, author, item.ModeScriptOnly); err != nil {
		t.Fatalf("Run: %v", err)
	}
	exec.Close()

	got, _ := st.Get(w.ID)
	if got.Status != item.StatusFailed || got.FailedReason != ShutdownReason {
		t.Errorf("status = %s reason = %q", got.Status, got.FailedReason)
	}
}

func TestExecutor_RetryAfterFailure(t *testing.T) {
	st := testStore(t)
	w := draftWithSource(t, st)
	fail := true
	var modes []item.PipelineMode
	exec := NewExecutor(Options{
		Store: st,
		Generator: GeneratorFunc(func(_ context.Context, job Job, _ ProgressFunc) (Output, error) {
			modes = append(modes, job.Mode)
			if fail {
				return Output{}, errors.New("boom")
			}
			return Output{Script: "s"}, nil
		}),
	})
	defer exec.Close()

	if _, _, err := exec.Run(context.Background(), w.ID, author, item.ModeScriptOnly); err != nil {
		t.Fatalf("Run: %v", err)
	}
	exec.Wait()
	fail = false
	if _, _, err := exec.Retry(context.Background(), w.ID, author); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	exec.Wait()

	got, _ := st.Get(w.ID)
	if got.Status != item.StatusDraft || got.Script != "s" {
		t.Errorf("status = %s script = %q", got.Status, got.Script)
	}
	if len(modes) != 2 || modes[1] != item.ModeScriptOnly {
		t.Errorf("modes = %v", modes)
	}
}

func TestExecutor_NoGenerator(t *testing.T) {
	exec := NewExecutor(Options{Store: testStore(t)})
	defer exec.Close()
	if _, _, err := exec.Run(context.Background(), "ci-1", author, item.ModeFull); err == nil {
		t.Error("expected error without generator")
	}
}
