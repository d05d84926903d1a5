package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/logging"
	"github.com/zulandar/coursereel/internal/metrics"
	"github.com/zulandar/coursereel/internal/scope"
	"github.com/zulandar/coursereel/internal/store"
	"github.com/zulandar/coursereel/internal/validate"
)

// DefaultTimeout bounds a single generation job.
const DefaultTimeout = 10 * time.Minute

// Failure reasons recorded on the item.
const (
	TimeoutReason     = "생성 시간이 초과되었습니다."
	ShutdownReason    = "서버 종료로 생성 작업이 중단되었습니다."
	EmptyScriptReason = "생성된 스크립트가 비어 있습니다."
	EmptyVideoReason  = "생성된 영상이 없습니다."
)

// Options configures an Executor.
type Options struct {
	Store     *store.Store
	Generator Generator
	Timeout   time.Duration
	Metrics   *metrics.Metrics
	Logger    *logrus.Logger
}

// Executor admits generation jobs through the store and runs each admitted
// job on its own goroutine. The store's admission check is what keeps at most
// one job running; the executor only drives the job it was handed.
type Executor struct {
	store   *store.Store
	gen     Generator
	timeout time.Duration
	metrics *metrics.Metrics
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExecutor returns an executor. Call Close to stop running jobs.
func NewExecutor(opts Options) *Executor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		store:   opts.Store,
		gen:     opts.Generator,
		timeout: timeout,
		metrics: opts.Metrics,
		log:     logging.Component(opts.Logger, "pipeline"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run admits a job for the item. The call returns once the job is accepted or
// refused; generation continues in the background. A refusal is either a
// validation result with OK=false or an error (*store.ConflictError when
// another job holds the slot).
func (e *Executor) Run(ctx context.Context, id string, sc scope.Scope, mode item.PipelineMode) (item.WorkItem, validate.Result, error) {
	return e.start(ctx, id, sc, mode, false)
}

// Retry re-dispatches a FAILED item in the mode its assets call for.
func (e *Executor) Retry(ctx context.Context, id string, sc scope.Scope) (item.WorkItem, validate.Result, error) {
	return e.start(ctx, id, sc, "", true)
}

func (e *Executor) start(ctx context.Context, id string, sc scope.Scope, mode item.PipelineMode, retry bool) (item.WorkItem, validate.Result, error) {
	if e.gen == nil {
		return item.WorkItem{}, validate.Result{}, fmt.Errorf("pipeline: no generator configured")
	}
	w, result, err := e.store.BeginPipeline(ctx, id, sc, mode, retry)
	if err != nil {
		e.metrics.PipelineRejected(rejectionReason(err))
		return w, result, err
	}
	if !result.OK {
		e.metrics.PipelineRejected("validation")
		return w, result, nil
	}

	e.metrics.PipelineStarted()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(w)
	}()
	return w, result, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, store.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidState), errors.Is(err, store.ErrLocked):
		return "state"
	}
	return "error"
}

func (e *Executor) execute(w item.WorkItem) {
	mode := w.Pipeline.Mode
	log := e.log.WithFields(logrus.Fields{"item_id": w.ID, "version": w.Version, "mode": mode})
	started := time.Now()

	jobCtx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()
	// Store writes must land even when the job context is gone.
	writeCtx := context.WithoutCancel(jobCtx)

	job := Job{
		ItemID:     w.ID,
		Version:    w.Version,
		Mode:       mode,
		Title:      w.Title,
		TemplateID: w.TemplateID,
		Script:     w.Script,
	}
	job.Source, _ = w.PrimarySource()

	out, err := e.gen.Generate(jobCtx, job, func(p Progress) {
		if _, perr := e.store.ReportProgress(writeCtx, w.ID, p.Stage, p.Percent, p.Message); perr != nil {
			log.WithError(perr).Debug("progress report dropped")
		}
	})
	if err == nil {
		err = checkOutput(mode, out)
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
		reason := failureReason(jobCtx, err)
		if _, ferr := e.store.FailPipeline(writeCtx, w.ID, reason); ferr != nil {
			log.WithError(ferr).Error("record pipeline failure")
		}
	} else {
		assets := store.Assets{Script: out.Script, VideoURL: out.VideoURL, ThumbnailURL: out.ThumbnailURL}
		if _, cerr := e.store.CompletePipeline(writeCtx, w.ID, assets); cerr != nil {
			outcome = "failure"
			log.WithError(cerr).Error("record pipeline completion")
		}
	}

	elapsed := time.Since(started)
	e.metrics.PipelineFinished(string(mode), outcome, elapsed.Seconds())
	log.WithFields(logrus.Fields{"outcome": outcome, "elapsed": elapsed.Round(time.Millisecond)}).Info("generation job finished")
}

var (
	errEmptyScript = errors.New(EmptyScriptReason)
	errEmptyVideo  = errors.New(EmptyVideoReason)
)

func checkOutput(mode item.PipelineMode, out Output) error {
	if (mode == item.ModeScriptOnly || mode == item.ModeFull) && out.Script == "" {
		return errEmptyScript
	}
	if (mode == item.ModeVideoOnly || mode == item.ModeFull) && out.VideoURL == "" {
		return errEmptyVideo
	}
	return nil
}

func failureReason(jobCtx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return TimeoutReason
	case errors.Is(err, context.Canceled):
		return ShutdownReason
	}
	return err.Error()
}

// Wait blocks until every started job has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Close cancels running jobs and waits for them to record their outcome.
func (e *Executor) Close() {
	e.cancel()
	e.wg.Wait()
}
