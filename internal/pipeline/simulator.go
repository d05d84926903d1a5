package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/coursereel/internal/item"
)

// ErrSimulatedFailure is returned when the simulator injects a failure.
var ErrSimulatedFailure = errors.New("생성 중 오류가 발생했습니다")

// Simulator stands in for real script and video generation. It advances
// progress by a random step every tick and produces placeholder assets.
type Simulator struct {
	Tick         time.Duration
	MinStep      int
	MaxStep      int
	FailureRate  float64 // 0..1
	MediaBaseURL string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator returns a simulator. A zero seed draws from the global source.
func NewSimulator(tick time.Duration, minStep, maxStep int, failureRate float64, mediaBaseURL string, seed uint64) *Simulator {
	s := &Simulator{
		Tick:         tick,
		MinStep:      minStep,
		MaxStep:      maxStep,
		FailureRate:  failureRate,
		MediaBaseURL: strings.TrimRight(mediaBaseURL, "/"),
	}
	if seed != 0 {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return s
}

type stageSpan struct {
	label string
	until int // exclusive upper bound of progress for this stage
}

var stagePlans = map[item.PipelineMode][]stageSpan{
	item.ModeScriptOnly: {
		{item.PipelineStageUpload, 30},
		{item.PipelineStageScript, 100},
	},
	item.ModeVideoOnly: {
		{item.PipelineStageVideo, 70},
		{item.PipelineStageThumbnail, 100},
	},
	item.ModeFull: {
		{item.PipelineStageUpload, 15},
		{item.PipelineStageScript, 50},
		{item.PipelineStageVideo, 85},
		{item.PipelineStageThumbnail, 100},
	},
}

// StageAt returns the stage label for a progress value under mode.
func StageAt(mode item.PipelineMode, progress int) string {
	plan := stagePlans[mode]
	for _, span := range plan {
		if progress < span.until {
			return span.label
		}
	}
	return item.PipelineStageDone
}

// Generate runs the simulated job to completion, failure, or cancellation.
func (s *Simulator) Generate(ctx context.Context, job Job, progress ProgressFunc) (Output, error) {
	if _, ok := stagePlans[job.Mode]; !ok {
		return Output{}, fmt.Errorf("pipeline: unknown mode %q", job.Mode)
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	failAt := -1
	if s.FailureRate > 0 && s.float() < s.FailureRate {
		failAt = 10 + s.intN(80)
	}

	pct := 0
	progress(Progress{Stage: StageAt(job.Mode, pct), Percent: pct})
	for pct < 100 {
		if err := sleepWithContext(ctx, s.tick()); err != nil {
			return Output{}, err
		}
		pct = min(pct+s.step(), 100)
		stage := StageAt(job.Mode, pct)
		if failAt >= 0 && pct >= failAt {
			return Output{}, fmt.Errorf("%w (%s 단계)", ErrSimulatedFailure, stage)
		}
		progress(Progress{Stage: stage, Percent: pct})
	}
	return s.output(job), nil
}

func (s *Simulator) output(job Job) Output {
	var out Output
	if job.Mode == item.ModeScriptOnly || job.Mode == item.ModeFull {
		out.Script = draftScript(job)
	}
	if job.Mode == item.ModeVideoOnly || job.Mode == item.ModeFull {
		name := uuid.NewString()
		out.VideoURL = fmt.Sprintf("%s/videos/%s.mp4", s.MediaBaseURL, name)
		out.ThumbnailURL = fmt.Sprintf("%s/thumbnails/%s.jpg", s.MediaBaseURL, name)
	}
	return out
}

func draftScript(job Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", job.Title)
	if job.Source.Name != "" {
		fmt.Fprintf(&b, "원본 자료: %s\n\n", job.Source.Name)
	}
	b.WriteString("1. 도입: 학습 목표를 소개합니다.\n")
	b.WriteString("2. 본론: 핵심 내용을 단계별로 설명합니다.\n")
	b.WriteString("3. 정리: 주요 내용을 요약하고 확인 문제를 제시합니다.\n")
	return b.String()
}

func (s *Simulator) tick() time.Duration {
	if s.Tick <= 0 {
		return 200 * time.Millisecond
	}
	return s.Tick
}

func (s *Simulator) step() int {
	lo, hi := s.MinStep, s.MaxStep
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return lo + s.intN(hi-lo+1)
}

func (s *Simulator) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng != nil {
		return s.rng.IntN(n)
	}
	return rand.IntN(n)
}

func (s *Simulator) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng != nil {
		return s.rng.Float64()
	}
	return rand.Float64()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
