package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/coursereel/internal/item"
)

func TestStageAt(t *testing.T) {
	tests := []struct {
		mode     item.PipelineMode
		progress int
		want     string
	}{
		{item.ModeScriptOnly, 0, item.PipelineStageUpload},
		{item.ModeScriptOnly, 29, item.PipelineStageUpload},
		{item.ModeScriptOnly, 30, item.PipelineStageScript},
		{item.ModeScriptOnly, 100, item.PipelineStageDone},
		{item.ModeVideoOnly, 0, item.PipelineStageVideo},
		{item.ModeVideoOnly, 70, item.PipelineStageThumbnail},
		{item.ModeFull, 14, item.PipelineStageUpload},
		{item.ModeFull, 49, item.PipelineStageScript},
		{item.ModeFull, 84, item.PipelineStageVideo},
		{item.ModeFull, 99, item.PipelineStageThumbnail},
		{"UNKNOWN", 10, item.PipelineStageDone},
	}
	for _, tt := range tests {
		if got := StageAt(tt.mode, tt.progress); got != tt.want {
			t.Errorf("StageAt(%s, %d) = %q, want %q", tt.mode, tt.progress, got, tt.want)
		}
	}
}

func TestSimulator_Generate(t *testing.T) {
	tests := []struct {
		mode       item.PipelineMode
		wantScript bool
		wantVideo  bool
	}{
		{item.ModeScriptOnly, true, false},
		{item.ModeVideoOnly, false, true},
		{item.ModeFull, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			sim := NewSimulator(time.Millisecond, 20, 40, 0, "https://media.example/", 42)
			var reports []Progress
			out, err := sim.Generate(context.Background(), Job{ItemID: "ci-1", Mode: tt.mode, Title: "영업 기초", Source: item.SourceFile{Name: "deck.pptx"}}, func(p Progress) {
				reports = append(reports, p)
			})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if (out.Script != "") != tt.wantScript {
				t.Errorf("Script = %q", out.Script)
			}
			if tt.wantScript && !strings.Contains(out.Script, "deck.pptx") {
				t.Errorf("script does not mention the source: %q", out.Script)
			}
			if (out.VideoURL != "") != tt.wantVideo || (out.ThumbnailURL != "") != tt.wantVideo {
				t.Errorf("video = %q thumb = %q", out.VideoURL, out.ThumbnailURL)
			}
			if tt.wantVideo && !strings.HasPrefix(out.VideoURL, "https://media.example/videos/") {
				t.Errorf("VideoURL = %q", out.VideoURL)
			}

			if len(reports) < 2 || reports[0].Percent != 0 || reports[len(reports)-1].Percent != 100 {
				t.Fatalf("reports = %+v", reports)
			}
			for i := 1; i < len(reports); i++ {
				if reports[i].Percent < reports[i-1].Percent {
					t.Errorf("progress decreased: %d -> %d", reports[i-1].Percent, reports[i].Percent)
				}
			}
		})
	}
}

func TestSimulator_InjectedFailure(t *testing.T) {
	sim := NewSimulator(time.Millisecond, 5, 10, 1, "", 7)
	_, err := sim.Generate(context.Background(), Job{Mode: item.ModeFull}, nil)
	if !errors.Is(err, ErrSimulatedFailure) {
		t.Errorf("err = %v, want ErrSimulatedFailure", err)
	}
}

func TestSimulator_Cancelled(t *testing.T) {
	sim := NewSimulator(time.Hour, 1, 1, 0, "", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.Generate(ctx, Job{Mode: item.ModeScriptOnly}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSimulator_UnknownMode(t *testing.T) {
	sim := NewSimulator(time.Millisecond, 1, 1, 0, "", 1)
	if _, err := sim.Generate(context.Background(), Job{Mode: "PARTIAL"}, nil); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestSimulator_StepBounds(t *testing.T) {
	sim := NewSimulator(0, 0, -1, 0, "", 3)
	for range 50 {
		if got := sim.step(); got != 1 {
			t.Fatalf("step = %d, want 1 when bounds collapse", got)
		}
	}
	if sim.tick() != 200*time.Millisecond {
		t.Errorf("tick = %v, want default", sim.tick())
	}
}
