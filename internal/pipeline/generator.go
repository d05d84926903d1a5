// Package pipeline runs generation jobs for work items, one at a time across
// the whole system.
package pipeline

import (
	"context"

	"github.com/zulandar/coursereel/internal/item"
)

// Job is what a generator needs to produce assets for one item version.
type Job struct {
	ItemID     string
	Version    int
	Mode       item.PipelineMode
	Title      string
	TemplateID string
	Script     string
	Source     item.SourceFile
}

// Output holds the produced assets. Only the fields of the job's mode are
// read back.
type Output struct {
	Script       string
	VideoURL     string
	ThumbnailURL string
}

// Progress is one progress report of a running job.
type Progress struct {
	Stage   string
	Percent int
	Message string
}

// ProgressFunc receives progress reports. Percent never decreases.
type ProgressFunc func(Progress)

// Generator produces assets for a job. A returned error is a pipeline
// failure; its message becomes the item's failed reason.
type Generator interface {
	Generate(ctx context.Context, job Job, progress ProgressFunc) (Output, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, job Job, progress ProgressFunc) (Output, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, job Job, progress ProgressFunc) (Output, error) {
	return f(ctx, job, progress)
}
