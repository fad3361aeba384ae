// Package pipeline orchestrates the parse, build and render steps for
// one or two folded stack profiles.
package pipeline

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flamegen/internal/flamegraph"
	"github.com/flamegen/internal/folded"
	apperrors "github.com/flamegen/pkg/errors"
	"github.com/flamegen/pkg/utils"
)

// tracerName identifies pipeline spans when tracing is enabled.
const tracerName = "flamegen/pipeline"

// Graph kinds reported in summaries.
const (
	KindSingle = "single"
	KindDiff   = "diff"
)

// Options holds configuration options for a pipeline run.
type Options struct {
	// Title is the rendered graph title.
	Title string

	// Width is the SVG canvas width in pixels.
	Width int

	// MinWidth is the minimum frame width in pixels; narrower frames
	// are not emitted.
	MinWidth float64

	// Logger receives progress and summary lines. Defaults to the global
	// logger (stderr) when nil.
	Logger utils.Logger
}

// DefaultOptions returns default pipeline options.
func DefaultOptions() *Options {
	return &Options{
		Title:    "Flame Graph",
		Width:    flamegraph.DefaultWidth,
		MinWidth: flamegraph.DefaultMinWidth,
	}
}

// Summary describes one completed render.
type Summary struct {
	// Kind is "single" or "diff".
	Kind string

	// TotalBefore is the primary profile's sample total; TotalAfter is
	// the secondary profile's total, zero for single renders.
	TotalBefore int64
	TotalAfter  int64

	// MaxDepth is the depth of the deepest rendered leaf.
	MaxDepth int
}

// Generator drives the single-profile and differential pipelines.
type Generator struct {
	opts   *Options
	parser *folded.Parser
	log    utils.Logger
}

// New creates a new pipeline generator.
func New(opts *Options) *Generator {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.Logger
	if log == nil {
		log = utils.GetGlobalLogger()
	}
	return &Generator{
		opts:   opts,
		parser: folded.NewParser(nil),
		log:    log,
	}
}

// Generate reads one folded profile and writes an SVG flame graph.
//
// A profile with zero samples is fatal: no output is produced and the
// returned error carries the EMPTY_PROFILE code with the input name.
func (g *Generator) Generate(ctx context.Context, inputName string, input io.Reader, out io.Writer) (*Summary, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.Generate")
	defer span.End()

	profile, err := g.parser.Parse(ctx, input)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, "failed to parse "+inputName, err)
	}

	if profile.Total == 0 {
		return nil, apperrors.New(apperrors.CodeEmptyProfile, "no samples found in "+inputName)
	}

	span.SetAttributes(
		attribute.Int64("profile.samples", profile.Total),
		attribute.Int("profile.stacks", len(profile.Stacks)),
	)
	g.log.Info("%d samples, generating SVG...", profile.Total)

	tree := flamegraph.Build(profile)

	if err := g.render(tree, out); err != nil {
		return nil, err
	}

	g.log.Info("done")
	return &Summary{
		Kind:        KindSingle,
		TotalBefore: profile.Total,
		MaxDepth:    tree.Root.MaxDepth(0),
	}, nil
}

// GenerateDiff reads two folded profiles and writes a differential SVG
// flame graph. Either profile having zero samples is fatal.
func (g *Generator) GenerateDiff(ctx context.Context, beforeName string, before io.Reader, afterName string, after io.Reader, out io.Writer) (*Summary, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.GenerateDiff")
	defer span.End()

	beforeProfile, err := g.parser.Parse(ctx, before)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, "failed to parse "+beforeName, err)
	}
	afterProfile, err := g.parser.Parse(ctx, after)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, "failed to parse "+afterName, err)
	}

	if beforeProfile.Total == 0 {
		return nil, apperrors.New(apperrors.CodeEmptyProfile, "no samples in "+beforeName)
	}
	if afterProfile.Total == 0 {
		return nil, apperrors.New(apperrors.CodeEmptyProfile, "no samples in "+afterName)
	}

	span.SetAttributes(
		attribute.Int64("profile.samples.before", beforeProfile.Total),
		attribute.Int64("profile.samples.after", afterProfile.Total),
	)
	g.log.Info("before=%d samples, after=%d samples", beforeProfile.Total, afterProfile.Total)

	tree := flamegraph.BuildDiff(beforeProfile, afterProfile)

	if err := g.render(tree, out); err != nil {
		return nil, err
	}

	g.log.Info("done")
	return &Summary{
		Kind:        KindDiff,
		TotalBefore: beforeProfile.Total,
		TotalAfter:  afterProfile.Total,
		MaxDepth:    tree.Root.MaxDepth(0),
	}, nil
}

func (g *Generator) render(tree *flamegraph.Tree, out io.Writer) error {
	renderer := flamegraph.NewRenderer(&flamegraph.RenderOptions{
		Title:    g.opts.Title,
		Width:    g.opts.Width,
		MinWidth: g.opts.MinWidth,
	})
	if err := renderer.Render(tree, out); err != nil {
		return apperrors.Wrap(apperrors.CodeRenderError, "failed to render SVG", err)
	}
	return nil
}
