// Package runner executes natural-language test cases against a browser.
package runner

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rahul/operator/internal/agent"
	"github.com/rahul/operator/internal/browser"
	"github.com/rahul/operator/internal/fallback"
	"github.com/rahul/operator/internal/governance"
	"github.com/rahul/operator/internal/observability"
	"github.com/rahul/operator/internal/summarize"
)

// Translator turns instructions into structured steps.
type Translator interface {
	Translate(ctx context.Context, instructions string) ([]agent.Step, error)
}

// Generator proposes candidate commands for one step.
type Generator interface {
	Generate(ctx context.Context, snapshot, gherkin string) (agent.Candidates, error)
}

// Summarizer reduces serialized DOM to a compact page description.
type Summarizer interface {
	Summarize(markup, pageURL string) (string, error)
}

// SnapshotStore persists page snapshots. Failures never fail a step.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, summary string) error
	SaveSnapshotHTML(ctx context.Context, html string) error
}

// Runner owns the case and step engines. It holds no per-case state and is
// safe for concurrent RunCase calls.
type Runner struct {
	cfg        Config
	launcher   browser.Launcher
	translator Translator
	generator  Generator
	summarizer Summarizer
	snapshots  SnapshotStore
	policy     governance.PolicyEngine
	fallback   *fallback.Strategy
	events     *observability.Logger
	log        *zap.Logger
	newID      func() string
}

type Option func(*Runner)

func WithSummarizer(s Summarizer) Option {
	return func(r *Runner) { r.summarizer = s }
}

// WithSnapshotStore persists every page snapshot the step engine captures.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(r *Runner) { r.snapshots = s }
}

// WithPolicy checks every candidate command before it runs.
func WithPolicy(p governance.PolicyEngine) Option {
	return func(r *Runner) { r.policy = p }
}

func WithEvents(l *observability.Logger) Option {
	return func(r *Runner) { r.events = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithFallback replaces the strategy built from Config.StrictModeMarker.
func WithFallback(s *fallback.Strategy) Option {
	return func(r *Runner) { r.fallback = s }
}

func New(cfg Config, launcher browser.Launcher, translator Translator, generator Generator, opts ...Option) *Runner {
	cfg = cfg.normalized()
	r := &Runner{
		cfg:        cfg,
		launcher:   launcher,
		translator: translator,
		generator:  generator,
		summarizer: summarize.New(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fallback == nil {
		r.fallback = fallback.New(fallback.WithStrictModeMarker(cfg.StrictModeMarker))
	}
	if r.log == nil {
		r.log = observability.GetLogger().Named("runner")
	}
	return r
}

func (r *Runner) Config() Config { return r.cfg }
