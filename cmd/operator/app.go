package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rahul/operator/internal/agent"
	"github.com/rahul/operator/internal/browser"
	"github.com/rahul/operator/internal/governance"
	"github.com/rahul/operator/internal/observability"
	"github.com/rahul/operator/internal/runner"
	"github.com/rahul/operator/internal/store"
	"github.com/rahul/operator/pkg/config"
)

// app holds everything a command needs. Close releases it.
type app struct {
	cfg    *config.Config
	store  *store.Store
	events *observability.Logger
	runner *runner.Runner
	cases  *recordingRunner
	log    *zap.Logger
}

// loadConfig reads the config file and applies the selected profile, then
// any tweaks.
func loadConfig(tweaks ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyProfile(profile); err != nil {
		return nil, err
	}
	for _, tweak := range tweaks {
		tweak(cfg)
	}
	observability.InitializeLogger(cfg.Logger)
	return cfg, nil
}

// newApp wires the runner. Only the store is opened when withRunner is
// false.
func newApp(withRunner bool, tweaks ...func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(tweaks...)
	if err != nil {
		return nil, err
	}
	log := observability.GetLogger()

	st, err := store.Open(cfg.Memory.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, store: st, log: log}
	if !withRunner {
		return a, nil
	}

	a.events = observability.NewLogger(log.Named("events"), cfg.Logger.LLMLogFile)

	providerName, providerCfg := cfg.GetDefaultProvider()
	model, err := agent.NewModel(providerName, providerCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	prompts := agent.NewPromptManager(cfg.App.PromptsDir)
	limiter := agent.NewLimiter(cfg.AI.RequestsPerMinute)

	translator := agent.NewTranslator(model, prompts, limiter, a.events)
	translator.Temperature = cfg.AI.Temperature
	generator := agent.NewGenerator(model, prompts, limiter, a.events)
	generator.Temperature = cfg.AI.Temperature

	launcher, err := browser.NewLauncher(cfg.Browser.Backend)
	if err != nil {
		a.Close()
		return nil, err
	}
	policy, err := governance.NewPolicyEngine(cfg.Governance.DenyKinds, cfg.Governance.DenyPatterns)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []runner.Option{
		runner.WithPolicy(policy),
		runner.WithEvents(a.events),
		runner.WithLogger(log.Named("runner")),
	}
	if cfg.Runner.PersistSnapshots {
		opts = append(opts, runner.WithSnapshotStore(st))
	}
	a.runner = runner.New(runnerConfig(cfg), launcher, translator, generator, opts...)
	a.cases = &recordingRunner{runner: a.runner, history: st, log: log.Named("history")}

	log.Info("Operator ready",
		zap.String("provider", providerName),
		zap.String("model", providerCfg.Model),
		zap.String("backend", cfg.Browser.Backend))
	return a, nil
}

func (a *app) Close() {
	if a.events != nil {
		_ = a.events.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.log.Sync()
}

func runnerConfig(cfg *config.Config) runner.Config {
	return runner.Config{
		Headless:              cfg.Browser.Headless,
		ViewportWidth:         cfg.Browser.ViewportWidth,
		ViewportHeight:        cfg.Browser.ViewportHeight,
		CommandTimeout:        cfg.Browser.Timeout,
		ScreenshotDir:         cfg.Browser.ScreenshotDir,
		TraceDir:              cfg.Browser.TraceDir,
		NavigationAttempts:    cfg.Runner.NavigationAttempts,
		NavigationBackoff:     cfg.Runner.NavigationBackoff,
		StrictModeMarker:      cfg.Runner.StrictModeMarker,
		SkipInitialNavigation: cfg.Runner.SkipInitialNavigation,
		SuiteConcurrency:      cfg.Runner.SuiteConcurrency,
	}
}

// recordingRunner stores every case it runs. A failed write is logged and
// never changes the result.
type recordingRunner struct {
	runner  caseRunner
	history runRecorder
	log     *zap.Logger
}

type caseRunner interface {
	RunCase(ctx context.Context, url, steps string, headless *bool) runner.CaseResult
	RunSuite(ctx context.Context, cases []runner.CaseRequest) runner.SuiteResult
}

type runRecorder interface {
	RecordRun(ctx context.Context, run store.CaseRun) error
}

func (r *recordingRunner) RunCase(ctx context.Context, url, steps string, headless *bool) runner.CaseResult {
	res := r.runner.RunCase(ctx, url, steps, headless)
	r.record(ctx, url, steps, res)
	return res
}

func (r *recordingRunner) RunSuite(ctx context.Context, cases []runner.CaseRequest) runner.SuiteResult {
	suite := r.runner.RunSuite(ctx, cases)
	for i, res := range suite.Results {
		r.record(ctx, cases[i].URL, cases[i].Steps, res)
	}
	return suite
}

func (r *recordingRunner) record(ctx context.Context, url, steps string, res runner.CaseResult) {
	side := runner.SideResult{Op: "record_run", Err: r.history.RecordRun(context.WithoutCancel(ctx), store.FromResult(url, steps, res))}
	if !side.OK() {
		r.log.Warn("Failed to record case", zap.String("request_id", res.RequestID()), zap.Error(side.Err))
	}
}
