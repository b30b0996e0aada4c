package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/operator/internal/agent"
	"github.com/rahul/operator/internal/browser"
	"github.com/rahul/operator/internal/command"
	"github.com/rahul/operator/internal/governance"
	"github.com/rahul/operator/internal/observability"
)

const (
	tierHigh     = "high_precision"
	tierLow      = "low_precision"
	tierFallback = "fallback"
)

// runStep snapshots the page, asks for candidates and executes them until
// one succeeds. High precision candidates are always tried before low
// precision ones. It never panics.
func (r *Runner) runStep(ctx context.Context, log *zap.Logger, s browser.Session, text string, step agent.Step) (res StepResult) {
	start := time.Now()
	res = StepResult{NaturalLanguageStep: text, Step: step, StartTime: start}
	log = log.With(zap.String("gherkin", step.Gherkin))

	defer func() {
		if p := recover(); p != nil {
			log.Error("Step panicked", zap.Any("panic", p), zap.Stack("stack"))
			res.Outcome = stepFailure(s, start, fmt.Sprintf("%v", p))
		}
		res.EndTime = time.Now()
		res.Duration = res.EndTime.Sub(res.StartTime)
	}()

	snapshot, err := r.snapshot(ctx, log, s)
	if err != nil {
		res.Outcome = stepFailure(s, start, err.Error())
		return res
	}
	res.Snapshot = snapshot

	cands, err := r.generator.Generate(ctx, snapshot, step.Gherkin)
	if err != nil {
		res.Outcome = stepFailure(s, start, "Step generation/execution failed: "+err.Error())
		return res
	}
	if cands.Len() == 0 {
		res.Outcome = stepFailure(s, start, "Step generation/execution failed: no candidate instructions were generated")
		return res
	}

	instruction, out, err := r.execute(ctx, log, s, cands)
	if err != nil {
		res.Outcome = stepFailure(s, start, err.Error())
		return res
	}
	res.Instruction = instruction
	res.Outcome = out
	return res
}

// snapshot captures and summarizes the current page. Persisting it is best
// effort.
func (r *Runner) snapshot(ctx context.Context, log *zap.Logger, s browser.Session) (string, error) {
	markup, err := s.PageContent(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture page snapshot: %w", err)
	}
	if strings.TrimSpace(markup) == "" {
		return "", errors.New("failed to capture page snapshot: page content is empty")
	}
	summary, err := r.summarizer.Summarize(markup, s.URL())
	if err != nil {
		return "", fmt.Errorf("failed to summarize page snapshot: %w", err)
	}
	for _, side := range r.persist(ctx, summary, markup) {
		if !side.OK() {
			log.Warn("Failed to persist snapshot", zap.String("op", side.Op), zap.Error(side.Err))
		}
	}
	return summary, nil
}

func (r *Runner) persist(ctx context.Context, summary, markup string) []SideResult {
	if r.snapshots == nil {
		return nil
	}
	return []SideResult{
		{Op: "save_snapshot", Err: r.snapshots.SaveSnapshot(ctx, summary)},
		{Op: "save_snapshot_html", Err: r.snapshots.SaveSnapshotHTML(ctx, markup)},
	}
}

// execute walks the candidates in tier order and stops at the first
// success. It returns the instruction that ran, which is the fallback's
// rendering when the fallback is what succeeded.
func (r *Runner) execute(ctx context.Context, log *zap.Logger, s browser.Session, cands agent.Candidates) (string, browser.Outcome, error) {
	requestID := observability.RequestID(ctx)
	tiers := []struct {
		name  string
		lines []string
	}{
		{tierHigh, cands.HighPrecision},
		{tierLow, cands.LowPrecision},
	}

	var lastErr string
	parsed := 0
	for _, tier := range tiers {
		for _, raw := range tier.lines {
			cmd, err := command.Parse(raw)
			if err != nil {
				log.Debug("Skipping unparseable candidate", zap.String("candidate", raw), zap.Error(err))
				lastErr = err.Error()
				continue
			}
			parsed++

			out, ok := r.try(ctx, s, tier.name, cmd)
			if ok {
				return raw, out, nil
			}
			lastErr = out.Error

			next, found := r.fallback.Derive(cmd, out.Error)
			if !found {
				continue
			}
			log.Warn("Retrying with fallback",
				zap.String("original", cmd.String()),
				zap.String("fallback", next.String()))
			r.events.LogFallback(requestID, cmd.String(), next.String())
			out, ok = r.try(ctx, s, tierFallback, next)
			if ok {
				return next.String(), out, nil
			}
			lastErr = out.Error
		}
	}

	if parsed == 0 {
		return "", browser.Outcome{}, fmt.Errorf("Step generation/execution failed: no executable instructions (last error: %s)", orUnknown(lastErr))
	}
	return "", browser.Outcome{}, fmt.Errorf("No valid instructions executed. Last error: %s", orUnknown(lastErr))
}

// try runs one command after the policy check. A denied command counts as a
// failed attempt carrying the denial reason.
func (r *Runner) try(ctx context.Context, s browser.Session, tier string, cmd command.Command) (browser.Outcome, bool) {
	requestID := observability.RequestID(ctx)
	if reason, denied := r.denied(ctx, cmd); denied {
		r.events.LogPolicy(requestID, cmd.String(), reason)
		r.events.LogCommand(requestID, tier, cmd.String(), false, reason)
		return browser.Outcome{Error: reason, PageURL: s.URL()}, false
	}
	out := s.Execute(ctx, cmd)
	if !out.Success && out.Error == "" {
		out.Error = "command failed without an error message"
	}
	r.events.LogCommand(requestID, tier, cmd.String(), out.Success, out.Error)
	return out, out.Success
}

func (r *Runner) denied(ctx context.Context, cmd command.Command) (string, bool) {
	if r.policy == nil {
		return "", false
	}
	res, err := r.policy.Evaluate(ctx, governance.Request{Command: cmd, RequestID: observability.RequestID(ctx)})
	if err != nil {
		return "policy evaluation failed: " + err.Error(), true
	}
	if !res.Allowed() {
		return "denied by policy: " + res.Reason, true
	}
	return "", false
}

func stepFailure(s browser.Session, start time.Time, msg string) browser.Outcome {
	return browser.Outcome{
		Success: false,
		Error:   msg,
		PageURL: safeURL(s),
		Elapsed: time.Since(start),
	}
}

func safeURL(s browser.Session) (url string) {
	defer func() {
		if recover() != nil {
			url = ""
		}
	}()
	return s.URL()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown error"
	}
	return s
}
