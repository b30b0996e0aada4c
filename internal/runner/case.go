package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/operator/internal/browser"
	"github.com/rahul/operator/internal/command"
	"github.com/rahul/operator/internal/observability"
)

const releaseTimeout = 30 * time.Second

// RunCase executes one case end to end. It never panics and never returns
// an error: every failure is reported in the result. The browser session,
// once acquired, is stopped exactly once on every path.
func (r *Runner) RunCase(ctx context.Context, url, steps string, headless *bool) (result CaseResult) {
	requestID := r.newID()
	ctx = observability.WithRequestID(ctx, requestID)
	log := r.log.With(zap.String("request_id", requestID))

	result = CaseResult{
		Success:   true,
		Steps:     []StepResult{},
		StartTime: time.Now(),
		Metadata:  map[string]string{MetaRequestID: requestID, MetaURL: url},
	}
	observability.BeginCase(observability.RoleFrom(ctx), requestID)
	log.Info("Case started", zap.String("url", url))

	var session browser.Session
	defer func() {
		if p := recover(); p != nil {
			log.Error("Case panicked", zap.Any("panic", p), zap.Stack("stack"))
			result.fail(&UnexpectedError{Err: fmt.Errorf("%v", p)})
		}
		if session != nil {
			if shots, ok := session.(*shotLog); ok {
				result.Screenshots = shots.since(0)
			}
			if side := r.release(ctx, session); !side.OK() {
				log.Warn("Failed to release browser session", zap.Error(side.Err))
			}
		}
		result.EndTime = time.Now()
		result.TotalDuration = result.EndTime.Sub(result.StartTime)
		observability.EndCase(result.Success)
		r.events.LogCase(requestID, url, result.Success, result.ErrorMessage, result.TotalDuration)
		log.Info("Case finished",
			zap.Bool("success", result.Success),
			zap.String("error", result.ErrorMessage),
			zap.Duration("elapsed", result.TotalDuration))
	}()

	if err := r.runCase(ctx, log, url, steps, headless, &result, &session); err != nil {
		result.fail(err)
	}
	return result
}

func (c *CaseResult) fail(err error) {
	c.Success = false
	c.ErrorMessage = caseMessage(err)
}

func (r *Runner) runCase(ctx context.Context, log *zap.Logger, url, instructions string, headless *bool, result *CaseResult, session *browser.Session) error {
	structured, err := r.translator.Translate(ctx, instructions)
	if err != nil {
		return &StepGenerationError{Err: err}
	}
	if len(structured) == 0 {
		return &StepGenerationError{Err: errors.New("no steps were generated from the natural language input")}
	}
	log.Debug("Steps translated", zap.Int("count", len(structured)))

	s, err := r.launcher.Start(ctx, r.cfg.browserOptions(headless))
	if err != nil {
		return &SessionError{Err: err}
	}
	if s == nil {
		return &SessionError{Err: errors.New("launcher returned no session")}
	}
	shots := &shotLog{Session: s}
	*session = shots
	s = shots

	if err := r.navigate(ctx, log, s, url); err != nil {
		return err
	}

	lines := splitLines(instructions)
	for i, step := range structured {
		if i == 0 && r.cfg.SkipInitialNavigation && step.AssertsInitialPage() {
			log.Debug("Skipping initial page step", zap.String("gherkin", step.Gherkin))
			continue
		}
		observability.BeginStep(observability.RequestID(ctx), i, len(structured))
		text := ""
		if i < len(lines) {
			text = lines[i]
		}

		mark := shots.count()
		sr := r.runStep(ctx, log, s, text, step)
		sr.Screenshots = shots.since(mark)
		result.Steps = append(result.Steps, sr)
		r.events.LogStep(observability.RequestID(ctx), i, step.Gherkin, sr.Outcome.Success)
		if !sr.Outcome.Success {
			return &StepExecutionError{Index: i, Message: sr.Outcome.Error}
		}
	}
	return nil
}

// navigate loads url, retrying with a fixed backoff between attempts.
func (r *Runner) navigate(ctx context.Context, log *zap.Logger, s browser.Session, url string) error {
	var (
		lastErr error
		made    int
	)
	attempts := r.cfg.NavigationAttempts
	for made < attempts {
		made++
		if lastErr = r.navigateOnce(ctx, s, url); lastErr == nil {
			return nil
		}
		log.Warn("Navigation attempt failed",
			zap.Int("attempt", made),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr))
		if made < attempts {
			if err := sleep(ctx, r.cfg.NavigationBackoff); err != nil {
				lastErr = fmt.Errorf("%w: last attempt: %v", err, lastErr)
				break
			}
		}
	}
	// Attempts counts only the loads actually made; cancellation can cut the
	// retries short.
	return &NavigationError{URL: url, Attempts: made, Err: lastErr}
}

func (r *Runner) navigateOnce(ctx context.Context, s browser.Session, url string) error {
	out := s.Execute(ctx, command.Navigate{
		URL:       url,
		WaitUntil: command.LoadStateLoad,
		Timeout:   r.cfg.CommandTimeout,
	})
	if !out.Success {
		return errors.New(out.Error)
	}
	out = s.Execute(ctx, command.WaitForLoadState{
		State:   command.LoadStateNetworkIdle,
		Timeout: r.cfg.CommandTimeout,
	})
	if !out.Success {
		return fmt.Errorf("waiting for network idle: %s", out.Error)
	}
	return nil
}

// release stops the session on a context that outlives cancellation of the
// case, so a cancelled case still tears down its browser.
func (r *Runner) release(ctx context.Context, s browser.Session) (side SideResult) {
	side.Op = "session_release"
	defer func() {
		if p := recover(); p != nil {
			side.Err = fmt.Errorf("panic during release: %v", p)
		}
	}()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	side.Err = s.Stop(ctx)
	return side
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// splitLines returns the trimmed non-empty lines of s.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
