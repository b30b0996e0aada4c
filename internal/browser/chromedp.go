package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/rahul/operator/internal/command"
)

const (
	defaultTimeout = 30 * time.Second
	pollInterval   = 100 * time.Millisecond
	idleWindow     = 500 * time.Millisecond
)

// ChromedpLauncher drives Chrome over the DevTools protocol. Locators are
// resolved in-page and follow the same strict-mode rule as Playwright: an
// action on a locator matching several elements fails.
type ChromedpLauncher struct {
	// ExecPath overrides the Chrome binary; empty searches the usual locations.
	ExecPath string
}

func (l *ChromedpLauncher) Start(ctx context.Context, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight))
	}
	if l.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.ExecPath))
	}

	s := &chromedpSession{opts: opts, inflight: make(map[network.RequestID]struct{})}
	// The session outlives the caller's context.
	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)

	chromedp.ListenTarget(s.browserCtx, s.track)

	// The first Run allocates the browser and binds it to browserCtx.
	if err := chromedp.Run(s.browserCtx); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("could not start chrome: %w", err)
	}
	startCtx, cancel := context.WithTimeout(s.browserCtx, s.timeout(0))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(startCtx, network.Enable()); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("could not enable network tracking: %w", err)
	}
	return s, nil
}

type chromedpSession struct {
	opts          Options
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc

	mu         sync.Mutex
	inflight   map[network.RequestID]struct{}
	lastActive time.Time
	url        string
}

// track follows network activity for networkidle waits.
func (s *chromedpSession) track(ev interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(s.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(s.inflight, e.RequestID)
	default:
		return
	}
	s.lastActive = time.Now()
}

func (s *chromedpSession) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) == 0 && time.Since(s.lastActive) >= idleWindow
}

func (s *chromedpSession) Execute(ctx context.Context, cmd command.Command) Outcome {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return failed(err, start)
	}
	timeout := s.timeoutFor(cmd)
	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := s.run(runCtx, cmd, timeout)
	s.refreshURL()
	out := Outcome{
		Success:        err == nil,
		PageURL:        s.URL(),
		ScreenshotPath: s.screenshot(),
		Elapsed:        time.Since(start),
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func (s *chromedpSession) run(ctx context.Context, cmd command.Command, timeout time.Duration) error {
	switch c := cmd.(type) {
	case command.Navigate:
		if err := chromedp.Run(ctx, chromedp.Navigate(c.URL)); err != nil {
			return err
		}
		if c.WaitUntil != "" {
			return s.waitLoadState(ctx, c.WaitUntil, timeout)
		}
		return nil
	case command.WaitForLoadState:
		return s.waitLoadState(ctx, c.State, timeout)
	case command.WaitForTimeout:
		select {
		case <-time.After(c.Duration):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case command.GoBack:
		return chromedp.Run(ctx, chromedp.NavigateBack())
	case command.Reload:
		return chromedp.Run(ctx, chromedp.Reload())
	case command.Press:
		key, err := keyFor(c.Key)
		if err != nil {
			return err
		}
		if c.Locator.IsZero() {
			return chromedp.Run(ctx, chromedp.KeyEvent(key))
		}
		sel, err := s.target(ctx, c.Locator, timeout)
		if err != nil {
			return err
		}
		return chromedp.Run(ctx, chromedp.Focus(sel, chromedp.ByQuery), chromedp.KeyEvent(key))
	case command.Click:
		return s.act(ctx, c.Locator, timeout, func(sel string) chromedp.Action {
			return chromedp.Click(sel, chromedp.ByQuery)
		})
	case command.DoubleClick:
		return s.act(ctx, c.Locator, timeout, func(sel string) chromedp.Action {
			return chromedp.DoubleClick(sel, chromedp.ByQuery)
		})
	case command.Fill:
		return s.act(ctx, c.Locator, timeout, func(sel string) chromedp.Action {
			return chromedp.Tasks{
				chromedp.Clear(sel, chromedp.ByQuery),
				chromedp.SendKeys(sel, c.Value, chromedp.ByQuery),
			}
		})
	case command.Check:
		return s.setChecked(ctx, c.Locator, true, timeout)
	case command.Uncheck:
		return s.setChecked(ctx, c.Locator, false, timeout)
	case command.Hover:
		return s.act(ctx, c.Locator, timeout, func(sel string) chromedp.Action {
			return chromedp.ActionFunc(func(ctx context.Context) error {
				var center []float64
				if err := chromedp.Run(ctx,
					chromedp.ScrollIntoView(sel, chromedp.ByQuery),
					chromedp.Evaluate(fmt.Sprintf("(%s)(%q)", centerJS, sel), &center),
				); err != nil {
					return err
				}
				if len(center) != 2 {
					return errors.New("could not compute element position")
				}
				return input.DispatchMouseEvent(input.MouseMoved, center[0], center[1]).Do(ctx)
			})
		})
	case command.SelectOption:
		return s.act(ctx, c.Locator, timeout, func(sel string) chromedp.Action {
			return chromedp.ActionFunc(func(ctx context.Context) error {
				var ok bool
				if err := chromedp.Evaluate(fmt.Sprintf("(%s)(%q, %q)", selectOptionJS, sel, c.Value), &ok).Do(ctx); err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no option %q in %s", c.Value, c.Locator)
				}
				return nil
			})
		})
	case command.WaitFor:
		_, err := s.await(ctx, c.Locator, timeout, waitCondition(c.State))
		return err
	case command.ExpectVisible:
		_, err := s.await(ctx, c.Locator, timeout, func(r resolution) bool { return r.Count == 1 && r.Visible })
		return err
	case command.ExpectText:
		want := strings.Join(strings.Fields(c.Text), " ")
		_, err := s.await(ctx, c.Locator, timeout, func(r resolution) bool {
			if r.Count != 1 {
				return false
			}
			if c.Contains {
				return strings.Contains(r.Text, want)
			}
			return r.Text == want
		})
		return err
	}
	return fmt.Errorf("unsupported command %q", cmd.Kind())
}

// act resolves loc to exactly one element and runs the action built for it.
func (s *chromedpSession) act(ctx context.Context, loc command.Locator, timeout time.Duration, build func(sel string) chromedp.Action) error {
	sel, err := s.target(ctx, loc, timeout)
	if err != nil {
		return err
	}
	return chromedp.Run(ctx, build(sel))
}

func (s *chromedpSession) target(ctx context.Context, loc command.Locator, timeout time.Duration) (string, error) {
	if _, err := s.await(ctx, loc, timeout, func(r resolution) bool { return r.Count == 1 && r.Visible }); err != nil {
		return "", err
	}
	return "[" + targetAttr + "]", nil
}

func (s *chromedpSession) setChecked(ctx context.Context, loc command.Locator, want bool, timeout time.Duration) error {
	sel, err := s.target(ctx, loc, timeout)
	if err != nil {
		return err
	}
	var checked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf("!!document.querySelector(%q).checked", sel), &checked)); err != nil {
		return err
	}
	if checked == want {
		return nil
	}
	return chromedp.Run(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

type resolution struct {
	Count   int    `json:"count"`
	Visible bool   `json:"visible"`
	Text    string `json:"text"`
}

type chainStep struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
	Exact bool   `json:"exact,omitempty"`
	Index int    `json:"index,omitempty"`
}

func (s *chromedpSession) resolve(ctx context.Context, loc command.Locator) (resolution, error) {
	chain := make([]chainStep, 0, len(loc.Steps))
	for _, st := range loc.Steps {
		chain = append(chain, chainStep{Kind: string(st.Kind), Value: st.Value, Name: st.Name, Exact: st.Exact, Index: st.Index})
	}
	raw, err := json.Marshal(chain)
	if err != nil {
		return resolution{}, err
	}
	var res resolution
	expr := fmt.Sprintf("(%s)(%s, %q)", resolverJS, raw, targetAttr)
	err = chromedp.Run(ctx, chromedp.Evaluate(expr, &res))
	return res, err
}

// await polls loc until cond holds. More than one match fails immediately
// with a strict mode violation.
func (s *chromedpSession) await(ctx context.Context, loc command.Locator, timeout time.Duration, cond func(resolution) bool) (resolution, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	var lastErr error
	for {
		res, err := s.resolve(ctx, loc)
		switch {
		case err != nil:
			lastErr = err
		case res.Count > 1:
			return res, fmt.Errorf("strict mode violation: %s resolved to %d elements", loc, res.Count)
		case cond(res):
			return res, nil
		}
		select {
		case <-ctx.Done():
			if lastErr != nil && ctx.Err() == context.DeadlineExceeded {
				return res, fmt.Errorf("timeout %dms exceeded waiting for %s: %w", timeout.Milliseconds(), loc, lastErr)
			}
			if ctx.Err() == context.DeadlineExceeded {
				return res, fmt.Errorf("timeout %dms exceeded waiting for %s", timeout.Milliseconds(), loc)
			}
			return res, ctx.Err()
		case <-ticker.C:
		}
	}
}

func waitCondition(state string) func(resolution) bool {
	switch state {
	case "attached":
		return func(r resolution) bool { return r.Count == 1 }
	case "detached":
		return func(r resolution) bool { return r.Count == 0 }
	case "hidden":
		return func(r resolution) bool { return r.Count == 0 || !r.Visible }
	}
	return func(r resolution) bool { return r.Count == 1 && r.Visible }
}

func (s *chromedpSession) waitLoadState(ctx context.Context, state string, timeout time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var ready string
		if err := chromedp.Run(ctx, chromedp.Evaluate(`document.readyState`, &ready)); err == nil {
			switch state {
			case command.LoadStateCommit:
				return nil
			case command.LoadStateDOMContentLoaded:
				if ready != "loading" {
					return nil
				}
			case command.LoadStateNetworkIdle:
				if ready == "complete" && s.idle() {
					return nil
				}
			default:
				if ready == "complete" {
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("timeout %dms exceeded waiting for load state %q", timeout.Milliseconds(), state)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"space":      " ",
}

func keyFor(name string) (string, error) {
	if k, ok := namedKeys[strings.ToLower(name)]; ok {
		return k, nil
	}
	if len([]rune(name)) == 1 {
		return name, nil
	}
	return "", fmt.Errorf("unsupported key %q", name)
}

func (s *chromedpSession) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	if s.opts.Timeout > 0 {
		return s.opts.Timeout
	}
	return defaultTimeout
}

func (s *chromedpSession) timeoutFor(cmd command.Command) time.Duration {
	switch c := cmd.(type) {
	case command.Navigate:
		return s.timeout(c.Timeout)
	case command.WaitForLoadState:
		return s.timeout(c.Timeout)
	case command.WaitForTimeout:
		return c.Duration + s.timeout(0)
	}
	return s.timeout(0)
}

func (s *chromedpSession) refreshURL() {
	ctx, cancel := context.WithTimeout(s.browserCtx, 2*time.Second)
	defer cancel()
	var loc string
	if err := chromedp.Run(ctx, chromedp.Location(&loc)); err == nil {
		s.mu.Lock()
		s.url = loc
		s.mu.Unlock()
	}
}

func (s *chromedpSession) screenshot() string {
	path, err := screenshotPath(s.opts.ScreenshotDir)
	if err != nil || path == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(s.browserCtx, s.timeout(0))
	defer cancel()
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return ""
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return ""
	}
	return path
}

func (s *chromedpSession) PageContent(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(s.browserCtx, s.timeout(0))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	return html, err
}

func (s *chromedpSession) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *chromedpSession) Stop(ctx context.Context) error {
	var err error
	if s.browserCtx != nil {
		err = chromedp.Cancel(s.browserCtx)
	}
	s.cleanup()
	return err
}

func (s *chromedpSession) cleanup() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.allocCtx = nil
}
