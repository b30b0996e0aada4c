package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/rahul/operator/internal/command"
)

// PlaywrightLauncher drives Chromium through the Playwright driver. Its
// locator semantics, including strict mode, are the ones generated commands
// are written against.
type PlaywrightLauncher struct {
	// RunOptions is passed to playwright.Run; nil uses the driver defaults.
	RunOptions *playwright.RunOptions
}

func (l *PlaywrightLauncher) Start(ctx context.Context, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var runOpts []*playwright.RunOptions
	if l.RunOptions != nil {
		runOpts = append(runOpts, l.RunOptions)
	}
	pw, err := playwright.Run(runOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	s := &playwrightSession{pw: pw, opts: opts}

	s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch chromium: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}
	s.bctx, err = s.browser.NewContext(ctxOpts)
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	if opts.Timeout > 0 {
		s.bctx.SetDefaultTimeout(ms(opts.Timeout))
	}
	if opts.TraceDir != "" {
		if err := s.bctx.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
		}); err != nil {
			zap.L().Warn("Could not start tracing", zap.Error(err))
		} else {
			s.tracing = true
		}
	}

	s.page, err = s.bctx.NewPage()
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("could not open page: %w", err)
	}
	return s, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	opts    Options
	tracing bool
}

func (s *playwrightSession) Execute(ctx context.Context, cmd command.Command) Outcome {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return failed(err, start)
	}
	if err := s.run(cmd); err != nil {
		out := failed(err, start)
		out.PageURL = s.URL()
		out.ScreenshotPath = s.screenshot()
		return out
	}
	return Outcome{
		Success:        true,
		PageURL:        s.URL(),
		ScreenshotPath: s.screenshot(),
		Elapsed:        time.Since(start),
	}
}

func (s *playwrightSession) run(cmd command.Command) error {
	timeout := s.timeout(0)
	switch c := cmd.(type) {
	case command.Navigate:
		opts := playwright.PageGotoOptions{Timeout: s.timeout(c.Timeout)}
		if c.WaitUntil != "" {
			opts.WaitUntil = waitUntil(c.WaitUntil)
		}
		_, err := s.page.Goto(c.URL, opts)
		return err
	case command.WaitForLoadState:
		return s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   loadState(c.State),
			Timeout: s.timeout(c.Timeout),
		})
	case command.WaitForTimeout:
		s.page.WaitForTimeout(ms(c.Duration))
		return nil
	case command.GoBack:
		_, err := s.page.GoBack(playwright.PageGoBackOptions{Timeout: timeout})
		return err
	case command.Reload:
		_, err := s.page.Reload(playwright.PageReloadOptions{Timeout: timeout})
		return err
	case command.Press:
		if c.Locator.IsZero() {
			return s.page.Keyboard().Press(c.Key)
		}
		return s.locate(c.Locator).Press(c.Key, playwright.LocatorPressOptions{Timeout: timeout})
	case command.Click:
		return s.locate(c.Locator).Click(playwright.LocatorClickOptions{Timeout: timeout})
	case command.DoubleClick:
		return s.locate(c.Locator).Dblclick(playwright.LocatorDblclickOptions{Timeout: timeout})
	case command.Fill:
		return s.locate(c.Locator).Fill(c.Value, playwright.LocatorFillOptions{Timeout: timeout})
	case command.Check:
		return s.locate(c.Locator).Check(playwright.LocatorCheckOptions{Timeout: timeout})
	case command.Uncheck:
		return s.locate(c.Locator).Uncheck(playwright.LocatorUncheckOptions{Timeout: timeout})
	case command.Hover:
		return s.locate(c.Locator).Hover(playwright.LocatorHoverOptions{Timeout: timeout})
	case command.SelectOption:
		values := []string{c.Value}
		_, err := s.locate(c.Locator).SelectOption(
			playwright.SelectOptionValues{Values: &values},
			playwright.LocatorSelectOptionOptions{Timeout: timeout},
		)
		return err
	case command.WaitFor:
		opts := playwright.LocatorWaitForOptions{Timeout: timeout}
		if c.State != "" {
			opts.State = selectorState(c.State)
		}
		return s.locate(c.Locator).WaitFor(opts)
	case command.ExpectVisible:
		return s.expect().Locator(s.locate(c.Locator)).ToBeVisible()
	case command.ExpectText:
		if c.Contains {
			return s.expect().Locator(s.locate(c.Locator)).ToContainText(c.Text)
		}
		return s.expect().Locator(s.locate(c.Locator)).ToHaveText(c.Text)
	}
	return fmt.Errorf("unsupported command %q", cmd.Kind())
}

// locate builds a Playwright locator from the chain, rooted at the document.
func (s *playwrightSession) locate(loc command.Locator) playwright.Locator {
	l := s.page.Locator(":root")
	for _, step := range loc.Steps {
		switch step.Kind {
		case command.LocatorCSS:
			l = l.Locator(step.Value)
		case command.LocatorText:
			l = l.GetByText(step.Value, playwright.LocatorGetByTextOptions{Exact: playwright.Bool(step.Exact)})
		case command.LocatorRole:
			opts := playwright.LocatorGetByRoleOptions{Exact: playwright.Bool(step.Exact)}
			if step.Name != "" {
				opts.Name = step.Name
			}
			l = l.GetByRole(playwright.AriaRole(step.Value), opts)
		case command.LocatorLabel:
			l = l.GetByLabel(step.Value, playwright.LocatorGetByLabelOptions{Exact: playwright.Bool(step.Exact)})
		case command.LocatorPlaceholder:
			l = l.GetByPlaceholder(step.Value, playwright.LocatorGetByPlaceholderOptions{Exact: playwright.Bool(step.Exact)})
		case command.LocatorTestID:
			l = l.GetByTestId(step.Value)
		case command.LocatorAltText:
			l = l.GetByAltText(step.Value, playwright.LocatorGetByAltTextOptions{Exact: playwright.Bool(step.Exact)})
		case command.LocatorTitle:
			l = l.GetByTitle(step.Value, playwright.LocatorGetByTitleOptions{Exact: playwright.Bool(step.Exact)})
		case command.LocatorNth:
			l = l.Nth(step.Index)
		case command.LocatorFirst:
			l = l.First()
		case command.LocatorLast:
			l = l.Last()
		}
	}
	return l
}

func (s *playwrightSession) expect() playwright.PlaywrightAssertions {
	if t := s.timeout(0); t != nil {
		return playwright.NewPlaywrightAssertions(*t)
	}
	return playwright.NewPlaywrightAssertions()
}

func (s *playwrightSession) timeout(d time.Duration) *float64 {
	if d <= 0 {
		d = s.opts.Timeout
	}
	if d <= 0 {
		return nil
	}
	return playwright.Float(ms(d))
}

func (s *playwrightSession) screenshot() string {
	path, err := screenshotPath(s.opts.ScreenshotDir)
	if err != nil || path == "" {
		return ""
	}
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{Path: playwright.String(path)}); err != nil {
		zap.L().Debug("Screenshot failed", zap.Error(err))
		return ""
	}
	return path
}

func (s *playwrightSession) PageContent(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.Content()
}

func (s *playwrightSession) URL() string {
	if s.page == nil {
		return ""
	}
	return s.page.URL()
}

func (s *playwrightSession) Stop(ctx context.Context) error {
	var errs []error
	if s.tracing && s.bctx != nil {
		if err := os.MkdirAll(s.opts.TraceDir, 0755); err != nil {
			errs = append(errs, err)
		} else {
			path := filepath.Join(s.opts.TraceDir, fmt.Sprintf("trace_%d.zip", time.Now().UnixNano()))
			if err := s.bctx.Tracing().Stop(path); err != nil {
				errs = append(errs, fmt.Errorf("stop tracing: %w", err))
			}
		}
	}
	errs = append(errs, s.teardown())
	return errors.Join(errs...)
}

func (s *playwrightSession) teardown() error {
	var errs []error
	if s.bctx != nil {
		errs = append(errs, s.bctx.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.pw != nil {
		errs = append(errs, s.pw.Stop())
	}
	s.page, s.bctx, s.browser, s.pw = nil, nil, nil, nil
	return errors.Join(errs...)
}

func waitUntil(state string) *playwright.WaitUntilState {
	switch state {
	case command.LoadStateDOMContentLoaded:
		return playwright.WaitUntilStateDomcontentloaded
	case command.LoadStateNetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	case command.LoadStateCommit:
		return playwright.WaitUntilStateCommit
	}
	return playwright.WaitUntilStateLoad
}

func loadState(state string) *playwright.LoadState {
	switch state {
	case command.LoadStateDOMContentLoaded:
		return playwright.LoadStateDomcontentloaded
	case command.LoadStateNetworkIdle:
		return playwright.LoadStateNetworkidle
	}
	return playwright.LoadStateLoad
}

func selectorState(state string) *playwright.WaitForSelectorState {
	switch state {
	case "attached":
		return playwright.WaitForSelectorStateAttached
	case "detached":
		return playwright.WaitForSelectorStateDetached
	case "hidden":
		return playwright.WaitForSelectorStateHidden
	}
	return playwright.WaitForSelectorStateVisible
}

func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
