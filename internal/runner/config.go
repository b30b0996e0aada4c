package runner

import (
	"time"

	"github.com/rahul/operator/internal/browser"
	"github.com/rahul/operator/internal/fallback"
)

// Config holds the engine's tunables.
type Config struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	// CommandTimeout bounds every browser call, navigation included.
	CommandTimeout time.Duration
	ScreenshotDir  string
	TraceDir       string

	// NavigationAttempts below 1 is treated as 1.
	NavigationAttempts int
	NavigationBackoff  time.Duration
	StrictModeMarker   string
	// SkipInitialNavigation skips a first step that only restates the
	// starting page.
	SkipInitialNavigation bool
	SuiteConcurrency      int
}

func DefaultConfig() Config {
	return Config{
		Headless:              true,
		ViewportWidth:         1920,
		ViewportHeight:        1080,
		CommandTimeout:        5 * time.Second,
		ScreenshotDir:         "screenshots",
		TraceDir:              "traces",
		NavigationAttempts:    3,
		NavigationBackoff:     2 * time.Second,
		StrictModeMarker:      fallback.DefaultStrictModeMarker,
		SkipInitialNavigation: true,
		SuiteConcurrency:      2,
	}
}

func (c Config) normalized() Config {
	if c.NavigationAttempts < 1 {
		c.NavigationAttempts = 1
	}
	if c.NavigationBackoff < 0 {
		c.NavigationBackoff = 0
	}
	if c.SuiteConcurrency < 1 {
		c.SuiteConcurrency = 1
	}
	if c.StrictModeMarker == "" {
		c.StrictModeMarker = fallback.DefaultStrictModeMarker
	}
	return c
}

func (c Config) browserOptions(headless *bool) browser.Options {
	opts := browser.Options{
		Headless:       c.Headless,
		ViewportWidth:  c.ViewportWidth,
		ViewportHeight: c.ViewportHeight,
		Timeout:        c.CommandTimeout,
		ScreenshotDir:  c.ScreenshotDir,
		TraceDir:       c.TraceDir,
	}
	if headless != nil {
		opts.Headless = *headless
	}
	return opts
}
