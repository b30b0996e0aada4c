// Package browser executes typed commands against a live browser page.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rahul/operator/internal/command"
)

// Options configures one browser session.
type Options struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	// Timeout bounds every browser-facing call.
	Timeout       time.Duration
	ScreenshotDir string
	TraceDir      string
}

// Outcome is the result of executing one command. It is never mutated after
// being returned.
type Outcome struct {
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	ScreenshotPath string        `json:"screenshot_path,omitempty"`
	PageURL        string        `json:"page_url,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Session is one exclusively owned page. Implementations are not safe for
// concurrent use; commands mutate shared page state.
type Session interface {
	// Execute runs cmd. Failures are reported in the Outcome, not as errors.
	Execute(ctx context.Context, cmd command.Command) Outcome
	// PageContent returns the current serialized DOM.
	PageContent(ctx context.Context) (string, error)
	// URL returns the current page URL, or "" if unknown.
	URL() string
	// Stop releases the page and the browser process.
	Stop(ctx context.Context) error
}

// Launcher starts sessions.
type Launcher interface {
	Start(ctx context.Context, opts Options) (Session, error)
}

const (
	BackendPlaywright = "playwright"
	BackendChromedp   = "chromedp"
)

// NewLauncher returns the launcher for the named backend.
func NewLauncher(backend string) (Launcher, error) {
	switch backend {
	case "", BackendPlaywright:
		return &PlaywrightLauncher{}, nil
	case BackendChromedp:
		return &ChromedpLauncher{}, nil
	default:
		return nil, fmt.Errorf("unknown browser backend %q", backend)
	}
}

var shotSeq atomic.Int64

// screenshotPath returns a unique file path under dir, creating dir.
func screenshotPath(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("step_%d_%04d.png", time.Now().UnixNano(), shotSeq.Add(1))
	return filepath.Join(dir, name), nil
}

func failed(err error, start time.Time) Outcome {
	return Outcome{Success: false, Error: err.Error(), Elapsed: time.Since(start)}
}
