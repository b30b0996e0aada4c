package runner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/rahul/operator/internal/browser"
	"github.com/rahul/operator/internal/command"
)

// shotLog records the screenshot of every command run through the session,
// so failed attempts and navigation leave no untracked files.
type shotLog struct {
	browser.Session

	mu    sync.Mutex
	paths []string
}

func (l *shotLog) Execute(ctx context.Context, cmd command.Command) browser.Outcome {
	out := l.Session.Execute(ctx, cmd)
	if out.ScreenshotPath != "" {
		l.mu.Lock()
		l.paths = append(l.paths, out.ScreenshotPath)
		l.mu.Unlock()
	}
	return out
}

func (l *shotLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.paths)
}

// since returns a copy of the paths recorded from index i on.
func (l *shotLog) since(i int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= len(l.paths) {
		return nil
	}
	return append([]string(nil), l.paths[i:]...)
}

// CleanupArtifacts removes every screenshot the results reference. A
// missing file is not an error.
func CleanupArtifacts(results ...CaseResult) []SideResult {
	var out []SideResult
	seen := make(map[string]bool)
	remove := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		out = append(out, SideResult{Op: "remove " + path, Err: err})
	}
	for _, res := range results {
		for _, path := range res.Screenshots {
			remove(path)
		}
		for _, step := range res.Steps {
			for _, path := range step.Screenshots {
				remove(path)
			}
			remove(step.Outcome.ScreenshotPath)
		}
	}
	return out
}
