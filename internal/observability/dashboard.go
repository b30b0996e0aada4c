package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// Rows 1-9 hold the logo, row 10 the status line; logs scroll from row 12.
const (
	statusRow = 10
	logRow    = 12
)

const logo = `
  ____  ____  _____ ____      _  _____ ___  ____
 / __ \|  _ \| ____|  _ \    / \|_   _/ _ \|  _ \
| |  | | |_) |  _| | |_) |  / _ \ | || | | | |_) |
| |__| |  __/| |___|  _ <  / ___ \| || |_| |  _ <
 \____/|_|   |_____|_| \_\/_/   \_\_| \___/|_| \_\

      natural language browser test runner`

// termMu orders console log writes against status redraws.
var termMu sync.Mutex

// consoleSink is the zap console writer. Writes hold termMu so a log line
// never lands between the cursor save and restore of a status redraw.
type consoleSink struct {
	w io.Writer
}

func (s consoleSink) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return s.w.Write(p)
}

func (s consoleSink) Sync() error { return nil }

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// PrintBanner clears the screen and draws the centered logo.
func PrintBanner() {
	width := termWidth()
	var b strings.Builder
	b.WriteString("\033[2J\033[H")
	for _, line := range strings.Split(logo, "\n") {
		pad := max((width-len(line))/2, 0)
		fmt.Fprintf(&b, "%s%s%s%s\n", strings.Repeat(" ", pad), ansiCyan, line, ansiReset)
	}
	fmt.Print(b.String())
}

// InitializeTerminal confines scrolling to the rows below the status line.
func InitializeTerminal() {
	fmt.Printf("\033[%d;r\033[%d;1H", logRow, logRow)
}

// CleanupTerminal restores the full scroll region and clears the screen.
func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// PrintLiveStatus redraws the status line in place.
func PrintLiveStatus() {
	line := renderStatus(Snapshot(), time.Now())
	termMu.Lock()
	defer termMu.Unlock()
	fmt.Printf("\033[s\033[%d;1H\033[K%s\033[u", statusRow, line)
}

func health(lastHeartbeat, now time.Time) (string, string) {
	switch d := now.Sub(lastHeartbeat); {
	case d < 40*time.Second:
		return "healthy", ansiGreen
	case d < 90*time.Second:
		return "lagging", ansiYellow
	default:
		return "stale", ansiRed
	}
}

// renderStatus formats st as one line:
//
//	[15:04:05] ● healthy | RUNNING 3f2a9c1e step 2/5 +1 | ✔ 12 ✘ 3 | up 1h2m0s
func renderStatus(st Status, now time.Time) string {
	label, color := health(st.LastHeartbeat, now)

	activity := ansiDim + "idle" + ansiReset
	if st.Active > 0 {
		id := st.ActiveCase
		if len(id) > 8 {
			id = id[:8]
		}
		activity = fmt.Sprintf("%s%s%s %s", ansiBold, st.Role, ansiReset, id)
		if st.Steps > 0 {
			activity += fmt.Sprintf(" step %d/%d", st.Step, st.Steps)
		}
		if st.Active > 1 {
			activity += fmt.Sprintf(" +%d", st.Active-1)
		}
	}

	return fmt.Sprintf("[%s] %s●%s %s | %s | %s✔ %d%s %s✘ %d%s | up %s",
		now.Format("15:04:05"),
		color, ansiReset, label,
		activity,
		ansiGreen, st.Passed, ansiReset,
		ansiRed, st.Failed, ansiReset,
		now.Sub(startTime).Round(time.Second))
}
