// Package report renders case and suite results for terminals, chat and
// machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/rahul/operator/internal/runner"
	"github.com/rahul/operator/internal/store"
)

const maxCell = 80

// Printer writes result tables.
type Printer struct {
	Out   io.Writer
	Color bool
}

func (p Printer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(table.StyleRounded)
	return t
}

func (p Printer) paint(c text.Color, s string) string {
	if !p.Color {
		return s
	}
	return c.Sprint(s)
}

func (p Printer) status(ok bool) string {
	if ok {
		return p.paint(text.FgGreen, "PASS")
	}
	return p.paint(text.FgRed, "FAIL")
}

// Case prints one row per executed step followed by the case verdict.
func (p Printer) Case(res runner.CaseResult) {
	t := p.newTable()
	t.SetTitle(caseTitle(res))
	t.AppendHeader(table.Row{"#", "STEP", "INSTRUCTION", "STATUS", "DURATION"})
	for i, step := range res.Steps {
		instruction := step.Instruction
		if !step.Outcome.Success {
			instruction = step.Outcome.Error
		}
		t.AppendRow(table.Row{
			i + 1,
			truncate(stepLabel(step), maxCell),
			truncate(instruction, maxCell),
			p.status(step.Outcome.Success),
			round(step.Duration),
		})
	}
	footer := p.status(res.Success)
	if res.ErrorMessage != "" {
		footer += " " + truncate(res.ErrorMessage, maxCell)
	}
	t.AppendFooter(table.Row{"", "", footer, "", round(res.TotalDuration)})
	t.Render()
}

// Suite prints one row per case and the totals.
func (p Printer) Suite(s runner.SuiteResult) {
	t := p.newTable()
	t.SetTitle("Suite " + s.SuiteID)
	t.AppendHeader(table.Row{"#", "CASE", "URL", "STEPS", "STATUS", "DURATION", "ERROR"})
	for i, res := range s.Results {
		t.AppendRow(table.Row{
			i + 1,
			caseName(res),
			res.Metadata[runner.MetaURL],
			len(res.Steps),
			p.status(res.Success),
			round(res.TotalDuration),
			truncate(res.ErrorMessage, maxCell),
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d passed, %d failed", s.Successful, s.Failed), "", "", "", round(s.TotalDuration), ""})
	t.Render()
}

// Runs prints recorded case history, newest first.
func (p Printer) Runs(runs []store.CaseRun) {
	t := p.newTable()
	t.AppendHeader(table.Row{"REQUEST", "STARTED", "URL", "STATUS", "DURATION", "ERROR"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.RequestID,
			r.StartTime.Format(time.DateTime),
			r.URL,
			p.status(r.Success),
			round(r.Duration),
			truncate(r.ErrorMessage, maxCell),
		})
	}
	t.Render()
}

// Schedules prints stored schedules.
func (p Printer) Schedules(list []store.Schedule) {
	t := p.newTable()
	t.AppendHeader(table.Row{"ID", "GATEWAY", "CHAT", "URL", "EVERY", "LAST RUN"})
	for _, sc := range list {
		every := "once"
		if !sc.OneShot() {
			every = (time.Duration(sc.IntervalSeconds) * time.Second).String()
		}
		last := "never"
		if !sc.LastRun.IsZero() {
			last = sc.LastRun.Format(time.DateTime)
		}
		t.AppendRow(table.Row{sc.ID, sc.Gateway, sc.ChatID, sc.URL, every, last})
	}
	t.Render()
}

// Text renders a case for chat messages.
func Text(res runner.CaseResult) string {
	var b strings.Builder
	icon := "✅"
	if !res.Success {
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s %s (%s)\n", icon, caseTitle(res), round(res.TotalDuration))
	for i, step := range res.Steps {
		mark := "✔"
		if !step.Outcome.Success {
			mark = "✘"
		}
		fmt.Fprintf(&b, "%s %d. %s\n", mark, i+1, stepLabel(step))
		if step.Instruction != "" {
			fmt.Fprintf(&b, "   %s\n", step.Instruction)
		}
	}
	if res.ErrorMessage != "" {
		fmt.Fprintf(&b, "\nError: %s\n", res.ErrorMessage)
	}
	return b.String()
}

// SuiteText renders a suite summary for chat messages.
func SuiteText(s runner.SuiteResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suite %s: %d passed, %d failed (%s)\n", s.SuiteID, s.Successful, s.Failed, round(s.TotalDuration))
	for _, res := range s.Results {
		icon := "✅"
		if !res.Success {
			icon = "❌"
		}
		fmt.Fprintf(&b, "%s %s", icon, caseName(res))
		if res.ErrorMessage != "" {
			fmt.Fprintf(&b, ": %s", res.ErrorMessage)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func caseTitle(res runner.CaseResult) string {
	return fmt.Sprintf("Case %s %s", caseName(res), res.Metadata[runner.MetaURL])
}

func caseName(res runner.CaseResult) string {
	if name := res.Metadata[runner.MetaName]; name != "" {
		return name
	}
	return res.RequestID()
}

func stepLabel(step runner.StepResult) string {
	if step.NaturalLanguageStep != "" {
		return step.NaturalLanguageStep
	}
	return step.Step.Gherkin
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
