package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/operator/internal/agent"
	"github.com/rahul/operator/internal/browser"
	"github.com/rahul/operator/internal/runner"
	"github.com/rahul/operator/internal/store"
)

func sampleCase() runner.CaseResult {
	return runner.CaseResult{
		Success:       false,
		TotalDuration: 1500 * time.Millisecond,
		ErrorMessage:  "No valid instructions executed. Last error: element not found",
		Metadata:      map[string]string{runner.MetaRequestID: "req-1", runner.MetaURL: "https://shop.test/", runner.MetaName: "checkout"},
		Steps: []runner.StepResult{
			{
				NaturalLanguageStep: "click login",
				Instruction:         "page.get_by_text('Login').click()",
				Outcome:             browser.Outcome{Success: true},
			},
			{
				Step:    agent.Step{Gherkin: "And I open the cart"},
				Outcome: browser.Outcome{Error: "No valid instructions executed. Last error: element not found"},
			},
		},
	}
}

func TestPrinter_Case(t *testing.T) {
	var buf bytes.Buffer
	Printer{Out: &buf}.Case(sampleCase())
	out := buf.String()

	assert.Contains(t, out, "checkout")
	assert.Contains(t, out, "click login")
	assert.Contains(t, out, "And I open the cart")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "FAIL")
	assert.NotContains(t, out, "\x1b[", "no color codes unless asked")
}

func TestPrinter_Suite(t *testing.T) {
	var buf bytes.Buffer
	Printer{Out: &buf}.Suite(runner.SuiteResult{
		SuiteID:    "s-1",
		Results:    []runner.CaseResult{sampleCase()},
		Total:      1,
		Failed:     1,
		Successful: 0,
	})
	assert.Contains(t, buf.String(), "0 passed, 1 failed")
	assert.Contains(t, buf.String(), "https://shop.test/")
}

func TestText(t *testing.T) {
	out := Text(sampleCase())
	lines := strings.Split(strings.TrimSpace(out), "\n")

	assert.True(t, strings.HasPrefix(lines[0], "❌ Case checkout https://shop.test/"))
	assert.Contains(t, out, "✔ 1. click login")
	assert.Contains(t, out, "   page.get_by_text('Login').click()")
	assert.Contains(t, out, "✘ 2. And I open the cart")
	assert.Contains(t, out, "Error: No valid instructions executed")
}

func TestSuiteText(t *testing.T) {
	ok := sampleCase()
	ok.Success, ok.ErrorMessage = true, ""
	ok.Metadata = map[string]string{runner.MetaRequestID: "req-2"}
	out := SuiteText(runner.SuiteResult{SuiteID: "s-1", Results: []runner.CaseResult{ok, sampleCase()}, Successful: 1, Failed: 1})

	assert.Contains(t, out, "Suite s-1: 1 passed, 1 failed")
	assert.Contains(t, out, "✅ req-2\n")
	assert.Contains(t, out, "❌ checkout: No valid")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sampleCase()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Len(t, decoded["steps"], 2)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestPrinter_RunsAndSchedules(t *testing.T) {
	var buf bytes.Buffer
	p := Printer{Out: &buf}
	p.Runs([]store.CaseRun{{RequestID: "req-1", URL: "https://shop.test/", Success: true, StartTime: time.Now()}})
	p.Schedules([]store.Schedule{
		{ID: 7, Gateway: "telegram", ChatID: "42", URL: "https://shop.test/", IntervalSeconds: 3600},
		{ID: 8, Gateway: "discord", ChatID: "chan", URL: "https://shop.test/"},
	})
	out := buf.String()

	assert.Contains(t, out, "req-1")
	assert.Contains(t, out, "1h0m0s")
	assert.Contains(t, out, "once")
	assert.Contains(t, out, "never")
}
