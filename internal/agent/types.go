// Package agent turns natural language into structured steps and page
// snapshots into candidate browser commands, using a langchaingo model.
package agent

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedResponse is returned when the model output cannot be decoded.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrNoSteps is returned when translation yields no steps.
	ErrNoSteps = errors.New("no steps were generated from the natural language input")
)

// ActionKind is the coarse intent of a structured step.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionFill     ActionKind = "fill"
	ActionSelect   ActionKind = "select"
	ActionHover    ActionKind = "hover"
	ActionPress    ActionKind = "press"
	ActionWait     ActionKind = "wait"
	ActionAssert   ActionKind = "assert"
	ActionUnknown  ActionKind = "unknown"
)

var actionAliases = map[string]ActionKind{
	"navigate": ActionNavigate, "goto": ActionNavigate, "open": ActionNavigate, "visit": ActionNavigate,
	"click": ActionClick, "tap": ActionClick, "press_button": ActionClick,
	"fill": ActionFill, "type": ActionFill, "input": ActionFill, "enter": ActionFill,
	"select": ActionSelect, "choose": ActionSelect,
	"hover": ActionHover,
	"press": ActionPress, "key": ActionPress,
	"wait": ActionWait,
	"assert": ActionAssert, "verify": ActionAssert, "expect": ActionAssert,
}

// ParseActionKind normalizes a model-provided action name.
func ParseActionKind(s string) ActionKind {
	if k, ok := actionAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k
	}
	return ActionUnknown
}

// Step is one structured step produced by the translator.
type Step struct {
	// Text is the natural-language fragment the step came from, if the model
	// reported it.
	Text    string     `json:"text,omitempty"`
	Gherkin string     `json:"gherkin"`
	Action  ActionKind `json:"action"`
}

// AssertsInitialPage reports whether the step only restates the starting
// page ("Given I am on ...").
func (s Step) AssertsInitialPage() bool {
	return s.Action == ActionNavigate && strings.Contains(strings.ToLower(s.Gherkin), "am on")
}

// Candidates are the ranked command strings proposed for one step.
type Candidates struct {
	HighPrecision []string `json:"high_precision"`
	LowPrecision  []string `json:"low_precision"`
}

// Len returns the total number of candidates.
func (c Candidates) Len() int { return len(c.HighPrecision) + len(c.LowPrecision) }
