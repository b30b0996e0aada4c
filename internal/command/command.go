// Package command defines the closed vocabulary of browser actions the
// operator is allowed to execute, and the translation from generated
// Playwright-style text into that vocabulary.
package command

import (
	"fmt"
	"strings"
	"time"
)

// Kind names a command variant.
type Kind string

const (
	KindNavigate         Kind = "navigate"
	KindWaitForLoadState Kind = "wait_for_load_state"
	KindWaitForTimeout   Kind = "wait_for_timeout"
	KindClick            Kind = "click"
	KindDoubleClick      Kind = "dblclick"
	KindFill             Kind = "fill"
	KindPress            Kind = "press"
	KindCheck            Kind = "check"
	KindUncheck          Kind = "uncheck"
	KindHover            Kind = "hover"
	KindSelectOption     Kind = "select_option"
	KindWaitFor          Kind = "wait_for"
	KindExpectVisible    Kind = "expect_visible"
	KindExpectText       Kind = "expect_text"
	KindGoBack           Kind = "go_back"
	KindReload           Kind = "reload"
)

// Load states accepted by Navigate and WaitForLoadState.
const (
	LoadStateLoad             = "load"
	LoadStateDOMContentLoaded = "domcontentloaded"
	LoadStateNetworkIdle      = "networkidle"
	LoadStateCommit           = "commit"
)

// Command is one executable browser action.
type Command interface {
	Kind() Kind
	// String renders the canonical Playwright-style form.
	String() string
}

// Targeted is implemented by commands acting on a located element.
type Targeted interface {
	Command
	Target() Locator
}

type Navigate struct {
	URL       string
	WaitUntil string
	Timeout   time.Duration
}

func (Navigate) Kind() Kind { return KindNavigate }

func (c Navigate) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "page.goto(%s", quote(c.URL))
	if c.WaitUntil != "" {
		fmt.Fprintf(&b, ", wait_until=%s", quote(c.WaitUntil))
	}
	if c.Timeout > 0 {
		fmt.Fprintf(&b, ", timeout=%d", c.Timeout.Milliseconds())
	}
	b.WriteString(")")
	return b.String()
}

type WaitForLoadState struct {
	State   string
	Timeout time.Duration
}

func (WaitForLoadState) Kind() Kind { return KindWaitForLoadState }

func (c WaitForLoadState) String() string {
	state := c.State
	if state == "" {
		state = LoadStateLoad
	}
	if c.Timeout > 0 {
		return fmt.Sprintf("page.wait_for_load_state(%s, timeout=%d)", quote(state), c.Timeout.Milliseconds())
	}
	return fmt.Sprintf("page.wait_for_load_state(%s)", quote(state))
}

type WaitForTimeout struct {
	Duration time.Duration
}

func (WaitForTimeout) Kind() Kind { return KindWaitForTimeout }

func (c WaitForTimeout) String() string {
	return fmt.Sprintf("page.wait_for_timeout(%d)", c.Duration.Milliseconds())
}

type Click struct{ Locator Locator }

func (Click) Kind() Kind        { return KindClick }
func (c Click) Target() Locator { return c.Locator }
func (c Click) String() string  { return c.Locator.String() + ".click()" }

type DoubleClick struct{ Locator Locator }

func (DoubleClick) Kind() Kind        { return KindDoubleClick }
func (c DoubleClick) Target() Locator { return c.Locator }
func (c DoubleClick) String() string  { return c.Locator.String() + ".dblclick()" }

type Fill struct {
	Locator Locator
	Value   string
}

func (Fill) Kind() Kind        { return KindFill }
func (c Fill) Target() Locator { return c.Locator }
func (c Fill) String() string  { return fmt.Sprintf("%s.fill(%s)", c.Locator, quote(c.Value)) }

// Press sends a key. A zero Locator means the page keyboard.
type Press struct {
	Locator Locator
	Key     string
}

func (Press) Kind() Kind        { return KindPress }
func (c Press) Target() Locator { return c.Locator }

func (c Press) String() string {
	if c.Locator.IsZero() {
		return fmt.Sprintf("page.keyboard.press(%s)", quote(c.Key))
	}
	return fmt.Sprintf("%s.press(%s)", c.Locator, quote(c.Key))
}

type Check struct{ Locator Locator }

func (Check) Kind() Kind        { return KindCheck }
func (c Check) Target() Locator { return c.Locator }
func (c Check) String() string  { return c.Locator.String() + ".check()" }

type Uncheck struct{ Locator Locator }

func (Uncheck) Kind() Kind        { return KindUncheck }
func (c Uncheck) Target() Locator { return c.Locator }
func (c Uncheck) String() string  { return c.Locator.String() + ".uncheck()" }

type Hover struct{ Locator Locator }

func (Hover) Kind() Kind        { return KindHover }
func (c Hover) Target() Locator { return c.Locator }
func (c Hover) String() string  { return c.Locator.String() + ".hover()" }

type SelectOption struct {
	Locator Locator
	Value   string
}

func (SelectOption) Kind() Kind        { return KindSelectOption }
func (c SelectOption) Target() Locator { return c.Locator }
func (c SelectOption) String() string {
	return fmt.Sprintf("%s.select_option(%s)", c.Locator, quote(c.Value))
}

// WaitFor waits for the locator to reach State (visible, hidden, attached, detached).
type WaitFor struct {
	Locator Locator
	State   string
}

func (WaitFor) Kind() Kind        { return KindWaitFor }
func (c WaitFor) Target() Locator { return c.Locator }

func (c WaitFor) String() string {
	if c.State == "" {
		return c.Locator.String() + ".wait_for()"
	}
	return fmt.Sprintf("%s.wait_for(state=%s)", c.Locator, quote(c.State))
}

type ExpectVisible struct{ Locator Locator }

func (ExpectVisible) Kind() Kind        { return KindExpectVisible }
func (c ExpectVisible) Target() Locator { return c.Locator }
func (c ExpectVisible) String() string  { return fmt.Sprintf("expect(%s).to_be_visible()", c.Locator) }

type ExpectText struct {
	Locator  Locator
	Text     string
	Contains bool
}

func (ExpectText) Kind() Kind        { return KindExpectText }
func (c ExpectText) Target() Locator { return c.Locator }

func (c ExpectText) String() string {
	method := "to_have_text"
	if c.Contains {
		method = "to_contain_text"
	}
	return fmt.Sprintf("expect(%s).%s(%s)", c.Locator, method, quote(c.Text))
}

type GoBack struct{}

func (GoBack) Kind() Kind     { return KindGoBack }
func (GoBack) String() string { return "page.go_back()" }

type Reload struct{}

func (Reload) Kind() Kind     { return KindReload }
func (Reload) String() string { return "page.reload()" }
