package command

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrUnrecognized is returned for text that does not map onto the command
// vocabulary.
var ErrUnrecognized = errors.New("unrecognized command")

// value is a parsed argument.
type value struct {
	str     *string
	num     *float64
	boolean *bool
	object  map[string]value
	chain   []segment
}

type segment struct {
	name   string
	called bool
	args   []value
	kwargs map[string]value
}

func (s segment) kwarg(name string) (value, bool) {
	v, ok := s.kwargs[name]
	return v, ok
}

type parser struct {
	toks []token
	pos  int
}

// Parse translates one generated instruction into a Command.
func Parse(src string) (Command, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("%w: empty instruction", ErrUnrecognized)
	}
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	p := &parser{toks: toks}
	if p.peek().is(tokIdent, "await") {
		p.next()
	}
	chain, err := p.parseChain()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	if p.peek().is(tokPunct, ";") {
		p.next()
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrUnrecognized, t.text, t.pos)
	}
	cmd, err := interpret(chain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	return cmd, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(text string) error {
	t := p.next()
	if !t.is(tokPunct, text) {
		return fmt.Errorf("expected %q at %d, got %q", text, t.pos, t.text)
	}
	return nil
}

func (p *parser) parseChain() ([]segment, error) {
	var chain []segment
	for {
		t := p.next()
		if t.kind != tokIdent {
			return nil, fmt.Errorf("expected identifier at %d, got %q", t.pos, t.text)
		}
		seg := segment{name: snakeCase(t.text)}
		if p.peek().is(tokPunct, "(") {
			p.next()
			if err := p.parseArgs(&seg); err != nil {
				return nil, err
			}
			seg.called = true
		}
		chain = append(chain, seg)
		if !p.peek().is(tokPunct, ".") {
			return chain, nil
		}
		p.next()
	}
}

func (p *parser) parseArgs(seg *segment) error {
	for !p.peek().is(tokPunct, ")") {
		if p.peek().kind == tokIdent && p.toks[p.pos+1].is(tokPunct, "=") {
			key := snakeCase(p.next().text)
			p.next()
			v, err := p.parseValue()
			if err != nil {
				return err
			}
			if seg.kwargs == nil {
				seg.kwargs = make(map[string]value)
			}
			seg.kwargs[key] = v
		} else {
			v, err := p.parseValue()
			if err != nil {
				return err
			}
			// A trailing options object is folded into the keyword arguments.
			if v.object != nil {
				if seg.kwargs == nil {
					seg.kwargs = make(map[string]value)
				}
				for k, ov := range v.object {
					seg.kwargs[k] = ov
				}
			} else {
				seg.args = append(seg.args, v)
			}
		}
		if p.peek().is(tokPunct, ",") {
			p.next()
			continue
		}
		if !p.peek().is(tokPunct, ")") {
			t := p.peek()
			return fmt.Errorf("expected ',' or ')' at %d, got %q", t.pos, t.text)
		}
	}
	p.next()
	return nil
}

func (p *parser) parseValue() (value, error) {
	t := p.peek()
	switch {
	case t.kind == tokString:
		p.next()
		s := t.text
		return value{str: &s}, nil
	case t.kind == tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return value{}, fmt.Errorf("bad number %q", t.text)
		}
		return value{num: &f}, nil
	case t.kind == tokIdent && isBool(t.text):
		p.next()
		b := strings.EqualFold(t.text, "true")
		return value{boolean: &b}, nil
	case t.is(tokPunct, "{"):
		return p.parseObject()
	case t.kind == tokIdent:
		chain, err := p.parseChain()
		if err != nil {
			return value{}, err
		}
		return value{chain: chain}, nil
	default:
		return value{}, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
	}
}

func (p *parser) parseObject() (value, error) {
	if err := p.expect("{"); err != nil {
		return value{}, err
	}
	obj := make(map[string]value)
	for !p.peek().is(tokPunct, "}") {
		k := p.next()
		if k.kind != tokIdent && k.kind != tokString {
			return value{}, fmt.Errorf("expected key at %d, got %q", k.pos, k.text)
		}
		if err := p.expect(":"); err != nil {
			return value{}, err
		}
		v, err := p.parseValue()
		if err != nil {
			return value{}, err
		}
		obj[snakeCase(k.text)] = v
		if p.peek().is(tokPunct, ",") {
			p.next()
		}
	}
	p.next()
	return value{object: obj}, nil
}

func isBool(s string) bool {
	switch s {
	case "True", "False", "true", "false":
		return true
	}
	return false
}

// snakeCase maps getByText to get_by_text; snake_case input is unchanged.
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// interpret maps a parsed call chain onto the command vocabulary.
func interpret(chain []segment) (Command, error) {
	if chain[0].name == "expect" {
		return interpretExpect(chain)
	}
	if chain[0].name == "page" && !chain[0].called {
		chain = chain[1:]
	}
	if len(chain) == 0 {
		return nil, errors.New("no action")
	}

	if cmd, ok, err := pageAction(chain); ok || err != nil {
		return cmd, err
	}

	var loc Locator
	for i, seg := range chain {
		step, isLocator, err := locatorStep(seg)
		if err != nil {
			return nil, err
		}
		if isLocator {
			loc.Steps = append(loc.Steps, step)
			continue
		}
		if loc.IsZero() {
			return nil, fmt.Errorf("unknown page method %q", seg.name)
		}
		if i != len(chain)-1 {
			return nil, fmt.Errorf("unexpected call after %q", seg.name)
		}
		return locatorAction(loc, seg)
	}
	return nil, errors.New("locator has no action")
}

// pageAction handles methods invoked directly on the page object.
func pageAction(chain []segment) (Command, bool, error) {
	seg := chain[0]
	if seg.name == "keyboard" && !seg.called {
		if len(chain) != 2 || chain[1].name != "press" {
			return nil, true, errors.New("unsupported keyboard action")
		}
		if err := checkArgs(chain[1], 1, "key", "delay"); err != nil {
			return nil, true, err
		}
		key, err := stringArg(chain[1], 0, "key")
		if err != nil {
			return nil, true, err
		}
		return Press{Key: key}, true, nil
	}

	switch seg.name {
	case "goto", "navigate":
		if err := checkArgs(seg, 1, "url", "wait_until", "timeout"); err != nil {
			return nil, true, err
		}
		url, err := stringArg(seg, 0, "url")
		if err != nil {
			return nil, true, err
		}
		cmd := Navigate{URL: url, WaitUntil: optString(seg, "wait_until")}
		cmd.Timeout = optTimeout(seg, "timeout")
		return cmd, true, tail(chain)
	case "wait_for_load_state":
		if err := checkArgs(seg, 1, "state", "timeout"); err != nil {
			return nil, true, err
		}
		state := optString(seg, "state")
		if len(seg.args) > 0 && seg.args[0].str != nil {
			state = *seg.args[0].str
		}
		if state == "" {
			state = LoadStateLoad
		}
		return WaitForLoadState{State: state, Timeout: optTimeout(seg, "timeout")}, true, tail(chain)
	case "wait_for_timeout":
		if err := checkArgs(seg, 1, "timeout"); err != nil {
			return nil, true, err
		}
		ms, err := numberArg(seg, 0, "timeout")
		if err != nil {
			return nil, true, err
		}
		return WaitForTimeout{Duration: time.Duration(ms) * time.Millisecond}, true, tail(chain)
	case "go_back", "reload":
		if err := checkArgs(seg, 0, "wait_until", "timeout"); err != nil {
			return nil, true, err
		}
		if seg.name == "go_back" {
			return GoBack{}, true, tail(chain)
		}
		return Reload{}, true, tail(chain)
	case "wait_for_selector":
		sel, rest, err := takeSelector(seg)
		if err != nil {
			return nil, true, err
		}
		if err := checkArgs(rest, 0, "state", "timeout"); err != nil {
			return nil, true, err
		}
		return WaitFor{Locator: cssLocator(sel), State: optString(rest, "state")}, true, tail(chain)
	case "click", "dblclick", "fill", "press", "check", "uncheck", "hover", "select_option", "type":
		// Selector-first page shortcuts, e.g. page.fill('#email', 'a@b.c').
		sel, rest, err := takeSelector(seg)
		if err != nil {
			return nil, true, err
		}
		cmd, err := locatorAction(cssLocator(sel), rest)
		if err != nil {
			return nil, true, err
		}
		return cmd, true, tail(chain)
	}
	return nil, false, nil
}

func tail(chain []segment) error {
	if len(chain) > 1 {
		return fmt.Errorf("unexpected call after %q", chain[0].name)
	}
	return nil
}

func cssLocator(sel string) Locator {
	return Locator{Steps: []LocatorStep{{Kind: LocatorCSS, Value: sel}}}
}

// takeSelector removes the selector from seg, whether it was passed
// positionally or as a keyword, and returns the remaining arguments.
func takeSelector(seg segment) (string, segment, error) {
	rest := segment{name: seg.name, called: seg.called, args: seg.args, kwargs: seg.kwargs}
	if len(seg.args) > 0 && seg.args[0].str != nil {
		rest.args = seg.args[1:]
		return *seg.args[0].str, rest, nil
	}
	v, ok := seg.kwarg("selector")
	if !ok || v.str == nil {
		return "", rest, fmt.Errorf("%s() needs a string selector", seg.name)
	}
	rest.kwargs = make(map[string]value, len(seg.kwargs))
	for k, kv := range seg.kwargs {
		if k != "selector" {
			rest.kwargs[k] = kv
		}
	}
	return *v.str, rest, nil
}

// checkArgs rejects positional arguments beyond max and any keyword the
// vocabulary does not model. Options such as has_text or button change which
// element is hit or how, so dropping them silently would act on the wrong
// target.
func checkArgs(seg segment, max int, kwargs ...string) error {
	if len(seg.args) > max {
		return fmt.Errorf("%s() takes at most %d positional arguments, got %d", seg.name, max, len(seg.args))
	}
	var unknown []string
	for k := range seg.kwargs {
		if !slices.Contains(kwargs, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("%s() option %q is not supported", seg.name, unknown[0])
	}
	return nil
}

func locatorStep(seg segment) (LocatorStep, bool, error) {
	var (
		step LocatorStep
		err  error
	)
	switch seg.name {
	case "locator":
		if err := checkArgs(seg, 1, "selector"); err != nil {
			return step, true, err
		}
		step.Kind = LocatorCSS
		step.Value, err = stringArg(seg, 0, "selector")
	case "get_by_text", "get_by_label", "get_by_placeholder", "get_by_alt_text", "get_by_title":
		if err := checkArgs(seg, 1, "text", "exact"); err != nil {
			return step, true, err
		}
		step.Kind = LocatorKind(seg.name)
		step.Value, err = stringArg(seg, 0, "text")
		step.Exact = optBool(seg, "exact")
	case "get_by_test_id":
		if err := checkArgs(seg, 1, "test_id"); err != nil {
			return step, true, err
		}
		step.Kind = LocatorTestID
		step.Value, err = stringArg(seg, 0, "test_id")
	case "get_by_role":
		if err := checkArgs(seg, 1, "role", "name", "exact"); err != nil {
			return step, true, err
		}
		step.Kind = LocatorRole
		step.Value, err = stringArg(seg, 0, "role")
		step.Name = optString(seg, "name")
		step.Exact = optBool(seg, "exact")
	case "nth":
		if err := checkArgs(seg, 1, "index"); err != nil {
			return step, true, err
		}
		var n float64
		n, err = numberArg(seg, 0, "index")
		step = LocatorStep{Kind: LocatorNth, Index: int(n)}
	case "first", "last":
		if err := checkArgs(seg, 0); err != nil {
			return step, true, err
		}
		step.Kind = LocatorKind(seg.name)
	default:
		return step, false, nil
	}
	return step, true, err
}

// Options accepted on every action; they tune waiting, not targeting.
var waitOptions = []string{"timeout", "force", "no_wait_after", "delay"}

func locatorAction(loc Locator, seg segment) (Command, error) {
	accepts := func(max int, kwargs ...string) error {
		return checkArgs(seg, max, append(kwargs, waitOptions...)...)
	}
	switch seg.name {
	case "click":
		if err := accepts(0, "click_count"); err != nil {
			return nil, err
		}
		switch optNumber(seg, "click_count") {
		case 0, 1:
			return Click{Locator: loc}, nil
		case 2:
			return DoubleClick{Locator: loc}, nil
		}
		return nil, errors.New("click() supports click_count of 1 or 2")
	case "dblclick":
		if err := accepts(0); err != nil {
			return nil, err
		}
		return DoubleClick{Locator: loc}, nil
	case "fill", "type", "press_sequentially":
		if err := accepts(1, "value", "text"); err != nil {
			return nil, err
		}
		v, err := stringArg(seg, 0, "value")
		if err != nil {
			if t, ok := seg.kwarg("text"); ok && t.str != nil {
				v, err = *t.str, nil
			}
		}
		if err != nil {
			return nil, err
		}
		return Fill{Locator: loc, Value: v}, nil
	case "press":
		if err := accepts(1, "key"); err != nil {
			return nil, err
		}
		key, err := stringArg(seg, 0, "key")
		if err != nil {
			return nil, err
		}
		return Press{Locator: loc, Key: key}, nil
	case "check", "uncheck", "hover":
		if err := accepts(0); err != nil {
			return nil, err
		}
		switch seg.name {
		case "check":
			return Check{Locator: loc}, nil
		case "uncheck":
			return Uncheck{Locator: loc}, nil
		}
		return Hover{Locator: loc}, nil
	case "select_option":
		if err := accepts(1, "value", "label"); err != nil {
			return nil, err
		}
		v := optString(seg, "value")
		if v == "" {
			v = optString(seg, "label")
		}
		if len(seg.args) > 0 && seg.args[0].str != nil {
			v = *seg.args[0].str
		}
		if v == "" {
			return nil, errors.New("select_option needs a value")
		}
		return SelectOption{Locator: loc, Value: v}, nil
	case "wait_for":
		if err := checkArgs(seg, 0, "state", "timeout"); err != nil {
			return nil, err
		}
		return WaitFor{Locator: loc, State: optString(seg, "state")}, nil
	}
	return nil, fmt.Errorf("unsupported action %q", seg.name)
}

func interpretExpect(chain []segment) (Command, error) {
	head := chain[0]
	if !head.called || len(head.args) != 1 || head.args[0].chain == nil || len(head.kwargs) > 0 {
		return nil, errors.New("expect() needs a locator")
	}
	inner := head.args[0].chain
	if inner[0].name == "page" && !inner[0].called {
		inner = inner[1:]
	}
	var loc Locator
	for _, seg := range inner {
		step, ok, err := locatorStep(seg)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("expect() argument has non-locator call %q", seg.name)
		}
		loc.Steps = append(loc.Steps, step)
	}
	if loc.IsZero() {
		return nil, errors.New("expect() needs a locator")
	}
	if len(chain) != 2 {
		return nil, errors.New("expect() needs exactly one assertion")
	}
	assertion := chain[1]
	switch assertion.name {
	case "to_be_visible":
		if err := checkArgs(assertion, 0, "timeout"); err != nil {
			return nil, err
		}
		return ExpectVisible{Locator: loc}, nil
	case "to_have_text", "to_contain_text":
		if err := checkArgs(assertion, 1, "expected", "timeout"); err != nil {
			return nil, err
		}
		text, err := stringArg(assertion, 0, "expected")
		if err != nil {
			return nil, err
		}
		return ExpectText{Locator: loc, Text: text, Contains: assertion.name == "to_contain_text"}, nil
	}
	return nil, fmt.Errorf("unsupported assertion %q", assertion.name)
}

func stringArg(seg segment, i int, kw string) (string, error) {
	if i < len(seg.args) && seg.args[i].str != nil {
		return *seg.args[i].str, nil
	}
	if v, ok := seg.kwarg(kw); ok && v.str != nil {
		return *v.str, nil
	}
	return "", fmt.Errorf("%s() needs a string %s", seg.name, kw)
}

func numberArg(seg segment, i int, kw string) (float64, error) {
	if i < len(seg.args) && seg.args[i].num != nil {
		return *seg.args[i].num, nil
	}
	if v, ok := seg.kwarg(kw); ok && v.num != nil {
		return *v.num, nil
	}
	return 0, fmt.Errorf("%s() needs a numeric %s", seg.name, kw)
}

func optString(seg segment, kw string) string {
	if v, ok := seg.kwarg(kw); ok && v.str != nil {
		return *v.str
	}
	return ""
}

func optBool(seg segment, kw string) bool {
	if v, ok := seg.kwarg(kw); ok && v.boolean != nil {
		return *v.boolean
	}
	return false
}

func optNumber(seg segment, kw string) float64 {
	if v, ok := seg.kwarg(kw); ok && v.num != nil {
		return *v.num
	}
	return 0
}

func optTimeout(seg segment, kw string) time.Duration {
	return time.Duration(optNumber(seg, kw)) * time.Millisecond
}
