package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/operator/internal/agent"
	"github.com/rahul/operator/internal/browser"
	"github.com/rahul/operator/internal/command"
)

const testPage = `<html><head><title>Shop</title></head><body><button>Login</button><a href="/cart">Cart</a></body></html>`

type fakeSession struct {
	mu       sync.Mutex
	exec     func(cmd command.Command) browser.Outcome
	content  func() (string, error)
	executed []string
	at       []time.Time
	stops    atomic.Int32
}

func (s *fakeSession) Execute(_ context.Context, cmd command.Command) browser.Outcome {
	s.mu.Lock()
	s.executed = append(s.executed, cmd.String())
	s.at = append(s.at, time.Now())
	s.mu.Unlock()
	if s.exec == nil {
		return browser.Outcome{Success: true, PageURL: "https://shop.test/"}
	}
	return s.exec(cmd)
}

func (s *fakeSession) PageContent(context.Context) (string, error) {
	if s.content == nil {
		return testPage, nil
	}
	return s.content()
}

func (s *fakeSession) URL() string { return "https://shop.test/" }

func (s *fakeSession) Stop(context.Context) error {
	s.stops.Add(1)
	return nil
}

// actions returns the executed commands other than the initial navigation.
func (s *fakeSession) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.executed {
		if strings.HasPrefix(c, "page.goto(") || strings.HasPrefix(c, "page.wait_for_load_state(") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *fakeSession) navigations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.executed {
		if strings.HasPrefix(c, "page.goto(") {
			n++
		}
	}
	return n
}

// gotoTimes returns when each page.goto was issued.
func (s *fakeSession) gotoTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for i, c := range s.executed {
		if strings.HasPrefix(c, "page.goto(") {
			out = append(out, s.at[i])
		}
	}
	return out
}

type fakeLauncher struct {
	session func() *fakeSession
	err     error
	starts  atomic.Int32

	mu       sync.Mutex
	sessions []*fakeSession
}

func (l *fakeLauncher) Start(context.Context, browser.Options) (browser.Session, error) {
	l.starts.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	s := &fakeSession{}
	if l.session != nil {
		s = l.session()
	}
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

func (l *fakeLauncher) only() *fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sessions) != 1 {
		panic("expected exactly one session")
	}
	return l.sessions[0]
}

type fakeTranslator struct {
	steps []agent.Step
	err   error
	panic any
}

func (t fakeTranslator) Translate(context.Context, string) ([]agent.Step, error) {
	if t.panic != nil {
		panic(t.panic)
	}
	return t.steps, t.err
}

type fakeGenerator struct {
	byGherkin map[string]agent.Candidates
	err       error
	panic     any
	calls     atomic.Int32
}

func (g *fakeGenerator) Generate(_ context.Context, _, gherkin string) (agent.Candidates, error) {
	g.calls.Add(1)
	if g.panic != nil {
		panic(g.panic)
	}
	if g.err != nil {
		return agent.Candidates{}, g.err
	}
	return g.byGherkin[gherkin], nil
}

type fakeSnapshots struct {
	err   error
	saved atomic.Int32
}

func (f *fakeSnapshots) SaveSnapshot(context.Context, string) error {
	f.saved.Add(1)
	return f.err
}

func (f *fakeSnapshots) SaveSnapshotHTML(context.Context, string) error {
	f.saved.Add(1)
	return f.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NavigationBackoff = time.Millisecond
	cfg.CommandTimeout = time.Second
	cfg.ScreenshotDir = ""
	cfg.TraceDir = ""
	return cfg
}

func newTestRunner(l *fakeLauncher, t fakeTranslator, g *fakeGenerator, opts ...Option) *Runner {
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return New(testConfig(), l, t, g, opts...)
}

var (
	stepOpen  = agent.Step{Text: "open the shop", Gherkin: "Given I am on the shop home page", Action: agent.ActionNavigate}
	stepLogin = agent.Step{Text: "click login", Gherkin: "When I click the Login button", Action: agent.ActionClick}
	stepCart  = agent.Step{Text: "open the cart", Gherkin: "And I open the cart", Action: agent.ActionClick}
)

const loginClick = "page.get_by_text('Login').click()"

var errBoom = errors.New("boom")

// strictOnPlainClick fails any click whose locator has no index with a strict
// mode violation.
func strictOnPlainClick(cmd command.Command) browser.Outcome {
	if c, ok := cmd.(command.Click); ok && !strings.Contains(c.String(), ".nth(") {
		return browser.Outcome{Error: "Error: strict mode violation: " + c.Locator.String() + " resolved to 2 elements"}
	}
	return browser.Outcome{Success: true}
}
