package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rahul/operator/internal/agent"
	"github.com/rahul/operator/internal/browser"
	"github.com/rahul/operator/internal/command"
	"github.com/rahul/operator/internal/governance"
)

const instructions = "open the shop\n\n  click login  \nopen the cart\n"

func TestRunCase_Success(t *testing.T) {
	l := &fakeLauncher{}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepLogin.Gherkin: {HighPrecision: []string{loginClick}},
		stepCart.Gherkin:  {HighPrecision: []string{"page.get_by_role('link', name='Cart').click()"}},
	}}
	snaps := &fakeSnapshots{}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepOpen, stepLogin, stepCart}}, g, WithSnapshotStore(snaps))

	res := r.RunCase(context.Background(), "https://shop.test/", instructions, nil)

	require.True(t, res.Success, res.ErrorMessage)
	assert.Empty(t, res.ErrorMessage)
	require.Len(t, res.Steps, 2, "initial page step is skipped")
	assert.Equal(t, "click login", res.Steps[0].NaturalLanguageStep)
	assert.Equal(t, "open the cart", res.Steps[1].NaturalLanguageStep)
	assert.Equal(t, loginClick, res.Steps[0].Instruction)
	assert.NotEmpty(t, res.Steps[0].Snapshot)
	assert.NotEmpty(t, res.RequestID())
	assert.Equal(t, "https://shop.test/", res.Metadata[MetaURL])
	assert.False(t, res.EndTime.Before(res.StartTime))
	assert.Equal(t, int32(4), snaps.saved.Load())

	s := l.only()
	assert.Equal(t, int32(1), s.stops.Load())
	assert.Equal(t, 1, s.navigations())
}

func TestRunCase_NoSkipWhenDisabled(t *testing.T) {
	l := &fakeLauncher{}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepOpen.Gherkin:  {HighPrecision: []string{"expect(page.get_by_text('Login')).to_be_visible()"}},
		stepLogin.Gherkin: {HighPrecision: []string{loginClick}},
	}}
	cfg := testConfig()
	cfg.SkipInitialNavigation = false
	r := New(cfg, l, fakeTranslator{steps: []agent.Step{stepOpen, stepLogin}}, g)

	res := r.RunCase(context.Background(), "https://shop.test/", instructions, nil)

	require.True(t, res.Success, res.ErrorMessage)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "open the shop", res.Steps[0].NaturalLanguageStep)
	assert.Equal(t, "click login", res.Steps[1].NaturalLanguageStep)
}

func TestRunCase_LinesOutOfRange(t *testing.T) {
	l := &fakeLauncher{}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepLogin.Gherkin: {HighPrecision: []string{loginClick}},
		stepCart.Gherkin:  {HighPrecision: []string{loginClick}},
	}}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin, stepCart}}, g)

	res := r.RunCase(context.Background(), "https://shop.test/", "click login and open the cart", nil)

	require.True(t, res.Success, res.ErrorMessage)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "click login and open the cart", res.Steps[0].NaturalLanguageStep)
	assert.Equal(t, "", res.Steps[1].NaturalLanguageStep)
}

func TestRunCase_StrictModeFallback(t *testing.T) {
	l := &fakeLauncher{session: func() *fakeSession {
		return &fakeSession{exec: func(cmd command.Command) browser.Outcome {
			switch cmd.(type) {
			case command.Navigate, command.WaitForLoadState:
				return browser.Outcome{Success: true}
			}
			return strictOnPlainClick(cmd)
		}}
	}}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepLogin.Gherkin: {
			HighPrecision: []string{loginClick},
			LowPrecision:  []string{"page.get_by_role('button').click()"},
		},
	}}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, g)

	res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

	require.True(t, res.Success, res.ErrorMessage)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "page.get_by_text('Login').nth(0).click()", res.Steps[0].Instruction)
	assert.Equal(t, []string{loginClick, "page.get_by_text('Login').nth(0).click()"}, l.only().actions())
}

func TestRunCase_TierOrder(t *testing.T) {
	var calls []string
	l := &fakeLauncher{session: func() *fakeSession {
		return &fakeSession{exec: func(cmd command.Command) browser.Outcome {
			if _, ok := cmd.(command.Click); !ok {
				return browser.Outcome{Success: true}
			}
			calls = append(calls, cmd.String())
			if strings.Contains(cmd.String(), "Sign in") {
				return browser.Outcome{Success: true}
			}
			return browser.Outcome{Error: "Timeout 5000ms exceeded"}
		}}
	}}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepLogin.Gherkin: {
			HighPrecision: []string{loginClick, "page.get_by_test_id('login').click()"},
			LowPrecision:  []string{"page.get_by_text('Sign in').click()", "page.get_by_text('Never').click()"},
		},
	}}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, g)

	res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, []string{
		loginClick,
		"page.get_by_test_id('login').click()",
		"page.get_by_text('Sign in').click()",
	}, calls)
	assert.Equal(t, "page.get_by_text('Sign in').click()", res.Steps[0].Instruction)
}

func TestRunCase_StepFailureStopsCase(t *testing.T) {
	l := &fakeLauncher{session: func() *fakeSession {
		return &fakeSession{exec: func(cmd command.Command) browser.Outcome {
			if _, ok := cmd.(command.Click); ok {
				return browser.Outcome{Error: "element is not visible"}
			}
			return browser.Outcome{Success: true}
		}}
	}}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepLogin.Gherkin: {HighPrecision: []string{loginClick}, LowPrecision: []string{"page.get_by_role('button').click()"}},
		stepCart.Gherkin:  {HighPrecision: []string{loginClick}},
	}}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin, stepCart}}, g)

	res := r.RunCase(context.Background(), "https://shop.test/", "click login\nopen the cart", nil)

	assert.False(t, res.Success)
	assert.Equal(t, "No valid instructions executed. Last error: element is not visible", res.ErrorMessage)
	require.Len(t, res.Steps, 1, "steps after a failure are not run")
	assert.False(t, res.Steps[0].Outcome.Success)
	assert.Equal(t, res.ErrorMessage, res.Steps[0].Outcome.Error)
	assert.Equal(t, "https://shop.test/", res.Steps[0].Outcome.PageURL)
	assert.Empty(t, res.Steps[0].Instruction)
	assert.Equal(t, int32(1), g.calls.Load())
	assert.Equal(t, int32(1), l.only().stops.Load())
}

func TestRunCase_StepFailureSkipsRemainingSteps(t *testing.T) {
	stepSearch := agent.Step{Text: "search shoes", Gherkin: "And I search for shoes", Action: agent.ActionFill}
	stepBuy := agent.Step{Text: "buy", Gherkin: "Then I buy the first result", Action: agent.ActionClick}
	cartClick := "page.get_by_role('link', name='Cart').click()"

	l := &fakeLauncher{session: func() *fakeSession {
		return &fakeSession{exec: func(cmd command.Command) browser.Outcome {
			if cmd.String() == cartClick {
				return browser.Outcome{Error: "element is detached"}
			}
			return browser.Outcome{Success: true}
		}}
	}}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepLogin.Gherkin:  {HighPrecision: []string{loginClick}},
		stepCart.Gherkin:   {HighPrecision: []string{cartClick}},
		stepSearch.Gherkin: {HighPrecision: []string{"page.get_by_placeholder('Search').fill('shoes')"}},
		stepBuy.Gherkin:    {HighPrecision: []string{"page.locator('.result').first.click()"}},
	}}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin, stepCart, stepSearch, stepBuy}}, g)

	res := r.RunCase(context.Background(), "https://shop.test/", "click login\nopen the cart\nsearch shoes\nbuy", nil)

	assert.False(t, res.Success)
	assert.Equal(t, "No valid instructions executed. Last error: element is detached", res.ErrorMessage)
	require.Len(t, res.Steps, 2)
	assert.True(t, res.Steps[0].Outcome.Success)
	assert.False(t, res.Steps[1].Outcome.Success)
	assert.Equal(t, int32(2), g.calls.Load(), "steps after the failure are never generated")
	assert.Equal(t, []string{loginClick, cartClick}, l.only().actions())
}

func TestRunCase_GenerationFailures(t *testing.T) {
	tests := []struct {
		name  string
		gen   *fakeGenerator
		wants string
	}{
		{
			name:  "generator error",
			gen:   &fakeGenerator{err: agent.ErrMalformedResponse},
			wants: "Step generation/execution failed: malformed model response",
		},
		{
			name:  "no candidates",
			gen:   &fakeGenerator{},
			wants: "Step generation/execution failed: no candidate instructions were generated",
		},
		{
			name: "nothing parses",
			gen: &fakeGenerator{byGherkin: map[string]agent.Candidates{
				stepLogin.Gherkin: {HighPrecision: []string{"driver.find_element('x')"}},
			}},
			wants: "Step generation/execution failed: no executable instructions",
		},
		{
			name:  "generator panics",
			gen:   &fakeGenerator{panic: "generator exploded"},
			wants: "generator exploded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLauncher{}
			r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, tt.gen)

			res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

			assert.False(t, res.Success)
			assert.Contains(t, res.ErrorMessage, tt.wants)
			require.Len(t, res.Steps, 1)
			assert.False(t, res.Steps[0].Outcome.Success)
			assert.Equal(t, int32(1), l.only().stops.Load())
		})
	}
}

func TestRunCase_UnparseableCandidateSkipped(t *testing.T) {
	l := &fakeLauncher{}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepLogin.Gherkin: {HighPrecision: []string{"not a command", loginClick}},
	}}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, g)

	res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, loginClick, res.Steps[0].Instruction)
	assert.Equal(t, []string{loginClick}, l.only().actions())
}

func TestRunCase_PolicyDenial(t *testing.T) {
	policy := governance.NewDefaultPolicyEngine()
	require.NoError(t, policy.DenyArguments(`(?i)^javascript:`))

	l := &fakeLauncher{}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepLogin.Gherkin: {HighPrecision: []string{"page.goto('javascript:alert(1)')"}},
	}}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, g, WithPolicy(policy))

	res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "No valid instructions executed. Last error: denied by policy")
	assert.Empty(t, l.only().actions(), "denied command never reaches the browser")
}

func TestRunCase_SnapshotPersistenceIsBestEffort(t *testing.T) {
	l := &fakeLauncher{}
	g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
		stepLogin.Gherkin: {HighPrecision: []string{loginClick}},
	}}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, g, WithSnapshotStore(&fakeSnapshots{err: errBoom}))

	res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

	assert.True(t, res.Success, res.ErrorMessage)
}

func TestRunCase_EmptySnapshot(t *testing.T) {
	l := &fakeLauncher{session: func() *fakeSession {
		return &fakeSession{content: func() (string, error) { return "  ", nil }}
	}}
	g := &fakeGenerator{}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, g)

	res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "failed to capture page snapshot")
	assert.Equal(t, int32(0), g.calls.Load())
}

func TestRunCase_Navigation(t *testing.T) {
	t.Run("fails after every attempt", func(t *testing.T) {
		l := &fakeLauncher{session: func() *fakeSession {
			return &fakeSession{exec: func(cmd command.Command) browser.Outcome {
				return browser.Outcome{Error: "net::ERR_CONNECTION_REFUSED"}
			}}
		}}
		g := &fakeGenerator{}
		r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, g)

		res := r.RunCase(context.Background(), "https://down.test/", "click login", nil)

		assert.False(t, res.Success)
		assert.Equal(t, "failed to navigate to https://down.test/ after 3 attempts", res.ErrorMessage)
		assert.Empty(t, res.Steps)
		s := l.only()
		assert.Equal(t, 3, s.navigations())
		assert.Equal(t, int32(1), s.stops.Load())
		assert.Equal(t, int32(0), g.calls.Load())
	})

	t.Run("succeeds on the last attempt after backoff", func(t *testing.T) {
		gotos := 0
		l := &fakeLauncher{session: func() *fakeSession {
			return &fakeSession{exec: func(cmd command.Command) browser.Outcome {
				if _, ok := cmd.(command.Navigate); ok {
					gotos++
					if gotos < 3 {
						return browser.Outcome{Error: "net::ERR_CONNECTION_RESET"}
					}
				}
				return browser.Outcome{Success: true}
			}}
		}}
		g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
			stepLogin.Gherkin: {HighPrecision: []string{loginClick}},
		}}
		cfg := testConfig()
		cfg.NavigationBackoff = 20 * time.Millisecond
		r := New(cfg, l, fakeTranslator{steps: []agent.Step{stepLogin}}, g, WithLogger(zap.NewNop()))

		res := r.RunCase(context.Background(), "https://flaky.test/", "click login", nil)

		require.True(t, res.Success, res.ErrorMessage)
		times := l.only().gotoTimes()
		require.Len(t, times, 3)
		for i := 1; i < len(times); i++ {
			assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), cfg.NavigationBackoff, "gap before attempt %d", i+1)
		}
		assert.Equal(t, []string{loginClick}, l.only().actions())
	})

	t.Run("network idle timeout counts as a failed attempt", func(t *testing.T) {
		attempts := 0
		l := &fakeLauncher{session: func() *fakeSession {
			return &fakeSession{exec: func(cmd command.Command) browser.Outcome {
				if _, ok := cmd.(command.WaitForLoadState); ok {
					attempts++
					if attempts < 2 {
						return browser.Outcome{Error: "Timeout 5000ms exceeded"}
					}
				}
				return browser.Outcome{Success: true}
			}}
		}}
		g := &fakeGenerator{byGherkin: map[string]agent.Candidates{
			stepLogin.Gherkin: {HighPrecision: []string{loginClick}},
		}}
		r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, g)

		res := r.RunCase(context.Background(), "https://slow.test/", "click login", nil)

		require.True(t, res.Success, res.ErrorMessage)
		assert.Equal(t, 2, l.only().navigations())
	})

	t.Run("attempts clamp to one", func(t *testing.T) {
		l := &fakeLauncher{session: func() *fakeSession {
			return &fakeSession{exec: func(command.Command) browser.Outcome {
				return browser.Outcome{Error: "nope"}
			}}
		}}
		cfg := testConfig()
		cfg.NavigationAttempts = 0
		r := New(cfg, l, fakeTranslator{steps: []agent.Step{stepLogin}}, &fakeGenerator{})

		res := r.RunCase(context.Background(), "https://down.test/", "click login", nil)

		assert.Equal(t, "failed to navigate to https://down.test/ after 1 attempts", res.ErrorMessage)
		assert.Equal(t, 1, l.only().navigations())
	})
}

func TestRunCase_TranslationFailure(t *testing.T) {
	l := &fakeLauncher{}
	r := newTestRunner(l, fakeTranslator{err: agent.ErrNoSteps}, &fakeGenerator{})

	res := r.RunCase(context.Background(), "https://shop.test/", "", nil)

	assert.False(t, res.Success)
	assert.Equal(t, "Step generation error: no steps were generated from the natural language input", res.ErrorMessage)
	assert.Equal(t, int32(0), l.starts.Load(), "no browser for an untranslatable case")
}

func TestRunCase_SessionFailure(t *testing.T) {
	l := &fakeLauncher{err: errBoom}
	r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, &fakeGenerator{})

	res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

	assert.False(t, res.Success)
	assert.Equal(t, "failed to initialize browser: boom", res.ErrorMessage)
}

func TestRunCase_Panics(t *testing.T) {
	t.Run("translator", func(t *testing.T) {
		l := &fakeLauncher{}
		r := newTestRunner(l, fakeTranslator{panic: "translator exploded"}, &fakeGenerator{})

		res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

		assert.False(t, res.Success)
		assert.Equal(t, "Unexpected error: translator exploded", res.ErrorMessage)
	})

	t.Run("navigation releases the session once", func(t *testing.T) {
		l := &fakeLauncher{session: func() *fakeSession {
			return &fakeSession{exec: func(command.Command) browser.Outcome { panic("driver crashed") }}
		}}
		r := newTestRunner(l, fakeTranslator{steps: []agent.Step{stepLogin}}, &fakeGenerator{})

		res := r.RunCase(context.Background(), "https://shop.test/", "click login", nil)

		assert.False(t, res.Success)
		assert.Equal(t, "Unexpected error: driver crashed", res.ErrorMessage)
		assert.Equal(t, int32(1), l.only().stops.Load())
	})
}

func TestRunCase_CancelledContextStillReleases(t *testing.T) {
	l := &fakeLauncher{session: func() *fakeSession {
		return &fakeSession{exec: func(command.Command) browser.Outcome {
			return browser.Outcome{Error: "context canceled"}
		}}
	}}
	cfg := testConfig()
	cfg.NavigationBackoff = time.Hour
	r := New(cfg, l, fakeTranslator{steps: []agent.Step{stepLogin}}, &fakeGenerator{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.RunCase(ctx, "https://shop.test/", "click login", nil)

	assert.False(t, res.Success)
	assert.Equal(t, "failed to navigate to https://shop.test/ after 1 attempts", res.ErrorMessage)
	assert.Equal(t, 1, l.only().navigations(), "backoff aborts on cancellation")
	assert.Equal(t, int32(1), l.only().stops.Load())
}

func TestCaseMessage(t *testing.T) {
	assert.Equal(t, "Unexpected error: boom", caseMessage(errBoom))
	assert.Equal(t, "step says no", caseMessage(&StepExecutionError{Message: "step says no"}))
	assert.Equal(t, "failed to initialize browser: boom", caseMessage(&SessionError{Err: errBoom}))
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, splitLines("\n  a \n\n\tb c\n"))
	assert.Empty(t, splitLines("   \n"))
}
