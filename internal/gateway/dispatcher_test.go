package gateway

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rahul/operator/internal/runner"
	"github.com/rahul/operator/internal/store"
)

type fakeRunner struct {
	url, steps string
}

func (f *fakeRunner) RunCase(_ context.Context, url, steps string, _ *bool) runner.CaseResult {
	f.url, f.steps = url, steps
	return runner.CaseResult{
		Success:      false,
		ErrorMessage: "failed to navigate to " + url + " after 3 attempts",
		Metadata:     map[string]string{runner.MetaRequestID: "req-1", runner.MetaURL: url},
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeRunner, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "operator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	r := &fakeRunner{}
	d := NewDispatcher(r, st, st)
	d.log = zap.NewNop()
	return d, r, st
}

func TestDispatcher_Run(t *testing.T) {
	d, r, _ := newTestDispatcher(t)
	ctx := context.Background()

	reply := d.Handle(ctx, NameTelegram, "42", "/run https://shop.test/\nclick login\nopen the cart")
	assert.Equal(t, "https://shop.test/", r.url)
	assert.Equal(t, "click login\nopen the cart", r.steps)
	assert.Contains(t, reply, "❌")
	assert.Contains(t, reply, "failed to navigate to https://shop.test/")

	reply = d.Handle(ctx, NameTelegram, "42", "/run@operator_bot shop.test\nclick")
	assert.Contains(t, reply, "url must start with http")

	reply = d.Handle(ctx, NameTelegram, "42", "/run https://shop.test/")
	assert.Contains(t, reply, "instructions")
}

func TestDispatcher_Schedules(t *testing.T) {
	d, _, st := newTestDispatcher(t)
	ctx := context.Background()

	reply := d.Handle(ctx, NameDiscord, "chan-1", "/schedule 1h https://shop.test/\nclick login")
	assert.Equal(t, "Scheduled case #1 to run every 1h0m0s.", reply)
	reply = d.Handle(ctx, NameDiscord, "chan-1", "/schedule once https://shop.test/\nclick login")
	assert.Equal(t, "Scheduled case #2 to run once.", reply)
	assert.Contains(t, d.Handle(ctx, NameDiscord, "chan-1", "/schedule 5s https://shop.test/\nclick"), "at least 1m")

	due, err := st.DueSchedules(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, NameDiscord, due[0].Gateway)

	list := d.Handle(ctx, NameDiscord, "chan-1", "/schedules")
	assert.Contains(t, list, "#1 https://shop.test/ (every 1h0m0s, last run never)")
	assert.Contains(t, list, "#2 https://shop.test/ (once")
	assert.Equal(t, "No schedules.", d.Handle(ctx, NameDiscord, "other", "/schedules"))

	assert.Equal(t, "Removed schedule #1.", d.Handle(ctx, NameDiscord, "chan-1", "/unschedule #1"))
	assert.Contains(t, d.Handle(ctx, NameDiscord, "chan-1", "/unschedule 1"), "not found")
	assert.Equal(t, "Removed 1 schedule(s).", d.Handle(ctx, NameDiscord, "chan-1", "/clear"))
}

func TestDispatcher_History(t *testing.T) {
	d, _, st := newTestDispatcher(t)
	ctx := context.Background()

	assert.Equal(t, "No runs yet.", d.Handle(ctx, NameTelegram, "42", "/history"))
	require.NoError(t, st.RecordRun(ctx, store.CaseRun{
		RequestID:    "req-1",
		URL:          "https://shop.test/",
		ErrorMessage: "boom",
		StartTime:    time.Now(),
		EndTime:      time.Now(),
	}))
	out := d.Handle(ctx, NameTelegram, "42", "/history 3")
	assert.Contains(t, out, "❌")
	assert.Contains(t, out, "   boom")
	assert.Contains(t, d.Handle(ctx, NameTelegram, "42", "/history zero"), "invalid count")
}

func TestDispatcher_HelpAndStatus(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	assert.Equal(t, helpText, d.Handle(ctx, NameTelegram, "42", "hello there"))
	assert.Equal(t, helpText, d.Handle(ctx, NameTelegram, "42", "   "))
	assert.True(t, strings.HasPrefix(d.Handle(ctx, NameTelegram, "42", "/status"), "IDLE"))
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunk("short", 10))

	parts := chunk("aaaa\nbbbb\ncccc\n", 10)
	assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc\n"}, parts)

	parts = chunk("abcdefghijklmnopqrstuvwxy", 10)
	assert.Equal(t, []string{"abcdefghij", "klmnopqrst", "uvwxy"}, parts)
	for _, p := range chunk(strings.Repeat("line of text\n", 50), 64) {
		assert.LessOrEqual(t, len([]rune(p)), 64)
	}
}
