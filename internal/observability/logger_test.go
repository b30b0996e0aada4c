package observability

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rahul/operator/pkg/config"
)

func TestInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{Level: "debug", Format: "json"}, zapcore.AddSync(&buf))
	GetLogger().Debug("hello", zap.String("k", "v"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "DEBUG", line["level"])
	assert.Equal(t, "v", line["k"])
}

func TestLogger_LLMFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "llm.jsonl")
	l := NewLogger(zap.NewNop(), path)

	l.LogLLM("req-1", "generate", "prompt text", "response text", nil)
	l.LogStep("req-1", 0, "When I click login", true)
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &evt))
		events = append(events, evt)
	}
	require.Len(t, events, 1, "only llm events go to the file")
	assert.Equal(t, EventTypeLLM, events[0].Type)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.LogCase("r", "https://example.com", true, "", 0)
		l.LogLLM("r", "translate", nil, "", nil)
		_ = l.Close()
	})
}

func TestStatus(t *testing.T) {
	before := Snapshot()

	BeginCase(RoleRunning, "aaa")
	BeginCase(RoleRunning, "bbb")
	BeginStep("aaa", 0, 4)
	BeginStep("bbb", 1, 3)
	st := Snapshot()
	assert.Equal(t, RoleRunning, st.Role)
	assert.Equal(t, "bbb", st.ActiveCase)
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 2, st.Step, "steps of a case not shown are ignored")
	assert.Equal(t, 3, st.Steps)

	EndCase(true)
	st = Snapshot()
	assert.Equal(t, RoleRunning, st.Role)
	assert.Equal(t, 1, st.Active)

	EndCase(false)
	st = Snapshot()
	assert.Equal(t, RoleIdle, st.Role)
	assert.Empty(t, st.ActiveCase)
	assert.Zero(t, st.Active)
	assert.Zero(t, st.Steps)
	assert.Equal(t, before.Passed+1, st.Passed)
	assert.Equal(t, before.Failed+1, st.Failed)
}

func TestRoleFrom(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, RoleRunning, RoleFrom(ctx))
	assert.Equal(t, RoleScheduled, RoleFrom(WithRole(ctx, RoleScheduled)))
	assert.Equal(t, "req-9", RequestID(WithRequestID(ctx, "req-9")))
	assert.Empty(t, RequestID(ctx))
}
