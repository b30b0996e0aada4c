package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/operator/internal/command"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()
	click, err := command.Parse("page.get_by_text('Login').click()")
	require.NoError(t, err)

	res, err := engine.Evaluate(ctx, Request{Command: click})
	require.NoError(t, err)
	assert.Equal(t, EffectAllow, res.Effect)

	engine.DenyKind(command.KindClick)
	res, err = engine.Evaluate(ctx, Request{Command: click})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, res.Effect)
	assert.False(t, res.Allowed())
}

func TestNewPolicyEngine_Patterns(t *testing.T) {
	engine, err := NewPolicyEngine(nil, []string{`(?i)^javascript:`, `(?i)^file://`})
	require.NoError(t, err)
	ctx := context.Background()

	tests := map[string]Effect{
		"page.goto('JavaScript:alert(1)')":        EffectDeny,
		"page.goto('file:///etc/passwd')":         EffectDeny,
		"page.goto('https://example.com')":        EffectAllow,
		"page.locator('#q').fill('javascript:x')": EffectDeny,
		"page.get_by_text('file://').click()":     EffectAllow,
	}
	for in, want := range tests {
		cmd, err := command.Parse(in)
		require.NoError(t, err, in)
		res, err := engine.Evaluate(ctx, Request{Command: cmd})
		require.NoError(t, err)
		assert.Equal(t, want, res.Effect, in)
	}

	_, err = NewPolicyEngine(nil, []string{"("})
	assert.Error(t, err)

	_, err = engine.Evaluate(ctx, Request{})
	assert.Error(t, err)
}
