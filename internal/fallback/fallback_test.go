package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/operator/internal/command"
)

const strictErr = `Error: strict mode violation: get_by_text("Login") resolved to 2 elements`

func mustParse(t *testing.T, s string) command.Command {
	t.Helper()
	cmd, err := command.Parse(s)
	require.NoError(t, err)
	return cmd
}

func TestDerive_StrictModeClick(t *testing.T) {
	s := New()
	next, ok := s.Derive(mustParse(t, "page.get_by_text('Login').click()"), strictErr)
	require.True(t, ok)
	assert.Equal(t, "page.get_by_text('Login').nth(0).click()", next.String())
}

func TestDerive_CaseInsensitiveMarker(t *testing.T) {
	s := New()
	_, ok := s.Derive(mustParse(t, "page.locator('a').click()"), "STRICT MODE VIOLATION somewhere")
	assert.True(t, ok)
}

func TestDerive_NoReplacement(t *testing.T) {
	s := New()

	_, ok := s.Derive(mustParse(t, "page.locator('#q').fill('x')"), strictErr)
	assert.False(t, ok, "only clicks are rewritten")

	_, ok = s.Derive(mustParse(t, "page.get_by_text('Login').click()"), "Timeout 5000ms exceeded")
	assert.False(t, ok, "non strict-mode failures have no rule")
}

func TestCustomMarkerAndRule(t *testing.T) {
	hoverFirst := func(cmd command.Command, _ string) (command.Command, bool) {
		h, ok := cmd.(command.Hover)
		if !ok {
			return nil, false
		}
		return command.Hover{Locator: h.Locator.Nth(0)}, true
	}
	s := New(WithStrictModeMarker("ambiguous locator"), WithRule(CategoryStrictMode, hoverFirst))

	_, ok := s.Derive(mustParse(t, "page.get_by_text('x').click()"), strictErr)
	assert.False(t, ok, "default marker no longer matches")

	next, ok := s.Derive(mustParse(t, "page.locator('li').hover()"), "Ambiguous locator: 3 matches")
	require.True(t, ok)
	assert.Equal(t, "page.locator('li').nth(0).hover()", next.String())
}

func TestClassify(t *testing.T) {
	s := New()
	tests := map[string]Category{
		strictErr:                        CategoryStrictMode,
		"Timeout 30000ms exceeded.":      CategoryTimeout,
		"context deadline exceeded":      CategoryTimeout,
		"locator resolved to 0 elements": CategoryNotFound,
		"net::ERR_NAME_NOT_RESOLVED":     CategoryOther,
		"":                               CategoryOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, s.Classify(in), in)
	}
}
