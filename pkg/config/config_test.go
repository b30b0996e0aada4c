package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "playwright", cfg.Browser.Backend)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 5*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, 3, cfg.Runner.NavigationAttempts)
	assert.Equal(t, 2*time.Second, cfg.Runner.NavigationBackoff)
	assert.Equal(t, "strict mode violation", cfg.Runner.StrictModeMarker)
	assert.True(t, cfg.Runner.SkipInitialNavigation)
	assert.Equal(t, 2, cfg.Runner.SuiteConcurrency)
	assert.Contains(t, cfg.Governance.DenyPatterns, `(?i)^javascript:`)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
browser:
  backend: chromedp
  timeout: 8s
providers:
  openrouter:
    model: some/model
    enabled: true
gateways:
  telegram:
    token: abc
    enabled: true
  discord:
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	t.Setenv("OPERATOR_RUNNER_SUITE_CONCURRENCY", "5")
	t.Setenv("OPERATOR_OPENROUTER_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "chromedp", cfg.Browser.Backend)
	assert.Equal(t, 8*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, 5, cfg.Runner.SuiteConcurrency)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openrouter", name)
	assert.Equal(t, "sk-test", p.APIKey)

	_, ok := cfg.GetGatewayConfig("telegram")
	assert.True(t, ok)
	_, ok = cfg.GetGatewayConfig("discord")
	assert.False(t, ok, "enabled without token is unusable")
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"browser":{"backend":"selenium"}}`), 0644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.backend")

	require.NoError(t, os.WriteFile(path, []byte(`{"ai":{"provider":"nope"}}`), 0644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai.provider")
}

func TestApplyProfile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.NoError(t, cfg.ApplyProfile("debug"))
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, "debug_screenshots", cfg.Browser.ScreenshotDir)

	require.NoError(t, cfg.ApplyProfile("test"))
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 15*time.Second, cfg.Browser.Timeout)

	require.NoError(t, cfg.ApplyProfile("mobile"))
	assert.Equal(t, 375, cfg.Browser.ViewportWidth)

	assert.Error(t, cfg.ApplyProfile("turbo"))
}
