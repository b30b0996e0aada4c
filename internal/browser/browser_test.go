package browser

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLauncher(t *testing.T) {
	l, err := NewLauncher("")
	require.NoError(t, err)
	assert.IsType(t, &PlaywrightLauncher{}, l)

	l, err = NewLauncher(BackendChromedp)
	require.NoError(t, err)
	assert.IsType(t, &ChromedpLauncher{}, l)

	_, err = NewLauncher("selenium")
	assert.Error(t, err)
}

func TestScreenshotPath(t *testing.T) {
	p, err := screenshotPath("")
	require.NoError(t, err)
	assert.Empty(t, p, "no directory disables screenshots")

	dir := filepath.Join(t.TempDir(), "shots")
	a, err := screenshotPath(dir)
	require.NoError(t, err)
	b, err := screenshotPath(dir)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, dir, filepath.Dir(a))
	assert.DirExists(t, dir)
}

func TestFailed(t *testing.T) {
	out := failed(errors.New("boom"), time.Now())
	assert.False(t, out.Success)
	assert.Equal(t, "boom", out.Error)
}

func TestKeyFor(t *testing.T) {
	k, err := keyFor("Enter")
	require.NoError(t, err)
	assert.Equal(t, "\r", k)

	k, err = keyFor("a")
	require.NoError(t, err)
	assert.Equal(t, "a", k)

	_, err = keyFor("Hyper")
	assert.Error(t, err)
}

func TestWaitCondition(t *testing.T) {
	one := resolution{Count: 1, Visible: true}
	hiddenOne := resolution{Count: 1}
	none := resolution{}

	assert.True(t, waitCondition("visible")(one))
	assert.False(t, waitCondition("visible")(hiddenOne))
	assert.True(t, waitCondition("hidden")(hiddenOne))
	assert.True(t, waitCondition("hidden")(none))
	assert.True(t, waitCondition("attached")(hiddenOne))
	assert.True(t, waitCondition("detached")(none))
	assert.False(t, waitCondition("detached")(one))
}
