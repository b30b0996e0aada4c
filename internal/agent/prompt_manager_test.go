package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptManager_Order(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"identity.md":     "Identity Content",
		"generator.md":    "Generator Content",
		"generator_zz.md": "Extra Z",
		"generator_aa.md": "Extra A",
		"translator.md":   "Translator Content",
		"notes.txt":       "ignored",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	prompt, err := NewPromptManager(dir).GeneratorPrompt()
	require.NoError(t, err)

	assert.NotContains(t, prompt, "Translator Content")
	assert.NotContains(t, prompt, "ignored")

	order := []string{"Identity Content", "Generator Content", "Extra A", "Extra Z"}
	for i := 1; i < len(order); i++ {
		assert.Less(t, strings.Index(prompt, order[i-1]), strings.Index(prompt, order[i]),
			"%s should come before %s", order[i-1], order[i])
	}
}

func TestPromptManager_Builtin(t *testing.T) {
	prompt, err := NewPromptManager("").TranslatorPrompt()
	require.NoError(t, err)
	assert.Contains(t, prompt, "emit_steps")

	prompt, err = NewPromptManager(filepath.Join(t.TempDir(), "missing")).GeneratorPrompt()
	require.NoError(t, err)
	assert.Contains(t, prompt, "propose_instructions")

	_, err = NewPromptManager("").Get("planner")
	assert.Error(t, err)
}
