package agent

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	PromptTranslator = "translator"
	PromptGenerator  = "generator"
)

// PromptManager assembles system prompts from markdown files. For a prompt
// named N it joins identity.md, N.md and any N_*.md extras, in that order.
// Without a directory, or when N.md is absent, the built-in prompt is used.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) TranslatorPrompt() (string, error) {
	return pm.Get(PromptTranslator)
}

func (pm *PromptManager) GeneratorPrompt() (string, error) {
	return pm.Get(PromptGenerator)
}

func (pm *PromptManager) Get(name string) (string, error) {
	if pm == nil || pm.Directory == "" {
		return builtinPrompt(name)
	}
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return builtinPrompt(name)
		}
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	order := map[string]int{
		"identity.md": 1,
		name + ".md":  2,
	}
	var picked []string
	hasMain := false
	for _, f := range files {
		n := f.Name()
		if f.IsDir() || !strings.HasSuffix(n, ".md") {
			continue
		}
		switch {
		case n == name+".md":
			hasMain = true
			picked = append(picked, n)
		case n == "identity.md", strings.HasPrefix(n, name+"_"):
			picked = append(picked, n)
		}
	}
	if !hasMain {
		return builtinPrompt(name)
	}

	sort.Slice(picked, func(i, j int) bool {
		oi, okI := order[picked[i]]
		oj, okJ := order[picked[j]]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return picked[i] < picked[j]
	})

	var contents []string
	for _, n := range picked {
		path := filepath.Join(pm.Directory, n)
		data, err := os.ReadFile(path)
		if err != nil {
			zap.L().Warn("Failed to read prompt file", zap.String("path", path), zap.Error(err))
			continue
		}
		contents = append(contents, string(data))
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

func builtinPrompt(name string) (string, error) {
	data, err := defaultPrompts.ReadFile("prompts/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("no prompt named %q", name)
	}
	return string(data), nil
}
