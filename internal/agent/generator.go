package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/rahul/operator/internal/observability"
)

var proposeInstructionsTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "propose_instructions",
		Description: "Submit candidate Playwright commands for the step, split by precision.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"high_precision": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Commands most likely to match exactly one element, best first.",
				},
				"low_precision": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Broader alternatives tried only if every high precision command fails.",
				},
			},
			"required": []string{"high_precision", "low_precision"},
		},
	},
}

// Generator proposes candidate commands for one step on the current page.
type Generator struct {
	client
}

func NewGenerator(model llms.Model, prompts *PromptManager, limiter *rate.Limiter, events *observability.Logger) *Generator {
	return &Generator{client{Model: model, Prompts: prompts, Limiter: limiter, Events: events}}
}

// Generate asks the model for candidates given the page summary and the
// step's Gherkin phrasing. Undecodable output wraps ErrMalformedResponse.
func (g *Generator) Generate(ctx context.Context, snapshot, gherkin string) (Candidates, error) {
	system, err := g.Prompts.GeneratorPrompt()
	if err != nil {
		return Candidates{}, err
	}
	user := fmt.Sprintf("PAGE SNAPSHOT:\n%s\n\nSTEP:\n%s", snapshot, gherkin)
	payload, err := g.invoke(ctx, "generate", system, user, proposeInstructionsTool)
	if err != nil {
		return Candidates{}, err
	}
	return decodeCandidates(payload)
}

func decodeCandidates(payload string) (Candidates, error) {
	var c Candidates
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Candidates{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	c.HighPrecision = compact(c.HighPrecision)
	c.LowPrecision = compact(c.LowPrecision)
	return c, nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
