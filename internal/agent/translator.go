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

var emitStepsTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "emit_steps",
		Description: "Submit the ordered Gherkin steps for the instructions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"steps": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"text": map[string]any{
								"type": "string",
							},
							"gherkin": map[string]any{
								"type": "string",
							},
							"action": map[string]any{
								"type": "string",
								"enum": []string{"navigate", "click", "fill", "select", "hover", "press", "wait", "assert"},
							},
						},
						"required": []string{"gherkin", "action"},
					},
				},
			},
			"required": []string{"steps"},
		},
	},
}

// Translator converts natural-language instructions into structured steps.
type Translator struct {
	client
}

func NewTranslator(model llms.Model, prompts *PromptManager, limiter *rate.Limiter, events *observability.Logger) *Translator {
	return &Translator{client{Model: model, Prompts: prompts, Limiter: limiter, Events: events}}
}

// Translate returns the steps in execution order. It returns ErrNoSteps when
// the model produced none.
func (t *Translator) Translate(ctx context.Context, instructions string) ([]Step, error) {
	if strings.TrimSpace(instructions) == "" {
		return nil, ErrNoSteps
	}
	system, err := t.Prompts.TranslatorPrompt()
	if err != nil {
		return nil, err
	}
	payload, err := t.invoke(ctx, "translate", system, instructions, emitStepsTool)
	if err != nil {
		return nil, err
	}
	steps, err := decodeSteps(payload)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	return steps, nil
}

type rawStep struct {
	Text    string `json:"text"`
	Gherkin string `json:"gherkin"`
	Step    string `json:"step"`
	Action  string `json:"action"`
}

// decodeSteps accepts {"steps": [...]} or a bare array.
func decodeSteps(payload string) ([]Step, error) {
	var raws []rawStep
	var wrapped struct {
		Steps []rawStep `json:"steps"`
	}
	if err := json.Unmarshal([]byte(payload), &wrapped); err == nil && wrapped.Steps != nil {
		raws = wrapped.Steps
	} else if err := json.Unmarshal([]byte(payload), &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	steps := make([]Step, 0, len(raws))
	for _, r := range raws {
		gherkin := strings.TrimSpace(r.Gherkin)
		if gherkin == "" {
			gherkin = strings.TrimSpace(r.Step)
		}
		if gherkin == "" {
			continue
		}
		steps = append(steps, Step{
			Text:    strings.TrimSpace(r.Text),
			Gherkin: gherkin,
			Action:  ParseActionKind(r.Action),
		})
	}
	return steps, nil
}
