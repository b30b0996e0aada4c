package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/rahul/operator/internal/observability"
)

// client is the model plumbing shared by the translator and the generator.
type client struct {
	Model       llms.Model
	Prompts     *PromptManager
	Limiter     *rate.Limiter
	Events      *observability.Logger
	Temperature float64
}

// NewLimiter allows requestsPerMinute model calls per minute. Zero means
// unlimited.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1)
}

// invoke sends system and user messages offering a single tool, and returns
// the raw JSON payload of the tool call or, failing that, of the text reply.
func (c *client) invoke(ctx context.Context, purpose, system, user string, tool llms.Tool) (string, error) {
	if c.Model == nil {
		return "", errors.New("no model configured")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	resp, err := c.Model.GenerateContent(ctx, messages,
		llms.WithTools([]llms.Tool{tool}),
		llms.WithTemperature(c.Temperature),
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	c.Events.LogLLM(observability.RequestID(ctx), purpose, user, choice.Content, choice.ToolCalls)

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == tool.Function.Name {
			return tc.FunctionCall.Arguments, nil
		}
	}
	if payload, ok := extractJSON(choice.Content); ok {
		return payload, nil
	}
	return "", fmt.Errorf("%w: model neither called %s nor returned JSON", ErrMalformedResponse, tool.Function.Name)
}

// extractJSON finds a JSON object or array in free text, tolerating code
// fences and surrounding prose.
func extractJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}
