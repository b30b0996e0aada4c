// Package governance decides whether a generated command may run.
package governance

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rahul/operator/internal/command"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the command to be evaluated.
type Request struct {
	Command   command.Command
	RequestID string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

func (r Result) Allowed() bool { return r.Effect != EffectDeny }

// PolicyEngine evaluates commands against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies by command kind or by a pattern matching one
// of the command's arguments.
type DefaultPolicyEngine struct {
	DeniedKinds map[command.Kind]bool
	DeniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedKinds: make(map[command.Kind]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// NewPolicyEngine builds an engine from configured kinds and patterns.
func NewPolicyEngine(kinds, patterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, k := range kinds {
		e.DenyKind(command.Kind(k))
	}
	for _, p := range patterns {
		if err := e.DenyArguments(p); err != nil {
			return nil, fmt.Errorf("governance pattern %q: %w", p, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyKind(kind command.Kind) {
	e.DeniedKinds[kind] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if req.Command == nil {
		return Result{}, fmt.Errorf("no command to evaluate")
	}
	if e.DeniedKinds[req.Command.Kind()] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("command %q is restricted by policy", req.Command.Kind()),
		}, nil
	}

	for _, arg := range arguments(req.Command) {
		for _, re := range e.DeniedRegex {
			if re.MatchString(arg) {
				return Result{
					Effect: EffectDeny,
					Reason: fmt.Sprintf("argument %q matches restricted pattern: %s", arg, re.String()),
				}, nil
			}
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

// arguments lists the free-text values a command carries.
func arguments(cmd command.Command) []string {
	switch c := cmd.(type) {
	case command.Navigate:
		return []string{c.URL}
	case command.Fill:
		return []string{c.Value}
	case command.SelectOption:
		return []string{c.Value}
	case command.Press:
		return []string{c.Key}
	case command.ExpectText:
		return []string{c.Text}
	}
	return nil
}
