// Package fallback derives a replacement command when a generated command
// fails in a recognised way.
package fallback

import (
	"strings"

	"github.com/rahul/operator/internal/command"
)

// DefaultStrictModeMarker is the error fragment Playwright emits when a
// locator matches more than one element.
const DefaultStrictModeMarker = "strict mode violation"

// Category is the structural class of an execution failure.
type Category string

const (
	CategoryStrictMode Category = "strict_mode"
	CategoryTimeout    Category = "timeout"
	CategoryNotFound   Category = "not_found"
	CategoryOther      Category = "other"
)

// Rule rewrites a failed command. It returns false when it has no replacement.
type Rule func(cmd command.Command, errText string) (command.Command, bool)

// Strategy maps failure categories to rewrite rules. It is pure and safe for
// concurrent use once built.
type Strategy struct {
	marker string
	rules  map[Category][]Rule
}

type Option func(*Strategy)

// WithStrictModeMarker overrides the substring that classifies an error as a
// strict mode violation. Matching is case-insensitive.
func WithStrictModeMarker(marker string) Option {
	return func(s *Strategy) {
		if marker != "" {
			s.marker = strings.ToLower(marker)
		}
	}
}

// WithRule registers an additional rule for a category. Rules are tried in
// registration order.
func WithRule(c Category, r Rule) Option {
	return func(s *Strategy) {
		s.rules[c] = append(s.rules[c], r)
	}
}

// New returns a strategy with the first-match click rule installed.
func New(opts ...Option) *Strategy {
	s := &Strategy{
		marker: DefaultStrictModeMarker,
		rules: map[Category][]Rule{
			CategoryStrictMode: {FirstMatchClick},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classify buckets an error message.
func (s *Strategy) Classify(errText string) Category {
	lower := strings.ToLower(errText)
	switch {
	case lower == "":
		return CategoryOther
	case strings.Contains(lower, s.marker):
		return CategoryStrictMode
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(lower, "no element") || strings.Contains(lower, "not found") || strings.Contains(lower, "resolved to 0"):
		return CategoryNotFound
	}
	return CategoryOther
}

// Derive returns at most one replacement for cmd given its failure text.
func (s *Strategy) Derive(cmd command.Command, errText string) (command.Command, bool) {
	for _, rule := range s.rules[s.Classify(errText)] {
		if next, ok := rule(cmd, errText); ok {
			return next, true
		}
	}
	return nil, false
}

// FirstMatchClick narrows an ambiguous click to the first matching element.
func FirstMatchClick(cmd command.Command, _ string) (command.Command, bool) {
	click, ok := cmd.(command.Click)
	if !ok {
		return nil, false
	}
	return command.Click{Locator: click.Locator.Nth(0)}, true
}
