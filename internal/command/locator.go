package command

import (
	"fmt"
	"strings"
)

// LocatorKind identifies one link of a locator chain.
type LocatorKind string

const (
	LocatorCSS         LocatorKind = "locator"
	LocatorText        LocatorKind = "get_by_text"
	LocatorRole        LocatorKind = "get_by_role"
	LocatorLabel       LocatorKind = "get_by_label"
	LocatorPlaceholder LocatorKind = "get_by_placeholder"
	LocatorTestID      LocatorKind = "get_by_test_id"
	LocatorAltText     LocatorKind = "get_by_alt_text"
	LocatorTitle       LocatorKind = "get_by_title"
	LocatorNth         LocatorKind = "nth"
	LocatorFirst       LocatorKind = "first"
	LocatorLast        LocatorKind = "last"
)

// LocatorStep is a single query or index refinement.
type LocatorStep struct {
	Kind  LocatorKind `json:"kind"`
	Value string      `json:"value,omitempty"`
	Name  string      `json:"name,omitempty"` // accessible name for get_by_role
	Exact bool        `json:"exact,omitempty"`
	Index int         `json:"index,omitempty"`
}

// IsIndex reports whether the step picks one element out of a match set.
func (s LocatorStep) IsIndex() bool {
	return s.Kind == LocatorNth || s.Kind == LocatorFirst || s.Kind == LocatorLast
}

func (s LocatorStep) String() string {
	switch s.Kind {
	case LocatorNth:
		return fmt.Sprintf("nth(%d)", s.Index)
	case LocatorFirst, LocatorLast:
		// Rendered as properties, matching the Python API.
		return string(s.Kind)
	case LocatorRole:
		var b strings.Builder
		b.WriteString("get_by_role(")
		b.WriteString(quote(s.Value))
		if s.Name != "" {
			b.WriteString(", name=")
			b.WriteString(quote(s.Name))
		}
		if s.Exact {
			b.WriteString(", exact=True")
		}
		b.WriteString(")")
		return b.String()
	default:
		if s.Exact {
			return fmt.Sprintf("%s(%s, exact=True)", s.Kind, quote(s.Value))
		}
		return fmt.Sprintf("%s(%s)", s.Kind, quote(s.Value))
	}
}

// Locator is an ordered chain of steps evaluated from the page root.
type Locator struct {
	Steps []LocatorStep `json:"steps"`
}

// IsZero reports whether the locator has no steps.
func (l Locator) IsZero() bool { return len(l.Steps) == 0 }

// Nth returns a copy of the locator narrowed to the i-th match.
func (l Locator) Nth(i int) Locator {
	steps := make([]LocatorStep, len(l.Steps), len(l.Steps)+1)
	copy(steps, l.Steps)
	return Locator{Steps: append(steps, LocatorStep{Kind: LocatorNth, Index: i})}
}

// Unique reports whether the chain ends in an index step, i.e. it can never
// resolve to more than one element.
func (l Locator) Unique() bool {
	return len(l.Steps) > 0 && l.Steps[len(l.Steps)-1].IsIndex()
}

func (l Locator) String() string {
	parts := make([]string, 0, len(l.Steps)+1)
	parts = append(parts, "page")
	for _, s := range l.Steps {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ".")
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}
