// Package gateway exposes the case runner to chat platforms.
package gateway

import (
	"context"
	"strings"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start listens for messages until ctx is done or Stop is called.
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// chunk splits text into pieces of at most limit runes, preferring line
// boundaries.
func chunk(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}
	var parts []string
	var cur []rune
	for _, line := range strings.SplitAfter(text, "\n") {
		r := []rune(line)
		for len(r) > limit {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = nil
			}
			parts = append(parts, string(r[:limit]))
			r = r[limit:]
		}
		if len(cur)+len(r) > limit {
			parts = append(parts, string(cur))
			cur = nil
		}
		cur = append(cur, r...)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}
