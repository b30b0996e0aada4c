package observability

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeCase      EventType = "case"
	EventTypeStep      EventType = "step"
	EventTypeCommand   EventType = "command"
	EventTypeFallback  EventType = "fallback"
	EventTypePolicy    EventType = "policy_check"
	EventTypeLLM       EventType = "llm"
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger emits typed events through zap. LLM exchanges are also appended to
// a rotated JSON lines file. A nil *Logger is valid and only logs to zap.
type Logger struct {
	zl  *zap.Logger
	mu  sync.Mutex
	llm io.WriteCloser
}

// NewLogger returns an event logger writing LLM events to llmLogPath.
// An empty path disables the file.
func NewLogger(zl *zap.Logger, llmLogPath string) *Logger {
	l := &Logger{zl: zl}
	if llmLogPath != "" {
		l.llm = &lumberjack.Logger{
			Filename:   llmLogPath,
			MaxSize:    10,
			MaxBackups: 1,
		}
	}
	return l
}

func (l *Logger) logger() *zap.Logger {
	if l == nil || l.zl == nil {
		return GetLogger()
	}
	return l.zl
}

// Log emits evt at debug level, or info for case events.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	fields := []zap.Field{
		zap.String("event", string(evt.Type)),
		zap.Any("data", evt.Data),
	}
	if evt.RequestID != "" {
		fields = append(fields, zap.String("request_id", evt.RequestID))
	}
	if evt.Type == EventTypeCase {
		l.logger().Info("event", fields...)
	} else {
		l.logger().Debug("event", fields...)
	}

	if evt.Type == EventTypeLLM {
		l.writeLLM(evt)
	}
}

func (l *Logger) writeLLM(evt Event) {
	if l == nil || l.llm == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		l.logger().Warn("Failed to marshal llm event", zap.Error(err))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.llm.Write(append(data, '\n')); err != nil {
		l.logger().Warn("Failed to write llm log", zap.Error(err))
	}
}

func (l *Logger) Close() error {
	if l == nil || l.llm == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.llm.Close()
}

func (l *Logger) LogCase(requestID, url string, success bool, errMsg string, elapsed time.Duration) {
	l.Log(Event{
		Type:      EventTypeCase,
		RequestID: requestID,
		Data: map[string]any{
			"url":        url,
			"success":    success,
			"error":      errMsg,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

func (l *Logger) LogStep(requestID string, index int, gherkin string, success bool) {
	l.Log(Event{
		Type:      EventTypeStep,
		RequestID: requestID,
		Data: map[string]any{
			"index":   index,
			"gherkin": gherkin,
			"success": success,
		},
	})
}

func (l *Logger) LogCommand(requestID, tier, command string, success bool, errMsg string) {
	l.Log(Event{
		Type:      EventTypeCommand,
		RequestID: requestID,
		Data: map[string]any{
			"tier":    tier,
			"command": command,
			"success": success,
			"error":   errMsg,
		},
	})
}

func (l *Logger) LogFallback(requestID, original, replacement string) {
	l.Log(Event{
		Type:      EventTypeFallback,
		RequestID: requestID,
		Data: map[string]string{
			"original":    original,
			"replacement": replacement,
		},
	})
}

func (l *Logger) LogPolicy(requestID, command, reason string) {
	l.Log(Event{
		Type:      EventTypePolicy,
		RequestID: requestID,
		Data: map[string]string{
			"command": command,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

// LogLLM records one model exchange. purpose is "translate" or "generate".
func (l *Logger) LogLLM(requestID, purpose string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:      EventTypeLLM,
		RequestID: requestID,
		Data: map[string]any{
			"purpose":    purpose,
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
