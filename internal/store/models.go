package store

import (
	"encoding/json"
	"time"

	"github.com/rahul/operator/internal/runner"
)

// CaseRun is the recorded outcome of one case execution.
type CaseRun struct {
	RequestID    string        `json:"request_id"`
	URL          string        `json:"url"`
	Steps        string        `json:"steps"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error_message,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	// ResultJSON is the full encoded case result.
	ResultJSON string `json:"result_json,omitempty"`
}

// FromResult flattens a case result for storage.
func FromResult(url, steps string, res runner.CaseResult) CaseRun {
	run := CaseRun{
		RequestID:    res.RequestID(),
		URL:          url,
		Steps:        steps,
		Success:      res.Success,
		ErrorMessage: res.ErrorMessage,
		StartTime:    res.StartTime,
		EndTime:      res.EndTime,
		Duration:     res.TotalDuration,
	}
	if raw, err := json.Marshal(res); err == nil {
		run.ResultJSON = string(raw)
	}
	return run
}

// Schedule is a case that runs repeatedly, or once when IntervalSeconds is 0.
type Schedule struct {
	ID              int64     `json:"id"`
	ChatID          string    `json:"chat_id"`
	Gateway         string    `json:"gateway,omitempty"`
	URL             string    `json:"url"`
	Steps           string    `json:"steps"`
	IntervalSeconds int       `json:"interval_seconds"`
	LastRun         time.Time `json:"last_run,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// OneShot reports whether the schedule is removed after its first run.
func (s Schedule) OneShot() bool { return s.IntervalSeconds == 0 }
