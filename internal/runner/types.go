package runner

import (
	"time"

	"github.com/rahul/operator/internal/agent"
	"github.com/rahul/operator/internal/browser"
)

// StepResult records one executed step. It is not modified after RunCase
// returns.
type StepResult struct {
	NaturalLanguageStep string          `json:"natural_language_step"`
	Step                agent.Step      `json:"step"`
	Instruction         string          `json:"instruction,omitempty"`
	Outcome             browser.Outcome `json:"outcome"`
	Snapshot            string          `json:"snapshot,omitempty"`
	// Screenshots lists every screenshot taken while the step ran, failed
	// attempts included.
	Screenshots         []string        `json:"screenshots,omitempty"`
	StartTime           time.Time       `json:"start_time"`
	EndTime             time.Time       `json:"end_time"`
	Duration            time.Duration   `json:"duration"`
}

// CaseResult records one case. Success is false whenever ErrorMessage is set.
type CaseResult struct {
	Success       bool              `json:"success"`
	Steps         []StepResult      `json:"steps"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	TotalDuration time.Duration     `json:"total_duration"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	Metadata      map[string]string `json:"metadata"`
	// Screenshots lists every screenshot the case produced, navigation
	// included, in capture order.
	Screenshots   []string          `json:"screenshots,omitempty"`
}

// RequestID returns the case's unique identifier.
func (c CaseResult) RequestID() string { return c.Metadata[MetaRequestID] }

const (
	MetaRequestID = "request_id"
	MetaName      = "name"
	MetaURL       = "url"
)

// CaseRequest is one case of a suite.
type CaseRequest struct {
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	Steps    string `yaml:"steps" json:"steps"`
	Headless *bool  `yaml:"headless,omitempty" json:"headless,omitempty"`
}

// SuiteResult aggregates a suite run. Results keep request order.
type SuiteResult struct {
	SuiteID       string        `json:"suite_id"`
	Results       []CaseResult  `json:"results"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	TotalDuration time.Duration `json:"total_duration"`
	Total         int           `json:"total"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
}
