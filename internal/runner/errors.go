package runner

import (
	"errors"
	"fmt"
)

// StepGenerationError means the translator produced nothing usable.
type StepGenerationError struct {
	Err error
}

func (e *StepGenerationError) Error() string { return "Step generation error: " + e.Err.Error() }
func (e *StepGenerationError) Unwrap() error { return e.Err }

// NavigationError means the initial page load failed on every attempt.
type NavigationError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("failed to navigate to %s after %d attempts", e.URL, e.Attempts)
}
func (e *NavigationError) Unwrap() error { return e.Err }

// SessionError means the browser session could not be acquired.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string { return "failed to initialize browser: " + e.Err.Error() }
func (e *SessionError) Unwrap() error { return e.Err }

// StepExecutionError carries the failing step's outcome message.
type StepExecutionError struct {
	Index   int
	Message string
}

func (e *StepExecutionError) Error() string { return e.Message }

// UnexpectedError wraps any other failure, including recovered panics.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string { return "Unexpected error: " + e.Err.Error() }
func (e *UnexpectedError) Unwrap() error { return e.Err }

// caseMessage maps an error to the message recorded on the case.
func caseMessage(err error) string {
	var (
		gen  *StepGenerationError
		nav  *NavigationError
		sess *SessionError
		step *StepExecutionError
		unex *UnexpectedError
	)
	switch {
	case errors.As(err, &gen):
		return gen.Error()
	case errors.As(err, &nav):
		return nav.Error()
	case errors.As(err, &sess):
		return sess.Error()
	case errors.As(err, &step):
		return step.Error()
	case errors.As(err, &unex):
		return unex.Error()
	}
	return (&UnexpectedError{Err: err}).Error()
}

// SideResult is the outcome of a best-effort operation that never affects
// case success.
type SideResult struct {
	Op  string
	Err error
}

func (s SideResult) OK() bool { return s.Err == nil }
