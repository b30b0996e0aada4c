package observability

import (
	"context"
	"sync"
	"time"
)

type Role string

const (
	RoleIdle      Role = "IDLE"
	RoleRunning   Role = "RUNNING"
	RoleScheduled Role = "SCHEDULED"
)

// Status is a point-in-time copy of the process status.
type Status struct {
	Role       Role
	ActiveCase string
	Active     int
	// Step is the 1-based step of ActiveCase in flight; Steps its total.
	Step  int
	Steps int
	// Passed and Failed count finished cases since start.
	Passed        int
	Failed        int
	LastHeartbeat time.Time
}

var (
	statusMu sync.RWMutex
	current  = Status{Role: RoleIdle, LastHeartbeat: time.Now()}
)

// BeginCase marks a case as running. Concurrent cases are counted; the most
// recent request ID is shown.
func BeginCase(role Role, requestID string) {
	statusMu.Lock()
	defer statusMu.Unlock()
	current.Active++
	current.Role = role
	current.ActiveCase = requestID
	current.Step, current.Steps = 0, 0
}

// BeginStep records step progress. Updates for a case other than the one
// shown are dropped.
func BeginStep(requestID string, index, total int) {
	statusMu.Lock()
	defer statusMu.Unlock()
	if current.ActiveCase != requestID {
		return
	}
	current.Step = index + 1
	current.Steps = total
}

// EndCase marks one running case as finished with the given outcome.
func EndCase(success bool) {
	statusMu.Lock()
	defer statusMu.Unlock()
	if success {
		current.Passed++
	} else {
		current.Failed++
	}
	if current.Active > 0 {
		current.Active--
	}
	if current.Active == 0 {
		current.Role = RoleIdle
		current.ActiveCase = ""
		current.Step, current.Steps = 0, 0
	}
}

// Snapshot returns a copy of the current status.
func Snapshot() Status {
	statusMu.RLock()
	defer statusMu.RUnlock()
	return current
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	statusMu.Lock()
	defer statusMu.Unlock()
	current.LastHeartbeat = time.Now()
}

type requestIDKey struct{}

// WithRequestID tags ctx with the case request ID for event logging.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID carried by ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type roleKey struct{}

// WithRole sets the status role a case started from ctx reports.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFrom returns the role carried by ctx, defaulting to RoleRunning.
func RoleFrom(ctx context.Context) Role {
	if r, ok := ctx.Value(roleKey{}).(Role); ok {
		return r
	}
	return RoleRunning
}
