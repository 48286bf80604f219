// -----------------------------------------------------------------------
// Error Event - Structured, queryable record of component errors
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Severity grades an error event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorEvent is one entry in the error event log. Indexed fields back
// the recency/severity/component/job queries.
type ErrorEvent struct {
	ID         string    `json:"id" badgerhold:"key"`
	Timestamp  time.Time `json:"timestamp" badgerhold:"index"`
	Severity   Severity  `json:"severity" badgerhold:"index"`
	Component  string    `json:"component" badgerhold:"index"`
	ErrorType  string    `json:"error_type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	JobID      string    `json:"job_id,omitempty" badgerhold:"index"`
	JobName    string    `json:"job_name,omitempty"`
	StackTrace string    `json:"stack_trace,omitempty"`
	Resolved   bool      `json:"resolved" badgerhold:"index"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// NewErrorEvent creates an event with a fresh id and current timestamp.
func NewErrorEvent(severity Severity, component, message string) *ErrorEvent {
	return &ErrorEvent{
		ID:        "evt_" + uuid.New().String(),
		Timestamp: time.Now(),
		Severity:  severity,
		Component: component,
		Message:   message,
	}
}

// ErrorEventFromError is the canonical construction path for events
// backed by a Go error. Captures the error's type symbol, message and a
// best-effort stack trace of the calling goroutine.
func ErrorEventFromError(err error, severity Severity, component, message string) *ErrorEvent {
	event := NewErrorEvent(severity, component, message)
	if err != nil {
		event.ErrorType = fmt.Sprintf("%T", err)
		event.Details = err.Error()
	}
	event.StackTrace = string(debug.Stack())
	return event
}

// WithJob attaches job identity to the event.
func (e *ErrorEvent) WithJob(jobID, jobName string) *ErrorEvent {
	e.JobID = jobID
	e.JobName = jobName
	return e
}

// ErrorStats summarizes the event log.
type ErrorStats struct {
	Total      int              `json:"total"`
	Unresolved int              `json:"unresolved"`
	Resolved   int              `json:"resolved"`
	BySeverity map[Severity]int `json:"by_severity"`
	Recent24h  int              `json:"recent_24h"`
}
