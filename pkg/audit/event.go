// Package audit records configuration changes applied to a controller,
// one event per operation plus a summary event per run.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single auditable record: either one reconcile operation
// outcome, or a run summary.
type Event struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	Timestamp  time.Time     `json:"timestamp"`
	User       string        `json:"user"`
	Controller string        `json:"controller"`
	Site       string        `json:"site,omitempty"`
	Mode       string        `json:"mode"`
	Operation  string        `json:"operation,omitempty"`
	Target     string        `json:"target,omitempty"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	SnapshotID string        `json:"snapshot_id,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Summary    string        `json:"summary,omitempty"`
}

// Run modes recorded on events.
const (
	ModeDryRun = "dry-run"
	ModeApply  = "apply"
)

// Outcomes recorded on events.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomePlanned   = "planned"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	RunID       string
	Controller  string
	User        string
	Operation   string
	Outcome     string
	StartTime   time.Time
	EndTime     time.Time
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates an event tied to a run.
func NewEvent(runID, user, controller string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		RunID:      runID,
		Timestamp:  time.Now(),
		User:       user,
		Controller: controller,
	}
}

// NewRunID returns a fresh run identifier shared by all events of one
// reconcile invocation.
func NewRunID() string {
	return uuid.NewString()
}

// WithSite sets the controller site.
func (e *Event) WithSite(site string) *Event {
	e.Site = site
	return e
}

// WithMode sets the run mode.
func (e *Event) WithMode(mode string) *Event {
	e.Mode = mode
	return e
}

// WithOperation records the operation identity and its target key.
func (e *Event) WithOperation(op, target string) *Event {
	e.Operation = op
	e.Target = target
	return e
}

// WithOutcome sets the outcome.
func (e *Event) WithOutcome(outcome string) *Event {
	e.Outcome = outcome
	return e
}

// WithError marks the event failed and records the error text.
func (e *Event) WithError(err error) *Event {
	e.Outcome = OutcomeFailed
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithReason records why an operation was skipped.
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithSnapshot records the pre-apply snapshot handle.
func (e *Event) WithSnapshot(id string) *Event {
	e.SnapshotID = id
	return e
}

// WithDuration sets how long the run or operation took.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithSummary sets the human-readable run summary line.
func (e *Event) WithSummary(summary string) *Event {
	e.Summary = summary
	return e
}
