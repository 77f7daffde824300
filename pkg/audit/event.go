// Package audit records batch operation outcomes as a JSON-lines audit trail.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/util"
)

// Event is one audited device operation.
type Event struct {
	ID        string         `json:"id"`
	BatchID   string         `json:"batch_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	User      string         `json:"user"`
	Device    string         `json:"device"`
	Operation string         `json:"operation"`
	Success   bool           `json:"success"`
	ErrorKind util.ErrorKind `json:"error_kind,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Operation   string
	BatchID     string
	ErrorKind   util.ErrorKind
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithBatch sets the batch the event belongs to
func (e *Event) WithBatch(id string) *Event {
	e.BatchID = id
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
		e.ErrorKind = util.KindOf(err)
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithResult copies the outcome of a batch result.
func (e *Event) WithResult(r batch.OperationResult) *Event {
	e.Success = r.Success
	e.Duration = r.Duration
	if r.Success {
		e.Detail = r.Detail
	} else {
		e.Error = r.Detail
		e.ErrorKind = r.ErrorKind
	}
	return e
}
