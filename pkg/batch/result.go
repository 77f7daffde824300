// Package batch fans one logical operation out across a device set and
// collects exactly one result per device, in input order.
package batch

import (
	"time"

	"github.com/newtron-network/newtcfg/pkg/util"
)

// OperationKind names a batch operation.
type OperationKind string

const (
	KindBackup     OperationKind = "backup"
	KindDeploy     OperationKind = "deploy"
	KindRollback   OperationKind = "rollback"
	KindCompliance OperationKind = "compliance"
)

// OperationResult is the outcome of one operation on one device. It is
// produced once per device per batch and not modified afterwards.
type OperationResult struct {
	DeviceID  string         `json:"device_id"`
	Kind      OperationKind  `json:"kind"`
	Success   bool           `json:"success"`
	Detail    string         `json:"detail,omitempty"`
	ErrorKind util.ErrorKind `json:"error_kind,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
	// Data carries the operation's typed payload (snapshot metadata, deploy
	// summary, compliance result).
	Data any `json:"data,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(detail string, data any) OperationResult {
	return OperationResult{Success: true, Detail: detail, Data: data}
}

// Failed builds a failed result from err. The error text becomes the
// detail; callers branch on ErrorKind only.
func Failed(err error, data any) OperationResult {
	r := OperationResult{Success: false, Data: data, ErrorKind: util.KindUnknown}
	if err != nil {
		r.Detail = err.Error()
		r.ErrorKind = util.KindOf(err)
	}
	return r
}

// Report aggregates one batch operation. Results holds exactly one entry per
// requested device, in the order the devices were given.
type Report struct {
	Kind       OperationKind     `json:"kind"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Results    []OperationResult `json:"results"`
	// AggregateScore is set for compliance checks only.
	AggregateScore *float64 `json:"aggregate_score,omitempty"`
}

// Summary counts results.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summary returns total, succeeded, and failed counts.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Results)}
	for _, res := range r.Results {
		if res.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// AllSucceeded reports whether every device succeeded.
func (r *Report) AllSucceeded() bool {
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

// Result returns the result for a device ID.
func (r *Report) Result(deviceID string) (OperationResult, bool) {
	for _, res := range r.Results {
		if res.DeviceID == deviceID {
			return res, true
		}
	}
	return OperationResult{}, false
}

// Duration returns the wall-clock time of the batch.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
