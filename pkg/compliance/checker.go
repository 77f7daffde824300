package compliance

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/inventory"
	"github.com/newtron-network/newtcfg/pkg/session"
	"github.com/newtron-network/newtcfg/pkg/snapshot"
	"github.com/newtron-network/newtcfg/pkg/util"
)

// Mode selects where configuration text comes from.
type Mode string

const (
	// Offline evaluates the device's latest stored snapshot.
	Offline Mode = "offline"
	// Live fetches the running configuration and runs command rules.
	Live Mode = "live"
)

// ParseMode resolves a mode name; empty means Offline.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Offline:
		return Offline, nil
	case Live:
		return Live, nil
	}
	return "", util.NewConfigError("compliance", fmt.Sprintf("unknown mode %q (valid: offline, live)", s))
}

// DeviceResult is the compliance outcome for one device. It is the Data of a
// successful compliance OperationResult.
type DeviceResult struct {
	DeviceID   string       `json:"device_id"`
	Mode       Mode         `json:"mode"`
	SnapshotID string       `json:"snapshot_id,omitempty"`
	Score      int          `json:"score"`
	Passed     int          `json:"passed"`
	Skipped    int          `json:"skipped,omitempty"`
	Total      int          `json:"total"`
	Results    []RuleResult `json:"results"`
	Warning    string       `json:"warning,omitempty"`
}

// Failed returns the results that did not pass, skipped ones included.
func (r *DeviceResult) Failed() []RuleResult {
	var out []RuleResult
	for _, rr := range r.Results {
		if !rr.Passed {
			out = append(out, rr)
		}
	}
	return out
}

// Checker runs compliance checks across devices.
type Checker struct {
	sessions *session.Manager
	store    snapshot.Store
	coord    *batch.Coordinator
}

// NewChecker creates a checker. sessions is used in Live mode and store in
// Offline mode.
func NewChecker(sessions *session.Manager, store snapshot.Store, coord *batch.Coordinator) *Checker {
	return &Checker{
		sessions: sessions,
		store:    store,
		coord:    coord,
	}
}

// CheckDevice evaluates rules for one device. rules must already be compiled.
func (c *Checker) CheckDevice(ctx context.Context, d inventory.Device, rules []Rule, mode Mode) (*DeviceResult, error) {
	dr := &DeviceResult{DeviceID: d.ID, Mode: mode, Total: len(rules)}

	switch mode {
	case Offline:
		snap, err := c.store.Latest(ctx, d.ID)
		if err != nil {
			return nil, util.NewDeviceError(d.ID, "compliance", util.KindOf(err), fmt.Errorf("reading latest snapshot: %w", err))
		}
		if snap == nil {
			return nil, util.NewDeviceError(d.ID, "compliance", util.KindConfiguration,
				errors.New("no snapshot available; run a backup or use live mode"))
		}
		dr.SnapshotID = snap.ID
		dr.Results = Evaluate(snap.ConfigText, rules)

	case Live:
		err := c.sessions.WithSession(ctx, d, func(s *session.Session) error {
			text, err := c.sessions.FetchConfig(ctx, s)
			if err != nil {
				return err
			}
			// A rejected command fails its rule. Losing the session fails
			// the device, and later command rules are not attempted.
			var lost error
			dr.Results = EvaluateLive(ctx, text, rules, func(ctx context.Context, cmd string) (string, error) {
				if lost != nil {
					return "", lost
				}
				out, err := c.sessions.Execute(ctx, s, cmd)
				if err != nil && sessionLost(err) {
					lost = err
				}
				return out, err
			})
			return lost
		})
		if err != nil {
			return nil, err
		}

	default:
		return nil, util.NewDeviceError(d.ID, "compliance", util.KindConfiguration, fmt.Errorf("unknown mode %q", mode))
	}

	for _, rr := range dr.Results {
		switch {
		case rr.Passed:
			dr.Passed++
		case rr.Skipped:
			dr.Skipped++
		}
	}
	dr.Score, dr.Warning = Score(dr.Results)
	if dr.Warning != "" {
		util.WithDeviceOp(d.ID, "compliance").Warn(dr.Warning)
	}
	return dr, nil
}

func sessionLost(err error) bool {
	switch util.KindOf(err) {
	case util.KindCancelled, util.KindTransportClosed, util.KindConnectTimeout:
		return true
	}
	return false
}

// CheckAll validates rules, then checks every device through the
// coordinator. Invalid rules fail the whole batch before any device is
// touched. The report's AggregateScore is the mean score over devices that
// were evaluated, or nil when none were.
func (c *Checker) CheckAll(ctx context.Context, devices []inventory.Device, rules []Rule, mode Mode) (*batch.Report, error) {
	compiled, err := Compile(rules)
	if err != nil {
		return nil, err
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	report := c.coord.Run(ctx, devices, batch.KindCompliance, func(ctx context.Context, d inventory.Device) batch.OperationResult {
		dr, err := c.CheckDevice(ctx, d, compiled, mode)
		if err != nil {
			return batch.Failed(err, nil)
		}
		detail := fmt.Sprintf("score %d%% (%d/%d rules passed)", dr.Score, dr.Passed, dr.Total)
		if dr.Warning != "" {
			detail += "; " + dr.Warning
		}
		return batch.Succeeded(detail, dr)
	})
	report.AggregateScore = AggregateScore(report)
	return report, nil
}

// AggregateScore returns the mean device score of a compliance report,
// rounded to two decimals.
func AggregateScore(report *batch.Report) *float64 {
	var sum float64
	n := 0
	for _, res := range report.Results {
		if dr, ok := res.Data.(*DeviceResult); ok && res.Success {
			sum += float64(dr.Score)
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := math.Round(sum/float64(n)*100) / 100
	return &avg
}
