// Package deploy pushes command sets to devices and replays snapshots for
// rollback.
package deploy

import (
	"context"
	"fmt"

	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/inventory"
	"github.com/newtron-network/newtcfg/pkg/session"
	"github.com/newtron-network/newtcfg/pkg/snapshot"
	"github.com/newtron-network/newtcfg/pkg/transport"
	"github.com/newtron-network/newtcfg/pkg/util"
)

// Apply modes reported in Summary.Mode.
const (
	ModeCommands = "commands"
	ModeReplace  = "replace"
	ModeReplay   = "replay"
)

// Options controls deploy behaviour.
type Options struct {
	// Save persists the running configuration after a successful apply.
	Save bool
}

// Summary is the OperationResult payload of a deploy or rollback.
type Summary struct {
	Mode          string `json:"mode"`
	Total         int    `json:"total"`
	Applied       int    `json:"applied"`
	FailedCommand string `json:"failed_command,omitempty"`
	FailedError   string `json:"failed_error,omitempty"`
	Saved         bool   `json:"saved"`
	SnapshotID    string `json:"snapshot_id,omitempty"`
}

// Engine applies configuration changes.
type Engine struct {
	sessions *session.Manager
	store    snapshot.Store
	coord    *batch.Coordinator
	opts     Options
}

// NewEngine creates a deploy engine. store is used by RollbackLatest only.
func NewEngine(sessions *session.Manager, store snapshot.Store, coord *batch.Coordinator, opts Options) *Engine {
	return &Engine{
		sessions: sessions,
		store:    store,
		coord:    coord,
		opts:     opts,
	}
}

// Deploy executes cmds in order inside the dialect's configuration mode and
// stops at the first failure. Partial application is reported, not undone.
// An empty set succeeds without opening a session.
func (e *Engine) Deploy(ctx context.Context, d inventory.Device, cmds CommandSet) batch.OperationResult {
	sum := &Summary{Mode: ModeCommands, Total: len(cmds)}
	if len(cmds) == 0 {
		return batch.Succeeded("no commands to apply", sum)
	}
	return e.run(ctx, d, sum, func(s *session.Session) error {
		return e.applyCommands(ctx, s, cmds, sum)
	})
}

// Rollback restores snap on d. Dialects that support full replacement load
// the snapshot text in one command sequence; others replay it line by line.
// The resulting state is not verified against the snapshot.
func (e *Engine) Rollback(ctx context.Context, d inventory.Device, snap *snapshot.Snapshot) batch.OperationResult {
	if snap == nil {
		return batch.Failed(util.NewConfigError(d.ID, "no snapshot available for rollback"), nil)
	}
	if snap.DeviceID != d.ID {
		return batch.Failed(util.NewConfigError(d.ID, fmt.Sprintf("snapshot %s belongs to %s", snap.ID, snap.DeviceID)), nil)
	}
	dialect, err := transport.LookupDialect(d.Dialect)
	if err != nil {
		return batch.Failed(util.NewConfigError(d.ID, err.Error()), nil)
	}

	if dialect.SupportsReplace {
		sum := &Summary{Mode: ModeReplace, Total: 1, SnapshotID: snap.ID}
		return e.run(ctx, d, sum, func(s *session.Session) error {
			if _, err := e.sessions.ExecuteSet(ctx, s, s.Dialect.ReplaceSequence(snap.ConfigText)); err != nil {
				sum.FailedCommand = "replace configuration"
				sum.FailedError = err.Error()
				return err
			}
			sum.Applied = 1
			return e.save(ctx, s, sum)
		})
	}

	cmds := replayCommands(snap.ConfigText, dialect)
	sum := &Summary{Mode: ModeReplay, Total: len(cmds), SnapshotID: snap.ID}
	if len(cmds) == 0 {
		return batch.Succeeded("snapshot has no commands to replay", sum)
	}
	return e.run(ctx, d, sum, func(s *session.Session) error {
		return e.applyCommands(ctx, s, cmds, sum)
	})
}

// replayCommands turns captured configuration into commands, dropping the
// dialect's comment lines and any config-mode exit lines the capture carries.
func replayCommands(text string, dialect *transport.Dialect) CommandSet {
	var out CommandSet
	for _, c := range ParseCommandText(text, dialect.CommentPrefixes...) {
		if containsString(dialect.ExitConfig, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// DeployAll deploys cmds to every device.
func (e *Engine) DeployAll(ctx context.Context, devices []inventory.Device, cmds CommandSet) *batch.Report {
	return e.coord.Run(ctx, devices, batch.KindDeploy, func(ctx context.Context, d inventory.Device) batch.OperationResult {
		return e.Deploy(ctx, d, cmds)
	})
}

// RollbackAll rolls each device back to its entry in snaps, keyed by device
// ID. A device without an entry fails with a configuration error.
func (e *Engine) RollbackAll(ctx context.Context, devices []inventory.Device, snaps map[string]*snapshot.Snapshot) *batch.Report {
	return e.coord.Run(ctx, devices, batch.KindRollback, func(ctx context.Context, d inventory.Device) batch.OperationResult {
		return e.Rollback(ctx, d, snaps[d.ID])
	})
}

// RollbackLatest rolls each device back to its most recent stored snapshot.
func (e *Engine) RollbackLatest(ctx context.Context, devices []inventory.Device) *batch.Report {
	return e.coord.Run(ctx, devices, batch.KindRollback, func(ctx context.Context, d inventory.Device) batch.OperationResult {
		snap, err := e.store.Latest(ctx, d.ID)
		if err != nil {
			return batch.Failed(fmt.Errorf("reading latest snapshot: %w", err), nil)
		}
		return e.Rollback(ctx, d, snap)
	})
}

func (e *Engine) run(ctx context.Context, d inventory.Device, sum *Summary, apply func(*session.Session) error) batch.OperationResult {
	err := e.sessions.WithSession(ctx, d, apply)
	if err != nil {
		res := batch.Failed(err, sum)
		if sum.FailedCommand != "" {
			res.Detail = fmt.Sprintf("applied %d/%d; %q failed: %v", sum.Applied, sum.Total, sum.FailedCommand, err)
		}
		return res
	}

	detail := fmt.Sprintf("applied %d/%d", sum.Applied, sum.Total)
	if sum.Mode == ModeReplace {
		detail = "replaced configuration with " + sum.SnapshotID
	}
	if sum.Saved {
		detail += "; saved"
	}
	util.WithDeviceOp(d.ID, "deploy").Debugf("%s (%s)", detail, sum.Mode)
	return batch.Succeeded(detail, sum)
}

// applyCommands runs cmds between the dialect's config-mode commands and
// saves when enabled. Only cmds count towards Applied.
func (e *Engine) applyCommands(ctx context.Context, s *session.Session, cmds CommandSet, sum *Summary) error {
	if err := e.execAll(ctx, s, s.Dialect.EnterConfig, sum); err != nil {
		return err
	}
	for _, c := range cmds {
		if _, err := e.sessions.Execute(ctx, s, c); err != nil {
			sum.FailedCommand = c
			sum.FailedError = err.Error()
			return err
		}
		sum.Applied++
	}
	if err := e.execAll(ctx, s, s.Dialect.ExitConfig, sum); err != nil {
		return err
	}
	return e.save(ctx, s, sum)
}

func (e *Engine) save(ctx context.Context, s *session.Session, sum *Summary) error {
	if !e.opts.Save || len(s.Dialect.Save) == 0 {
		return nil
	}
	if err := e.execAll(ctx, s, s.Dialect.Save, sum); err != nil {
		return err
	}
	sum.Saved = true
	return nil
}

func (e *Engine) execAll(ctx context.Context, s *session.Session, cmds []string, sum *Summary) error {
	for _, c := range cmds {
		if _, err := e.sessions.Execute(ctx, s, c); err != nil {
			sum.FailedCommand = c
			sum.FailedError = err.Error()
			return err
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
