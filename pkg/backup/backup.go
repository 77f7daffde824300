// Package backup captures running configurations as snapshots.
package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/inventory"
	"github.com/newtron-network/newtcfg/pkg/session"
	"github.com/newtron-network/newtcfg/pkg/snapshot"
	"github.com/newtron-network/newtcfg/pkg/util"
)

// ErrEmptyConfig is returned when a device prints no configuration.
var ErrEmptyConfig = errors.New("empty configuration")

// BackupError is a failed backup of one device.
type BackupError struct {
	Device string
	Kind   util.ErrorKind
	Err    error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup %s failed (%s): %v", e.Device, e.Kind, e.Err)
}

func (e *BackupError) Unwrap() error {
	return e.Err
}

// ErrorKind returns the normalized kind.
func (e *BackupError) ErrorKind() util.ErrorKind {
	return e.Kind
}

// Result is the OperationResult payload of a successful backup.
type Result struct {
	SnapshotID  string    `json:"snapshot_id"`
	ContentHash string    `json:"content_hash"`
	CapturedAt  time.Time `json:"captured_at"`
	Bytes       int       `json:"bytes"`
	// Unchanged is set when the content matches the previous snapshot.
	Unchanged  bool   `json:"unchanged,omitempty"`
	PreviousID string `json:"previous_id,omitempty"`
}

// Engine captures running configurations.
type Engine struct {
	sessions *session.Manager
	store    snapshot.Store
	coord    *batch.Coordinator
	now      func() time.Time
}

// NewEngine creates a backup engine.
func NewEngine(sessions *session.Manager, store snapshot.Store, coord *batch.Coordinator) *Engine {
	return &Engine{
		sessions: sessions,
		store:    store,
		coord:    coord,
		now:      time.Now,
	}
}

// SetClock replaces the capture clock.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// BackupDevice opens a session, captures the running configuration verbatim,
// closes the session, and stores the snapshot. Failures are *BackupError.
func (e *Engine) BackupDevice(ctx context.Context, d inventory.Device) (*snapshot.Snapshot, error) {
	var (
		text       string
		capturedAt time.Time
	)
	err := e.sessions.WithSession(ctx, d, func(s *session.Session) error {
		out, err := e.sessions.FetchConfig(ctx, s)
		if err != nil {
			return err
		}
		text = out
		capturedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, &BackupError{Device: d.ID, Kind: util.KindOf(err), Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &BackupError{Device: d.ID, Kind: util.KindUnknown, Err: ErrEmptyConfig}
	}

	snap := snapshot.New(d.ID, capturedAt, text)
	id, err := e.store.Store(ctx, d.ID, snap.CapturedAt, text)
	if err != nil {
		return nil, &BackupError{Device: d.ID, Kind: util.KindOf(err), Err: fmt.Errorf("storing snapshot: %w", err)}
	}
	snap.ID = id

	util.WithDeviceOp(d.ID, "backup").Debugf("Captured %d bytes as %s", len(text), id)
	return snap, nil
}

// BackupAll backs up every device through the coordinator.
func (e *Engine) BackupAll(ctx context.Context, devices []inventory.Device) *batch.Report {
	return e.coord.Run(ctx, devices, batch.KindBackup, e.backupOp)
}

func (e *Engine) backupOp(ctx context.Context, d inventory.Device) batch.OperationResult {
	prev, err := e.store.Latest(ctx, d.ID)
	if err != nil {
		util.WithDeviceOp(d.ID, "backup").Warnf("Reading previous snapshot: %v", err)
	}

	snap, err := e.BackupDevice(ctx, d)
	if err != nil {
		return batch.Failed(err, nil)
	}

	res := &Result{
		SnapshotID:  snap.ID,
		ContentHash: snap.ContentHash,
		CapturedAt:  snap.CapturedAt,
		Bytes:       len(snap.ConfigText),
	}
	detail := fmt.Sprintf("saved %s (%d bytes)", snap.ID, res.Bytes)
	if prev != nil && prev.ContentHash == snap.ContentHash {
		res.Unchanged = true
		res.PreviousID = prev.ID
		detail += "; unchanged since " + prev.ID
	}
	return batch.Succeeded(detail, res)
}
