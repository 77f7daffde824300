// Package snapshot defines immutable configuration snapshots and the
// append-only stores that keep per-device snapshot history.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/newtcfg/pkg/util"
)

// TimeFormat is the timestamp layout used in snapshot IDs and file names.
// It sorts lexically in time order.
const TimeFormat = "20060102T150405.000000000Z"

// Snapshot is a timestamped capture of one device's configuration text.
// Identity is (DeviceID, CapturedAt).
type Snapshot struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	CapturedAt  time.Time `json:"captured_at"`
	ConfigText  string    `json:"config_text"`
	ContentHash string    `json:"content_hash"`
}

// New builds a snapshot, computing its ID and content hash.
func New(deviceID string, capturedAt time.Time, text string) *Snapshot {
	capturedAt = capturedAt.UTC()
	return &Snapshot{
		ID:          FormatID(deviceID, capturedAt),
		DeviceID:    deviceID,
		CapturedAt:  capturedAt,
		ConfigText:  text,
		ContentHash: Hash(text),
	}
}

// Hash returns the hex SHA-256 of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// FormatID returns "<deviceID>@<timestamp>".
func FormatID(deviceID string, t time.Time) string {
	return deviceID + "@" + t.UTC().Format(TimeFormat)
}

// ParseID splits a snapshot ID into its device ID and capture time.
func ParseID(id string) (string, time.Time, error) {
	at := strings.LastIndexByte(id, '@')
	if at <= 0 {
		return "", time.Time{}, fmt.Errorf("invalid snapshot id %q: %w", id, util.ErrNotFound)
	}
	t, err := time.Parse(TimeFormat, id[at+1:])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid snapshot id %q: %w", id, util.ErrNotFound)
	}
	return id[:at], t, nil
}

// Store is append-only snapshot persistence. Snapshots for different devices
// never share a storage key.
type Store interface {
	// Store appends a snapshot and returns its ID. Storing the same
	// (deviceID, ts) twice fails with util.ErrAlreadyExists.
	Store(ctx context.Context, deviceID string, ts time.Time, text string) (string, error)

	// Latest returns the most recent snapshot, or nil and no error if the
	// device has none.
	Latest(ctx context.Context, deviceID string) (*Snapshot, error)

	// List returns the device's snapshots, oldest first.
	List(ctx context.Context, deviceID string) ([]*Snapshot, error)

	// Get returns one snapshot by ID, or an error wrapping util.ErrNotFound.
	Get(ctx context.Context, id string) (*Snapshot, error)
}
