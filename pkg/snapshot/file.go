package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/newtron-network/newtcfg/pkg/util"
)

const fileExt = ".cfg"

// FileStore keeps snapshots as files under dir/<device>/<timestamp>.cfg.
// Files are written to a temp name and hard-linked into place, so a snapshot
// is either absent or complete and existing snapshots are never overwritten.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) deviceDir(deviceID string) string {
	return filepath.Join(s.dir, dirName(deviceID))
}

// dirName encodes a device ID as a single path element. The encoding is
// reversible, so distinct IDs never share a directory.
func dirName(deviceID string) string {
	name := url.PathEscape(deviceID)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name
}

func (s *FileStore) path(deviceID string, ts time.Time) string {
	return filepath.Join(s.deviceDir(deviceID), ts.UTC().Format(TimeFormat)+fileExt)
}

// Store implements Store.
func (s *FileStore) Store(ctx context.Context, deviceID string, ts time.Time, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if deviceID == "" {
		return "", fmt.Errorf("storing snapshot: empty device id: %w", util.ErrInvalidConfig)
	}
	dir := s.deviceDir(deviceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing snapshot: %w", err)
	}

	final := s.path(deviceID, ts)
	if err := os.Link(tmp.Name(), final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("snapshot %s: %w", FormatID(deviceID, ts), util.ErrAlreadyExists)
		}
		return "", fmt.Errorf("linking snapshot: %w", err)
	}
	return FormatID(deviceID, ts), nil
}

// Latest implements Store.
func (s *FileStore) Latest(ctx context.Context, deviceID string) (*Snapshot, error) {
	stamps, err := s.stamps(deviceID)
	if err != nil || len(stamps) == 0 {
		return nil, err
	}
	return s.read(deviceID, stamps[len(stamps)-1])
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, deviceID string) ([]*Snapshot, error) {
	stamps, err := s.stamps(deviceID)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(stamps))
	for _, ts := range stamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := s.read(deviceID, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	deviceID, ts, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.read(deviceID, ts)
}

// Devices returns the IDs of devices that have a directory in the store.
func (s *FileStore) Devices() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		names = append(names, id)
	}
	return names, nil
}

// stamps returns the capture times of a device's snapshots, oldest first.
func (s *FileStore) stamps(deviceID string) ([]time.Time, error) {
	entries, err := os.ReadDir(s.deviceDir(deviceID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshots for %s: %w", deviceID, err)
	}

	var stamps []time.Time
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ts, err := time.Parse(TimeFormat, strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	return stamps, nil
}

func (s *FileStore) read(deviceID string, ts time.Time) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(deviceID, ts))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot %s: %w", FormatID(deviceID, ts), util.ErrNotFound)
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return New(deviceID, ts, string(data)), nil
}
