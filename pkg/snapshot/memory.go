package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newtron-network/newtcfg/pkg/util"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string][]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string][]*Snapshot)}
}

// Store implements Store.
func (s *MemoryStore) Store(ctx context.Context, deviceID string, ts time.Time, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	snap := New(deviceID, ts, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.devices[deviceID]
	for _, existing := range history {
		if existing.CapturedAt.Equal(snap.CapturedAt) {
			return "", fmt.Errorf("snapshot %s: %w", snap.ID, util.ErrAlreadyExists)
		}
	}
	history = append(history, snap)
	sort.SliceStable(history, func(i, j int) bool { return history[i].CapturedAt.Before(history[j].CapturedAt) })
	s.devices[deviceID] = history
	return snap.ID, nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context, deviceID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.devices[deviceID]
	if len(history) == 0 {
		return nil, nil
	}
	snap := *history[len(history)-1]
	return &snap, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, deviceID string) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.devices[deviceID]
	out := make([]*Snapshot, len(history))
	for i, snap := range history {
		c := *snap
		out[i] = &c
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Snapshot, error) {
	deviceID, _, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.devices[deviceID] {
		if snap.ID == id {
			c := *snap
			return &c, nil
		}
	}
	return nil, fmt.Errorf("snapshot %s: %w", id, util.ErrNotFound)
}
