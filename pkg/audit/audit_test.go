package audit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/util"
)

func newLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(logPath, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, logPath
}

func TestEvent_New(t *testing.T) {
	event := NewEvent("alice", "core1", "backup")

	if event.User != "alice" {
		t.Errorf("User = %q, want %q", event.User, "alice")
	}
	if event.Device != "core1" {
		t.Errorf("Device = %q, want %q", event.Device, "core1")
	}
	if event.Operation != "backup" {
		t.Errorf("Operation = %q, want %q", event.Operation, "backup")
	}
	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if other := NewEvent("alice", "core1", "backup"); other.ID == event.ID {
		t.Error("IDs should be unique")
	}
}

func TestEvent_Chaining(t *testing.T) {
	event := NewEvent("alice", "core1", "deploy").
		WithBatch("b-1").
		WithSuccess().
		WithDuration(time.Second)

	if event.BatchID != "b-1" {
		t.Errorf("BatchID = %q", event.BatchID)
	}
	if !event.Success {
		t.Error("Success should be true")
	}
	if event.Duration != time.Second {
		t.Errorf("Duration = %v", event.Duration)
	}
}

func TestEvent_WithError(t *testing.T) {
	err := util.NewDeviceError("core1", "open", util.KindAuthFailure, errors.New("bad password"))
	event := NewEvent("alice", "core1", "backup").WithError(err)

	if event.Success {
		t.Error("Success should be false")
	}
	if event.ErrorKind != util.KindAuthFailure {
		t.Errorf("ErrorKind = %q", event.ErrorKind)
	}
	if event.Error == "" {
		t.Error("Error should be set")
	}

	event2 := NewEvent("alice", "core1", "test").WithError(nil)
	if event2.Success {
		t.Error("Success should be false even with nil error")
	}
	if event2.Error != "" {
		t.Errorf("Error should be empty with nil error, got %q", event2.Error)
	}
}

func TestEvent_WithResult(t *testing.T) {
	ok := NewEvent("alice", "a", "backup").WithResult(batch.OperationResult{
		Success: true, Detail: "saved a@x", Duration: time.Millisecond,
	})
	if !ok.Success || ok.Detail != "saved a@x" || ok.Error != "" {
		t.Errorf("unexpected success event: %+v", ok)
	}

	failed := NewEvent("alice", "b", "backup").WithResult(batch.OperationResult{
		Success: false, Detail: "dial timeout", ErrorKind: util.KindConnectTimeout,
	})
	if failed.Success || failed.Error != "dial timeout" || failed.ErrorKind != util.KindConnectTimeout {
		t.Errorf("unexpected failure event: %+v", failed)
	}
}

func TestFileLogger_Basic(t *testing.T) {
	logger, _ := newLogger(t, RotationConfig{})

	if err := logger.Log(NewEvent("alice", "core1", "backup").WithSuccess()); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].User != "alice" {
		t.Errorf("User = %q, want %q", events[0].User, "alice")
	}
	if events[0].Device != "core1" {
		t.Errorf("Device = %q, want %q", events[0].Device, "core1")
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	logger, _ := newLogger(t, RotationConfig{})

	authErr := util.NewDeviceError("edge1", "open", util.KindAuthFailure, errors.New("denied"))
	events := []*Event{
		NewEvent("alice", "core1", "backup").WithBatch("b1").WithSuccess(),
		NewEvent("bob", "core1", "deploy").WithBatch("b2").WithSuccess(),
		NewEvent("alice", "edge1", "backup").WithBatch("b1").WithError(authErr),
		NewEvent("charlie", "edge2", "compliance").WithBatch("b3").WithSuccess(),
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"user", Filter{User: "alice"}, 2},
		{"device", Filter{Device: "core1"}, 2},
		{"operation", Filter{Operation: "backup"}, 2},
		{"batch", Filter{BatchID: "b1"}, 2},
		{"error kind", Filter{ErrorKind: util.KindAuthFailure}, 1},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"offset", Filter{Offset: 3}, 1},
		{"offset past end", Filter{Offset: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("got %d events, want %d", len(results), tt.want)
			}
		})
	}
}

func TestFileLogger_QueryTimeFilter(t *testing.T) {
	logger, _ := newLogger(t, RotationConfig{})
	logger.Log(NewEvent("alice", "core1", "backup").WithSuccess())

	results, _ := logger.Query(Filter{
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	})
	if len(results) != 1 {
		t.Errorf("Expected 1 event in time range, got %d", len(results))
	}

	results, _ = logger.Query(Filter{StartTime: time.Now().Add(time.Hour)})
	if len(results) != 0 {
		t.Errorf("Expected 0 events outside time range, got %d", len(results))
	}
}

func TestFileLogger_SkipsMalformedLines(t *testing.T) {
	logger, logPath := newLogger(t, RotationConfig{})
	logger.Log(NewEvent("alice", "core1", "backup").WithSuccess())

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json\n")
	f.Close()
	logger.Log(NewEvent("alice", "core2", "backup").WithSuccess())

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 events, got %d", len(results))
	}
}

func TestFileLogger_CreatesDirectories(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "dir", "audit.log")
	logger, err := NewFileLogger(logPath, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger should create directories: %v", err)
	}
	logger.Close()
}

func TestFileLogger_QueryAfterRemoval(t *testing.T) {
	logger, logPath := newLogger(t, RotationConfig{})
	os.Remove(logPath)

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Errorf("Query on a missing file should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 events, got %d", len(results))
	}
}

func TestFileLogger_RotationWithCleanup(t *testing.T) {
	logger, logPath := newLogger(t, RotationConfig{
		MaxSize:    50,
		MaxBackups: 2,
	})

	for i := 0; i < 10; i++ {
		if err := logger.Log(NewEvent("alice", "core1", "backup")); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}

	matches, err := filepath.Glob(logPath + ".*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) == 0 {
		t.Error("Expected rotation to create backup files")
	}
	if len(matches) > 2 {
		t.Errorf("Expected at most 2 backup files, got %d", len(matches))
	}
}

func TestFileLogger_NewFileLoggerMkdirError(t *testing.T) {
	_, err := NewFileLogger("/dev/null/impossible/audit.log", RotationConfig{})
	if err == nil {
		t.Error("NewFileLogger should fail when directory creation fails")
	}
}

func TestReportSink(t *testing.T) {
	logger, _ := newLogger(t, RotationConfig{})
	sink := NewReportSink(logger, "ops")

	finished := time.Now().Truncate(time.Second)
	report := &batch.Report{
		Kind:       batch.KindBackup,
		FinishedAt: finished,
		Results: []batch.OperationResult{
			{DeviceID: "a", Kind: batch.KindBackup, Success: true, Detail: "saved"},
			{DeviceID: "b", Kind: batch.KindBackup, Success: false, Detail: "auth", ErrorKind: util.KindAuthFailure},
			{DeviceID: "c", Kind: batch.KindBackup, Success: true, Detail: "saved"},
		},
	}
	if err := sink.Publish(report); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i, id := range []string{"a", "b", "c"} {
		if events[i].Device != id {
			t.Errorf("event %d device = %q, want %q", i, events[i].Device, id)
		}
		if events[i].User != "ops" || events[i].Operation != "backup" {
			t.Errorf("event %d = %+v", i, events[i])
		}
		if events[i].BatchID == "" || events[i].BatchID != events[0].BatchID {
			t.Errorf("event %d batch = %q", i, events[i].BatchID)
		}
		if !events[i].Timestamp.Equal(finished) {
			t.Errorf("event %d timestamp = %v, want %v", i, events[i].Timestamp, finished)
		}
	}
	if events[1].Success || events[1].ErrorKind != util.KindAuthFailure {
		t.Errorf("failed result not recorded: %+v", events[1])
	}
}
