package backup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/newtcfg/internal/testutil"
	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/inventory"
	"github.com/newtron-network/newtcfg/pkg/session"
	"github.com/newtron-network/newtcfg/pkg/snapshot"
	"github.com/newtron-network/newtcfg/pkg/transport"
	"github.com/newtron-network/newtcfg/pkg/util"
)

type fixture struct {
	ft     *testutil.FakeTransport
	store  *snapshot.MemoryStore
	engine *Engine

	mu    sync.Mutex
	clock time.Time
}

func newFixture() *fixture {
	f := &fixture{
		ft:    testutil.NewFakeTransport(),
		store: snapshot.NewMemoryStore(),
		clock: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	opts := session.DefaultOptions()
	opts.RetryBackoff = time.Millisecond
	sessions := session.NewManager(opts, inventory.StaticResolver{}, f.ft.Registry())
	f.engine = NewEngine(sessions, f.store, batch.NewCoordinator(3))
	f.engine.SetClock(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.clock = f.clock.Add(time.Second)
		return f.clock
	})
	return f
}

func device(id, host, dialect string) inventory.Device {
	return inventory.Device{ID: id, Host: host, Port: 22, Dialect: dialect, Username: "admin"}
}

func TestBackupDevice(t *testing.T) {
	f := newFixture()
	cfg := "Building configuration...\r\n!\r\nhostname core1\r\n interface Gi0/1  \r\n"
	dev := f.ft.Add("10.0.0.1", &testutil.FakeDevice{Config: cfg})
	ctx := context.Background()

	snap, err := f.engine.BackupDevice(ctx, device("core1", "10.0.0.1", "cisco_ios"))
	require.NoError(t, err)

	assert.Equal(t, cfg, snap.ConfigText, "captured text must not be normalized")
	assert.Equal(t, snapshot.Hash(cfg), snap.ContentHash)
	assert.Equal(t, "core1", snap.DeviceID)
	assert.Equal(t, []string{"show running-config"}, dev.Sent())
	assert.Equal(t, 1, dev.Closes(), "session closed after capture")

	stored, err := f.store.Latest(ctx, "core1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, stored.ID)
}

func TestBackupDeviceUsesDialect(t *testing.T) {
	f := newFixture()
	dev := f.ft.Add("10.0.0.2", &testutil.FakeDevice{Config: "system { host-name edge1; }\n"})

	_, err := f.engine.BackupDevice(context.Background(), device("edge1", "10.0.0.2", "juniper"))
	require.NoError(t, err)
	assert.Equal(t, []string{"show configuration"}, dev.Sent())
}

func TestBackupDeviceFailures(t *testing.T) {
	tests := []struct {
		name string
		dev  *testutil.FakeDevice
		kind util.ErrorKind
	}{
		{"empty output", &testutil.FakeDevice{Config: "  \n"}, util.KindUnknown},
		{"auth", &testutil.FakeDevice{DialErr: fmt.Errorf("ssh: %w", transport.ErrAuth)}, util.KindAuthFailure},
		{"rejected", &testutil.FakeDevice{Reject: map[string]string{"show running-config": "% Invalid input detected\n"}}, util.KindCommandRejected},
		{"dropped", &testutil.FakeDevice{Errors: map[string]error{"show running-config": transport.ErrClosed}}, util.KindTransportClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.ft.Add("10.0.0.1", tt.dev)

			snap, err := f.engine.BackupDevice(context.Background(), device("core1", "10.0.0.1", "cisco_ios"))
			require.Error(t, err)
			assert.Nil(t, snap)

			var be *BackupError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.kind, be.Kind)
			assert.Equal(t, tt.kind, util.KindOf(err))

			latest, _ := f.store.Latest(context.Background(), "core1")
			assert.Nil(t, latest, "nothing stored on failure")
		})
	}
}

func TestBackupDeviceKeepsMarkersInConfigText(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		config  string
	}{
		{"ios banner", "cisco_ios", "Building configuration...\n!\nhostname core1\n!\nbanner motd ^C\n% Error: unauthorized access is prohibited\n^C\n!\ninterface Gi0/1\n description % Invalid input uplink\n!\nend\n"},
		{"junos description", "juniper_junos", "## Last commit: 2026-03-01 10:00:00 UTC\nversion 21.4R3;\nsystem {\n    host-name edge1;\n}\ninterfaces {\n    ge-0/0/0 {\n        description \"error: legacy circuit\";\n    }\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.ft.Add("10.0.0.1", &testutil.FakeDevice{Config: tt.config})

			snap, err := f.engine.BackupDevice(context.Background(), device("core1", "10.0.0.1", tt.dialect))
			require.NoError(t, err)
			assert.Equal(t, tt.config, snap.ConfigText)
		})
	}
}

func TestBackupAllIsolatesFailures(t *testing.T) {
	f := newFixture()
	f.ft.Add("10.0.0.1", &testutil.FakeDevice{Config: "hostname a\n"})
	f.ft.Add("10.0.0.2", &testutil.FakeDevice{DialErr: fmt.Errorf("ssh: %w", transport.ErrAuth)})
	f.ft.Add("10.0.0.3", &testutil.FakeDevice{Config: "hostname c\n"})

	devices := []inventory.Device{
		device("A", "10.0.0.1", "cisco_ios"),
		device("B", "10.0.0.2", "cisco_ios"),
		device("C", "10.0.0.3", "arista_eos"),
	}
	report := f.engine.BackupAll(context.Background(), devices)

	require.Len(t, report.Results, 3)
	assert.Equal(t, batch.KindBackup, report.Kind)

	a, b, c := report.Results[0], report.Results[1], report.Results[2]
	assert.Equal(t, "A", a.DeviceID)
	assert.True(t, a.Success)
	assert.Equal(t, "B", b.DeviceID)
	assert.False(t, b.Success)
	assert.Equal(t, util.KindAuthFailure, b.ErrorKind)
	assert.Equal(t, "C", c.DeviceID)
	assert.True(t, c.Success)

	res, ok := a.Data.(*Result)
	require.True(t, ok)
	assert.Equal(t, snapshot.Hash("hostname a\n"), res.ContentHash)
	assert.Equal(t, batch.Summary{Total: 3, Succeeded: 2, Failed: 1}, report.Summary())
}

func TestBackupUnchanged(t *testing.T) {
	f := newFixture()
	f.ft.Add("10.0.0.1", &testutil.FakeDevice{Config: "hostname a\n"})
	devices := []inventory.Device{device("A", "10.0.0.1", "cisco_ios")}
	ctx := context.Background()

	first := f.engine.BackupAll(ctx, devices).Results[0]
	require.True(t, first.Success)
	assert.NotContains(t, first.Detail, "unchanged")

	second := f.engine.BackupAll(ctx, devices).Results[0]
	require.True(t, second.Success)
	firstRes := first.Data.(*Result)
	secondRes := second.Data.(*Result)
	assert.True(t, secondRes.Unchanged)
	assert.Equal(t, firstRes.SnapshotID, secondRes.PreviousID)
	assert.Contains(t, second.Detail, "unchanged since "+firstRes.SnapshotID)

	history, err := f.store.List(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, history, 2, "history stays append-only")
}
