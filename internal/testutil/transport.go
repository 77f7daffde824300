// Package testutil provides test helpers: a scripted in-memory transport for
// unit tests and Redis helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newtron-network/newtcfg/pkg/transport"
)

// FakeDevice scripts the behaviour of one host behind a FakeTransport.
// Fields are set before use; recorded activity is read through the accessors.
type FakeDevice struct {
	// Config is the running configuration returned for the dialect's
	// show-config command. A replace sequence overwrites it.
	Config string

	// DialErrs are returned by successive dials, one per dial, before DialErr
	// applies.
	DialErrs []error
	DialErr  error

	// Outputs and Errors script individual commands. Reject maps a command to
	// device output carrying a rejection marker.
	Outputs map[string]string
	Errors  map[string]error
	Reject  map[string]string

	// Delay is applied to every command; it honours cancellation.
	Delay time.Duration

	CloseErr error

	mu     sync.Mutex
	sent   []string
	dials  int
	closes int
}

// Sent returns every command received, in order.
func (d *FakeDevice) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

// Dials returns the number of dial attempts.
func (d *FakeDevice) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Closes returns the number of Close calls on this device's connections.
func (d *FakeDevice) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// RunningConfig returns the current configuration text.
func (d *FakeDevice) RunningConfig() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Config
}

// SetConfig replaces the running configuration, simulating out-of-band change.
func (d *FakeDevice) SetConfig(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Config = text
}

// FakeTransport is a transport.Transport backed by FakeDevices keyed by host.
type FakeTransport struct {
	mu      sync.Mutex
	devices map[string]*FakeDevice
}

// NewFakeTransport creates an empty fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{devices: make(map[string]*FakeDevice)}
}

// Add registers d for host and returns it.
func (t *FakeTransport) Add(host string, d *FakeDevice) *FakeDevice {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices[host] = d
	return d
}

// Device returns the device registered for host.
func (t *FakeTransport) Device(host string) *FakeDevice {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.devices[host]
}

// Registry returns a transport registry serving both kinds from t.
func (t *FakeTransport) Registry() *transport.Registry {
	return transport.NewRegistry().
		Register(transport.KindSSH, t).
		Register(transport.KindNetconf, t)
}

// Dial implements transport.Transport.
func (t *FakeTransport) Dial(ctx context.Context, target transport.Target) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := t.Device(target.Host)
	if d == nil {
		return nil, fmt.Errorf("dial %s: connection refused", target.Addr())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.DialErrs) > 0 {
		err := d.DialErrs[0]
		d.DialErrs = d.DialErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if d.DialErr != nil {
		return nil, d.DialErr
	}
	return &fakeConn{dev: d, dialect: target.Dialect}, nil
}

type fakeConn struct {
	dev     *FakeDevice
	dialect *transport.Dialect

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Send(ctx context.Context, command string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	return c.handle(command)
}

func (c *fakeConn) SendSet(ctx context.Context, commands []string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.dialect != nil {
		if text, ok := c.dialect.SplitReplace(commands); ok {
			d.sent = append(d.sent, commands...)
			d.Config = text
			return "", nil
		}
	}
	var out string
	for _, cmd := range commands {
		o, err := c.handle(cmd)
		out += o
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// handle runs one command with the device lock held.
func (c *fakeConn) handle(command string) (string, error) {
	d := c.dev
	d.sent = append(d.sent, command)
	if err, ok := d.Errors[command]; ok {
		return "", err
	}
	if out, ok := d.Reject[command]; ok {
		return out, nil
	}
	if out, ok := d.Outputs[command]; ok {
		return out, nil
	}
	if c.dialect != nil && command == c.dialect.ShowConfig {
		return d.Config, nil
	}
	return "", nil
}

func (c *fakeConn) wait(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if c.dev.Delay > 0 {
		timer := time.NewTimer(c.dev.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ctx.Err()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.closes++
	return c.dev.CloseErr
}
