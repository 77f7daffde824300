// Package transport defines the session capability the orchestration engine
// consumes, along with the vendor dialect table and the SSH and NETCONF
// implementations of that capability.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Transport kinds selectable per device.
const (
	KindSSH     = "ssh"
	KindNetconf = "netconf"
)

// Errors returned by transports. The session manager maps these (and raw
// network errors) into the util.ErrorKind taxonomy.
var (
	ErrAuth     = errors.New("authentication failed")
	ErrRejected = errors.New("command rejected")
	ErrClosed   = errors.New("transport closed")
)

// Target holds everything a transport needs to open one device session.
type Target struct {
	Host     string
	Port     int
	Username string
	Password string
	Dialect  *Dialect
	Timeout  time.Duration
}

// Addr returns host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Transport opens sessions to devices.
type Transport interface {
	Dial(ctx context.Context, target Target) (Conn, error)
}

// Conn is one open device session.
type Conn interface {
	// Send runs a single command and returns its raw output.
	Send(ctx context.Context, command string) (string, error)
	// SendSet writes an ordered command sequence as one unit and returns
	// the combined output.
	SendSet(ctx context.Context, commands []string) (string, error)
	Close() error
}

// Registry maps transport kinds to implementations.
type Registry struct {
	transports map[string]Transport
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]Transport)}
}

// DefaultRegistry returns a registry with the SSH and NETCONF transports.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindSSH, NewSSHTransport())
	r.Register(KindNetconf, NewNetconfTransport())
	return r
}

// Register adds or replaces the transport for kind.
func (r *Registry) Register(kind string, t Transport) *Registry {
	r.transports[kind] = t
	return r
}

// Lookup returns the transport for kind. An empty kind selects SSH.
func (r *Registry) Lookup(kind string) (Transport, error) {
	if kind == "" {
		kind = KindSSH
	}
	t, ok := r.transports[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported transport %q", kind)
	}
	return t, nil
}

// IsKnownKind reports whether kind names a built-in transport.
func IsKnownKind(kind string) bool {
	return kind == "" || kind == KindSSH || kind == KindNetconf
}
