// Package session owns the open/execute/close lifecycle of one device's
// transport session and normalizes transport failures into util.ErrorKind.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/newtcfg/pkg/inventory"
	"github.com/newtron-network/newtcfg/pkg/transport"
	"github.com/newtron-network/newtcfg/pkg/util"
)

// State is the lifecycle state of a Session.
type State int

const (
	Closed State = iota
	Open
	Failed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Failed:
		return "failed"
	default:
		return "closed"
	}
}

// Session is one open transport session to one device. It belongs to a
// single operation and is never shared.
type Session struct {
	Device  inventory.Device
	Dialect *transport.Dialect

	mu    sync.Mutex
	conn  transport.Conn
	state State
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) handle() (transport.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.state == Open && s.conn != nil
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = Failed
	s.mu.Unlock()
}

// Options controls connection retry and timeouts.
type Options struct {
	// ConnectRetries is the number of extra dial attempts after the first.
	ConnectRetries int
	// RetryBackoff is the fixed wait between dial attempts.
	RetryBackoff time.Duration
	// ConnectTimeout bounds each dial attempt. A device's own Timeout wins.
	ConnectTimeout time.Duration
	// CommandTimeout bounds each command; zero means no limit beyond ctx.
	CommandTimeout time.Duration
}

// DefaultOptions returns one retry with a 2s fixed backoff and a 30s
// connect timeout.
func DefaultOptions() Options {
	return Options{
		ConnectRetries: 1,
		RetryBackoff:   2 * time.Second,
		ConnectTimeout: 30 * time.Second,
	}
}

// Manager opens and drives device sessions.
type Manager struct {
	opts       Options
	creds      inventory.CredentialResolver
	transports *transport.Registry
}

// NewManager creates a session manager. Credentials are resolved through
// creds immediately before each session opens.
func NewManager(opts Options, creds inventory.CredentialResolver, transports *transport.Registry) *Manager {
	if opts.ConnectRetries < 0 {
		opts.ConnectRetries = 0
	}
	return &Manager{opts: opts, creds: creds, transports: transports}
}

// Open dials the device, retrying connection failures up to ConnectRetries
// times. Authentication failures and cancellation are not retried. Errors are
// *util.DeviceError values carrying the normalized kind.
func (m *Manager) Open(ctx context.Context, d inventory.Device) (*Session, error) {
	logger := util.WithDeviceOp(d.ID, "open")

	dialect, err := transport.LookupDialect(d.Dialect)
	if err != nil {
		return nil, util.NewDeviceError(d.ID, "open", util.KindConfiguration, err)
	}
	tr, err := m.transports.Lookup(d.Transport)
	if err != nil {
		return nil, util.NewDeviceError(d.ID, "open", util.KindConfiguration, err)
	}

	creds, err := m.creds.Resolve(ctx, d)
	if err != nil {
		kind := util.KindAuthFailure
		if ctx.Err() != nil {
			kind = util.KindCancelled
		}
		return nil, util.NewDeviceError(d.ID, "open", kind, fmt.Errorf("resolving credential %q: %w", d.CredentialRef, err))
	}

	timeout := d.Timeout
	if timeout == 0 {
		timeout = m.opts.ConnectTimeout
	}
	target := transport.Target{
		Host:     d.Host,
		Port:     d.Port,
		Username: creds.Username,
		Password: creds.Password,
		Dialect:  dialect,
		Timeout:  timeout,
	}

	var conn transport.Conn
	attempt := 0
	dial := func() error {
		attempt++
		dialCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		c, err := tr.Dial(dialCtx, target)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			kind := Classify(err)
			logger.Debugf("attempt %d to %s failed (%s): %v", attempt, d.Key(), kind, err)
			if kind == util.KindAuthFailure || kind == util.KindCancelled {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.opts.RetryBackoff), uint64(m.opts.ConnectRetries)),
		ctx,
	)
	if err := backoff.Retry(dial, policy); err != nil {
		kind := Classify(err)
		if ctx.Err() != nil {
			kind = util.KindCancelled
		}
		logger.Warnf("Connection to %s failed after %d attempt(s): %s", d.Key(), attempt, kind)
		return nil, util.NewDeviceError(d.ID, "open", kind, err)
	}

	logger.Debugf("Connected to %s via %s as %s", d.Key(), d.Transport, creds.Username)
	return &Session{Device: d, Dialect: dialect, conn: conn, state: Open}, nil
}

// Execute runs one command. Commands are never retried. Output carrying one
// of the dialect's rejection markers is a CommandRejected failure; the output
// is still returned.
func (m *Manager) Execute(ctx context.Context, s *Session, command string) (string, error) {
	return m.execute(ctx, s, command, s.Dialect.Rejected)
}

// configHeadLines is how much of a configuration dump is scanned for a
// rejection. A refused show command fails on its first lines; markers deeper
// in the text belong to banners and descriptions.
const configHeadLines = 3

// FetchConfig runs the dialect's show-config command and returns the text
// verbatim. Only the head of the output is checked for rejection markers.
func (m *Manager) FetchConfig(ctx context.Context, s *Session) (string, error) {
	return m.execute(ctx, s, s.Dialect.ShowConfig, func(out string) string {
		return s.Dialect.Rejected(headLines(out, configHeadLines))
	})
}

// headLines returns the first n non-blank lines of s.
func headLines(s string, n int) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if n == 0 {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
		n--
	}
	return b.String()
}

func (m *Manager) execute(ctx context.Context, s *Session, command string, rejected func(string) string) (string, error) {
	conn, ok := s.handle()
	if !ok {
		return "", util.NewDeviceError(s.Device.ID, "execute", util.KindTransportClosed, util.ErrNotConnected)
	}
	cctx, cancel := m.commandContext(ctx)
	defer cancel()

	out, err := conn.Send(cctx, command)
	if err != nil {
		return out, m.commandError(ctx, cctx, s, "execute", fmt.Errorf("%q: %w", command, err))
	}
	if line := rejected(out); line != "" {
		return out, util.NewDeviceError(s.Device.ID, "execute", util.KindCommandRejected,
			fmt.Errorf("%q: %w: %s", command, transport.ErrRejected, line))
	}
	return out, nil
}

// ExecuteSet sends an ordered command sequence as one unit.
func (m *Manager) ExecuteSet(ctx context.Context, s *Session, commands []string) (string, error) {
	conn, ok := s.handle()
	if !ok {
		return "", util.NewDeviceError(s.Device.ID, "execute", util.KindTransportClosed, util.ErrNotConnected)
	}
	cctx, cancel := m.commandContext(ctx)
	defer cancel()

	out, err := conn.SendSet(cctx, commands)
	if err != nil {
		return out, m.commandError(ctx, cctx, s, "execute", fmt.Errorf("command set of %d: %w", len(commands), err))
	}
	if line := s.Dialect.Rejected(out); line != "" {
		return out, util.NewDeviceError(s.Device.ID, "execute", util.KindCommandRejected,
			fmt.Errorf("%w: %s", transport.ErrRejected, line))
	}
	return out, nil
}

func (m *Manager) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.CommandTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.CommandTimeout)
	}
	return context.WithCancel(ctx)
}

// commandError normalizes a failed send. A command abandoned by its context
// may still produce output later, so the session is failed along with one
// whose transport closed.
func (m *Manager) commandError(ctx, cctx context.Context, s *Session, op string, err error) error {
	kind := Classify(err)
	if ctx.Err() != nil {
		kind = util.KindCancelled
	}
	if kind == util.KindTransportClosed || cctx.Err() != nil {
		s.fail()
	}
	return util.NewDeviceError(s.Device.ID, op, kind, err)
}

// Close releases the session. It is idempotent and never fails: transport
// close errors are logged and dropped.
func (m *Manager) Close(s *Session) {
	if s == nil {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = Closed
	s.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		util.WithDeviceOp(s.Device.ID, "close").Debugf("Ignoring close error: %v", err)
	}
}

// WithSession opens a session, runs fn, and always closes the session.
func (m *Manager) WithSession(ctx context.Context, d inventory.Device, fn func(*Session) error) error {
	s, err := m.Open(ctx, d)
	if err != nil {
		return err
	}
	defer m.Close(s)
	return fn(s)
}

// Classify maps a raw transport error onto the error taxonomy. Errors that
// already carry a kind keep it.
func Classify(err error) util.ErrorKind {
	if err == nil {
		return ""
	}
	var k util.Kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return util.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return util.KindConnectTimeout
	case errors.Is(err, transport.ErrAuth):
		return util.KindAuthFailure
	case errors.Is(err, transport.ErrRejected):
		return util.KindCommandRejected
	case errors.Is(err, transport.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return util.KindTransportClosed
	}

	var authErr *ssh.ServerAuthError
	if errors.As(err, &authErr) {
		return util.KindAuthFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return util.KindConnectTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "authentication failed"):
		return util.KindAuthFailure
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "use of closed network connection"):
		return util.KindTransportClosed
	case strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "timed out"):
		return util.KindConnectTimeout
	}
	return util.KindUnknown
}
