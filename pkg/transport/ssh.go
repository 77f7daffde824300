package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/newtcfg/pkg/util"
)

const (
	defaultSSHTimeout = 30 * time.Second

	// commandSettle is how long the line must stay quiet after a prompt
	// before a single command's output is considered complete.
	commandSettle = 150 * time.Millisecond

	// setSettle is the same for a written command sequence, where
	// intermediate prompts appear while later lines are still processing.
	setSettle = 2 * time.Second
)

// SSHTransport opens interactive CLI sessions over SSH. One shell is kept per
// session so configuration mode persists across commands.
type SSHTransport struct {
	HostKeyCallback ssh.HostKeyCallback
}

// NewSSHTransport creates an SSH transport that does not verify host keys.
func NewSSHTransport() *SSHTransport {
	return &SSHTransport{
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
}

// Dial connects, authenticates, starts a shell, and disables paging.
func (t *SSHTransport) Dial(ctx context.Context, target Target) (Conn, error) {
	timeout := target.Timeout
	if timeout == 0 {
		timeout = defaultSSHTimeout
	}
	password := target.Password
	config := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: t.HostKeyCallback,
		Timeout:         timeout,
	}

	addr := target.Addr()
	client, err := dialSSH(ctx, addr, config)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("SSH dial %s@%s: %w: %v", target.Username, addr, ErrAuth, err)
		}
		return nil, fmt.Errorf("SSH dial %s@%s: %w", target.Username, addr, err)
	}

	c := &sshConn{
		client:  client,
		dialect: target.Dialect,
		output:  make(chan []byte, 64),
	}
	if err := c.startShell(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

// dialSSH is ssh.Dial with context cancellation during connect and handshake.
func dialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

type sshConn struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	dialect *Dialect

	output  chan []byte
	readErr error

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *sshConn) startShell(ctx context.Context) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("SSH session: %w", err)
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 0, 511, modes); err != nil {
		session.Close()
		return fmt.Errorf("SSH pty: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return fmt.Errorf("SSH stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return fmt.Errorf("SSH stdout: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return fmt.Errorf("SSH shell: %w", err)
	}
	c.session = session
	c.stdin = stdin

	go c.readLoop(stdout)

	if _, err := c.readUntilPrompt(ctx, commandSettle); err != nil {
		return fmt.Errorf("waiting for prompt: %w", err)
	}
	if c.dialect != nil {
		for _, cmd := range c.dialect.DisablePaging {
			if _, err := c.Send(ctx, cmd); err != nil {
				return fmt.Errorf("disabling paging: %w", err)
			}
		}
	}
	return nil
}

func (c *sshConn) readLoop(r io.Reader) {
	defer close(c.output)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.output <- chunk
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// readUntilPrompt collects output until the prompt appears at the end of the
// buffer and the line then stays quiet for settle.
func (c *sshConn) readUntilPrompt(ctx context.Context, settle time.Duration) (string, error) {
	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return buf.String(), ctx.Err()
		case chunk, ok := <-c.output:
			if !ok {
				return buf.String(), fmt.Errorf("%w: %v", ErrClosed, c.readErr)
			}
			buf.Write(chunk)
		}

		for c.promptAtEnd(buf.Bytes()) {
			timer := time.NewTimer(settle)
			select {
			case <-ctx.Done():
				timer.Stop()
				return buf.String(), ctx.Err()
			case chunk, ok := <-c.output:
				timer.Stop()
				if !ok {
					return buf.String(), fmt.Errorf("%w: %v", ErrClosed, c.readErr)
				}
				buf.Write(chunk)
			case <-timer.C:
				return buf.String(), nil
			}
		}
	}
}

func (c *sshConn) promptAtEnd(b []byte) bool {
	if len(b) > 256 {
		b = b[len(b)-256:]
	}
	prompt := defaultPrompt
	if c.dialect != nil && c.dialect.Prompt != nil {
		prompt = c.dialect.Prompt
	}
	return prompt.Match(b)
}

// Send writes one command and returns its output without the echo and the
// trailing prompt.
func (c *sshConn) Send(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.stdin, command+"\n"); err != nil {
		return "", fmt.Errorf("%w: %v", ErrClosed, err)
	}
	raw, err := c.readUntilPrompt(ctx, commandSettle)
	return cleanOutput(raw, command), err
}

// SendSet writes the whole sequence, then waits for the line to settle at a prompt.
func (c *sshConn) SendSet(ctx context.Context, commands []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for _, cmd := range commands {
		b.WriteString(cmd)
		if !strings.HasSuffix(cmd, "\n") {
			b.WriteByte('\n')
		}
	}
	if _, err := io.WriteString(c.stdin, b.String()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrClosed, err)
	}
	raw, err := c.readUntilPrompt(ctx, setSettle)
	return cleanOutput(raw, ""), err
}

// Close ends the shell and the connection. Later calls return the first result.
func (c *sshConn) Close() error {
	c.closeOnce.Do(func() {
		if c.stdin != nil {
			c.stdin.Close()
		}
		if c.session != nil {
			c.session.Close()
		}
		c.closeErr = c.client.Close()
		if c.closeErr != nil {
			util.Logger.Debugf("SSH close: %v", c.closeErr)
		}
	})
	return c.closeErr
}

// cleanOutput normalizes line endings and strips the echoed command and the
// trailing prompt line.
func cleanOutput(raw, command string) string {
	out := strings.ReplaceAll(raw, "\r\n", "\n")
	if command != "" {
		if nl := strings.IndexByte(out, '\n'); nl >= 0 && strings.Contains(out[:nl], command) {
			out = out[nl+1:]
		}
	}
	if nl := strings.LastIndexByte(strings.TrimRight(out, "\n"), '\n'); nl >= 0 {
		out = out[:nl+1]
	} else {
		out = ""
	}
	return out
}
