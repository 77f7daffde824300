package transport

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Juniper/go-netconf/netconf"
)

// NetconfTransport opens NETCONF-over-SSH sessions. Commands are carried as
// text-format RPCs so callers see the same output shape as the CLI.
type NetconfTransport struct{}

// NewNetconfTransport creates a NETCONF transport.
func NewNetconfTransport() *NetconfTransport {
	return &NetconfTransport{}
}

// Dial opens the NETCONF subsystem and completes the hello exchange.
func (t *NetconfTransport) Dial(ctx context.Context, target Target) (Conn, error) {
	timeout := target.Timeout
	if timeout == 0 {
		timeout = defaultSSHTimeout
	}
	cfg := netconf.SSHConfigPassword(target.Username, target.Password)
	addr := target.Addr()

	type dialResult struct {
		session *netconf.Session
		err     error
	}
	ch := make(chan dialResult, 1)
	go func() {
		s, err := netconf.DialSSHTimeout(addr, cfg, timeout)
		ch <- dialResult{s, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.session != nil {
				r.session.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if strings.Contains(r.err.Error(), "unable to authenticate") {
				return nil, fmt.Errorf("NETCONF dial %s@%s: %w: %v", target.Username, addr, ErrAuth, r.err)
			}
			return nil, fmt.Errorf("NETCONF dial %s@%s: %w", target.Username, addr, r.err)
		}
		return &netconfConn{session: r.session, dialect: target.Dialect}, nil
	}
}

type netconfConn struct {
	session *netconf.Session
	dialect *Dialect

	mu       sync.Mutex
	inConfig bool
	closed   bool
}

// Send maps one CLI command onto an RPC. The dialect's configuration-mode
// commands become candidate lock and commit operations, and commands issued
// between them are loaded as set-format configuration.
func (c *netconfConn) Send(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.isEnterConfig(command):
		if _, err := c.exec(ctx, lockCandidate); err != nil {
			return "", err
		}
		c.inConfig = true
		return "", nil
	case c.isExitConfig(command):
		c.inConfig = false
		reply, err := c.exec(ctx, commitCandidate)
		c.exec(ctx, unlockCandidate)
		return reply, err
	case c.inConfig:
		return c.exec(ctx, loadSet(command))
	case c.dialect != nil && command == c.dialect.ShowConfig:
		return c.exec(ctx, getConfigText)
	default:
		return c.exec(ctx, cliCommand(command))
	}
}

// SendSet loads a replace sequence as a full override, or any other sequence
// as set-format lines, and commits.
func (c *netconfConn) SendSet(ctx context.Context, commands []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var load netconf.RawMethod
	if text, ok := c.splitReplace(commands); ok {
		load = loadOverride(text)
	} else {
		var lines []string
		for _, cmd := range commands {
			if c.isEnterConfig(cmd) || c.isExitConfig(cmd) {
				continue
			}
			lines = append(lines, cmd)
		}
		load = loadSet(strings.Join(lines, "\n"))
	}

	if _, err := c.exec(ctx, lockCandidate); err != nil {
		return "", err
	}
	defer c.exec(ctx, unlockCandidate)

	out, err := c.exec(ctx, load)
	if err != nil {
		return out, err
	}
	commit, err := c.exec(ctx, commitCandidate)
	return out + commit, err
}

func (c *netconfConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.session.Close()
}

// exec runs one RPC. go-netconf has no context support, so cancellation
// closes the session to unblock the pending read.
func (c *netconfConn) exec(ctx context.Context, method netconf.RawMethod) (string, error) {
	if c.closed {
		return "", ErrClosed
	}
	type execResult struct {
		reply *netconf.RPCReply
		err   error
	}
	ch := make(chan execResult, 1)
	go func() {
		reply, err := c.session.Exec(method)
		ch <- execResult{reply, err}
	}()

	var r execResult
	select {
	case <-ctx.Done():
		c.closed = true
		c.session.Close()
		return "", ctx.Err()
	case r = <-ch:
	}

	if r.err != nil {
		var rpcErr *netconf.RPCError
		if errors.As(r.err, &rpcErr) {
			return "", fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(rpcErr.Message))
		}
		return "", fmt.Errorf("%w: %v", ErrClosed, r.err)
	}
	if r.reply == nil {
		return "", nil
	}
	return replyText(r.reply.Data), nil
}

func (c *netconfConn) isEnterConfig(cmd string) bool {
	return c.dialect != nil && containsString(c.dialect.EnterConfig, cmd)
}

func (c *netconfConn) isExitConfig(cmd string) bool {
	return c.dialect != nil && containsString(c.dialect.ExitConfig, cmd)
}

func (c *netconfConn) splitReplace(commands []string) (string, bool) {
	if c.dialect == nil {
		return "", false
	}
	return c.dialect.SplitReplace(commands)
}

const (
	lockCandidate   netconf.RawMethod = "<lock><target><candidate/></target></lock>"
	unlockCandidate netconf.RawMethod = "<unlock><target><candidate/></target></unlock>"
	commitCandidate netconf.RawMethod = "<commit/>"
	getConfigText   netconf.RawMethod = `<get-configuration format="text"/>`
)

func cliCommand(cmd string) netconf.RawMethod {
	return netconf.RawMethod(`<command format="text">` + escapeXML(cmd) + `</command>`)
}

func loadSet(lines string) netconf.RawMethod {
	return netconf.RawMethod(`<load-configuration action="set" format="text"><configuration-set>` +
		escapeXML(lines) + `</configuration-set></load-configuration>`)
}

func loadOverride(text string) netconf.RawMethod {
	return netconf.RawMethod(`<load-configuration action="override" format="text"><configuration-text>` +
		escapeXML(text) + `</configuration-text></load-configuration>`)
}

func escapeXML(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

// replyText extracts the character data of a text-format reply
// (<output> or <configuration-text>). Other replies are returned as-is.
func replyText(data string) string {
	dec := xml.NewDecoder(strings.NewReader(data))
	var (
		b     strings.Builder
		depth int
		found bool
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "output" || t.Name.Local == "configuration-text" {
				depth++
				found = true
			}
		case xml.EndElement:
			if depth > 0 && (t.Name.Local == "output" || t.Name.Local == "configuration-text") {
				depth--
			}
		case xml.CharData:
			if depth > 0 {
				b.Write(t)
			}
		}
	}
	if !found {
		return data
	}
	return strings.TrimLeft(b.String(), "\n")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
