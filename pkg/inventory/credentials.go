package inventory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNoCredentials is returned when a resolver has nothing for a device.
var ErrNoCredentials = errors.New("no credentials")

// Credentials is the secret material for one session. It is resolved per
// session and never logged or persisted.
type Credentials struct {
	Username string
	Password string
}

// CredentialResolver supplies credentials for a device just before its
// session opens.
type CredentialResolver interface {
	Resolve(ctx context.Context, d Device) (Credentials, error)
}

// CredentialFunc adapts a function to CredentialResolver.
type CredentialFunc func(ctx context.Context, d Device) (Credentials, error)

// Resolve calls f.
func (f CredentialFunc) Resolve(ctx context.Context, d Device) (Credentials, error) {
	return f(ctx, d)
}

// StaticResolver returns the username and password carried inline in the
// inventory record.
type StaticResolver struct{}

// Resolve implements CredentialResolver.
func (StaticResolver) Resolve(_ context.Context, d Device) (Credentials, error) {
	if d.Username == "" {
		return Credentials{}, ErrNoCredentials
	}
	return Credentials{Username: d.Username, Password: d.Password}, nil
}

// EnvResolver reads NEWTCFG_CRED_<REF>_USERNAME and NEWTCFG_CRED_<REF>_PASSWORD,
// where REF is the device's credential reference upper-cased with
// non-alphanumerics replaced by underscores.
type EnvResolver struct {
	// Prefix overrides the default "NEWTCFG_CRED_".
	Prefix string
	// Lookup overrides os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Resolve implements CredentialResolver.
func (r EnvResolver) Resolve(_ context.Context, d Device) (Credentials, error) {
	if d.CredentialRef == "" {
		return Credentials{}, ErrNoCredentials
	}
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := r.Prefix
	if prefix == "" {
		prefix = "NEWTCFG_CRED_"
	}
	base := prefix + envName(d.CredentialRef)

	user, ok := lookup(base + "_USERNAME")
	if !ok || user == "" {
		return Credentials{}, fmt.Errorf("%w: %s_USERNAME not set", ErrNoCredentials, base)
	}
	pass, _ := lookup(base + "_PASSWORD")
	return Credentials{Username: user, Password: pass}, nil
}

// EnvVarName returns the environment variable prefix used for a credential
// reference.
func EnvVarName(ref string) string {
	return "NEWTCFG_CRED_" + envName(ref)
}

func envName(ref string) string {
	b := []byte(strings.ToUpper(ref))
	for i, c := range b {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			b[i] = '_'
		}
	}
	return string(b)
}

// PromptResolver asks on the terminal, once per credential reference (or
// per device when no reference is set), and caches the answer for the
// process lifetime. The password is read without echo.
type PromptResolver struct {
	In  io.Reader
	Out io.Writer
	// ReadPassword defaults to term.ReadPassword on stdin.
	ReadPassword func() ([]byte, error)

	mu    sync.Mutex
	cache map[string]Credentials
}

// NewPromptResolver creates a resolver on stdin/stderr.
func NewPromptResolver() *PromptResolver {
	return &PromptResolver{
		In:  os.Stdin,
		Out: os.Stderr,
		ReadPassword: func() ([]byte, error) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
	}
}

// Resolve implements CredentialResolver. Prompts are serialized so
// concurrent sessions do not interleave on the terminal.
func (r *PromptResolver) Resolve(ctx context.Context, d Device) (Credentials, error) {
	key := d.CredentialRef
	if key == "" {
		key = d.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[key]; ok {
		return c, nil
	}
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	fmt.Fprintf(r.Out, "Username for %s: ", key)
	line, err := bufio.NewReader(r.In).ReadString('\n')
	if err != nil && line == "" {
		return Credentials{}, fmt.Errorf("reading username: %w", err)
	}
	user := strings.TrimSpace(line)

	fmt.Fprintf(r.Out, "Password for %s@%s: ", user, key)
	pass, err := r.ReadPassword()
	fmt.Fprintln(r.Out)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading password: %w", err)
	}

	c := Credentials{Username: user, Password: string(pass)}
	if r.cache == nil {
		r.cache = make(map[string]Credentials)
	}
	r.cache[key] = c
	return c, nil
}

// ChainResolver tries each resolver in order and returns the first result
// that is not ErrNoCredentials.
type ChainResolver []CredentialResolver

// Resolve implements CredentialResolver.
func (c ChainResolver) Resolve(ctx context.Context, d Device) (Credentials, error) {
	for _, r := range c {
		creds, err := r.Resolve(ctx, d)
		if err == nil {
			return creds, nil
		}
		if !errors.Is(err, ErrNoCredentials) {
			return Credentials{}, err
		}
	}
	return Credentials{}, fmt.Errorf("%w for %s", ErrNoCredentials, d.ID)
}
