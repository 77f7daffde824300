package inventory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newtron-network/newtcfg/pkg/util"
)

const sampleInventory = `
devices:
  - id: core1
    dialect: cisco_ios
    host: 10.0.0.1
    credential: lab
  - name: edge1
    device_type: juniper
    host: 10.0.0.2
    transport: netconf
    timeout: 45s
  - device_type: arista_eos
    host: 10.0.0.3
    port: 2222
    username: admin
    password: secret
`

func TestParse(t *testing.T) {
	devices, err := Parse([]byte(sampleInventory))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("len = %d, want 3", len(devices))
	}

	tests := []struct {
		idx       int
		id        string
		dialect   string
		port      int
		transport string
	}{
		{0, "core1", "cisco_ios", 22, "ssh"},
		{1, "edge1", "juniper", 830, "netconf"},
		{2, "10.0.0.3", "arista_eos", 2222, "ssh"},
	}
	for _, tt := range tests {
		d := devices[tt.idx]
		if d.ID != tt.id || d.Dialect != tt.dialect || d.Port != tt.port || d.Transport != tt.transport {
			t.Errorf("device %d = %+v", tt.idx, d)
		}
	}
	if devices[0].CredentialRef != "lab" {
		t.Errorf("CredentialRef = %q", devices[0].CredentialRef)
	}
	if devices[1].Timeout != 45*time.Second {
		t.Errorf("Timeout = %v", devices[1].Timeout)
	}
	if devices[2].Key() != "10.0.0.3:2222" {
		t.Errorf("Key() = %q", devices[2].Key())
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"missing host",
			"devices:\n  - id: a\n    dialect: cisco_ios\n",
			"host is required",
		},
		{
			"unknown dialect",
			"devices:\n  - host: 10.0.0.1\n    dialect: vax\n",
			"unknown dialect",
		},
		{
			"bad port",
			"devices:\n  - host: 10.0.0.1\n    dialect: ios\n    port: 70000\n",
			"out of range",
		},
		{
			"bad transport",
			"devices:\n  - host: 10.0.0.1\n    dialect: ios\n    transport: telnet\n",
			"unsupported transport",
		},
		{
			"duplicate address",
			"devices:\n  - {id: a, host: 10.0.0.1, dialect: ios}\n  - {id: b, host: 10.0.0.1, dialect: ios}\n",
			"duplicate address",
		},
		{
			"duplicate id",
			"devices:\n  - {id: a, host: 10.0.0.1, dialect: ios}\n  - {id: a, host: 10.0.0.2, dialect: ios}\n",
			"duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if util.KindOf(err) != util.KindConfiguration {
				t.Errorf("kind = %s, want configuration_error", util.KindOf(err))
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.yaml")
	if err := os.WriteFile(path, []byte(sampleInventory), 0644); err != nil {
		t.Fatal(err)
	}
	devices, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(devices) != 3 {
		t.Errorf("len = %d", len(devices))
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("devices:\n  - id: x\n"), 0644)
	_, err = LoadFile(bad)
	var ce *util.ConfigError
	if !errors.As(err, &ce) || ce.Source != bad {
		t.Errorf("LoadFile(bad) error = %v", err)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFilter(t *testing.T) {
	devices, _ := Parse([]byte(sampleInventory))

	all, err := Filter(devices, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("Filter(nil) = %d, %v", len(all), err)
	}

	got, err := Filter(devices, []string{"10.0.0.3", "core1"})
	if err != nil {
		t.Fatalf("Filter() error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "core1" || got[1].ID != "10.0.0.3" {
		t.Errorf("Filter() = %v", got)
	}

	if _, err := Filter(devices, []string{"nope"}); util.KindOf(err) != util.KindConfiguration {
		t.Errorf("Filter(unknown) error = %v", err)
	}
}

func TestStaticResolver(t *testing.T) {
	ctx := context.Background()
	c, err := StaticResolver{}.Resolve(ctx, Device{Username: "admin", Password: "pw"})
	if err != nil || c.Username != "admin" || c.Password != "pw" {
		t.Errorf("Resolve() = %+v, %v", c, err)
	}
	if _, err := (StaticResolver{}).Resolve(ctx, Device{}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Resolve(empty) error = %v", err)
	}
}

func TestEnvResolver(t *testing.T) {
	env := map[string]string{
		"NEWTCFG_CRED_LAB_CORE_USERNAME": "netops",
		"NEWTCFG_CRED_LAB_CORE_PASSWORD": "hunter2",
	}
	r := EnvResolver{Lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}
	ctx := context.Background()

	c, err := r.Resolve(ctx, Device{CredentialRef: "lab-core"})
	if err != nil || c.Username != "netops" || c.Password != "hunter2" {
		t.Errorf("Resolve() = %+v, %v", c, err)
	}
	if _, err := r.Resolve(ctx, Device{CredentialRef: "other"}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Resolve(unset) error = %v", err)
	}
	if _, err := r.Resolve(ctx, Device{}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Resolve(no ref) error = %v", err)
	}
	if got := EnvVarName("lab-core"); got != "NEWTCFG_CRED_LAB_CORE" {
		t.Errorf("EnvVarName() = %q", got)
	}
}

func TestPromptResolver(t *testing.T) {
	var out strings.Builder
	reads := 0
	r := &PromptResolver{
		In:  strings.NewReader("operator\n"),
		Out: &out,
		ReadPassword: func() ([]byte, error) {
			reads++
			return []byte("s3cret"), nil
		},
	}
	ctx := context.Background()
	d := Device{ID: "core1", CredentialRef: "lab"}

	c, err := r.Resolve(ctx, d)
	if err != nil || c.Username != "operator" || c.Password != "s3cret" {
		t.Fatalf("Resolve() = %+v, %v", c, err)
	}
	// cached per reference
	if _, err := r.Resolve(ctx, Device{ID: "core2", CredentialRef: "lab"}); err != nil {
		t.Fatal(err)
	}
	if reads != 1 {
		t.Errorf("password read %d times, want 1", reads)
	}
	if !strings.Contains(out.String(), "Username for lab") {
		t.Errorf("prompt = %q", out.String())
	}
}

func TestChainResolver(t *testing.T) {
	ctx := context.Background()
	fallback := CredentialFunc(func(context.Context, Device) (Credentials, error) {
		return Credentials{Username: "fallback"}, nil
	})

	c, err := ChainResolver{StaticResolver{}, fallback}.Resolve(ctx, Device{ID: "a"})
	if err != nil || c.Username != "fallback" {
		t.Errorf("Resolve() = %+v, %v", c, err)
	}

	_, err = ChainResolver{StaticResolver{}}.Resolve(ctx, Device{ID: "a"})
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("empty chain error = %v", err)
	}

	boom := errors.New("vault sealed")
	failing := CredentialFunc(func(context.Context, Device) (Credentials, error) {
		return Credentials{}, boom
	})
	if _, err := (ChainResolver{failing, fallback}).Resolve(ctx, Device{}); !errors.Is(err, boom) {
		t.Errorf("hard failure should stop the chain, got %v", err)
	}
}
