// Package inventory holds device descriptors, the YAML inventory loader, and
// just-in-time credential resolution.
package inventory

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/newtcfg/pkg/transport"
	"github.com/newtron-network/newtcfg/pkg/util"
)

// Default ports per transport.
const (
	DefaultSSHPort     = 22
	DefaultNetconfPort = 830
)

// Device describes one managed device. It is owned by the caller and only
// borrowed by an operation; identity is the (host, port) pair.
type Device struct {
	ID            string        `yaml:"id" json:"id"`
	Dialect       string        `yaml:"dialect" json:"dialect"`
	Host          string        `yaml:"host" json:"host"`
	Port          int           `yaml:"port" json:"port"`
	Transport     string        `yaml:"transport,omitempty" json:"transport,omitempty"`
	CredentialRef string        `yaml:"credential,omitempty" json:"credential,omitempty"`
	Username      string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string        `yaml:"password,omitempty" json:"-"`
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Key returns the device identity, host:port.
func (d Device) Key() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// String returns the device ID.
func (d Device) String() string {
	return d.ID
}

// record is the on-disk form. It also accepts the field names of the older
// devices.yaml format (name, device_type).
type record struct {
	ID            string        `yaml:"id"`
	Name          string        `yaml:"name"`
	Dialect       string        `yaml:"dialect"`
	DeviceType    string        `yaml:"device_type"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Transport     string        `yaml:"transport"`
	CredentialRef string        `yaml:"credential"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Timeout       time.Duration `yaml:"timeout"`
}

type file struct {
	Devices []record `yaml:"devices"`
}

// LoadFile reads and validates an inventory file.
func LoadFile(path string) ([]Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory %s: %w", path, err)
	}
	devices, err := Parse(data)
	if err != nil {
		if ce, ok := err.(*util.ConfigError); ok {
			ce.Source = path
			return nil, ce
		}
		return nil, fmt.Errorf("parsing inventory %s: %w", path, err)
	}
	return devices, nil
}

// Parse decodes inventory YAML, applies defaults, and validates the result.
func Parse(data []byte) ([]Device, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(f.Devices))
	for _, r := range f.Devices {
		devices = append(devices, r.device())
	}
	if err := Validate(devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (r record) device() Device {
	d := Device{
		ID:            firstNonEmpty(r.ID, r.Name),
		Dialect:       firstNonEmpty(r.Dialect, r.DeviceType),
		Host:          strings.TrimSpace(r.Host),
		Port:          r.Port,
		Transport:     strings.ToLower(r.Transport),
		CredentialRef: r.CredentialRef,
		Username:      r.Username,
		Password:      r.Password,
		Timeout:       r.Timeout,
	}
	ApplyDefaults(&d)
	return d
}

// ApplyDefaults fills the ID (from host), port, and transport of d.
func ApplyDefaults(d *Device) {
	if d.ID == "" {
		d.ID = d.Host
	}
	if d.Transport == "" {
		d.Transport = transport.KindSSH
	}
	if d.Port == 0 {
		if d.Transport == transport.KindNetconf {
			d.Port = DefaultNetconfPort
		} else {
			d.Port = DefaultSSHPort
		}
	}
}

// Validate checks every device record. All problems are reported together
// in one *util.ConfigError.
func Validate(devices []Device) error {
	vb := util.NewValidationBuilder("inventory")
	ids := make(map[string]int)
	keys := make(map[string]int)

	for i, d := range devices {
		prefix := fmt.Sprintf("device %d (%s)", i+1, d.ID)
		if d.Host == "" {
			vb.AddErrorf("%s: host is required", prefix)
		}
		if d.Port < 1 || d.Port > 65535 {
			vb.AddErrorf("%s: port %d out of range", prefix, d.Port)
		}
		if _, err := transport.LookupDialect(d.Dialect); err != nil {
			vb.AddErrorf("%s: %v", prefix, err)
		}
		if !transport.IsKnownKind(d.Transport) {
			vb.AddErrorf("%s: unsupported transport %q", prefix, d.Transport)
		}
		if d.ID != "" {
			if j, dup := ids[d.ID]; dup {
				vb.AddErrorf("%s: duplicate id (also device %d)", prefix, j+1)
			} else {
				ids[d.ID] = i
			}
		}
		if d.Host != "" {
			if j, dup := keys[d.Key()]; dup {
				vb.AddErrorf("%s: duplicate address %s (also device %d)", prefix, d.Key(), j+1)
			} else {
				keys[d.Key()] = i
			}
		}
	}
	return vb.Build()
}

// Filter returns the devices whose ID or host is in names, in inventory
// order. An empty names list returns all devices. Names that match nothing
// are a configuration error.
func Filter(devices []Device, names []string) ([]Device, error) {
	if len(names) == 0 {
		return devices, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = false
	}

	var out []Device
	for _, d := range devices {
		_, byID := want[d.ID]
		_, byHost := want[d.Host]
		if byID || byHost {
			out = append(out, d)
			if byID {
				want[d.ID] = true
			}
			if byHost {
				want[d.Host] = true
			}
		}
	}

	vb := util.NewValidationBuilder("device selection")
	for _, n := range names {
		if !want[n] {
			vb.AddErrorf("device %q not in inventory", n)
		}
	}
	if err := vb.Build(); err != nil {
		return nil, err
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
