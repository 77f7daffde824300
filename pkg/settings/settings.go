// Package settings manages persistent user settings for the newtcfg CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Settings holds persistent user preferences. Command-line flags override
// every field.
type Settings struct {
	// Inventory is the inventory file used when --inventory is not given
	Inventory string `json:"inventory,omitempty"`

	// Config is the engine configuration file used when --config is not given
	Config string `json:"config,omitempty"`

	// Rules is the compliance rule file used when --rules is not given
	Rules string `json:"rules,omitempty"`

	// User is recorded in audit events; defaults to $USER
	User string `json:"user,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "newtcfg_settings.json"
	}
	return filepath.Join(home, ".newtcfg", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (s *Settings) fields() map[string]*string {
	return map[string]*string{
		"inventory": &s.Inventory,
		"config":    &s.Config,
		"rules":     &s.Rules,
		"user":      &s.User,
	}
}

// Keys returns the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, 4)
	for k := range (&Settings{}).fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of key.
func (s *Settings) Get(key string) (string, error) {
	f, ok := s.fields()[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q (valid: %v)", key, Keys())
	}
	return *f, nil
}

// Set assigns key. An empty value clears it.
func (s *Settings) Set(key, value string) error {
	f, ok := s.fields()[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (valid: %v)", key, Keys())
	}
	*f = value
	return nil
}

// GetUser returns the audit user (with fallback)
func (s *Settings) GetUser() string {
	if s.User != "" {
		return s.User
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
