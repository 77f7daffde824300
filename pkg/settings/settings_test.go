package settings

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSettings_SetGet(t *testing.T) {
	s := &Settings{}

	if err := s.Set("inventory", "/etc/newtcfg/devices.yaml"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if s.Inventory != "/etc/newtcfg/devices.yaml" {
		t.Errorf("Inventory = %q", s.Inventory)
	}
	got, err := s.Get("inventory")
	if err != nil || got != "/etc/newtcfg/devices.yaml" {
		t.Errorf("Get(inventory) = %q, %v", got, err)
	}

	if err := s.Set("rules", "rules.yaml"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if s.Rules != "rules.yaml" {
		t.Errorf("Rules = %q", s.Rules)
	}

	if err := s.Set("network", "x"); err == nil {
		t.Error("Set() with unknown key should error")
	}
	if _, err := s.Get("network"); err == nil {
		t.Error("Get() with unknown key should error")
	}
}

func TestKeys(t *testing.T) {
	want := []string{"config", "inventory", "rules", "user"}
	if got := Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestSettings_GetUser(t *testing.T) {
	s := &Settings{User: "ops"}
	if got := s.GetUser(); got != "ops" {
		t.Errorf("GetUser() = %q, want ops", got)
	}

	t.Setenv("USER", "alice")
	s.User = ""
	if got := s.GetUser(); got != "alice" {
		t.Errorf("GetUser() fallback = %q, want alice", got)
	}
}

func TestSettings_Clear(t *testing.T) {
	s := &Settings{
		Inventory: "inv.yaml",
		Config:    "cfg.yaml",
		Rules:     "rules.yaml",
		User:      "ops",
	}

	s.Clear()

	if *s != (Settings{}) {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	original := &Settings{
		Inventory: "/etc/newtcfg/devices.yaml",
		Config:    "/etc/newtcfg/newtcfg.yaml",
		Rules:     "/etc/newtcfg/rules.yaml",
		User:      "ops",
	}
	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if *loaded != *original {
		t.Errorf("LoadFrom() = %+v, want %+v", loaded, original)
	}
}

func TestSettings_LoadNonExistent(t *testing.T) {
	s, err := LoadFrom("/nonexistent/path/settings.json")
	if err != nil {
		t.Fatalf("LoadFrom() non-existent should not error: %v", err)
	}
	if s == nil {
		t.Fatal("LoadFrom() should return non-nil Settings")
	}
	if *s != (Settings{}) {
		t.Error("LoadFrom() non-existent should return empty settings")
	}
}

func TestSettings_LoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("invalid json {"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() with invalid JSON should error")
	}
}

func TestSettings_SaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "nested", "settings.json")

	s := &Settings{Inventory: "inv.yaml"}
	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() should create directories: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("SaveTo() should have created the file")
	}
}

func TestDefaultSettingsPath(t *testing.T) {
	path := DefaultSettingsPath()
	if path == "" {
		t.Error("DefaultSettingsPath() should not be empty")
	}
	if !filepath.IsAbs(path) && path != "newtcfg_settings.json" {
		t.Errorf("DefaultSettingsPath() should be absolute or fallback, got %q", path)
	}
}

func TestLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	s := &Settings{Rules: "rules.yaml"}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".newtcfg", "settings.json")); err != nil {
		t.Fatalf("settings file not created: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Rules != "rules.yaml" {
		t.Errorf("Rules = %q, want rules.yaml", loaded.Rules)
	}
}
