package config

import (
	"errors"
	"testing"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadRequiresPrefix(t *testing.T) {
	_, err := Load([]string{"/bin/true"}, false)
	if err == nil {
		t.Fatal("expected error when THINGENGINE_PREFIX is unset")
	}
}

func TestLoadRequiresCommand(t *testing.T) {
	withEnv(t, map[string]string{"THINGENGINE_PREFIX": "/opt/te"})

	_, err := Load([]string{}, false)
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("Load() error = %v, want ErrUsage", err)
	}
}

func TestLoadHelpFlag(t *testing.T) {
	withEnv(t, map[string]string{"THINGENGINE_PREFIX": "/opt/te"})

	_, err := Load([]string{"-h"}, false)
	if !errors.Is(err, ErrHelp) {
		t.Fatalf("Load() error = %v, want ErrHelp", err)
	}
}

func TestLoadSplitsPrefix(t *testing.T) {
	withEnv(t, map[string]string{"THINGENGINE_PREFIX": "/a:/b:/c"})

	cfg, err := Load([]string{"/bin/true"}, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"/a", "/b", "/c"}
	if len(cfg.Prefix) != len(want) {
		t.Fatalf("Prefix = %v, want %v", cfg.Prefix, want)
	}
	for i := range want {
		if cfg.Prefix[i] != want[i] {
			t.Errorf("Prefix[%d] = %q, want %q", i, cfg.Prefix[i], want[i])
		}
	}
}

func TestLoadInterspersedStopsAtFirstPositional(t *testing.T) {
	withEnv(t, map[string]string{"THINGENGINE_PREFIX": "/opt/te"})

	cfg, err := Load([]string{"/bin/sh", "-c", "echo hi"}, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"/bin/sh", "-c", "echo hi"}
	if len(cfg.Command) != len(want) {
		t.Fatalf("Command = %v, want %v", cfg.Command, want)
	}
	for i := range want {
		if cfg.Command[i] != want[i] {
			t.Errorf("Command[%d] = %q, want %q", i, cfg.Command[i], want[i])
		}
	}
}

func TestLoadPlaceholderIDAcceptedAndIgnored(t *testing.T) {
	withEnv(t, map[string]string{"THINGENGINE_PREFIX": "/opt/te"})

	cfg, err := Load([]string{"-i", "some-large-id", "/bin/true"}, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PlaceholderID != "some-large-id" {
		t.Errorf("PlaceholderID = %q, want %q", cfg.PlaceholderID, "some-large-id")
	}
	if len(cfg.Command) != 1 || cfg.Command[0] != "/bin/true" {
		t.Errorf("Command = %v, want [/bin/true]", cfg.Command)
	}
}

func TestLoadRequiresUserIDForWrapperVariant(t *testing.T) {
	withEnv(t, map[string]string{"THINGENGINE_PREFIX": "/opt/te"})

	_, err := Load([]string{"/bin/true"}, true)
	if err == nil {
		t.Fatal("expected error when THINGENGINE_USER_ID is required but unset")
	}

	withEnv(t, map[string]string{"THINGENGINE_PREFIX": "/opt/te", "THINGENGINE_USER_ID": "42"})
	cfg, err := Load([]string{"/bin/true"}, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UserID != "42" {
		t.Errorf("UserID = %q, want 42", cfg.UserID)
	}
}

func TestLoadOptionalWrapperFlags(t *testing.T) {
	withEnv(t, map[string]string{
		"THINGENGINE_PREFIX":          "/opt/te",
		"THINGENGINE_DISABLE_SYSTEMD": "1",
		"CI":                          "1",
	})

	cfg, err := Load([]string{"/bin/true"}, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.DisableSystemd {
		t.Error("expected DisableSystemd = true")
	}
	if !cfg.CI {
		t.Error("expected CI = true")
	}
}
