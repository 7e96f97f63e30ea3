// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefault_IsValid ensures the built-in defaults pass validation.
func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate, got: %v", err)
	}
}

// TestSaveLoad_TOMLRoundTrip writes a config and reads it back.
func TestSaveLoad_TOMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.Server.URL = "https://example.com/stream"
	cfg.Stream.MaxRetries = 5
	cfg.Models = map[string]ModelSelection{
		"yield": {Provider: "anthropic", ModelName: "claude-sonnet", Temperature: 0.7},
	}

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Server.URL != "https://example.com/stream" {
		t.Errorf("Expected saved URL, got %q", loaded.Server.URL)
	}
	if loaded.Stream.MaxRetries != 5 {
		t.Errorf("Expected max_retries 5, got %d", loaded.Stream.MaxRetries)
	}
	if sel := loaded.Models["yield"]; sel.ModelName != "claude-sonnet" {
		t.Errorf("Expected yield model to round-trip, got %+v", sel)
	}
}

// TestSaveTOML_RestrictivePermissions verifies 0600 on the saved file.
func TestSaveTOML_RestrictivePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveTOML(Default(), path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("Expected 0600 permissions, got %o", mode)
	}
}

// TestLoadFromPath_FillsDefaults loads a sparse file and checks the
// gaps get default values.
func TestLoadFromPath_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	sparse := "[server]\nurl = \"https://example.com/s\"\n"
	if err := os.WriteFile(path, []byte(sparse), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Stream.MaxRetries != 3 {
		t.Errorf("Expected default max_retries 3, got %d", cfg.Stream.MaxRetries)
	}
	if cfg.Pagination.TargetFill != 0.80 {
		t.Errorf("Expected default target_fill 0.80, got %v", cfg.Pagination.TargetFill)
	}
	if cfg.UI.Theme != "dark" {
		t.Errorf("Expected default theme, got %q", cfg.UI.Theme)
	}
}

// TestValidate_RejectsBadValues covers the validation table.
func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Server.URL = "" }},
		{"relative url", func(c *Config) { c.Server.URL = "not a url" }},
		{"retries below disable sentinel", func(c *Config) { c.Stream.MaxRetries = -2 }},
		{"huge retries", func(c *Config) { c.Stream.MaxRetries = 99 }},
		{"bad legacy phase", func(c *Config) { c.Stream.LegacyExperiencePhase = "daydream" }},
		{"fill above one", func(c *Config) { c.Pagination.TargetFill = 1.5 }},
		{"max below target", func(c *Config) { c.Pagination.MaxFill = 0.5 }},
		{"min above target", func(c *Config) { c.Pagination.MinFill = 0.9 }},
		{"bad theme", func(c *Config) { c.UI.Theme = "solarized" }},
		{"unknown model phase", func(c *Config) {
			c.Models = map[string]ModelSelection{"daydream": {}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

// TestValidate_AllowsDisabledReconnect accepts the -1 sentinel that
// turns reconnection off.
func TestValidate_AllowsDisabledReconnect(t *testing.T) {
	cfg := Default()
	cfg.Stream.MaxRetries = -1
	if err := cfg.Validate(); err != nil {
		t.Errorf("max_retries -1 should validate, got %v", err)
	}
}

// TestMigrate_LegacyExperienceKey renames the combined experience model
// entry to the configured split phase.
func TestMigrate_LegacyExperienceKey(t *testing.T) {
	cfg := Default()
	cfg.Models = map[string]ModelSelection{
		"experience": {Provider: "openai", ModelName: "gpt-4o"},
	}

	cfg.Migrate()

	if _, ok := cfg.Models["experience"]; ok {
		t.Error("Legacy key should be removed")
	}
	if sel := cfg.Models["experience_vectors"]; sel.ModelName != "gpt-4o" {
		t.Errorf("Expected migrated selection, got %+v", sel)
	}

	// An explicit entry for the target phase wins over the legacy one.
	cfg2 := Default()
	cfg2.Models = map[string]ModelSelection{
		"experience":         {ModelName: "old"},
		"experience_vectors": {ModelName: "new"},
	}
	cfg2.Migrate()
	if sel := cfg2.Models["experience_vectors"]; sel.ModelName != "new" {
		t.Errorf("Explicit entry should win, got %+v", sel)
	}
}

// TestApplyEnvOverrides checks each supported variable.
func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CHOIR_SERVER_URL", "https://env.example.com/s")
	t.Setenv("CHOIR_AUTH_TOKEN", "env-token")
	t.Setenv("CHOIR_MAX_RETRIES", "7")
	t.Setenv("CHOIR_POLL_FALLBACK", "true")
	t.Setenv("CHOIR_THEME", "light")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.URL != "https://env.example.com/s" {
		t.Errorf("URL override not applied, got %q", cfg.Server.URL)
	}
	if cfg.Server.AuthToken != "env-token" {
		t.Errorf("Token override not applied")
	}
	if cfg.Stream.MaxRetries != 7 {
		t.Errorf("Retry override not applied, got %d", cfg.Stream.MaxRetries)
	}
	if !cfg.Stream.PollFallback {
		t.Errorf("Poll fallback override not applied")
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme override not applied, got %q", cfg.UI.Theme)
	}
}

// TestWatcher_ReloadsOnChange writes a new config and waits for the
// change callback.
func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveTOML(Default(), path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	updated := Default()
	updated.UI.Theme = "light"
	if err := SaveTOML(updated, path); err != nil {
		t.Fatalf("SaveTOML update failed: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.UI.Theme != "light" {
			t.Errorf("Expected reloaded theme 'light', got %q", cfg.UI.Theme)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for config reload")
	}
}

// TestWatcher_InvalidEditKeepsLastGood reports the error instead of
// delivering a broken config.
func TestWatcher_InvalidEditKeepsLastGood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveTOML(Default(), path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	changed := make(chan *Config, 1)
	failed := make(chan error, 1)
	w, err := NewWatcher(path, func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}, func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[server\nurl = \"broken"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case <-failed:
		// expected
	case cfg := <-changed:
		t.Fatalf("Broken config must not be delivered, got %+v", cfg)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for validation error")
	}
}
