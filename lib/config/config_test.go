// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commandroom.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.AI.MaxToolSteps != 5 {
		t.Errorf("expected max_tool_steps=5, got %d", cfg.AI.MaxToolSteps)
	}
	if cfg.Room.AssistantName != "NEXUS AI" {
		t.Errorf("expected assistant_name=NEXUS AI, got %s", cfg.Room.AssistantName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when COMMANDROOM_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "COMMANDROOM_CONFIG environment variable not set") {
		t.Errorf("unexpected error message %q", err.Error())
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	path := writeConfig(t, `
environment: staging
paths:
  root: /test/root
  socket: /test/commandroom.sock
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: development

paths:
  root: /custom/root
  state: ${COMMANDROOM_ROOT}/snapshots
  socket: ${RUNTIME_DIR:-/run/custom}/room.sock

ai:
  default_provider: local
  default_model: llama
  max_tool_steps: 3
  providers:
    local:
      base_url: http://localhost:8080/v1
      api_key_env: LOCAL_KEY

room:
  stall_timeout: 45s

snapshots:
  enabled: true
  compression: lz4

development:
  room:
    tool_timeout: 5s
`)
	t.Setenv("RUNTIME_DIR", "")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Paths.State != "/custom/root/snapshots" {
		t.Errorf("expected state=/custom/root/snapshots, got %s", cfg.Paths.State)
	}
	if cfg.Paths.Socket != "/run/custom/room.sock" {
		t.Errorf("expected default-expanded socket, got %s", cfg.Paths.Socket)
	}
	if _, ok := cfg.AI.Providers["deepseek"]; !ok {
		t.Error("built-in providers were dropped when the file added one")
	}
	if cfg.AI.Providers["local"].APIKeyEnv != "LOCAL_KEY" {
		t.Errorf("local provider = %+v", cfg.AI.Providers["local"])
	}

	timings, err := cfg.Room.Timings()
	if err != nil {
		t.Fatalf("Timings: %v", err)
	}
	if timings.StallTimeout != 45*time.Second {
		t.Errorf("stall timeout = %s, want 45s", timings.StallTimeout)
	}
	if timings.ToolTimeout != 5*time.Second {
		t.Errorf("tool timeout = %s, want the development override 5s", timings.ToolTimeout)
	}
	if timings.WatchdogInterval != 5*time.Second {
		t.Errorf("watchdog interval = %s, want default 5s", timings.WatchdogInterval)
	}
}

func TestProductionDefaults(t *testing.T) {
	path := writeConfig(t, "environment: production\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if !cfg.Snapshots.Enabled {
		t.Error("production should enable snapshots by default")
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		t.Fatal(err)
	}
	if level != slog.LevelInfo {
		t.Errorf("production log level = %s, want INFO", level)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Environment = "moon"
	cfg.AI.MaxToolSteps = 0
	cfg.AI.DefaultProvider = "nowhere"
	cfg.Room.StallTimeout = "soon"
	cfg.Room.ToolTimeout = "-1s"
	cfg.Snapshots.Compression = "gzip"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, fragment := range []string{
		"invalid environment",
		"ai.max_tool_steps",
		"ai.default_provider",
		"room.stall_timeout",
		"room.tool_timeout must be positive",
		"snapshots.compression",
		"log.level",
	} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("validation error missing %q: %v", fragment, err)
		}
	}
}

func TestValidateToolTimeoutBelowStallTimeout(t *testing.T) {
	tests := []struct {
		stall, tool string
		ok          bool
	}{
		{"90s", "30s", true},
		{"30s", "30s", false},
		{"20s", "1m", false},
	}
	for _, test := range tests {
		cfg := Default()
		cfg.Room.StallTimeout = test.stall
		cfg.Room.ToolTimeout = test.tool
		err := cfg.Validate()
		if test.ok && err != nil {
			t.Errorf("stall %s, tool %s: unexpected error %v", test.stall, test.tool, err)
		}
		if !test.ok && (err == nil || !strings.Contains(err.Error(), "must be shorter than room.stall_timeout")) {
			t.Errorf("stall %s, tool %s: error = %v, want the ordering rejected", test.stall, test.tool, err)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.Root = filepath.Join(root, "data")
	cfg.Paths.State = filepath.Join(root, "data", "state")
	cfg.Paths.Socket = filepath.Join(root, "run", "commandroom.sock")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, path := range []string{cfg.Paths.State, filepath.Join(root, "run")} {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Errorf("%s was not created", path)
		}
	}
}
