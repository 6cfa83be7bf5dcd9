package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  listen_addr: 0.0.0.0:9579
  write_timeout: 2m
probe:
  binary: /usr/local/bin/iperf3
  default_bitrate: 100M
  max_duration: 30
  min_interval: 10s
  validate: false
log:
  level: debug
  format: console
`

func TestLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "exporter.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(ctx, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.ListenAddr != "0.0.0.0:9579" {
		t.Fatalf("unexpected listen addr: %s", cfg.Server.ListenAddr)
	}
	if cfg.Server.WriteTimeout != 2*time.Minute {
		t.Fatalf("unexpected write timeout: %s", cfg.Server.WriteTimeout)
	}
	if cfg.Server.IdleTimeout != 60*time.Second {
		t.Fatalf("expected default idle timeout, got %s", cfg.Server.IdleTimeout)
	}
	if cfg.Probe.Binary != "/usr/local/bin/iperf3" || cfg.Probe.DefaultBitrate != "100M" {
		t.Fatalf("unexpected probe config: %+v", cfg.Probe)
	}
	if cfg.Probe.DefaultDuration != "5" {
		t.Fatalf("expected default duration to survive, got %q", cfg.Probe.DefaultDuration)
	}
	if cfg.Probe.ValidateRequests() {
		t.Fatalf("expected validation to be disabled")
	}
	if cfg.Probe.MinInterval != 10*time.Second || cfg.Probe.TimeoutGrace != 30*time.Second {
		t.Fatalf("unexpected probe timings: %+v", cfg.Probe)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.yaml")
	if err := os.WriteFile(path, []byte("log:\n  format: xml\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatalf("expected error for unknown log format")
	}
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "exporter.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(envConfigPath, path)
	t.Setenv(envListenAddr, "127.0.0.1:9999")

	cfg, err := LoadFromEnv(ctx)
	if err != nil {
		t.Fatalf("LoadFromEnv returned error: %v", err)
	}

	if cfg.Server.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("expected env override, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Probe.MaxDuration != 30 {
		t.Fatalf("unexpected max duration: %d", cfg.Probe.MaxDuration)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv(envConfigPath, "")
	t.Setenv(envListenAddr, "")

	cfg, err := LoadFromEnv(context.Background())
	if err != nil {
		t.Fatalf("LoadFromEnv returned error: %v", err)
	}
	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Fatalf("unexpected listen addr: %s", cfg.Server.ListenAddr)
	}
	if !cfg.Probe.ValidateRequests() {
		t.Fatalf("expected validation enabled by default")
	}
	if cfg.Probe.DefaultBitrate != "0" || cfg.Probe.DefaultDuration != "5" {
		t.Fatalf("unexpected probe defaults: %+v", cfg.Probe)
	}
}
