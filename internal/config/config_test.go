// Copyright 2025 Certen Protocol

package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.TickIntervalMS != 100 {
		t.Errorf("TickIntervalMS = %d, want 100", cfg.TickIntervalMS)
	}
	if cfg.QuorumThresholdDefault != 3 || cfg.TotalSignersDefault != 5 {
		t.Errorf("quorum defaults = (%d, %d), want (3, 5)", cfg.QuorumThresholdDefault, cfg.TotalSignersDefault)
	}
	if cfg.ProposalBaseTimeoutMS != 5000 || cfg.TimeoutMultiplier != 1.5 || cfg.TimeoutRotationEpoch != 1000 || cfg.TimeoutCapMS != 60000 {
		t.Errorf("timeout defaults mismatch: %#v", cfg)
	}
	if cfg.SnapshotEveryNFrames != 100 || cfg.CompactInterval != 100 {
		t.Errorf("snapshot defaults mismatch: %#v", cfg)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	os.Setenv("TICK_INTERVAL_MS", "250")
	defer os.Unsetenv("TICK_INTERVAL_MS")

	cfg := Load()
	if cfg.TickIntervalMS != 250 {
		t.Errorf("TickIntervalMS = %d, want 250", cfg.TickIntervalMS)
	}
}

func TestLoadSeedsFromYAMLFileWithEnvTakingPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bftnode.yaml"
	yamlBody := "tick_interval_ms: 777\nlisten_addr: \":9090\"\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	os.Setenv("BFTCORE_CONFIG_FILE", path)
	defer os.Unsetenv("BFTCORE_CONFIG_FILE")
	os.Setenv("LOG_LEVEL", "error")
	defer os.Unsetenv("LOG_LEVEL")

	cfg := Load()
	if cfg.TickIntervalMS != 777 {
		t.Errorf("TickIntervalMS = %d, want 777 from yaml file", cfg.TickIntervalMS)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090 from yaml file", cfg.ListenAddr)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override over yaml file)", cfg.LogLevel)
	}
}
