// Copyright 2025 Certen Protocol
//
// Flat environment-driven configuration, loaded once at startup. No
// required variables: every knob here has a safe default per §6, so a
// bare `bftnode` with no environment at all still runs.

package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable knob the runtime, WAL/snapshot pipeline and
// proposer timeout schedule need.
type Config struct {
	// DataDir is the base directory for the WAL and snapshot databases.
	DataDir string `yaml:"data_dir"`
	// ListenAddr is the demo HTTP API's listen address.
	ListenAddr string `yaml:"listen_addr"`

	// TickIntervalMS is how often the runtime drives a tick when no
	// external trigger is available.
	TickIntervalMS int64 `yaml:"tick_interval_ms"`

	// QuorumThresholdDefault is the threshold of the demo genesis quorum
	// cmd/bftnode imports. TotalSignersDefault is loaded but not read by any
	// code in this module; the genesis signer set comes from the -signers flag.
	QuorumThresholdDefault uint64 `yaml:"quorum_threshold_default"`
	TotalSignersDefault    uint64 `yaml:"total_signers_default"`

	// Proposal timeout schedule, mirroring server.TimeoutConfig.
	ProposalBaseTimeoutMS int64   `yaml:"proposal_base_timeout_ms"`
	TimeoutMultiplier     float64 `yaml:"timeout_multiplier"`
	TimeoutRotationEpoch  uint64  `yaml:"timeout_rotation_epoch"`
	TimeoutCapMS          int64   `yaml:"timeout_cap_ms"`

	// SnapshotEveryNFrames is how often the runtime persists a snapshot.
	SnapshotEveryNFrames uint64 `yaml:"snapshot_every_n_frames"`
	// CompactInterval is passed to replay.Options.CompactInterval: during
	// startup replay a snapshot is written every this many replayed frames.
	CompactInterval uint64 `yaml:"compact_interval"`

	// KeyDir is loaded but not read by any code in this module; signer keys
	// are derived from signer ids (see blsoracle.KeyManager).
	KeyDir string `yaml:"key_dir"`
	// LogLevel is one of "debug", "info", "error" (see internal/obslog).
	LogLevel string `yaml:"log_level"`

	// FirestoreEnabled turns on the optional audit mirror.
	FirestoreEnabled  bool   `yaml:"firestore_enabled"`
	FirebaseProjectID string `yaml:"firebase_project_id"`

	// ArchiveDatabaseURL, if set, turns on the optional Postgres archive
	// sink.
	ArchiveDatabaseURL string `yaml:"archive_database_url"`
}

// Load reads configuration from the environment, falling back to §6's
// documented defaults for anything unset. If BFTCORE_CONFIG_FILE names a
// readable YAML file, its values seed the defaults before the environment
// is applied, so a field set in both is won by the environment.
func Load() *Config {
	cfg := &Config{
		DataDir:                "./data",
		ListenAddr:             ":8080",
		TickIntervalMS:         100,
		QuorumThresholdDefault: 3,
		TotalSignersDefault:    5,
		ProposalBaseTimeoutMS:  5000,
		TimeoutMultiplier:      1.5,
		TimeoutRotationEpoch:   1000,
		TimeoutCapMS:           60000,
		SnapshotEveryNFrames:   100,
		CompactInterval:        100,
		KeyDir:                 "./data/keys",
		LogLevel:               "info",
		FirestoreEnabled:       false,
		FirebaseProjectID:      "",
		ArchiveDatabaseURL:     "",
	}

	if path := os.Getenv("BFTCORE_CONFIG_FILE"); path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			panic(fmt.Sprintf("config: %v", err))
		}
	}

	cfg.DataDir = getEnv("BFTCORE_DATA_DIR", cfg.DataDir)
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.TickIntervalMS = getEnvInt64("TICK_INTERVAL_MS", cfg.TickIntervalMS)
	cfg.QuorumThresholdDefault = getEnvUint64("QUORUM_THRESHOLD_DEFAULT", cfg.QuorumThresholdDefault)
	cfg.TotalSignersDefault = getEnvUint64("TOTAL_SIGNERS_DEFAULT", cfg.TotalSignersDefault)
	cfg.ProposalBaseTimeoutMS = getEnvInt64("PROPOSAL_BASE_TIMEOUT_MS", cfg.ProposalBaseTimeoutMS)
	cfg.TimeoutMultiplier = getEnvFloat("TIMEOUT_MULTIPLIER", cfg.TimeoutMultiplier)
	cfg.TimeoutRotationEpoch = getEnvUint64("TIMEOUT_ROTATION_EPOCH", cfg.TimeoutRotationEpoch)
	cfg.TimeoutCapMS = getEnvInt64("TIMEOUT_CAP_MS", cfg.TimeoutCapMS)
	cfg.SnapshotEveryNFrames = getEnvUint64("SNAPSHOT_EVERY_N_FRAMES", cfg.SnapshotEveryNFrames)
	cfg.CompactInterval = getEnvUint64("COMPACT_INTERVAL", cfg.CompactInterval)
	cfg.KeyDir = getEnv("BFTCORE_KEY_DIR", cfg.KeyDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.FirestoreEnabled = getEnvBool("FIRESTORE_ENABLED", cfg.FirestoreEnabled)
	cfg.FirebaseProjectID = getEnv("FIREBASE_PROJECT_ID", cfg.FirebaseProjectID)
	cfg.ArchiveDatabaseURL = getEnv("ARCHIVE_DATABASE_URL", cfg.ArchiveDatabaseURL)

	return cfg
}

// loadYAMLFile overlays path's contents onto cfg. Fields absent from the
// file are left at their current value.
func loadYAMLFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
