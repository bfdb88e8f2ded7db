// Copyright 2025 Certen Protocol
//
// Optional Postgres sink indexing committed ServerFrames for ad-hoc SQL
// queries, entirely outside the WAL's replay-critical path. Disabled
// unless a database URL is configured, mirroring the teacher's
// database.Client connection-pooling shape.

package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/obslog"
)

// ErrNotFound is returned when a requested frame is not archived.
var ErrNotFound = fmt.Errorf("archive: frame not found")

// Config configures the connection pool.
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	return c
}

// Sink indexes sealed ServerFrames into Postgres. A zero-value DatabaseURL
// disables it entirely; Open returns nil, nil in that case.
type Sink struct {
	db  *sql.DB
	log obslog.Logger
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS server_frames (
	height     BIGINT PRIMARY KEY,
	timestamp  BIGINT NOT NULL,
	root       TEXT NOT NULL,
	parent     TEXT NOT NULL,
	hash       TEXT NOT NULL,
	num_inputs INTEGER NOT NULL
)`

// Open connects to cfg.DatabaseURL and ensures the archive table exists.
// If cfg.DatabaseURL is empty the archive sink is disabled: Open returns
// (nil, nil) and every call site must treat a nil *Sink as a no-op.
func Open(cfg Config, log obslog.Logger) (*Sink, error) {
	if log == nil {
		log = obslog.Nop()
	}
	if cfg.DatabaseURL == "" {
		log.Info("archive sink disabled: no database URL configured")
		return nil, nil
	}
	cfg = cfg.withDefaults()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: create table: %w", err)
	}
	return &Sink{db: db, log: log}, nil
}

// Index inserts or updates one sealed frame's archive row. A nil Sink is a
// safe no-op, so call sites don't need to branch on whether archiving is
// enabled.
func (s *Sink) Index(ctx context.Context, frame core.ServerFrame) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_frames (height, timestamp, root, parent, hash, num_inputs)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (height) DO UPDATE SET
			timestamp = EXCLUDED.timestamp,
			root = EXCLUDED.root,
			parent = EXCLUDED.parent,
			hash = EXCLUDED.hash,
			num_inputs = EXCLUDED.num_inputs`,
		frame.Height, frame.Timestamp, frame.Root.String(), frame.Parent.String(), frame.Hash.String(), len(frame.Inputs))
	if err != nil {
		return fmt.Errorf("archive: index height %d: %w", frame.Height, err)
	}
	return nil
}

// Close releases the underlying connection pool. A nil Sink is a safe
// no-op.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
