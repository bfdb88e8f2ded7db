// Copyright 2025 Certen Protocol
//
// Optional Firestore mirror of sealed ServerFrames, for off-path
// compliance/forensics queries. Disabled by default: when Enabled is
// false, Mirror is a no-op, the same shape the teacher's firestore.Client
// uses so a node can run with zero GCP configuration.

package audit

import (
	"context"
	"fmt"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/obslog"
)

// Config configures the optional mirror.
type Config struct {
	Enabled         bool
	ProjectID       string
	CredentialsFile string
	Collection      string // defaults to "server_frames"
}

// Mirror writes sealed ServerFrames to Firestore when enabled; otherwise
// every method is a no-op.
type Mirror struct {
	enabled    bool
	client     *gcpfirestore.Client
	collection string
	log        obslog.Logger
}

// New builds a Mirror. When cfg.Enabled is false, it never touches the
// network and Record is always a no-op.
func New(ctx context.Context, cfg Config, log obslog.Logger) (*Mirror, error) {
	if log == nil {
		log = obslog.Nop()
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "server_frames"
	}
	if !cfg.Enabled {
		log.Info("audit mirror disabled")
		return &Mirror{collection: collection, log: log}, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("audit: FIREBASE_PROJECT_ID is required when enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("audit: init firebase app: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: init firestore client: %w", err)
	}
	return &Mirror{enabled: true, client: fsClient, collection: collection, log: log}, nil
}

// IsEnabled reports whether this mirror actually writes anywhere.
func (m *Mirror) IsEnabled() bool { return m.enabled }

// Record mirrors one sealed ServerFrame. A failure is logged and
// swallowed: the audit mirror must never block or fail the commit path it
// observes.
func (m *Mirror) Record(ctx context.Context, frame core.ServerFrame) {
	if !m.enabled {
		return
	}
	doc := map[string]interface{}{
		"height":    frame.Height,
		"timestamp": frame.Timestamp,
		"root":      frame.Root.String(),
		"parent":    frame.Parent.String(),
		"hash":      frame.Hash.String(),
		"numInputs": len(frame.Inputs),
	}
	id := uuid.NewString()
	if _, err := m.client.Collection(m.collection).Doc(id).Set(ctx, doc); err != nil {
		m.log.Error("audit mirror write failed", "height", frame.Height, "err", err)
	}
}

// Close releases the underlying Firestore client, if any.
func (m *Mirror) Close() error {
	if !m.enabled {
		return nil
	}
	return m.client.Close()
}
