// Copyright 2025 Certen Protocol
//
// Crash-recovery replay: load the latest snapshot (or start from empty
// genesis), then re-drive apply_server over every WAL (INPUT_BATCH,
// SERVER_FRAME) pair past the snapshot's height, re-verifying each
// recomputed frame's hash and root against what the WAL recorded.

package replay

import (
	"errors"
	"fmt"

	"github.com/certen/bftcore/internal/codec"
	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/entity"
	"github.com/certen/bftcore/internal/server"
	"github.com/certen/bftcore/internal/snapshot"
	"github.com/certen/bftcore/internal/wal"
)

// ErrDivergence is returned when a recomputed frame's hash or root does
// not match the WAL's recorded SERVER_FRAME. Replay halts immediately;
// nothing in the core retries a divergent replay.
var ErrDivergence = errors.New("replay: recomputed frame diverges from WAL")

// ErrUnpairedFrame is returned when a SERVER_FRAME entry is encountered
// without an immediately-preceding INPUT_BATCH.
var ErrUnpairedFrame = errors.New("replay: SERVER_FRAME without a preceding INPUT_BATCH")

// Options controls replay's validation and compaction behavior.
type Options struct {
	// Validate, when true, re-verifies every recomputed frame's hash and
	// root against the WAL's recorded values, halting with ErrDivergence
	// on the first mismatch.
	Validate bool
	// CompactInterval: every this many successfully-replayed frames, a
	// snapshot is persisted. Zero disables mid-replay snapshotting (a
	// final snapshot is still taken at the end).
	CompactInterval uint64
}

// Run replays w against the latest snapshot in snaps, returning the final
// ServerState. exec, verifier and cfg parameterize apply_server exactly as
// the live runtime would, so a replayed COMMIT is re-verified against the
// same aggregate signature the original tick checked.
func Run(w *wal.WAL, snaps *snapshot.Store, exec entity.Executor, verifier entity.Verifier, cfg server.Config, opts Options) (core.ServerState, error) {
	height, state, err := snaps.Latest()
	if errors.Is(err, snapshot.ErrNotFound) {
		height = 0
		state = core.ServerState{Replicas: make(map[core.ReplicaKey]core.Replica)}
	} else if err != nil {
		return core.ServerState{}, fmt.Errorf("replay: load snapshot: %w", err)
	}

	var (
		pendingBatch   []core.Envelope
		pendingBatchTS int64
		haveBatch      bool
		sinceSnapshot  uint64
	)

	walkErr := w.Each(func(e wal.Entry) error {
		switch e.Kind {
		case wal.KindInputBatch:
			batch, err := codec.DecodeEnvelopeBatch(e.Payload)
			if err != nil {
				return fmt.Errorf("replay: decode input batch at seq %d: %w", e.Sequence, err)
			}
			pendingBatch = batch
			pendingBatchTS = e.Timestamp
			haveBatch = true
			return nil

		case wal.KindServerFrame:
			if !haveBatch {
				return fmt.Errorf("%w: seq %d", ErrUnpairedFrame, e.Sequence)
			}
			haveBatch = false

			recorded, err := codec.DecodeServerFrame(e.Payload)
			if err != nil {
				return fmt.Errorf("replay: decode server frame at seq %d: %w", e.Sequence, err)
			}
			if recorded.Height <= height {
				// Already folded into the loaded snapshot.
				return nil
			}

			next, recomputed, _, err := server.Apply(exec, verifier, state, pendingBatch, pendingBatchTS, cfg)
			if err != nil {
				return fmt.Errorf("replay: apply_server at height %d: %w", recorded.Height, err)
			}
			if opts.Validate && (recomputed.Hash != recorded.Hash || recomputed.Root != recorded.Root) {
				return fmt.Errorf("%w: height %d", ErrDivergence, recorded.Height)
			}

			state = next
			height = recorded.Height
			sinceSnapshot++
			if opts.CompactInterval > 0 && sinceSnapshot%opts.CompactInterval == 0 {
				if err := snaps.Save(height, state); err != nil {
					return fmt.Errorf("replay: periodic snapshot at height %d: %w", height, err)
				}
			}
			return nil

		default:
			return fmt.Errorf("replay: unknown WAL entry kind %q at seq %d", e.Kind, e.Sequence)
		}
	})
	if walkErr != nil {
		return core.ServerState{}, walkErr
	}

	if err := snaps.Save(height, state); err != nil {
		return core.ServerState{}, fmt.Errorf("replay: final snapshot: %w", err)
	}
	return state, nil
}

// Validate performs the consistency checks that are independent of a full
// replay: matched INPUT_BATCH/SERVER_FRAME counts, strictly-increasing
// frame heights, and parent-hash chaining.
func Validate(w *wal.WAL) error {
	var (
		batches, frames int
		prevHash        core.Hash
		prevHeight       uint64
		haveBatch        bool
		sawFirstFrame    bool
	)
	err := w.Each(func(e wal.Entry) error {
		switch e.Kind {
		case wal.KindInputBatch:
			batches++
			haveBatch = true
			return nil
		case wal.KindServerFrame:
			frames++
			if !haveBatch {
				return fmt.Errorf("%w: seq %d", ErrUnpairedFrame, e.Sequence)
			}
			haveBatch = false

			frame, err := codec.DecodeServerFrame(e.Payload)
			if err != nil {
				return fmt.Errorf("wal: decode server frame at seq %d: %w", e.Sequence, err)
			}
			if sawFirstFrame {
				if frame.Height != prevHeight+1 {
					return fmt.Errorf("wal: frame height %d does not follow %d by one", frame.Height, prevHeight)
				}
				if frame.Parent != prevHash {
					return fmt.Errorf("wal: frame %d parent does not match previous frame's hash", frame.Height)
				}
			}
			prevHeight = frame.Height
			prevHash = frame.Hash
			sawFirstFrame = true
			return nil
		default:
			return fmt.Errorf("wal: unknown entry kind %q at seq %d", e.Kind, e.Sequence)
		}
	})
	if err != nil {
		return err
	}
	if batches != frames {
		return fmt.Errorf("wal: %d INPUT_BATCH entries but %d SERVER_FRAME entries", batches, frames)
	}
	return nil
}
