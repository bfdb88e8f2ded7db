// Copyright 2025 Certen Protocol
//
// Snapshot store: height-keyed full ServerState dumps plus a "current"
// pointer, with compaction retaining every Nth snapshot and a recent tail.
// Grounded on the teacher's ledger.LedgerStore key-layout convention
// (fixed string prefix + encoded suffix, one Get/Set per logical record).

package snapshot

import (
	"errors"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/bftcore/internal/codec"
	"github.com/certen/bftcore/internal/core"
)

// ErrNotFound is returned when no snapshot exists yet (fresh genesis host).
var ErrNotFound = errors.New("snapshot: not found")

const currentKey = "current"

func heightKey(height uint64) []byte {
	return []byte(fmt.Sprintf("state:%020d", height))
}

// Store persists ServerState snapshots to a dbm.DB.
type Store struct {
	db dbm.DB
}

// Open attaches a snapshot Store to db.
func Open(db dbm.DB) *Store {
	return &Store{db: db}
}

// Save writes the full state at height and repoints "current" to it.
func (s *Store) Save(height uint64, state core.ServerState) error {
	b, err := codec.EncodeServerState(state)
	if err != nil {
		return fmt.Errorf("snapshot: encode state at height %d: %w", height, err)
	}
	if err := s.db.SetSync(heightKey(height), b); err != nil {
		return fmt.Errorf("snapshot: write height %d: %w", height, err)
	}
	if err := s.db.SetSync([]byte(currentKey), heightKey(height)); err != nil {
		return fmt.Errorf("snapshot: update current pointer: %w", err)
	}
	return nil
}

// Latest loads the state the "current" pointer names, or ErrNotFound if no
// snapshot has ever been taken.
func (s *Store) Latest() (uint64, core.ServerState, error) {
	ptr, err := s.db.Get([]byte(currentKey))
	if err != nil {
		return 0, core.ServerState{}, fmt.Errorf("snapshot: read current pointer: %w", err)
	}
	if ptr == nil {
		return 0, core.ServerState{}, ErrNotFound
	}
	b, err := s.db.Get(ptr)
	if err != nil {
		return 0, core.ServerState{}, fmt.Errorf("snapshot: read current snapshot: %w", err)
	}
	if b == nil {
		return 0, core.ServerState{}, ErrNotFound
	}
	state, err := codec.DecodeServerState(b)
	if err != nil {
		return 0, core.ServerState{}, fmt.Errorf("snapshot: decode current snapshot: %w", err)
	}
	return state.Height, state, nil
}

// At loads the snapshot recorded for an exact height, or ErrNotFound.
func (s *Store) At(height uint64) (core.ServerState, error) {
	b, err := s.db.Get(heightKey(height))
	if err != nil {
		return core.ServerState{}, fmt.Errorf("snapshot: read height %d: %w", height, err)
	}
	if b == nil {
		return core.ServerState{}, ErrNotFound
	}
	return codec.DecodeServerState(b)
}

// Compact deletes every persisted snapshot except (a) those whose height is
// a multiple of compactInterval and (b) those at or after
// current-compactInterval. currentHeight is the height "current" now names.
func (s *Store) Compact(currentHeight uint64, compactInterval uint64, allHeights []uint64) error {
	if compactInterval == 0 {
		return fmt.Errorf("snapshot: compact interval must be positive")
	}
	var tailFloor uint64
	if currentHeight > compactInterval {
		tailFloor = currentHeight - compactInterval
	}
	for _, h := range allHeights {
		if h == currentHeight {
			continue
		}
		if h%compactInterval == 0 {
			continue
		}
		if h >= tailFloor {
			continue
		}
		if err := s.db.Delete(heightKey(h)); err != nil {
			return fmt.Errorf("snapshot: compact height %d: %w", h, err)
		}
	}
	return nil
}
