// Copyright 2025 Certen Protocol

package snapshot

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/bftcore/internal/core"
)

func stateAtHeight(h uint64) core.ServerState {
	return core.ServerState{
		Height:   h,
		Replicas: make(map[core.ReplicaKey]core.Replica),
		LastHash: core.Hash{byte(h)},
	}
}

func TestLatestReturnsErrNotFoundOnFreshStore(t *testing.T) {
	s := Open(dbm.NewMemDB())
	if _, _, err := s.Latest(); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveThenLatestRoundTrips(t *testing.T) {
	s := Open(dbm.NewMemDB())
	want := stateAtHeight(7)
	if err := s.Save(7, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	height, got, err := s.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if height != 7 || got.LastHash != want.LastHash {
		t.Fatalf("latest = (%d, %v), want (7, %v)", height, got.LastHash, want.LastHash)
	}
}

func TestLatestFollowsMostRecentSave(t *testing.T) {
	s := Open(dbm.NewMemDB())
	if err := s.Save(1, stateAtHeight(1)); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := s.Save(2, stateAtHeight(2)); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	height, _, err := s.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if height != 2 {
		t.Fatalf("height = %d, want 2", height)
	}
}

func TestAtLoadsAnExactHeightEvenIfNotCurrent(t *testing.T) {
	s := Open(dbm.NewMemDB())
	if err := s.Save(1, stateAtHeight(1)); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := s.Save(2, stateAtHeight(2)); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	got, err := s.At(1)
	if err != nil {
		t.Fatalf("at(1): %v", err)
	}
	if got.Height != 1 {
		t.Fatalf("at(1).Height = %d, want 1", got.Height)
	}
}

func TestAtMissingHeightReturnsErrNotFound(t *testing.T) {
	s := Open(dbm.NewMemDB())
	if _, err := s.At(5); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCompactRetainsMultiplesAndRecentTail(t *testing.T) {
	s := Open(dbm.NewMemDB())
	var heights []uint64
	for h := uint64(1); h <= 25; h++ {
		if err := s.Save(h, stateAtHeight(h)); err != nil {
			t.Fatalf("save %d: %v", h, err)
		}
		heights = append(heights, h)
	}
	if err := s.Compact(25, 10, heights); err != nil {
		t.Fatalf("compact: %v", err)
	}

	// Height 10 and 20 are multiples of the compact interval, must survive.
	if _, err := s.At(10); err != nil {
		t.Fatalf("at(10) after compact: %v", err)
	}
	if _, err := s.At(20); err != nil {
		t.Fatalf("at(20) after compact: %v", err)
	}
	// Height 25 is current, must survive.
	if _, err := s.At(25); err != nil {
		t.Fatalf("at(25) after compact: %v", err)
	}
	// Height 17 is within the tail (>= 25-10=15), must survive.
	if _, err := s.At(17); err != nil {
		t.Fatalf("at(17) after compact: %v", err)
	}
	// Height 3 is neither a multiple, nor current, nor in the tail: gone.
	if _, err := s.At(3); err != ErrNotFound {
		t.Fatalf("at(3) after compact: err = %v, want ErrNotFound", err)
	}
}
