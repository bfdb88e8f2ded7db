// Copyright 2025 Certen Protocol

package wal

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
)

func TestAppendAssignsSequentialNumbers(t *testing.T) {
	w, err := Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		seq, err := w.Append(KindInputBatch, int64(i), []byte{byte(i)})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if seq != uint64(i) {
			t.Fatalf("append %d: seq = %d, want %d", i, seq, i)
		}
	}
	if n, err := w.Count(); err != nil || n != 3 {
		t.Fatalf("count = %d, %v; want 3, nil", n, err)
	}
}

func TestEachVisitsInSequenceOrder(t *testing.T) {
	w, err := Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := w.Append(KindInputBatch, int64(i), []byte{byte(i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	var seen []uint64
	if err := w.Each(func(e Entry) error {
		seen = append(seen, e.Sequence)
		return nil
	}); err != nil {
		t.Fatalf("each: %v", err)
	}
	for i, s := range seen {
		if s != uint64(i) {
			t.Fatalf("seen[%d] = %d, want %d", i, s, i)
		}
	}
}

func TestOpenResumesSequenceAfterRestart(t *testing.T) {
	db := dbm.NewMemDB()
	w1, err := Open(db)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := w1.Append(KindServerFrame, int64(i), nil); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	w2, err := Open(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if w2.NextSequence() != 4 {
		t.Fatalf("resumed nextSeq = %d, want 4", w2.NextSequence())
	}
	seq, err := w2.Append(KindInputBatch, 99, nil)
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if seq != 4 {
		t.Fatalf("append after reopen: seq = %d, want 4", seq)
	}
}

func TestOpenOnEmptyLogStartsAtZero(t *testing.T) {
	w, err := Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if w.NextSequence() != 0 {
		t.Fatalf("fresh WAL nextSeq = %d, want 0", w.NextSequence())
	}
}

func TestPayloadAndKindRoundTrip(t *testing.T) {
	w, err := Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	payload := []byte("canonical-bytes")
	if _, err := w.Append(KindServerFrame, 42, payload); err != nil {
		t.Fatalf("append: %v", err)
	}
	var got Entry
	if err := w.Each(func(e Entry) error {
		got = e
		return nil
	}); err != nil {
		t.Fatalf("each: %v", err)
	}
	if got.Kind != KindServerFrame || got.Timestamp != 42 || string(got.Payload) != string(payload) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}
