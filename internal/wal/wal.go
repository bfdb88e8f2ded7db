// Copyright 2025 Certen Protocol
//
// Write-ahead log: an append-only ordered log of INPUT_BATCH and
// SERVER_FRAME entries, keyed by a contiguous sequence number assigned at
// append time. Backed directly by a CometBFT dbm.DB, the same storage
// interface the teacher's ledger used (via its own kvdb.KVAdapter wrapper)
// for durable, crash-consistent writes.

package wal

import (
	"fmt"
	"sync"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/rlp"
)

// EntryKind is the closed set of WAL entry variants.
type EntryKind string

const (
	KindInputBatch  EntryKind = "INPUT_BATCH"
	KindServerFrame EntryKind = "SERVER_FRAME"
)

// Entry is one WAL record: kind, monotonic sequence, wall timestamp and an
// opaque canonical-codec-encoded payload (an envelope batch or a server
// frame, encoded by the caller).
type Entry struct {
	Kind      EntryKind
	Sequence  uint64
	Timestamp int64
	Payload   []byte
}

type wireEntry struct {
	Kind      string
	Sequence  uint64
	Timestamp int64
	Payload   []byte
}

// WAL is a single-writer append-only log over a dbm.DB. Safe for
// concurrent readers; appends are serialized by mu, matching the
// teacher's LedgerStore's own single-writer-from-commit-thread discipline.
type WAL struct {
	mu      sync.Mutex
	db      dbm.DB
	nextSeq uint64
}

const keyWidth = 20 // zero-padded 20-digit decimal sequence, per spec's persisted layout.

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%0*d", keyWidth, seq))
}

// Open attaches a WAL to db, scanning existing entries to resume the
// sequence counter after a restart.
func Open(db dbm.DB) (*WAL, error) {
	w := &WAL{db: db}
	it, err := db.ReverseIterator(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("wal: open reverse iterator: %w", err)
	}
	defer it.Close()
	if it.Valid() {
		var e wireEntry
		if err := rlp.DecodeBytes(it.Value(), &e); err != nil {
			return nil, fmt.Errorf("wal: decode last entry: %w", err)
		}
		w.nextSeq = e.Sequence + 1
	}
	return w, nil
}

// Append writes the next sequential entry and returns its assigned
// sequence number. Durable before returning (SetSync).
func (w *WAL) Append(kind EntryKind, timestamp int64, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.nextSeq
	e := wireEntry{Kind: string(kind), Sequence: seq, Timestamp: timestamp, Payload: payload}
	b, err := rlp.EncodeToBytes(e)
	if err != nil {
		return 0, fmt.Errorf("wal: encode entry: %w", err)
	}
	if err := w.db.SetSync(seqKey(seq), b); err != nil {
		return 0, fmt.Errorf("wal: append: %w", err)
	}
	w.nextSeq++
	return seq, nil
}

// NextSequence returns the sequence number the next Append will assign.
func (w *WAL) NextSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq
}

// Each iterates every entry in sequence order, stopping at the first
// error fn returns.
func (w *WAL) Each(fn func(Entry) error) error {
	it, err := w.db.Iterator(nil, nil)
	if err != nil {
		return fmt.Errorf("wal: iterator: %w", err)
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		var e wireEntry
		if err := rlp.DecodeBytes(it.Value(), &e); err != nil {
			return fmt.Errorf("wal: decode entry at key %q: %w", it.Key(), err)
		}
		if err := fn(Entry{Kind: EntryKind(e.Kind), Sequence: e.Sequence, Timestamp: e.Timestamp, Payload: e.Payload}); err != nil {
			return err
		}
	}
	return it.Error()
}

// Count returns the number of entries currently in the log.
func (w *WAL) Count() (int, error) {
	n := 0
	err := w.Each(func(Entry) error {
		n++
		return nil
	})
	return n, err
}
