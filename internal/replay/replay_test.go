// Copyright 2025 Certen Protocol

package replay

import (
	"errors"
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/bftcore/internal/chatapp"
	"github.com/certen/bftcore/internal/codec"
	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/entity"
	"github.com/certen/bftcore/internal/server"
	"github.com/certen/bftcore/internal/snapshot"
	"github.com/certen/bftcore/internal/wal"
)

const kindChat = chatapp.Kind

func chatExecutor() entity.Executor {
	return chatapp.Executor()
}

// acceptAllVerifier stands in for a real blsoracle.Oracle: these tests
// exercise WAL replay and divergence detection, not cryptography.
type stubVerifier func(signers []core.Address, msg core.Hash, hanko core.Signature) (bool, error)

func (f stubVerifier) VerifyAggregate(signers []core.Address, msg core.Hash, hanko core.Signature) (bool, error) {
	return f(signers, msg, hanko)
}

func acceptAllVerifier() entity.Verifier {
	return stubVerifier(func([]core.Address, core.Hash, core.Signature) (bool, error) {
		return true, nil
	})
}

func addr(b byte) core.Address {
	var a core.Address
	a[len(a)-1] = b
	return a
}

// appendTick runs one apply_server tick and writes its (INPUT_BATCH,
// SERVER_FRAME) pair to w, mirroring what the live runtime does around
// every call to server.Apply.
func appendTick(t *testing.T, w *wal.WAL, exec entity.Executor, state core.ServerState, batch []core.Envelope, ts int64, cfg server.Config) (core.ServerState, []core.Envelope) {
	t.Helper()
	next, frame, outbox, err := server.Apply(exec, acceptAllVerifier(), state, batch, ts, cfg)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	batchBytes, err := codec.EncodeEnvelopeBatch(batch)
	if err != nil {
		t.Fatalf("encode batch: %v", err)
	}
	if _, err := w.Append(wal.KindInputBatch, ts, batchBytes); err != nil {
		t.Fatalf("append input batch: %v", err)
	}
	frameBytes, err := codec.EncodeServerFrame(frame)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if _, err := w.Append(wal.KindServerFrame, ts, frameBytes); err != nil {
		t.Fatalf("append server frame: %v", err)
	}
	return next, outbox
}

func importBatch(entityID string) []core.Envelope {
	seed := core.ReplicaSeed{
		Address: core.EntityAddress{Jurisdiction: "demo", EntityID: entityID},
		Quorum: core.Quorum{
			Threshold: 1,
			Members:   map[core.Address]core.SignerRecord{addr(1): {Shares: 1}},
		},
		Domain: core.Payload("null"),
	}
	return []core.Envelope{{Cmd: core.Command{Tag: core.CmdImport, Import: &core.ImportPayload{ReplicaSeed: seed}}}}
}

func TestRunOnEmptyWALStartsAtGenesis(t *testing.T) {
	w, err := wal.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	snaps := snapshot.Open(dbm.NewMemDB())

	state, err := Run(w, snaps, chatExecutor(), acceptAllVerifier(), server.Config{}, Options{Validate: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if state.Height != 0 || len(state.Replicas) != 0 {
		t.Fatalf("genesis replay state = %#v, want empty height 0", state)
	}
	if _, _, err := snaps.Latest(); err != nil {
		t.Fatalf("expected a final snapshot to be persisted, got %v", err)
	}
}

func TestRunReplaysRecordedTicksAndMatchesLiveState(t *testing.T) {
	exec := chatExecutor()
	cfg := server.Config{}
	w, err := wal.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	snaps := snapshot.Open(dbm.NewMemDB())
	entityAddr := core.EntityAddress{Jurisdiction: "demo", EntityID: "e1"}

	state := core.ServerState{Replicas: make(map[core.ReplicaKey]core.Replica)}
	state, _ = appendTick(t, w, exec, state, importBatch("e1"), 1, cfg)

	addTx := core.Envelope{
		To: addr(1),
		Cmd: core.Command{Tag: core.CmdAddTx, AddTx: &core.AddTxPayload{
			AddrKey: entityAddr.AddrKey(),
			Transaction: core.Transaction{
				Kind: kindChat, Nonce: 0, From: addr(1),
				Body: core.Payload(`{"message":"hello"}`), Sig: core.Signature{1},
			},
		}},
	}
	var outbox []core.Envelope
	state, outbox = appendTick(t, w, exec, state, []core.Envelope{addTx}, 100, cfg)
	state, outbox = appendTick(t, w, exec, state, outbox, 200, cfg)
	state, outbox = appendTick(t, w, exec, state, outbox, 300, cfg)
	wantState, _ := appendTick(t, w, exec, state, outbox, 400, cfg)

	replayed, err := Run(w, snaps, exec, acceptAllVerifier(), cfg, Options{Validate: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if replayed.Height != wantState.Height {
		t.Fatalf("replayed height = %d, want %d", replayed.Height, wantState.Height)
	}
	key := core.ReplicaKey{EntityAddress: entityAddr, Signer: addr(1)}
	if replayed.Replicas[key].Last.Height != wantState.Replicas[key].Last.Height {
		t.Fatalf("replayed replica height mismatch")
	}
	if replayed.LastHash != wantState.LastHash {
		t.Fatalf("replayed LastHash mismatch")
	}
}

func TestRunResumesFromAnExistingSnapshot(t *testing.T) {
	exec := chatExecutor()
	cfg := server.Config{}
	w, err := wal.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	snaps := snapshot.Open(dbm.NewMemDB())

	state := core.ServerState{Replicas: make(map[core.ReplicaKey]core.Replica)}
	state, _ = appendTick(t, w, exec, state, importBatch("e1"), 1, cfg)
	if err := snaps.Save(state.Height, state); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	// A second tick after the snapshot with no further inputs.
	wantState, _ := appendTick(t, w, exec, state, nil, 2, cfg)

	replayed, err := Run(w, snaps, exec, acceptAllVerifier(), cfg, Options{Validate: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if replayed.Height != wantState.Height {
		t.Fatalf("replayed height = %d, want %d", replayed.Height, wantState.Height)
	}
}

func TestRunDetectsDivergence(t *testing.T) {
	exec := chatExecutor()
	cfg := server.Config{}
	w, err := wal.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	snaps := snapshot.Open(dbm.NewMemDB())

	state := core.ServerState{Replicas: make(map[core.ReplicaKey]core.Replica)}
	_, frame, _, err := server.Apply(exec, acceptAllVerifier(), state, importBatch("e1"), 1, cfg)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Corrupt the recorded frame so its hash no longer matches what replay
	// will recompute.
	frame.Hash[0] ^= 0xFF

	batchBytes, err := codec.EncodeEnvelopeBatch(importBatch("e1"))
	if err != nil {
		t.Fatalf("encode batch: %v", err)
	}
	if _, err := w.Append(wal.KindInputBatch, 1, batchBytes); err != nil {
		t.Fatalf("append input batch: %v", err)
	}
	frameBytes, err := codec.EncodeServerFrame(frame)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if _, err := w.Append(wal.KindServerFrame, 1, frameBytes); err != nil {
		t.Fatalf("append server frame: %v", err)
	}

	if _, err := Run(w, snaps, exec, acceptAllVerifier(), cfg, Options{Validate: true}); !errors.Is(err, ErrDivergence) {
		t.Fatalf("err = %v, want ErrDivergence", err)
	}
}

func TestValidateDetectsUnpairedFrame(t *testing.T) {
	w, err := wal.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	frame := core.ServerFrame{Height: 1}
	frameBytes, err := codec.EncodeServerFrame(frame)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if _, err := w.Append(wal.KindServerFrame, 1, frameBytes); err != nil {
		t.Fatalf("append server frame: %v", err)
	}
	if err := Validate(w); !errors.Is(err, ErrUnpairedFrame) {
		t.Fatalf("err = %v, want ErrUnpairedFrame", err)
	}
}

func TestValidateAcceptsAWellFormedChain(t *testing.T) {
	exec := chatExecutor()
	cfg := server.Config{}
	w, err := wal.Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	state := core.ServerState{Replicas: make(map[core.ReplicaKey]core.Replica)}
	state, _ = appendTick(t, w, exec, state, importBatch("e1"), 1, cfg)
	if _, _, err := server.Apply(exec, acceptAllVerifier(), state, nil, 2, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	state, _ = appendTick(t, w, exec, state, nil, 2, cfg)
	_ = state

	if err := Validate(w); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
