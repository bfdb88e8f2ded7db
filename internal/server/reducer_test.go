// Copyright 2025 Certen Protocol

package server

import (
	"testing"

	"github.com/certen/bftcore/internal/chatapp"
	"github.com/certen/bftcore/internal/codec"
	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/entity"
)

const kindChat = chatapp.Kind

func chatExecutor() entity.Executor {
	return chatapp.Executor()
}

// acceptAllVerifier stands in for a real blsoracle.Oracle: these tests
// drive routing and tick sealing, not cryptography, which is covered by
// blsoracle's own tests and the runtime's end-to-end fleet tests.
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

func freshState() core.ServerState {
	return core.ServerState{Replicas: make(map[core.ReplicaKey]core.Replica)}
}

func importSingleSigner(t *testing.T, state core.ServerState, entityID string) core.ServerState {
	t.Helper()
	seed := core.ReplicaSeed{
		Address: core.EntityAddress{Jurisdiction: "demo", EntityID: entityID},
		Quorum: core.Quorum{
			Threshold: 1,
			Members:   map[core.Address]core.SignerRecord{addr(1): {Shares: 1}},
		},
		Domain: core.Payload("null"),
	}
	batch := []core.Envelope{{Cmd: core.Command{Tag: core.CmdImport, Import: &core.ImportPayload{ReplicaSeed: seed}}}}
	next, _, _, err := Apply(chatExecutor(), acceptAllVerifier(), state, batch, 1, Config{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return next
}

// TestSingleSignerFourTicks mirrors the single-signer happy path scenario:
// ADD_TX, then three ticks driven purely by each tick's injected outbox,
// ending with the entity committed at height 1. No runtime fills the SIGN
// placeholder here, so the test stands in for it with a non-zero signature.
func TestSingleSignerFourTicks(t *testing.T) {
	exec := chatExecutor()
	state := importSingleSigner(t, freshState(), "e1")
	entityAddr := core.EntityAddress{Jurisdiction: "demo", EntityID: "e1"}

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
	state, _, outbox, err := Apply(exec, acceptAllVerifier(), state, []core.Envelope{addTx}, 100, Config{})
	if err != nil {
		t.Fatalf("tick1: %v", err)
	}
	if len(outbox) != 1 || outbox[0].Cmd.Tag != core.CmdPropose {
		t.Fatalf("tick1 should inject PROPOSE, got %#v", outbox)
	}

	state, _, outbox, err = Apply(exec, acceptAllVerifier(), state, outbox, 200, Config{})
	if err != nil {
		t.Fatalf("tick2: %v", err)
	}
	if len(outbox) != 1 || outbox[0].Cmd.Tag != core.CmdSign {
		t.Fatalf("tick2 should emit SIGN, got %#v", outbox)
	}
	signed := *outbox[0].Cmd.Sign
	signed.Signature = core.Signature{9}
	outbox[0].Cmd.Sign = &signed

	state, _, outbox, err = Apply(exec, acceptAllVerifier(), state, outbox, 300, Config{})
	if err != nil {
		t.Fatalf("tick3: %v", err)
	}
	if len(outbox) != 1 || outbox[0].Cmd.Tag != core.CmdCommit {
		t.Fatalf("tick3 should emit COMMIT, got %#v", outbox)
	}

	state, _, outbox, err = Apply(exec, acceptAllVerifier(), state, outbox, 400, Config{})
	if err != nil {
		t.Fatalf("tick4: %v", err)
	}
	if len(outbox) != 0 {
		t.Fatalf("tick4 should settle with no further outbox, got %#v", outbox)
	}

	key := core.ReplicaKey{EntityAddress: entityAddr, Signer: addr(1)}
	r := state.Replicas[key]
	if r.Last.Height != 1 {
		t.Fatalf("height = %d, want 1", r.Last.Height)
	}
	if len(r.Mempool) != 0 {
		t.Fatalf("mempool should be drained, got %d", len(r.Mempool))
	}
	if state.Height != 5 {
		t.Fatalf("server height = %d, want 5 ticks applied (import plus four)", state.Height)
	}
}

func TestProposerRotationCyclesSortedMembers(t *testing.T) {
	members := []core.Address{addr(1), addr(2), addr(3), addr(4), addr(5)}
	sorted := append([]core.Address(nil), members...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Less(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	for h := uint64(1); h <= 6; h++ {
		got := ProposerFor(h, members)
		want := sorted[h%uint64(len(sorted))]
		if got != want {
			t.Errorf("height %d: proposer = %s, want %s", h, got, want)
		}
	}
}

func TestProposerForEmptyMembershipReturnsZero(t *testing.T) {
	if got := ProposerFor(1, nil); got != (core.Address{}) {
		t.Errorf("empty membership should return the zero address, got %s", got)
	}
}

func TestUnroutableEnvelopeIsDropped(t *testing.T) {
	state := freshState()
	env := core.Envelope{
		To: addr(1),
		Cmd: core.Command{Tag: core.CmdAddTx, AddTx: &core.AddTxPayload{
			AddrKey: "demo:nonexistent",
			Transaction: core.Transaction{Kind: kindChat, From: addr(1), Body: core.Payload("{}"), Sig: core.Signature{1}},
		}},
	}
	next, frame, outbox, err := Apply(chatExecutor(), acceptAllVerifier(), state, []core.Envelope{env}, 1, Config{})
	if err != nil {
		t.Fatalf("unroutable envelope should not error the tick: %v", err)
	}
	if outbox != nil {
		t.Fatalf("expected no outbox from a dropped envelope, got %#v", outbox)
	}
	if len(next.Replicas) != 0 {
		t.Fatalf("no replica should have been created")
	}
	if frame.Height != 1 {
		t.Fatalf("tick should still seal a frame at height 1, got %d", frame.Height)
	}
}

func TestImportIsIdempotentByAbsence(t *testing.T) {
	state := importSingleSigner(t, freshState(), "e1")
	before := len(state.Replicas)
	state = importSingleSigner(t, state, "e1")
	if len(state.Replicas) != before {
		t.Fatalf("re-importing the same entity should not duplicate replicas")
	}
}

func TestServerFrameHashIsSelfReferential(t *testing.T) {
	state := importSingleSigner(t, freshState(), "e1")
	_, frame, _, err := Apply(chatExecutor(), acceptAllVerifier(), state, nil, 1, Config{})
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	want, err := codec.ServerFrameHash(frame)
	if err != nil {
		t.Fatalf("recompute hash: %v", err)
	}
	if frame.Hash != want {
		t.Errorf("frame.hash = %s, want %s", frame.Hash, want)
	}
}
