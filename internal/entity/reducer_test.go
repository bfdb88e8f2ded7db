// Copyright 2025 Certen Protocol

package entity

import (
	"testing"

	"github.com/certen/bftcore/internal/chatapp"
	"github.com/certen/bftcore/internal/core"
)

const kindChat = chatapp.Kind

func chatExecutor() Executor {
	return chatapp.Executor()
}

// acceptAllVerifier stands in for a real blsoracle.Oracle in reducer tests
// that exercise dispatch and state transitions, not cryptography; commit
// signature verification itself is covered in blsoracle's own tests and in
// the runtime's end-to-end fleet tests.
type stubVerifier func(signers []core.Address, msg core.Hash, hanko core.Signature) (bool, error)

func (f stubVerifier) VerifyAggregate(signers []core.Address, msg core.Hash, hanko core.Signature) (bool, error) {
	return f(signers, msg, hanko)
}

func acceptAllVerifier() Verifier {
	return stubVerifier(func([]core.Address, core.Hash, core.Signature) (bool, error) {
		return true, nil
	})
}

func addr(b byte) core.Address {
	var a core.Address
	a[len(a)-1] = b
	return a
}

func singleSignerReplica() core.Replica {
	a := addr(1)
	quorum := core.Quorum{
		Threshold: 1,
		Members:   map[core.Address]core.SignerRecord{a: {Nonce: 0, Shares: 1}},
	}
	return core.Replica{
		Address:  core.EntityAddress{Jurisdiction: "demo", EntityID: "e1"},
		Proposer: a,
		Last:     core.Frame{Height: 0, State: core.EntityState{Quorum: quorum, Domain: core.Payload("null")}},
	}
}

func TestAddTxDedupBySignature(t *testing.T) {
	r := singleSignerReplica()
	tx := core.Transaction{Kind: kindChat, Nonce: 0, From: addr(1), Body: core.Payload(`{"message":"hi"}`), Sig: core.Signature{1}}

	r1, _, err := Apply(chatExecutor(), acceptAllVerifier(), r, r.Address, core.Command{Tag: core.CmdAddTx, AddTx: &core.AddTxPayload{Transaction: tx}})
	if err != nil {
		t.Fatalf("add_tx: %v", err)
	}
	if len(r1.Mempool) != 1 {
		t.Fatalf("mempool len = %d, want 1", len(r1.Mempool))
	}

	r2, _, err := Apply(chatExecutor(), acceptAllVerifier(), r1, r1.Address, core.Command{Tag: core.CmdAddTx, AddTx: &core.AddTxPayload{Transaction: tx}})
	if err != nil {
		t.Fatalf("add_tx dup: %v", err)
	}
	if len(r2.Mempool) != 1 {
		t.Fatalf("mempool should stay deduped: len = %d", len(r2.Mempool))
	}
}

func TestProposeEmptyMempoolIsNoop(t *testing.T) {
	r := singleSignerReplica()
	out, outbox, err := Apply(chatExecutor(), acceptAllVerifier(), r, r.Address, core.Command{Tag: core.CmdPropose, Propose: &core.ProposePayload{Timestamp: 1}})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if out.AwaitingSigs {
		t.Fatalf("awaiting_sigs should stay false on empty mempool")
	}
	if outbox != nil {
		t.Fatalf("expected no outbox, got %v", outbox)
	}
}

func TestSingleSignerHappyPath(t *testing.T) {
	exec := chatExecutor()
	r := singleSignerReplica()
	tx := core.Transaction{Kind: kindChat, Nonce: 0, From: addr(1), Body: core.Payload(`{"message":"hello"}`), Sig: core.Signature{1}}

	r, _, err := Apply(exec, acceptAllVerifier(), r, r.Address, core.Command{Tag: core.CmdAddTx, AddTx: &core.AddTxPayload{Transaction: tx}})
	if err != nil {
		t.Fatalf("add_tx: %v", err)
	}

	r, outbox, err := Apply(exec, acceptAllVerifier(), r, r.Address, core.Command{Tag: core.CmdPropose, Propose: &core.ProposePayload{Timestamp: 1}})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !r.AwaitingSigs || r.Proposal == nil {
		t.Fatalf("expected an open proposal after propose")
	}
	if len(outbox) != 1 {
		t.Fatalf("expected 1 SIGN envelope from threshold=1 quorum, got %d", len(outbox))
	}

	// Self-signature optimization should have seeded sigs[proposer].
	if _, ok := r.Proposal.Sigs[r.Proposer]; !ok {
		t.Fatalf("threshold=1 self-signature optimization did not seed sigs")
	}

	frameHash := r.Proposal.Hash
	r, outbox, err = Apply(exec, acceptAllVerifier(), r, r.Address, core.Command{
		Tag: core.CmdSign,
		Sign: &core.SignPayload{Signer: addr(1), FrameHash: frameHash, Signature: core.Signature{9}},
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(outbox) != 1 || outbox[0].Cmd.Tag != core.CmdCommit {
		t.Fatalf("expected threshold crossing to emit COMMIT, got %#v", outbox)
	}

	commitPayload := outbox[0].Cmd.Commit
	r, _, err = Apply(exec, acceptAllVerifier(), r, r.Address, core.Command{Tag: core.CmdCommit, Commit: commitPayload})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if r.Last.Height != 1 {
		t.Fatalf("height = %d, want 1", r.Last.Height)
	}
	if r.AwaitingSigs {
		t.Fatalf("awaiting_sigs should be false after commit")
	}
	if len(r.Mempool) != 0 {
		t.Fatalf("mempool should be empty after commit, got %d", len(r.Mempool))
	}
}

func TestCommitRejectsHeightMismatch(t *testing.T) {
	r := singleSignerReplica()
	bad := core.CommitPayload{Frame: core.Frame{Height: 5}, Signers: []core.Address{addr(1)}}
	_, _, err := Apply(chatExecutor(), acceptAllVerifier(), r, r.Address, core.Command{Tag: core.CmdCommit, Commit: &bad})
	if err != ErrHeightMismatch {
		t.Fatalf("err = %v, want ErrHeightMismatch", err)
	}
}

func TestCommitDuplicateSignerPower(t *testing.T) {
	a, b := addr(1), addr(2)
	quorum := core.Quorum{
		Threshold: 3,
		Members: map[core.Address]core.SignerRecord{
			a: {Shares: 2},
			b: {Shares: 1},
		},
	}
	if quorum.Power([]core.Address{a, a, b}) != 3 {
		t.Fatalf("deduplicated power should be 3")
	}

	quorum2 := core.Quorum{
		Threshold: 3,
		Members: map[core.Address]core.SignerRecord{
			a: {Shares: 1},
			b: {Shares: 1},
		},
	}
	if quorum2.Power([]core.Address{a, a, b}) != 2 {
		t.Fatalf("deduplicated power should be 2, not counting a twice")
	}
}

func TestSignRejectsUnknownSigner(t *testing.T) {
	exec := chatExecutor()
	r := singleSignerReplica()
	tx := core.Transaction{Kind: kindChat, Nonce: 0, From: addr(1), Body: core.Payload(`{"message":"hi"}`), Sig: core.Signature{1}}
	r, _, _ = Apply(exec, acceptAllVerifier(), r, r.Address, core.Command{Tag: core.CmdAddTx, AddTx: &core.AddTxPayload{Transaction: tx}})
	r, _, _ = Apply(exec, acceptAllVerifier(), r, r.Address, core.Command{Tag: core.CmdPropose, Propose: &core.ProposePayload{Timestamp: 1}})

	stranger := addr(99)
	out, outbox, err := Apply(exec, acceptAllVerifier(), r, r.Address, core.Command{
		Tag:  core.CmdSign,
		Sign: &core.SignPayload{Signer: stranger, FrameHash: r.Proposal.Hash, Signature: core.Signature{1}},
	})
	if err != nil {
		t.Fatalf("sign from stranger should be silently rejected, not erred: %v", err)
	}
	if outbox != nil {
		t.Fatalf("expected no outbox from rejected sign")
	}
	if _, ok := out.Proposal.Sigs[stranger]; ok {
		t.Fatalf("stranger signature must not be recorded")
	}
}
