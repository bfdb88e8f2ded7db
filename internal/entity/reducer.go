// Copyright 2025 Certen Protocol
//
// The entity reducer: Apply(replica, command) -> (replica', outbox). Pure:
// no I/O, no clock reads, no mutation of the input replica. Every returned
// replica is produced via core.Replica.Clone plus field updates so callers
// never observe aliasing with the input.

package entity

import (
	"fmt"

	"github.com/certen/bftcore/internal/codec"
	"github.com/certen/bftcore/internal/core"
)

// Outbox is the list of envelopes an Apply call wants routed onward. The
// entity reducer never addresses these itself beyond from/to; dispatch is
// the server reducer's job.
type Outbox []core.Envelope

// Apply is the entity-level command dispatcher. addr is the entity address
// the replica belongs to, used only to stamp outgoing envelopes.
func Apply(exec Executor, verifier Verifier, replica core.Replica, addr core.EntityAddress, cmd core.Command) (core.Replica, Outbox, error) {
	switch cmd.Tag {
	case core.CmdImport:
		// Handled at the server layer; no-op here.
		return replica, nil, nil
	case core.CmdAddTx:
		if cmd.AddTx == nil {
			return replica, nil, fmt.Errorf("entity: ADD_TX missing payload")
		}
		return applyAddTx(replica, cmd.AddTx.Transaction), nil, nil
	case core.CmdPropose:
		if cmd.Propose == nil {
			return replica, nil, fmt.Errorf("entity: PROPOSE missing payload")
		}
		return applyPropose(exec, replica, addr, cmd.Propose.Timestamp)
	case core.CmdSign:
		if cmd.Sign == nil {
			return replica, nil, fmt.Errorf("entity: SIGN missing payload")
		}
		return applySign(replica, addr, *cmd.Sign)
	case core.CmdCommit:
		if cmd.Commit == nil {
			return replica, nil, fmt.Errorf("entity: COMMIT missing payload")
		}
		if verifier == nil {
			return replica, nil, fmt.Errorf("entity: nil verifier")
		}
		return applyCommit(exec, verifier, replica, *cmd.Commit)
	default:
		return replica, nil, fmt.Errorf("entity: unknown command tag %q", cmd.Tag)
	}
}

func applyAddTx(replica core.Replica, tx core.Transaction) core.Replica {
	for _, t := range replica.Mempool {
		if t.Sig == tx.Sig {
			return replica
		}
	}
	out := replica.Clone()
	out.Mempool = append(out.Mempool, tx)
	return out
}

func applyPropose(exec Executor, replica core.Replica, addr core.EntityAddress, timestamp int64) (core.Replica, Outbox, error) {
	if replica.AwaitingSigs || len(replica.Mempool) == 0 {
		return replica, nil, nil
	}

	ordered := orderedMempool(replica.Mempool)
	quorum := replica.Last.State.Quorum

	postState, err := buildPostState(exec, replica.Last.State, ordered)
	if err != nil {
		return replica, nil, fmt.Errorf("%w: %w", ErrFrameBuildFailed, err)
	}

	frame := core.Frame{
		Height:     replica.Last.Height + 1,
		Timestamp:  timestamp,
		ParentHash: mustFrameHash(replica.Last),
		Proposer:   replica.Proposer,
		Txs:        ordered,
		State:      postState,
	}
	hash, err := codec.FrameHash(frame)
	if err != nil {
		return replica, nil, fmt.Errorf("%w: %w", ErrFrameBuildFailed, err)
	}

	sigs := make(map[core.Address]core.Signature, len(quorum.Members))
	if quorum.Threshold == 1 {
		if _, ok := quorum.Members[replica.Proposer]; ok {
			sigs[replica.Proposer] = core.ZeroSignature
		}
	}

	out := replica.Clone()
	out.AwaitingSigs = true
	out.Mempool = nil
	out.Proposal = &core.ProposedFrame{Frame: frame, Hash: hash, Sigs: sigs}
	out.ProposedAt = timestamp

	var outbox Outbox
	for _, member := range quorum.SortedMembers() {
		outbox = append(outbox, core.Envelope{
			From: member,
			To:   replica.Proposer,
			Cmd: core.Command{
				Tag: core.CmdSign,
				Sign: &core.SignPayload{
					AddrKey:   addr.AddrKey(),
					Signer:    member,
					FrameHash: hash,
					Signature: core.ZeroSignature,
				},
			},
		})
	}
	return out, outbox, nil
}

func mustFrameHash(f core.Frame) core.Hash {
	h, err := codec.FrameHash(f)
	if err != nil {
		// f is always a previously-accepted frame (genesis or committed);
		// its hash was already computed once, so re-hashing cannot fail.
		panic("entity: re-hashing a previously valid frame failed: " + err.Error())
	}
	return h
}

func applySign(replica core.Replica, addr core.EntityAddress, sign core.SignPayload) (core.Replica, Outbox, error) {
	if !replica.AwaitingSigs || replica.Proposal == nil {
		return replica, nil, nil
	}
	p := replica.Proposal
	if sign.FrameHash != p.Hash {
		return replica, nil, nil
	}
	quorum := replica.Last.State.Quorum
	if _, ok := quorum.Members[sign.Signer]; !ok {
		return replica, nil, nil
	}
	// An entry already present and non-placeholder means this signer already
	// submitted a real signature; the seeded self-signature placeholder
	// (see PROPOSE) occupies the slot but carries no power, so it must
	// still be overwritable by the real SIGN it stands in for.
	if existing, already := p.Sigs[sign.Signer]; already && !existing.IsPlaceholder() {
		return replica, nil, nil
	}

	powerBefore := signingPower(quorum, p.Sigs)

	out := replica.Clone()
	out.Proposal.Sigs[sign.Signer] = sign.Signature

	powerAfter := signingPower(quorum, out.Proposal.Sigs)
	after := nonPlaceholderSigners(out.Proposal.Sigs)

	if powerBefore >= quorum.Threshold || powerAfter < quorum.Threshold {
		return out, nil, nil
	}

	outbox := make(Outbox, 0, len(quorum.Members))
	for _, member := range quorum.SortedMembers() {
		outbox = append(outbox, core.Envelope{
			From: replica.Proposer,
			To:   member,
			Cmd: core.Command{
				Tag: core.CmdCommit,
				Commit: &core.CommitPayload{
					AddrKey: addr.AddrKey(),
					Hanko:   core.ZeroSignature,
					Frame:   p.Frame,
					Signers: after,
				},
			},
		})
	}
	return out, outbox, nil
}

// signingPower sums quorum shares for every non-placeholder signature in
// sigs. Placeholder entries (the self-signature optimization's seed, or any
// unresolved outbox slot) never contribute power.
func signingPower(quorum core.Quorum, sigs map[core.Address]core.Signature) uint64 {
	var signed []core.Address
	for a, sig := range sigs {
		if !sig.IsPlaceholder() {
			signed = append(signed, a)
		}
	}
	return quorum.Power(signed)
}

func nonPlaceholderSigners(sigs map[core.Address]core.Signature) []core.Address {
	out := make([]core.Address, 0, len(sigs))
	for a, sig := range sigs {
		if !sig.IsPlaceholder() {
			out = append(out, a)
		}
	}
	return out
}

func applyCommit(exec Executor, verifier Verifier, replica core.Replica, commit core.CommitPayload) (core.Replica, Outbox, error) {
	if commit.Frame.Height != replica.Last.Height+1 {
		return replica, nil, ErrHeightMismatch
	}

	postState, err := buildPostState(exec, replica.Last.State, commit.Frame.Txs)
	if err != nil {
		return replica, nil, fmt.Errorf("%w: %w", ErrStateHashMismatch, err)
	}
	recomputed := core.Frame{
		Height:     commit.Frame.Height,
		Timestamp:  commit.Frame.Timestamp,
		ParentHash: commit.Frame.ParentHash,
		Proposer:   commit.Frame.Proposer,
		Txs:        commit.Frame.Txs,
		State:      postState,
	}
	gotHash, err := codec.FrameHash(recomputed)
	if err != nil {
		return replica, nil, fmt.Errorf("%w: %w", ErrStateHashMismatch, err)
	}
	wantHash, err := codec.FrameHash(commit.Frame)
	if err != nil {
		return replica, nil, fmt.Errorf("%w: %w", ErrStateHashMismatch, err)
	}
	if gotHash != wantHash {
		return replica, nil, ErrStateHashMismatch
	}

	quorum := replica.Last.State.Quorum
	distinct := dedupAddresses(commit.Signers)
	if quorum.Power(distinct) < quorum.Threshold {
		return replica, nil, ErrInsufficientSigningPower
	}

	// verify_batch(hanko, frame_hash(frame), pubkeys(distinct(signers))):
	// the aggregate signature over the exact frame these signers signed.
	if ok, err := verifier.VerifyAggregate(distinct, wantHash, commit.Hanko); err != nil || !ok {
		return replica, nil, ErrInvalidAggregateSignature
	}

	out := replica.Clone()
	out.Last = recomputed
	out.Proposal = nil
	out.AwaitingSigs = false
	out.Mempool = pruneCommitted(out.Mempool, commit.Frame.Txs)
	return out, nil, nil
}

// buildPostState deterministically folds ordered txs into prev, re-deriving
// each signer's nonce as it goes. Used by both PROPOSE (to build a new
// proposal) and COMMIT (to re-verify one).
func buildPostState(exec Executor, prev core.EntityState, ordered []core.Transaction) (core.EntityState, error) {
	quorum := prev.Quorum
	domain := prev.Domain
	nonces := make(map[core.Address]uint64, len(quorum.Members))
	for a, rec := range quorum.Members {
		nonces[a] = rec.Nonce
	}

	for _, tx := range ordered {
		if _, ok := quorum.Members[tx.From]; !ok {
			return core.EntityState{}, ErrSignerNotInQuorum
		}
		if tx.Nonce != nonces[tx.From] {
			return core.EntityState{}, ErrBadNonce
		}
		newDomain, err := exec.Apply(domain, tx)
		if err != nil {
			return core.EntityState{}, err
		}
		domain = newDomain
		nonces[tx.From]++
	}

	newMembers := make(map[core.Address]core.SignerRecord, len(quorum.Members))
	for a, rec := range quorum.Members {
		newMembers[a] = core.SignerRecord{Nonce: nonces[a], Shares: rec.Shares}
	}
	return core.EntityState{Quorum: core.Quorum{Threshold: quorum.Threshold, Members: newMembers}, Domain: domain}, nil
}

func dedupAddresses(addrs []core.Address) []core.Address {
	seen := make(map[core.Address]struct{}, len(addrs))
	out := make([]core.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func pruneCommitted(mempool []core.Transaction, committed []core.Transaction) []core.Transaction {
	if len(mempool) == 0 {
		return mempool
	}
	committedSigs := make(map[core.Signature]struct{}, len(committed))
	for _, t := range committed {
		committedSigs[t.Sig] = struct{}{}
	}
	out := make([]core.Transaction, 0, len(mempool))
	for _, t := range mempool {
		if _, ok := committedSigs[t.Sig]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}
