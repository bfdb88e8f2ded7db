// Copyright 2025 Certen Protocol
//
// The server reducer: apply_server(prev, batch, timestamp) -> (next, frame,
// outbox). Pure: no I/O, no clock reads beyond the timestamp argument. It
// multiplexes many entities over the entity reducer, seals a per-tick
// server frame, and injects the next round's PROPOSE once an entity's
// mempool is non-empty or its open proposal has aged out.

package server

import (
	"fmt"

	"github.com/certen/bftcore/internal/codec"
	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/entity"
)

// Config bundles the knobs apply_server needs beyond (prev, batch, ts).
type Config struct {
	Timeout TimeoutConfig
}

// Apply runs one tick. exec is the domain executor and verifier the
// signature-verification capability, both threaded down to the entity
// reducer for every routed command.
func Apply(exec entity.Executor, verifier entity.Verifier, prev core.ServerState, batch []core.Envelope, timestamp int64, cfg Config) (core.ServerState, core.ServerFrame, []core.Envelope, error) {
	if exec == nil {
		return prev, core.ServerFrame{}, nil, fmt.Errorf("server: nil executor")
	}
	if verifier == nil {
		return prev, core.ServerFrame{}, nil, fmt.Errorf("server: nil verifier")
	}

	next := prev.Clone()
	var outbox []core.Envelope

	for _, env := range batch {
		if env.Cmd.Tag == core.CmdImport {
			importEntity(&next, env)
			continue
		}
		key, ok := resolveReplica(next, env)
		if !ok {
			// Unroutable: no hosted replica matches. Dropped, per the
			// error table's "command dropped" handling.
			continue
		}
		replica := next.Replicas[key]
		updated, out, err := entity.Apply(exec, verifier, replica, key.EntityAddress, env.Cmd)
		if err != nil {
			// Every entity-reducer error in §7's table is handled by
			// dropping the command and leaving the replica unchanged.
			continue
		}
		next.Replicas[key] = updated
		outbox = append(outbox, out...)
	}

	newHeight := prev.Height + 1
	for _, addr := range entityAddresses(next) {
		members := quorumMembersOf(next, addr)
		proposer := ProposerFor(newHeight, members)
		key := core.ReplicaKey{EntityAddress: addr, Signer: proposer}
		r, ok := next.Replicas[key]
		if !ok {
			continue
		}
		if shouldInjectPropose(r, newHeight, timestamp, cfg.Timeout) {
			outbox = append(outbox, core.Envelope{
				From: proposer,
				To:   proposer,
				Cmd: core.Command{
					Tag: core.CmdPropose,
					Propose: &core.ProposePayload{
						AddrKey:   addr.AddrKey(),
						Timestamp: timestamp,
					},
				},
			})
		}
	}

	root := serverRoot(next)
	frame := core.ServerFrame{
		Height:    newHeight,
		Timestamp: timestamp,
		Inputs:    append([]core.Envelope(nil), batch...),
		Root:      root,
		Parent:    prev.LastHash,
	}
	hash, err := codec.ServerFrameHash(frame)
	if err != nil {
		return prev, core.ServerFrame{}, nil, fmt.Errorf("server: seal frame: %w", err)
	}
	frame.Hash = hash

	next.Height = newHeight
	next.LastHash = hash

	return next, frame, outbox, nil
}

func shouldInjectPropose(r core.Replica, newHeight uint64, timestamp int64, timeoutCfg TimeoutConfig) bool {
	if !r.AwaitingSigs {
		return len(r.Mempool) > 0
	}
	if r.Proposal == nil {
		return false
	}
	age := timestamp - r.ProposedAt
	return age > ProposalTimeoutMS(newHeight, timeoutCfg)
}

func importEntity(state *core.ServerState, env core.Envelope) {
	if env.Cmd.Import == nil {
		return
	}
	seed := env.Cmd.Import.ReplicaSeed
	for rk := range state.Replicas {
		if rk.EntityAddress == seed.Address {
			// Already imported; IMPORT is idempotent-by-absence, not
			// a re-seed.
			return
		}
	}
	genesis := core.Frame{
		Height: 0,
		State:  core.EntityState{Quorum: seed.Quorum, Domain: seed.Domain},
	}
	for _, member := range seed.Quorum.SortedMembers() {
		key := core.ReplicaKey{EntityAddress: seed.Address, Signer: member}
		state.Replicas[key] = core.Replica{
			Address:  seed.Address,
			Proposer: member,
			Last:     genesis,
		}
	}
}

// serverRoot folds every hosted replica's current state_root into one
// server_root, keyed by replica key string so the fold is deterministic
// regardless of map iteration order. Replicas untouched this tick still
// contribute their (unchanged) cached Last.State, matching §4.4's sealing
// rule without needing a separate cache: re-deriving state_root from an
// unchanged EntityState yields the same hash.
func serverRoot(state core.ServerState) core.Hash {
	if len(state.Replicas) == 0 {
		return core.Hash{}
	}
	roots := make(map[string]core.Hash, len(state.Replicas))
	for rk, r := range state.Replicas {
		h, err := codec.StateRoot(r.Last.State)
		if err != nil {
			// EntityState always round-trips through RLP; a failure here
			// means a malformed in-memory value, a programmer error.
			panic("server: state root encode failed: " + err.Error())
		}
		roots[rk.String()] = h
	}
	return codec.ServerRoot(roots)
}
