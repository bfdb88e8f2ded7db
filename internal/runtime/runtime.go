// Copyright 2025 Certen Protocol
//
// The runtime shell: the only effectful component. It owns the mutable
// ServerState, the WAL and snapshot handles, and the per-signer oracle
// set, and drives apply_server one tick at a time, per §4.5.

package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/certen/bftcore/internal/codec"
	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/entity"
	"github.com/certen/bftcore/internal/obslog"
	"github.com/certen/bftcore/internal/server"
	"github.com/certen/bftcore/internal/snapshot"
	"github.com/certen/bftcore/internal/wal"
)

// OracleSet resolves a locally-hosted signer address to the oracle that
// signs on its behalf. A single-process demo simulates every quorum
// member, so it registers one oracle per signer; a real multi-process
// deployment would register only its own.
type OracleSet interface {
	OracleFor(signer core.Address) (Oracle, bool)
	// Any returns an arbitrary hosted oracle, used to verify a COMMIT's
	// aggregate signature: every oracle in a single-process fleet shares
	// one Registry, so any one of them can verify any signer's hanko.
	Any() (Oracle, bool)
}

// Oracle is the subset of blsoracle.Oracle the runtime needs to fulfill
// outbox placeholders and verify COMMIT hankos.
type Oracle interface {
	Sign(msg core.Hash) (core.Signature, error)
	Aggregate(sigs []core.Signature) (core.Signature, error)
	VerifyAggregate(signers []core.Address, msg core.Hash, hanko core.Signature) (bool, error)
}

// Config bundles the runtime's own knobs, independent of server.Config.
type Config struct {
	Server               server.Config
	SnapshotEveryNFrames uint64
}

// Runtime drives ticks against one ServerState, persisting every step to
// the WAL before advancing and periodically to a snapshot.
type Runtime struct {
	mu sync.Mutex

	state   core.ServerState
	exec    entity.Executor
	oracles OracleSet
	wal     *wal.WAL
	snaps   *snapshot.Store
	log     obslog.Logger
	cfg     Config

	framesSinceSnapshot uint64
	lastTimestamp       int64
}

// New builds a Runtime starting from initialState (typically the result of
// internal/replay.Run).
func New(initialState core.ServerState, exec entity.Executor, oracles OracleSet, w *wal.WAL, snaps *snapshot.Store, log obslog.Logger, cfg Config) *Runtime {
	if log == nil {
		log = obslog.Nop()
	}
	return &Runtime{
		state:   initialState,
		exec:    exec,
		oracles: oracles,
		wal:     w,
		snaps:   snaps,
		log:     log,
		cfg:     cfg,
	}
}

// State returns a copy of the runtime's current ServerState.
func (r *Runtime) State() core.ServerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// NextTimestamp returns a millisecond timestamp strictly greater than the
// previous tick's, satisfying the monotonic-ticks requirement even when
// the wall clock hasn't advanced (back-to-back ticks within the same
// millisecond) or has gone backwards (clock adjustment).
func (r *Runtime) NextTimestamp() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := time.Now().UnixMilli()
	if ts <= r.lastTimestamp {
		ts = r.lastTimestamp + 1
	}
	r.lastTimestamp = ts
	return ts
}

// Tick runs one full cycle: WAL-append the input batch, apply_server,
// WAL-append the resulting frame, fulfill signature placeholders in the
// outbox, advance state, and snapshot on schedule. The returned outbox is
// ready to be fed back in as the next tick's batch (a single-process demo
// loop) or handed to a transport.
func (r *Runtime) Tick(batch []core.Envelope, timestamp int64) (core.ServerFrame, []core.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batchBytes, err := codec.EncodeEnvelopeBatch(batch)
	if err != nil {
		return core.ServerFrame{}, nil, fmt.Errorf("runtime: encode input batch: %w", err)
	}
	if _, err := r.wal.Append(wal.KindInputBatch, timestamp, batchBytes); err != nil {
		return core.ServerFrame{}, nil, fmt.Errorf("runtime: append input batch: %w", err)
	}

	verifier, ok := r.oracles.Any()
	if !ok {
		return core.ServerFrame{}, nil, fmt.Errorf("runtime: no oracle available to verify commits")
	}
	next, frame, outbox, err := server.Apply(r.exec, verifier, r.state, batch, timestamp, r.cfg.Server)
	if err != nil {
		return core.ServerFrame{}, nil, fmt.Errorf("runtime: apply_server: %w", err)
	}

	frameBytes, err := codec.EncodeServerFrame(frame)
	if err != nil {
		return core.ServerFrame{}, nil, fmt.Errorf("runtime: encode server frame: %w", err)
	}
	if _, err := r.wal.Append(wal.KindServerFrame, timestamp, frameBytes); err != nil {
		return core.ServerFrame{}, nil, fmt.Errorf("runtime: append server frame: %w", err)
	}

	fulfilled := r.fulfill(next, outbox)

	r.state = next
	r.framesSinceSnapshot++
	if r.cfg.SnapshotEveryNFrames > 0 && r.framesSinceSnapshot >= r.cfg.SnapshotEveryNFrames {
		if err := r.snaps.Save(next.Height, next); err != nil {
			r.log.Error("snapshot save failed", "height", next.Height, "err", err)
		} else {
			r.framesSinceSnapshot = 0
		}
	}

	return frame, fulfilled, nil
}

// fulfill traverses outbox, signing any placeholder SIGN and aggregating
// any placeholder COMMIT hanko, per §4.5 step 5. next is the post-tick
// state: it still holds the proposer's unfulfilled proposal.Sigs, the
// source of truth for which real signature belongs to which signer.
func (r *Runtime) fulfill(next core.ServerState, outbox []core.Envelope) []core.Envelope {
	out := make([]core.Envelope, len(outbox))
	for i, env := range outbox {
		switch env.Cmd.Tag {
		case core.CmdSign:
			out[i] = r.fulfillSign(env)
		case core.CmdCommit:
			out[i] = r.fulfillCommit(next, env)
		default:
			out[i] = env
		}
	}
	return out
}

func (r *Runtime) fulfillSign(env core.Envelope) core.Envelope {
	if env.Cmd.Sign == nil || !env.Cmd.Sign.Signature.IsPlaceholder() {
		return env
	}
	oracle, ok := r.oracles.OracleFor(env.Cmd.Sign.Signer)
	if !ok {
		// Not a locally-hosted signer: leave the placeholder for whatever
		// process does host it to fill in.
		return env
	}
	sig, err := oracle.Sign(env.Cmd.Sign.FrameHash)
	if err != nil {
		r.log.Error("sign failed", "signer", env.Cmd.Sign.Signer, "err", err)
		return env
	}
	payload := *env.Cmd.Sign
	payload.Signature = sig
	env.Cmd.Sign = &payload
	return env
}

func (r *Runtime) fulfillCommit(next core.ServerState, env core.Envelope) core.Envelope {
	if env.Cmd.Commit == nil || !env.Cmd.Commit.Hanko.IsPlaceholder() {
		return env
	}
	addr, ok := core.ParseAddrKey(env.Cmd.Commit.AddrKey)
	if !ok {
		r.log.Error("commit fulfillment: malformed addrKey", "addrKey", env.Cmd.Commit.AddrKey)
		return env
	}
	// COMMIT is sent by the proposer replica, whose open proposal holds the
	// collected SIGN signatures.
	proposerKey := core.ReplicaKey{EntityAddress: addr, Signer: env.From}
	proposerReplica, ok := next.Replicas[proposerKey]
	if !ok || proposerReplica.Proposal == nil {
		r.log.Error("commit fulfillment: no open proposal at proposer", "addrKey", env.Cmd.Commit.AddrKey)
		return env
	}

	oracle, ok := r.oracles.OracleFor(env.From)
	if !ok {
		return env
	}
	sigs := make([]core.Signature, 0, len(env.Cmd.Commit.Signers))
	for _, signer := range env.Cmd.Commit.Signers {
		sig, ok := proposerReplica.Proposal.Sigs[signer]
		if !ok || sig.IsPlaceholder() {
			r.log.Error("commit fulfillment: missing real signature", "signer", signer)
			return env
		}
		sigs = append(sigs, sig)
	}
	hanko, err := oracle.Aggregate(sigs)
	if err != nil {
		r.log.Error("aggregate failed", "addrKey", env.Cmd.Commit.AddrKey, "err", err)
		return env
	}
	payload := *env.Cmd.Commit
	payload.Hanko = hanko
	env.Cmd.Commit = &payload
	return env
}

// hostedMembers reads quorum membership off any replica hosted for addr;
// membership never mutates once imported, so any one copy is authoritative.
func hostedMembers(state core.ServerState, addr core.EntityAddress) []core.Address {
	for rk, r := range state.Replicas {
		if rk.EntityAddress != addr {
			continue
		}
		return r.Last.State.Quorum.SortedMembers()
	}
	return nil
}
