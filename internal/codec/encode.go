// Copyright 2025 Certen Protocol
//
// Canonical byte-exact encoding of every persisted and hashed value, built
// directly on go-ethereum's RLP implementation: unsigned integers are
// big-endian with stripped leading zero bytes (zero -> empty string),
// strings and opaque payloads are raw bytes, and lists are length-prefixed
// recursive sequences. This is exactly the "RLP-style list prefix" the
// canonical codec specification calls for.

package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/certen/bftcore/internal/core"
)

// EncodeTransaction returns the canonical bytes of a single transaction.
func EncodeTransaction(tx core.Transaction) ([]byte, error) {
	w, err := toWireTx(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return rlp.EncodeToBytes(w)
}

// DecodeTransaction is the inverse of EncodeTransaction.
func DecodeTransaction(b []byte) (core.Transaction, error) {
	var w wireTransaction
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return core.Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return fromWireTx(w), nil
}

// EncodeFrame returns the canonical bytes of a full frame, including the
// post-state.
func EncodeFrame(f core.Frame) ([]byte, error) {
	w, err := toWireFrame(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return rlp.EncodeToBytes(w)
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(b []byte) (core.Frame, error) {
	var w wireFrame
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return core.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return fromWireFrame(w), nil
}

// EncodeQuorum returns the canonical bytes of a quorum.
func EncodeQuorum(q core.Quorum) ([]byte, error) {
	return rlp.EncodeToBytes(toWireQuorum(q))
}

// DecodeQuorum is the inverse of EncodeQuorum.
func DecodeQuorum(b []byte) (core.Quorum, error) {
	var w wireQuorum
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return core.Quorum{}, fmt.Errorf("decode quorum: %w", err)
	}
	return fromWireQuorum(w), nil
}

// EncodeEntityState returns the canonical bytes of an entity state.
func EncodeEntityState(s core.EntityState) ([]byte, error) {
	w, err := toWireEntityState(s)
	if err != nil {
		return nil, fmt.Errorf("encode entity state: %w", err)
	}
	return rlp.EncodeToBytes(w)
}

// DecodeEntityState is the inverse of EncodeEntityState.
func DecodeEntityState(b []byte) (core.EntityState, error) {
	var w wireEntityState
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return core.EntityState{}, fmt.Errorf("decode entity state: %w", err)
	}
	return fromWireEntityState(w), nil
}

// EncodeProposedFrame returns the canonical bytes of a proposed frame,
// including the signature map flattened to sorted (signer, sig) pairs.
func EncodeProposedFrame(p core.ProposedFrame) ([]byte, error) {
	w, err := toWireProposedFrame(p)
	if err != nil {
		return nil, fmt.Errorf("encode proposed frame: %w", err)
	}
	return rlp.EncodeToBytes(w)
}

func encodeCommandPayload(cmd core.Command) (string, []byte, error) {
	switch cmd.Tag {
	case core.CmdImport:
		if cmd.Import == nil {
			return "", nil, fmt.Errorf("IMPORT command missing payload")
		}
		w, err := toWireImport(*cmd.Import)
		if err != nil {
			return "", nil, fmt.Errorf("encode IMPORT command: %w", err)
		}
		b, err := rlp.EncodeToBytes(w)
		return string(core.CmdImport), b, err
	case core.CmdAddTx:
		if cmd.AddTx == nil {
			return "", nil, fmt.Errorf("ADD_TX command missing payload")
		}
		w, err := toWireAddTx(*cmd.AddTx)
		if err != nil {
			return "", nil, fmt.Errorf("encode ADD_TX command: %w", err)
		}
		b, err := rlp.EncodeToBytes(w)
		return string(core.CmdAddTx), b, err
	case core.CmdPropose:
		if cmd.Propose == nil {
			return "", nil, fmt.Errorf("PROPOSE command missing payload")
		}
		b, err := rlp.EncodeToBytes(*cmd.Propose)
		return string(core.CmdPropose), b, err
	case core.CmdSign:
		if cmd.Sign == nil {
			return "", nil, fmt.Errorf("SIGN command missing payload")
		}
		b, err := rlp.EncodeToBytes(*cmd.Sign)
		return string(core.CmdSign), b, err
	case core.CmdCommit:
		if cmd.Commit == nil {
			return "", nil, fmt.Errorf("COMMIT command missing payload")
		}
		w, err := toWireCommit(*cmd.Commit)
		if err != nil {
			return "", nil, fmt.Errorf("encode COMMIT command: %w", err)
		}
		b, err := rlp.EncodeToBytes(w)
		return string(core.CmdCommit), b, err
	default:
		return "", nil, fmt.Errorf("unknown command tag %q", cmd.Tag)
	}
}

func decodeCommandPayload(tag string, body []byte) (core.Command, error) {
	switch core.CommandTag(tag) {
	case core.CmdImport:
		var w wireImportPayload
		if err := rlp.DecodeBytes(body, &w); err != nil {
			return core.Command{}, err
		}
		p := fromWireImport(w)
		return core.Command{Tag: core.CmdImport, Import: &p}, nil
	case core.CmdAddTx:
		var w wireAddTxPayload
		if err := rlp.DecodeBytes(body, &w); err != nil {
			return core.Command{}, err
		}
		p := fromWireAddTx(w)
		return core.Command{Tag: core.CmdAddTx, AddTx: &p}, nil
	case core.CmdPropose:
		var p core.ProposePayload
		if err := rlp.DecodeBytes(body, &p); err != nil {
			return core.Command{}, err
		}
		return core.Command{Tag: core.CmdPropose, Propose: &p}, nil
	case core.CmdSign:
		var p core.SignPayload
		if err := rlp.DecodeBytes(body, &p); err != nil {
			return core.Command{}, err
		}
		return core.Command{Tag: core.CmdSign, Sign: &p}, nil
	case core.CmdCommit:
		var w wireCommitPayload
		if err := rlp.DecodeBytes(body, &w); err != nil {
			return core.Command{}, err
		}
		p := fromWireCommit(w)
		return core.Command{Tag: core.CmdCommit, Commit: &p}, nil
	default:
		return core.Command{}, fmt.Errorf("unknown command tag %q", tag)
	}
}

// EncodeEnvelope returns the canonical bytes of a wire envelope. Commands
// are tagged unions with the tag as the first encoded field, per §6.
func EncodeEnvelope(e core.Envelope) ([]byte, error) {
	tag, body, err := encodeCommandPayload(e.Cmd)
	if err != nil {
		return nil, fmt.Errorf("encode envelope command: %w", err)
	}
	return rlp.EncodeToBytes(wireEnvelope{From: e.From, To: e.To, CmdTag: tag, CmdBody: body})
}

// DecodeEnvelope is the inverse of EncodeEnvelope.
func DecodeEnvelope(b []byte) (core.Envelope, error) {
	var w wireEnvelope
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return core.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	cmd, err := decodeCommandPayload(w.CmdTag, w.CmdBody)
	if err != nil {
		return core.Envelope{}, fmt.Errorf("decode envelope command: %w", err)
	}
	return core.Envelope{From: w.From, To: w.To, Cmd: cmd}, nil
}

// EncodeServerFrame returns the canonical bytes of a server frame.
func EncodeServerFrame(f core.ServerFrame) ([]byte, error) {
	return rlp.EncodeToBytes(toWireServerFrame(f))
}

// DecodeServerFrame is the inverse of EncodeServerFrame.
func DecodeServerFrame(b []byte) (core.ServerFrame, error) {
	var w wireServerFrame
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return core.ServerFrame{}, fmt.Errorf("decode server frame: %w", err)
	}
	return fromWireServerFrame(w)
}

// EncodeEnvelopeBatch returns the canonical bytes of an ordered envelope
// batch, the WAL's INPUT_BATCH payload shape.
func EncodeEnvelopeBatch(envs []core.Envelope) ([]byte, error) {
	return rlp.EncodeToBytes(toWireEnvelopeBatch(envs))
}

// DecodeEnvelopeBatch is the inverse of EncodeEnvelopeBatch.
func DecodeEnvelopeBatch(b []byte) ([]core.Envelope, error) {
	var w wireEnvelopeBatch
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return nil, fmt.Errorf("decode envelope batch: %w", err)
	}
	return fromWireEnvelopeBatch(w)
}

// EncodeServerState returns the canonical bytes of a full server state,
// for snapshotting. Replica entries are sorted by replica key so the
// encoding is deterministic regardless of map iteration order.
func EncodeServerState(s core.ServerState) ([]byte, error) {
	w, err := toWireServerState(s)
	if err != nil {
		return nil, fmt.Errorf("encode server state: %w", err)
	}
	return rlp.EncodeToBytes(w)
}

// DecodeServerState is the inverse of EncodeServerState.
func DecodeServerState(b []byte) (core.ServerState, error) {
	var w wireServerState
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return core.ServerState{}, fmt.Errorf("decode server state: %w", err)
	}
	return fromWireServerState(w), nil
}
