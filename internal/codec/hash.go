// Copyright 2025 Certen Protocol
//
// Derived-hash formulas over the canonical encoding: frame_hash, quorum
// commitments, the per-replica state_root (a plain hash of the encoded
// state) and the Merkle server_root over those.

package codec

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/merkle"
)

// FrameHash returns H(encode(header(frame), frame.txs)): the hash a signer
// signs and a proposal is keyed by. It deliberately excludes the post-state
// so that signers can sign before re-executing.
func FrameHash(f core.Frame) (core.Hash, error) {
	w, err := toWireFrameHeaderAndTxs(f)
	if err != nil {
		return core.Hash{}, fmt.Errorf("frame hash: %w", err)
	}
	b, err := rlp.EncodeToBytes(w)
	if err != nil {
		return core.Hash{}, fmt.Errorf("frame hash: %w", err)
	}
	return core.Keccak256(b), nil
}

// QuorumHash returns H(encode(quorum)), a commitment to the member map and
// threshold. No code in this module calls it.
func QuorumHash(q core.Quorum) (core.Hash, error) {
	b, err := EncodeQuorum(q)
	if err != nil {
		return core.Hash{}, fmt.Errorf("quorum hash: %w", err)
	}
	return core.Keccak256(b), nil
}

// StateRoot returns H(encode(state)): the per-replica state commitment
// folded into a server's tick root.
func StateRoot(s core.EntityState) (core.Hash, error) {
	b, err := EncodeEntityState(s)
	if err != nil {
		return core.Hash{}, fmt.Errorf("state root: %w", err)
	}
	return core.Keccak256(b), nil
}

// ServerFrameHash returns H(encode(frame with hash=placeholder)): the
// self-referential hash a ServerFrame is sealed with. The frame's Hash field
// is zeroed here before encoding, whatever the caller passes.
func ServerFrameHash(f core.ServerFrame) (core.Hash, error) {
	f.Hash = core.Hash{}
	b, err := EncodeServerFrame(f)
	if err != nil {
		return core.Hash{}, fmt.Errorf("server frame hash: %w", err)
	}
	return core.Keccak256(b), nil
}

// ServerRoot commits to every hosted replica's post-tick state in one hash,
// by building a binary Merkle tree over the per-ReplicaKey state roots
// sorted by the replica key's string form, then returning the tree's root
// hash. An empty replica set roots to the zero hash.
func ServerRoot(roots map[string]core.Hash) core.Hash {
	if len(roots) == 0 {
		return core.Hash{}
	}
	keys := make([]string, 0, len(roots))
	for k := range roots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	leaves := make([]core.Hash, len(keys))
	for i, k := range keys {
		leaves[i] = roots[k]
	}
	return merkle.Root(leaves)
}
