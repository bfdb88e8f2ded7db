// Copyright 2025 Certen Protocol
//
// Binary Merkle tree over keccak256 leaves, used by the server reducer to
// fold every hosted replica's state root into one server_root value.

package merkle

import (
	"errors"
	"sync"

	"github.com/certen/bftcore/internal/core"
)

var ErrEmptyTree = errors.New("merkle: cannot build tree from empty leaves")

// Tree is a binary Merkle tree with duplicate-last-node padding at odd
// levels. Safe for concurrent reads once built.
type Tree struct {
	mu     sync.RWMutex
	leaves []core.Hash
	levels [][]core.Hash
	root   core.Hash
}

// BuildTree constructs a tree from leaves, in the given order.
func BuildTree(leaves []core.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	t := &Tree{leaves: append([]core.Hash(nil), leaves...)}
	t.build()
	return t, nil
}

func (t *Tree) build() {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := append([]core.Hash(nil), t.leaves...)
	t.levels = [][]core.Hash{current}

	for len(current) > 1 {
		next := make([]core.Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, core.Keccak256(current[i].Bytes(), current[i+1].Bytes()))
			} else {
				next = append(next, core.Keccak256(current[i].Bytes(), current[i].Bytes()))
			}
		}
		t.levels = append(t.levels, next)
		current = next
	}
	t.root = current[0]
}

// Root returns the tree's root hash.
func (t *Tree) Root() core.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.leaves)
}

// Root is a convenience one-shot form of BuildTree(leaves).Root() for
// callers that only need the root value.
func Root(leaves []core.Hash) core.Hash {
	if len(leaves) == 0 {
		return core.Hash{}
	}
	if len(leaves) == 1 {
		return leaves[0]
	}
	t, err := BuildTree(leaves)
	if err != nil {
		return core.Hash{}
	}
	return t.Root()
}
