// Copyright 2025 Certen Protocol

package entity

import (
	"bytes"
	"sort"

	"github.com/certen/bftcore/internal/core"
)

// orderedMempool returns a copy of txs ordered by (nonce asc, from asc as
// canonical bytes, kind asc as bytes, insertion index) — a stable sort
// keyed on the first three fields, falling back to arrival order.
func orderedMempool(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Nonce != b.Nonce {
			return a.Nonce < b.Nonce
		}
		if cmp := bytes.Compare(a.From.Bytes(), b.From.Bytes()); cmp != 0 {
			return cmp < 0
		}
		return bytes.Compare([]byte(a.Kind), []byte(b.Kind)) < 0
	})
	return out
}
