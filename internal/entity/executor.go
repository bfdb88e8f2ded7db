// Copyright 2025 Certen Protocol
//
// Executor is the domain-specific hook the entity reducer calls during
// PROPOSE to fold one transaction's body into the opaque domain state. The
// core never interprets tx.Body itself.

package entity

import "github.com/certen/bftcore/internal/core"

// Executor applies one transaction's body to domain state and returns the
// updated domain state, or ErrUnknownTxKind if it does not recognize
// tx.Kind.
type Executor interface {
	Apply(domain core.Payload, tx core.Transaction) (core.Payload, error)
}

// ExecutorFunc adapts a function to an Executor.
type ExecutorFunc func(domain core.Payload, tx core.Transaction) (core.Payload, error)

func (f ExecutorFunc) Apply(domain core.Payload, tx core.Transaction) (core.Payload, error) {
	return f(domain, tx)
}
