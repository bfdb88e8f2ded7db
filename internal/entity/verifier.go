// Copyright 2025 Certen Protocol
//
// Verifier is the COMMIT-path counterpart to Executor: the one piece of
// cryptography the otherwise-pure entity reducer calls. Checking an
// aggregate signature is a deterministic function of its inputs (no clock,
// no private key), so depending on it does not break Apply's purity
// contract the way signing or a wall-clock read would.

package entity

import "github.com/certen/bftcore/internal/core"

// Verifier checks a COMMIT's hanko: the aggregate signature of exactly the
// given (distinct) signers over msg. Any blsoracle.Oracle satisfies this
// since VerifyAggregate only reads its shared Registry.
type Verifier interface {
	VerifyAggregate(signers []core.Address, msg core.Hash, hanko core.Signature) (bool, error)
}
