// Copyright 2025 Certen Protocol
//
// Error taxonomy for the entity reducer. Every rejection is a sentinel or a
// wrapped sentinel so the runtime can dispatch on error kind without string
// matching.

package entity

import "errors"

var (
	// ErrUnknownTxKind: a transaction's kind is not recognized by the
	// domain executor during PROPOSE.
	ErrUnknownTxKind = errors.New("entity: unknown transaction kind")
	// ErrSignerNotInQuorum: a transaction's from address is not a quorum
	// member.
	ErrSignerNotInQuorum = errors.New("entity: signer not in quorum")
	// ErrBadNonce: a transaction's nonce does not match the signer's
	// recorded nonce at proposal time.
	ErrBadNonce = errors.New("entity: bad nonce")
	// ErrFrameBuildFailed wraps any of the above during PROPOSE.
	ErrFrameBuildFailed = errors.New("entity: frame build failed")
	// ErrHeightMismatch: a COMMIT frame does not extend the replica's last
	// committed height by exactly one.
	ErrHeightMismatch = errors.New("entity: height mismatch")
	// ErrStateHashMismatch: re-execution of a COMMIT's frame does not
	// reproduce its claimed hash.
	ErrStateHashMismatch = errors.New("entity: state hash mismatch")
	// ErrInsufficientSigningPower: distinct COMMIT signers do not meet the
	// quorum threshold.
	ErrInsufficientSigningPower = errors.New("entity: insufficient signing power")
	// ErrInvalidAggregateSignature: the COMMIT hanko fails batch
	// verification against the claimed signers.
	ErrInvalidAggregateSignature = errors.New("entity: invalid aggregate signature")
)
