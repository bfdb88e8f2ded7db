// Copyright 2025 Certen Protocol
//
// Oracle is the signing/verification boundary the entity and server
// reducers call through. The reducers themselves never touch curve points:
// they pass around core.Signature (a flat 96-byte array) and core.Address
// (the keccak160 of a public key), and the oracle resolves addresses to
// public keys via its Registry.

package blsoracle

import (
	"errors"
	"fmt"

	"github.com/certen/bftcore/internal/core"
)

// ErrUnknownSigner is returned when an address has no registered public key.
var ErrUnknownSigner = errors.New("blsoracle: unknown signer address")

// ErrPlaceholderHanko is returned by any verification path that is handed
// the all-zero placeholder signature: a placeholder stands for "unsigned"
// and must never be treated as a real (or real aggregate) signature.
var ErrPlaceholderHanko = errors.New("blsoracle: placeholder signature is not verifiable")

// Registry resolves a signer address to its BLS public key.
type Registry struct {
	byAddress map[core.Address]*PublicKey
}

func NewRegistry() *Registry {
	return &Registry{byAddress: make(map[core.Address]*PublicKey)}
}

// Register associates addr with pub. addr is expected to equal
// core.AddressFromPublicKey(pub.Bytes()), but this is not enforced here so
// that test fixtures can register arbitrary bindings.
func (r *Registry) Register(addr core.Address, pub *PublicKey) {
	r.byAddress[addr] = pub
}

func (r *Registry) Lookup(addr core.Address) (*PublicKey, bool) {
	pk, ok := r.byAddress[addr]
	return pk, ok
}

// Oracle is the signing/verification contract the reducers depend on.
type Oracle interface {
	// Address is this oracle's own signer identity.
	Address() core.Address
	// Sign produces this signer's signature over msg.
	Sign(msg core.Hash) (core.Signature, error)
	// Verify checks sig as signer's signature over msg.
	Verify(signer core.Address, msg core.Hash, sig core.Signature) (bool, error)
	// Aggregate folds individual signatures into a hanko.
	Aggregate(sigs []core.Signature) (core.Signature, error)
	// VerifyAggregate checks hanko as the aggregate signature of exactly the
	// given signers over msg.
	VerifyAggregate(signers []core.Address, msg core.Hash, hanko core.Signature) (bool, error)
}

// LocalOracle signs with one in-process private key and verifies against a
// shared Registry populated at genesis.
type LocalOracle struct {
	self     core.Address
	key      *KeyManager
	registry *Registry
}

// NewLocalOracle builds an oracle for self, signing with key and verifying
// against registry.
func NewLocalOracle(self core.Address, key *KeyManager, registry *Registry) *LocalOracle {
	return &LocalOracle{self: self, key: key, registry: registry}
}

func (o *LocalOracle) Address() core.Address { return o.self }

func (o *LocalOracle) Sign(msg core.Hash) (core.Signature, error) {
	if o.key.PrivateKey() == nil {
		return core.Signature{}, fmt.Errorf("blsoracle: no private key loaded for %s", o.self)
	}
	sig := o.key.PrivateKey().SignWithDomain(msg.Bytes(), DomainFrame)
	return toCoreSignature(sig), nil
}

func (o *LocalOracle) Verify(signer core.Address, msg core.Hash, sig core.Signature) (bool, error) {
	if sig.IsPlaceholder() {
		return false, ErrPlaceholderHanko
	}
	pub, ok := o.registry.Lookup(signer)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownSigner, signer)
	}
	bsig, err := SignatureFromBytes(sig.Bytes())
	if err != nil {
		return false, fmt.Errorf("blsoracle: malformed signature: %w", err)
	}
	return pub.VerifyWithDomain(bsig, msg.Bytes(), DomainFrame), nil
}

func (o *LocalOracle) Aggregate(sigs []core.Signature) (core.Signature, error) {
	if len(sigs) == 0 {
		return core.Signature{}, fmt.Errorf("blsoracle: cannot aggregate zero signatures")
	}
	parsed := make([]*Signature, len(sigs))
	for i, s := range sigs {
		if s.IsPlaceholder() {
			return core.Signature{}, ErrPlaceholderHanko
		}
		bs, err := SignatureFromBytes(s.Bytes())
		if err != nil {
			return core.Signature{}, fmt.Errorf("blsoracle: malformed signature at index %d: %w", i, err)
		}
		parsed[i] = bs
	}
	agg, err := AggregateSignatures(parsed)
	if err != nil {
		return core.Signature{}, err
	}
	return toCoreSignature(agg), nil
}

func (o *LocalOracle) VerifyAggregate(signers []core.Address, msg core.Hash, hanko core.Signature) (bool, error) {
	if hanko.IsPlaceholder() {
		return false, ErrPlaceholderHanko
	}
	pubs := make([]*PublicKey, len(signers))
	for i, a := range signers {
		pub, ok := o.registry.Lookup(a)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownSigner, a)
		}
		pubs[i] = pub
	}
	bhanko, err := SignatureFromBytes(hanko.Bytes())
	if err != nil {
		return false, fmt.Errorf("blsoracle: malformed hanko: %w", err)
	}
	return VerifyAggregateSignatureWithDomain(bhanko, pubs, msg.Bytes(), DomainFrame), nil
}

func toCoreSignature(s *Signature) core.Signature {
	var out core.Signature
	copy(out[:], s.Bytes())
	return out
}
