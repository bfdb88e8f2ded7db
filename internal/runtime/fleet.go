// Copyright 2025 Certen Protocol
//
// Fleet is an in-process OracleSet simulating every quorum member's
// signing identity in one runtime, the shape a single-node demo needs
// (and the shape internal/replay's and internal/server's tests already
// assume: one process sees every signer).

package runtime

import (
	"github.com/certen/bftcore/internal/blsoracle"
	"github.com/certen/bftcore/internal/core"
)

// Fleet holds one blsoracle.LocalOracle per locally-simulated signer,
// sharing a single Registry so each oracle can verify every other's
// signatures too.
type Fleet struct {
	registry *blsoracle.Registry
	oracles  map[core.Address]*blsoracle.LocalOracle
}

// NewFleet derives one deterministic BLS key pair per signerID (stable
// across restarts without key files, via KeyManager.GenerateFromSignerID)
// and registers every public key so any member can verify any other's
// signature or aggregate.
func NewFleet(domainTag string, signerIDs []string) (*Fleet, map[string]core.Address, error) {
	registry := blsoracle.NewRegistry()
	managers := make(map[string]*blsoracle.KeyManager, len(signerIDs))
	addrs := make(map[string]core.Address, len(signerIDs))

	for _, id := range signerIDs {
		km := blsoracle.NewKeyManager("")
		if err := km.GenerateFromSignerID(id, domainTag); err != nil {
			return nil, nil, err
		}
		addr := core.AddressFromPublicKey(km.PublicKeyBytes())
		registry.Register(addr, km.PublicKey())
		managers[id] = km
		addrs[id] = addr
	}

	oracles := make(map[core.Address]*blsoracle.LocalOracle, len(signerIDs))
	for id, km := range managers {
		addr := addrs[id]
		oracles[addr] = blsoracle.NewLocalOracle(addr, km, registry)
	}
	return &Fleet{registry: registry, oracles: oracles}, addrs, nil
}

// OracleFor implements OracleSet.
func (f *Fleet) OracleFor(signer core.Address) (Oracle, bool) {
	o, ok := f.oracles[signer]
	return o, ok
}

// Any implements OracleSet, returning an arbitrary hosted oracle. Which one
// is irrelevant: every oracle in the fleet shares registry, so any can
// verify any signer's aggregate signature.
func (f *Fleet) Any() (Oracle, bool) {
	for _, o := range f.oracles {
		return o, true
	}
	return nil, false
}
