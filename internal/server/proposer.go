// Copyright 2025 Certen Protocol
//
// Deterministic proposer rotation and the height-scaled proposal timeout.

package server

import (
	"math"

	"github.com/certen/bftcore/internal/core"
)

// TimeoutConfig parameterizes the proposal timeout formula. Zero-value
// fields fall back to DefaultTimeoutConfig via WithDefaults.
type TimeoutConfig struct {
	BaseMS        int64
	Multiplier    float64
	RotationEpoch uint64
	CapMS         int64
}

// DefaultTimeoutConfig matches the reference defaults.
var DefaultTimeoutConfig = TimeoutConfig{
	BaseMS:        5000,
	Multiplier:    1.5,
	RotationEpoch: 1000,
	CapMS:         60000,
}

// WithDefaults fills any zero field from DefaultTimeoutConfig.
func (c TimeoutConfig) WithDefaults() TimeoutConfig {
	out := c
	if out.BaseMS == 0 {
		out.BaseMS = DefaultTimeoutConfig.BaseMS
	}
	if out.Multiplier == 0 {
		out.Multiplier = DefaultTimeoutConfig.Multiplier
	}
	if out.RotationEpoch == 0 {
		out.RotationEpoch = DefaultTimeoutConfig.RotationEpoch
	}
	if out.CapMS == 0 {
		out.CapMS = DefaultTimeoutConfig.CapMS
	}
	return out
}

// ProposerFor returns sorted(members)[height mod |members|], lexicographic
// over canonical address bytes. An empty member set returns the zero
// address, a deliberately unusable sentinel.
func ProposerFor(height uint64, members []core.Address) core.Address {
	if len(members) == 0 {
		return core.Address{}
	}
	sorted := append([]core.Address(nil), members...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Less(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[height%uint64(len(sorted))]
}

// ProposalTimeoutMS returns min(base * multiplier^(height / rotation_epoch), cap)
// in milliseconds.
func ProposalTimeoutMS(height uint64, cfg TimeoutConfig) int64 {
	cfg = cfg.WithDefaults()
	exp := float64(height / cfg.RotationEpoch)
	scaled := float64(cfg.BaseMS) * math.Pow(cfg.Multiplier, exp)
	if scaled > float64(cfg.CapMS) {
		return cfg.CapMS
	}
	return int64(scaled)
}
