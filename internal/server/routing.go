// Copyright 2025 Certen Protocol
//
// Envelope-to-replica routing: compose the addrKey carried in a command
// with the relevant signer (to for ADD_TX/SIGN/COMMIT, from for PROPOSE),
// falling back to any replica sharing the addrKey when the precise key is
// absent.

package server

import (
	"sort"

	"github.com/certen/bftcore/internal/core"
)

// addrKeyOf extracts the addrKey a command's payload carries. IMPORT
// carries none; it is routed separately.
func addrKeyOf(cmd core.Command) (string, bool) {
	switch cmd.Tag {
	case core.CmdAddTx:
		if cmd.AddTx == nil {
			return "", false
		}
		return cmd.AddTx.AddrKey, true
	case core.CmdPropose:
		if cmd.Propose == nil {
			return "", false
		}
		return cmd.Propose.AddrKey, true
	case core.CmdSign:
		if cmd.Sign == nil {
			return "", false
		}
		return cmd.Sign.AddrKey, true
	case core.CmdCommit:
		if cmd.Commit == nil {
			return "", false
		}
		return cmd.Commit.AddrKey, true
	default:
		return "", false
	}
}

// routingKey computes the signer part of the routing key per §4.4: the
// recipient for ADD_TX/SIGN/COMMIT, the sender for PROPOSE (the sender IS
// the proposer).
func routingSigner(env core.Envelope) core.Address {
	if env.Cmd.Tag == core.CmdPropose {
		return env.From
	}
	return env.To
}

// resolveReplica finds the hosted replica an envelope routes to, applying
// the fallback rule when the precise (addrKey, signer) key is absent: any
// replica matching addrKey, redirected through its recorded proposer.
func resolveReplica(state core.ServerState, env core.Envelope) (core.ReplicaKey, bool) {
	addrKey, ok := addrKeyOf(env.Cmd)
	if !ok {
		return core.ReplicaKey{}, false
	}
	addr, ok := core.ParseAddrKey(addrKey)
	if !ok {
		return core.ReplicaKey{}, false
	}
	signer := routingSigner(env)
	key := core.ReplicaKey{EntityAddress: addr, Signer: signer}
	if _, ok := state.Replicas[key]; ok {
		return key, true
	}
	for rk, r := range state.Replicas {
		if rk.EntityAddress == addr {
			fallback := core.ReplicaKey{EntityAddress: addr, Signer: r.Proposer}
			if _, ok := state.Replicas[fallback]; ok {
				return fallback, true
			}
		}
	}
	return core.ReplicaKey{}, false
}

// entityAddresses returns the distinct entity addresses currently hosted,
// sorted by addr key so PROPOSE injection order is deterministic across
// hosts regardless of map iteration order.
func entityAddresses(state core.ServerState) []core.EntityAddress {
	seen := make(map[core.EntityAddress]struct{})
	var out []core.EntityAddress
	for rk := range state.Replicas {
		if _, ok := seen[rk.EntityAddress]; ok {
			continue
		}
		seen[rk.EntityAddress] = struct{}{}
		out = append(out, rk.EntityAddress)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddrKey() < out[j].AddrKey() })
	return out
}

// quorumMembersOf returns the member set for an entity, read off any one
// of its hosted replicas (membership is shared across every per-signer
// copy of the same entity).
func quorumMembersOf(state core.ServerState, addr core.EntityAddress) []core.Address {
	for rk, r := range state.Replicas {
		if rk.EntityAddress == addr {
			return r.Last.State.Quorum.SortedMembers()
		}
	}
	return nil
}
