// Copyright 2025 Certen Protocol
//
// Replicated data model: quorum membership, transactions, frames and the
// routing identifiers that tie a replica to its entity and signer.

package core

import "encoding/json"

// Payload is an opaque, application-defined byte string. The codec passes it
// through codec.CanonicalizeJSON when encoding, so it is hashed and signed
// in canonical form whatever its original whitespace and key order.
type Payload = json.RawMessage

// SignerRecord is one quorum member's voting weight and replay counter.
type SignerRecord struct {
	Nonce  uint64
	Shares uint64
}

// Quorum is a weighted, threshold-gated member set. Membership is not
// mutated by the core in this specification.
type Quorum struct {
	Threshold uint64
	Members   map[Address]SignerRecord
}

// Power returns the combined shares of the given (deduplicated) addresses.
func (q Quorum) Power(signers []Address) uint64 {
	seen := make(map[Address]struct{}, len(signers))
	var total uint64
	for _, a := range signers {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		if rec, ok := q.Members[a]; ok {
			total += rec.Shares
		}
	}
	return total
}

// TotalShares sums the shares of every quorum member.
func (q Quorum) TotalShares() uint64 {
	var total uint64
	for _, rec := range q.Members {
		total += rec.Shares
	}
	return total
}

// SortedMembers returns member addresses in canonical (lexicographic byte)
// order.
func (q Quorum) SortedMembers() []Address {
	out := make([]Address, 0, len(q.Members))
	for a := range q.Members {
		out = append(out, a)
	}
	sortAddresses(out)
	return out
}

func sortAddresses(addrs []Address) {
	for i := 1; i < len(addrs); i++ {
		for j := i; j > 0 && addrs[j].Less(addrs[j-1]); j-- {
			addrs[j], addrs[j-1] = addrs[j-1], addrs[j]
		}
	}
}

// Transaction is a single deterministic state transition request.
type Transaction struct {
	Kind  string
	Nonce uint64
	From  Address
	Body  Payload
	Sig   Signature
}

// Frame is the post-state after applying Txs to the previous frame's state.
type Frame struct {
	Height    uint64
	Timestamp int64 // unix millis
	ParentHash Hash
	Proposer  Address
	Txs       []Transaction
	State     EntityState
}

// ProposedFrame is a frame-in-flight, identified by the canonical hash of
// its header+txs, collecting per-signer approvals.
type ProposedFrame struct {
	Frame Frame
	Hash  Hash
	Sigs  map[Address]Signature
}

// EntityState is the quorum plus an application-owned opaque domain blob.
type EntityState struct {
	Quorum Quorum
	Domain Payload
}

// EntityAddress identifies an entity by jurisdiction and entity id.
type EntityAddress struct {
	Jurisdiction string
	EntityID     string
}

func (e EntityAddress) AddrKey() string {
	return e.Jurisdiction + ":" + e.EntityID
}

// ParseAddrKey splits a "jurisdiction:entityId" key back into its parts.
// Jurisdictions never contain ':', so only the first separator matters.
func ParseAddrKey(key string) (EntityAddress, bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return EntityAddress{Jurisdiction: key[:i], EntityID: key[i+1:]}, true
		}
	}
	return EntityAddress{}, false
}

// ReplicaKey uniquely identifies one signer's view of one entity.
type ReplicaKey struct {
	EntityAddress
	Signer Address
}

func (k ReplicaKey) String() string {
	return k.Jurisdiction + ":" + k.EntityID + ":" + k.Signer.String()
}

// Replica is one signer's view of one entity.
type Replica struct {
	Address      EntityAddress
	Proposer     Address
	AwaitingSigs bool
	Mempool      []Transaction
	Last         Frame
	Proposal     *ProposedFrame
	ProposedAt   int64 // unix millis the current Proposal was created; 0 if no proposal
}

// Clone returns a deep, independent copy of the replica so reducer outputs
// never alias the input.
func (r Replica) Clone() Replica {
	out := r
	out.Mempool = append([]Transaction(nil), r.Mempool...)
	out.Last.Txs = append([]Transaction(nil), r.Last.Txs...)
	out.Last.State.Quorum.Members = cloneMembers(r.Last.State.Quorum.Members)
	if r.Proposal != nil {
		p := *r.Proposal
		p.Frame.Txs = append([]Transaction(nil), r.Proposal.Frame.Txs...)
		p.Frame.State.Quorum.Members = cloneMembers(r.Proposal.Frame.State.Quorum.Members)
		p.Sigs = make(map[Address]Signature, len(r.Proposal.Sigs))
		for k, v := range r.Proposal.Sigs {
			p.Sigs[k] = v
		}
		out.Proposal = &p
	}
	return out
}

func cloneMembers(m map[Address]SignerRecord) map[Address]SignerRecord {
	out := make(map[Address]SignerRecord, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ServerState is the routing layer's view of every replica it hosts.
type ServerState struct {
	Height   uint64
	Replicas map[ReplicaKey]Replica
	LastHash Hash
}

// Clone returns a deep copy of the server state.
func (s ServerState) Clone() ServerState {
	out := ServerState{Height: s.Height, LastHash: s.LastHash}
	out.Replicas = make(map[ReplicaKey]Replica, len(s.Replicas))
	for k, v := range s.Replicas {
		out.Replicas[k] = v.Clone()
	}
	return out
}

// ServerFrame is the tick-level record sealing a batch of routed inputs.
type ServerFrame struct {
	Height    uint64
	Timestamp int64
	Inputs    []Envelope
	Root      Hash
	Parent    Hash
	Hash      Hash
}

// CommandTag is the closed set of routable command variants.
type CommandTag string

const (
	CmdImport  CommandTag = "IMPORT"
	CmdAddTx   CommandTag = "ADD_TX"
	CmdPropose CommandTag = "PROPOSE"
	CmdSign    CommandTag = "SIGN"
	CmdCommit  CommandTag = "COMMIT"
)

// ImportPayload seeds a brand-new entity.
type ImportPayload struct {
	ReplicaSeed ReplicaSeed
}

// ReplicaSeed is the genesis description of an entity, handed to IMPORT.
type ReplicaSeed struct {
	Address EntityAddress
	Quorum  Quorum
	Domain  Payload
}

type AddTxPayload struct {
	AddrKey     string
	Transaction Transaction
}

type ProposePayload struct {
	AddrKey   string
	Timestamp int64
}

type SignPayload struct {
	AddrKey   string
	Signer    Address
	FrameHash Hash
	Signature Signature
}

type CommitPayload struct {
	AddrKey string
	Hanko   Signature
	Frame   Frame
	Signers []Address
}

// Command is a tagged union over the five routable command variants.
// Exactly one of the payload fields is populated, selected by Tag.
type Command struct {
	Tag     CommandTag
	Import  *ImportPayload
	AddTx   *AddTxPayload
	Propose *ProposePayload
	Sign    *SignPayload
	Commit  *CommitPayload
}

// Envelope is the wire-level routing unit.
type Envelope struct {
	From Address
	To   Address
	Cmd  Command
}
