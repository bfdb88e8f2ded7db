// Copyright 2025 Certen Protocol
//
// RLP wire shapes. The domain model (internal/core) uses maps and a tagged
// union that RLP cannot encode directly; this file defines the flattened,
// deterministically-ordered shapes that go-ethereum's rlp package encodes,
// and the conversion functions to and from internal/core.
//
// Mappings are flattened to a slice of (key, value) pairs sorted by the
// key's canonical byte ordering, per the canonical codec's mapping rule.

package codec

import (
	"fmt"
	"sort"

	"github.com/certen/bftcore/internal/core"
)

type wireSignerEntry struct {
	Addr   core.Address
	Nonce  uint64
	Shares uint64
}

type wireQuorum struct {
	Threshold uint64
	Members   []wireSignerEntry
}

func toWireQuorum(q core.Quorum) wireQuorum {
	out := wireQuorum{Threshold: q.Threshold}
	addrs := q.SortedMembers()
	out.Members = make([]wireSignerEntry, 0, len(addrs))
	for _, a := range addrs {
		rec := q.Members[a]
		out.Members = append(out.Members, wireSignerEntry{Addr: a, Nonce: rec.Nonce, Shares: rec.Shares})
	}
	return out
}

func fromWireQuorum(w wireQuorum) core.Quorum {
	q := core.Quorum{Threshold: w.Threshold, Members: make(map[core.Address]core.SignerRecord, len(w.Members))}
	for _, e := range w.Members {
		q.Members[e.Addr] = core.SignerRecord{Nonce: e.Nonce, Shares: e.Shares}
	}
	return q
}

type wireEntityState struct {
	Quorum wireQuorum
	Domain []byte
}

// toWireEntityState canonicalizes Domain before it is encoded or hashed, so
// two semantically-equal payloads that differ only in whitespace or object
// key order produce identical wire bytes.
func toWireEntityState(s core.EntityState) (wireEntityState, error) {
	domain, err := CanonicalizeJSON(s.Domain)
	if err != nil {
		return wireEntityState{}, fmt.Errorf("canonicalize entity domain: %w", err)
	}
	return wireEntityState{Quorum: toWireQuorum(s.Quorum), Domain: domain}, nil
}

func fromWireEntityState(w wireEntityState) core.EntityState {
	return core.EntityState{Quorum: fromWireQuorum(w.Quorum), Domain: core.Payload(w.Domain)}
}

type wireTransaction struct {
	Kind  string
	Nonce uint64
	From  core.Address
	Body  []byte
	Sig   core.Signature
}

// toWireTx canonicalizes Body before it is encoded or hashed, per the same
// rule as toWireEntityState.
func toWireTx(t core.Transaction) (wireTransaction, error) {
	body, err := CanonicalizeJSON(t.Body)
	if err != nil {
		return wireTransaction{}, fmt.Errorf("canonicalize transaction body: %w", err)
	}
	return wireTransaction{Kind: t.Kind, Nonce: t.Nonce, From: t.From, Body: body, Sig: t.Sig}, nil
}

func fromWireTx(w wireTransaction) core.Transaction {
	return core.Transaction{Kind: w.Kind, Nonce: w.Nonce, From: w.From, Body: core.Payload(w.Body), Sig: w.Sig}
}

// wireFrameHeader is the header over which frame_hash is computed, per
// header(frame) = { height, timestamp, parent_hash, proposer }.
type wireFrameHeader struct {
	Height     uint64
	Timestamp  int64
	ParentHash core.Hash
	Proposer   core.Address
}

type wireFrame struct {
	Header wireFrameHeader
	Txs    []wireTransaction
	State  wireEntityState
}

func toWireFrame(f core.Frame) (wireFrame, error) {
	txs := make([]wireTransaction, len(f.Txs))
	for i, t := range f.Txs {
		wt, err := toWireTx(t)
		if err != nil {
			return wireFrame{}, err
		}
		txs[i] = wt
	}
	state, err := toWireEntityState(f.State)
	if err != nil {
		return wireFrame{}, err
	}
	return wireFrame{
		Header: wireFrameHeader{Height: f.Height, Timestamp: f.Timestamp, ParentHash: f.ParentHash, Proposer: f.Proposer},
		Txs:    txs,
		State:  state,
	}, nil
}

func fromWireFrame(w wireFrame) core.Frame {
	txs := make([]core.Transaction, len(w.Txs))
	for i, t := range w.Txs {
		txs[i] = fromWireTx(t)
	}
	return core.Frame{
		Height:     w.Header.Height,
		Timestamp:  w.Header.Timestamp,
		ParentHash: w.Header.ParentHash,
		Proposer:   w.Header.Proposer,
		Txs:        txs,
		State:      fromWireEntityState(w.State),
	}
}

// wireFrameHeaderAndTxs is the exact structure hashed by frame_hash: the header
// plus the ordered tx list, excluding the post-state.
type wireFrameHeaderAndTxs struct {
	Header wireFrameHeader
	Txs    []wireTransaction
}

func toWireFrameHeaderAndTxs(f core.Frame) (wireFrameHeaderAndTxs, error) {
	wf, err := toWireFrame(f)
	if err != nil {
		return wireFrameHeaderAndTxs{}, err
	}
	return wireFrameHeaderAndTxs{Header: wf.Header, Txs: wf.Txs}, nil
}

type wireSigEntry struct {
	Signer core.Address
	Sig    core.Signature
}

type wireProposedFrame struct {
	Frame wireFrame
	Hash  core.Hash
	Sigs  []wireSigEntry
}

func toWireProposedFrame(p core.ProposedFrame) (wireProposedFrame, error) {
	addrs := make([]core.Address, 0, len(p.Sigs))
	for a := range p.Sigs {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	sigs := make([]wireSigEntry, 0, len(addrs))
	for _, a := range addrs {
		sigs = append(sigs, wireSigEntry{Signer: a, Sig: p.Sigs[a]})
	}
	frame, err := toWireFrame(p.Frame)
	if err != nil {
		return wireProposedFrame{}, err
	}
	return wireProposedFrame{Frame: frame, Hash: p.Hash, Sigs: sigs}, nil
}

type wireEnvelope struct {
	From    core.Address
	To      core.Address
	CmdTag  string
	CmdBody []byte // RLP-encoded payload specific to CmdTag
}

type wireReplicaSeed struct {
	Jurisdiction string
	EntityID     string
	Quorum       wireQuorum
	Domain       []byte
}

func toWireReplicaSeed(s core.ReplicaSeed) (wireReplicaSeed, error) {
	domain, err := CanonicalizeJSON(s.Domain)
	if err != nil {
		return wireReplicaSeed{}, fmt.Errorf("canonicalize replica seed domain: %w", err)
	}
	return wireReplicaSeed{
		Jurisdiction: s.Address.Jurisdiction,
		EntityID:     s.Address.EntityID,
		Quorum:       toWireQuorum(s.Quorum),
		Domain:       domain,
	}, nil
}

func fromWireReplicaSeed(w wireReplicaSeed) core.ReplicaSeed {
	return core.ReplicaSeed{
		Address: core.EntityAddress{Jurisdiction: w.Jurisdiction, EntityID: w.EntityID},
		Quorum:  fromWireQuorum(w.Quorum),
		Domain:  core.Payload(w.Domain),
	}
}

type wireImportPayload struct {
	ReplicaSeed wireReplicaSeed
}

func toWireImport(p core.ImportPayload) (wireImportPayload, error) {
	seed, err := toWireReplicaSeed(p.ReplicaSeed)
	if err != nil {
		return wireImportPayload{}, err
	}
	return wireImportPayload{ReplicaSeed: seed}, nil
}

func fromWireImport(w wireImportPayload) core.ImportPayload {
	return core.ImportPayload{ReplicaSeed: fromWireReplicaSeed(w.ReplicaSeed)}
}

type wireAddTxPayload struct {
	AddrKey     string
	Transaction wireTransaction
}

func toWireAddTx(p core.AddTxPayload) (wireAddTxPayload, error) {
	tx, err := toWireTx(p.Transaction)
	if err != nil {
		return wireAddTxPayload{}, err
	}
	return wireAddTxPayload{AddrKey: p.AddrKey, Transaction: tx}, nil
}

func fromWireAddTx(w wireAddTxPayload) core.AddTxPayload {
	return core.AddTxPayload{AddrKey: w.AddrKey, Transaction: fromWireTx(w.Transaction)}
}

type wireCommitPayload struct {
	AddrKey string
	Hanko   core.Signature
	Frame   wireFrame
	Signers []core.Address
}

func toWireCommit(p core.CommitPayload) (wireCommitPayload, error) {
	frame, err := toWireFrame(p.Frame)
	if err != nil {
		return wireCommitPayload{}, err
	}
	return wireCommitPayload{AddrKey: p.AddrKey, Hanko: p.Hanko, Frame: frame, Signers: p.Signers}, nil
}

func fromWireCommit(w wireCommitPayload) core.CommitPayload {
	return core.CommitPayload{AddrKey: w.AddrKey, Hanko: w.Hanko, Frame: fromWireFrame(w.Frame), Signers: w.Signers}
}

type wireEnvelopeBatch struct {
	Envelopes []wireEnvelopeForStorage
}

func toWireEnvelopeBatch(envs []core.Envelope) wireEnvelopeBatch {
	out := make([]wireEnvelopeForStorage, len(envs))
	for i, e := range envs {
		raw, err := EncodeEnvelope(e)
		if err != nil {
			panic("codec: malformed envelope in batch: " + err.Error())
		}
		out[i] = wireEnvelopeForStorage{From: e.From, To: e.To, Raw: raw}
	}
	return wireEnvelopeBatch{Envelopes: out}
}

func fromWireEnvelopeBatch(w wireEnvelopeBatch) ([]core.Envelope, error) {
	out := make([]core.Envelope, len(w.Envelopes))
	for i, e := range w.Envelopes {
		env, err := DecodeEnvelope(e.Raw)
		if err != nil {
			return nil, err
		}
		out[i] = env
	}
	return out, nil
}

type wireServerFrame struct {
	Height    uint64
	Timestamp int64
	Inputs    []wireEnvelopeForStorage
	Root      core.Hash
	Parent    core.Hash
	Hash      core.Hash
}

// wireEnvelopeForStorage pre-encodes each envelope's command to bytes so a
// ServerFrame round-trips through RLP without needing per-variant recursive
// list types.
type wireEnvelopeForStorage struct {
	From core.Address
	To   core.Address
	Raw  []byte // RLP(wireEnvelope)
}

func toWireServerFrame(f core.ServerFrame) wireServerFrame {
	inputs := make([]wireEnvelopeForStorage, len(f.Inputs))
	for i, e := range f.Inputs {
		raw, err := EncodeEnvelope(e)
		if err != nil {
			// Encoding failures here indicate a malformed in-memory command,
			// which is a programmer error, not a runtime condition.
			panic("codec: malformed envelope in server frame: " + err.Error())
		}
		inputs[i] = wireEnvelopeForStorage{From: e.From, To: e.To, Raw: raw}
	}
	return wireServerFrame{
		Height:    f.Height,
		Timestamp: f.Timestamp,
		Inputs:    inputs,
		Root:      f.Root,
		Parent:    f.Parent,
		Hash:      f.Hash,
	}
}

// wireReplica is the snapshot-layer shape of one signer's view of one
// entity. Proposal is only meaningful when HasProposal is set; RLP has no
// native optional-field support, so absence is carried as an explicit flag
// alongside a zero-value Proposal rather than a nil pointer.
type wireReplica struct {
	Jurisdiction string
	EntityID     string
	Proposer     core.Address
	AwaitingSigs bool
	Mempool      []wireTransaction
	Last         wireFrame
	HasProposal  bool
	Proposal     wireProposedFrame
	ProposedAt   int64
}

func toWireReplica(r core.Replica) (wireReplica, error) {
	mempool := make([]wireTransaction, len(r.Mempool))
	for i, t := range r.Mempool {
		wt, err := toWireTx(t)
		if err != nil {
			return wireReplica{}, err
		}
		mempool[i] = wt
	}
	last, err := toWireFrame(r.Last)
	if err != nil {
		return wireReplica{}, err
	}
	out := wireReplica{
		Jurisdiction: r.Address.Jurisdiction,
		EntityID:     r.Address.EntityID,
		Proposer:     r.Proposer,
		AwaitingSigs: r.AwaitingSigs,
		Mempool:      mempool,
		Last:         last,
		ProposedAt:   r.ProposedAt,
	}
	if r.Proposal != nil {
		proposal, err := toWireProposedFrame(*r.Proposal)
		if err != nil {
			return wireReplica{}, err
		}
		out.HasProposal = true
		out.Proposal = proposal
	}
	return out, nil
}

func fromWireReplica(w wireReplica) core.Replica {
	mempool := make([]core.Transaction, len(w.Mempool))
	for i, t := range w.Mempool {
		mempool[i] = fromWireTx(t)
	}
	out := core.Replica{
		Address:      core.EntityAddress{Jurisdiction: w.Jurisdiction, EntityID: w.EntityID},
		Proposer:     w.Proposer,
		AwaitingSigs: w.AwaitingSigs,
		Mempool:      mempool,
		Last:         fromWireFrame(w.Last),
		ProposedAt:   w.ProposedAt,
	}
	if w.HasProposal {
		sigs := make(map[core.Address]core.Signature, len(w.Proposal.Sigs))
		for _, e := range w.Proposal.Sigs {
			sigs[e.Signer] = e.Sig
		}
		p := core.ProposedFrame{Frame: fromWireFrame(w.Proposal.Frame), Hash: w.Proposal.Hash, Sigs: sigs}
		out.Proposal = &p
	}
	return out
}

type wireReplicaKey struct {
	Jurisdiction string
	EntityID     string
	Signer       core.Address
}

type wireReplicaEntry struct {
	Key     wireReplicaKey
	Replica wireReplica
}

type wireServerState struct {
	Height   uint64
	Replicas []wireReplicaEntry
	LastHash core.Hash
}

func toWireServerState(s core.ServerState) (wireServerState, error) {
	keys := make([]core.ReplicaKey, 0, len(s.Replicas))
	for k := range s.Replicas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	entries := make([]wireReplicaEntry, 0, len(keys))
	for _, k := range keys {
		replica, err := toWireReplica(s.Replicas[k])
		if err != nil {
			return wireServerState{}, err
		}
		entries = append(entries, wireReplicaEntry{
			Key:     wireReplicaKey{Jurisdiction: k.Jurisdiction, EntityID: k.EntityID, Signer: k.Signer},
			Replica: replica,
		})
	}
	return wireServerState{Height: s.Height, Replicas: entries, LastHash: s.LastHash}, nil
}

func fromWireServerState(w wireServerState) core.ServerState {
	replicas := make(map[core.ReplicaKey]core.Replica, len(w.Replicas))
	for _, e := range w.Replicas {
		key := core.ReplicaKey{
			EntityAddress: core.EntityAddress{Jurisdiction: e.Key.Jurisdiction, EntityID: e.Key.EntityID},
			Signer:        e.Key.Signer,
		}
		replicas[key] = fromWireReplica(e.Replica)
	}
	return core.ServerState{Height: w.Height, Replicas: replicas, LastHash: w.LastHash}
}

func fromWireServerFrame(w wireServerFrame) (core.ServerFrame, error) {
	inputs := make([]core.Envelope, len(w.Inputs))
	for i, e := range w.Inputs {
		env, err := DecodeEnvelope(e.Raw)
		if err != nil {
			return core.ServerFrame{}, err
		}
		inputs[i] = env
	}
	return core.ServerFrame{
		Height:    w.Height,
		Timestamp: w.Timestamp,
		Inputs:    inputs,
		Root:      w.Root,
		Parent:    w.Parent,
		Hash:      w.Hash,
	}, nil
}
