// Copyright 2025 Certen Protocol

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/certen/bftcore/internal/archive"
	"github.com/certen/bftcore/internal/audit"
	"github.com/certen/bftcore/internal/chatapp"
	"github.com/certen/bftcore/internal/config"
	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/metrics"
	"github.com/certen/bftcore/internal/obslog"
	"github.com/certen/bftcore/internal/runtime"
	"github.com/certen/bftcore/internal/wal"
)

// node wires a Runtime to the demo HTTP API and drives its tick loop. It
// is the only stateful piece of cmd/bftnode: everything it touches beyond
// the Runtime (audit, archive) is itself a no-op when unconfigured.
type node struct {
	rt  *runtime.Runtime
	wal *wal.WAL
	log obslog.Logger

	audit   *audit.Mirror
	archive *archive.Sink

	jurisdiction string
	entityID     string
	signerAddrs  map[string]core.Address

	mu    sync.Mutex
	inbox []core.Envelope // ADD_TX envelopes queued by handleSendMessage, drained on the next tick
	carry []core.Envelope // the previous tick's outbox, fed back in as this tick's batch
}

// bootstrapGenesis seeds the demo entity the first time bftnode runs
// against an empty data directory: an IMPORT envelope carrying every
// simulated signer as a quorum member.
func (n *node) bootstrapGenesis(cfg *config.Config) error {
	members := make(map[core.Address]core.SignerRecord, len(n.signerAddrs))
	for _, addr := range n.signerAddrs {
		members[addr] = core.SignerRecord{Shares: 1}
	}
	seed := core.ReplicaSeed{
		Address: core.EntityAddress{Jurisdiction: n.jurisdiction, EntityID: n.entityID},
		Quorum: core.Quorum{
			Threshold: cfg.QuorumThresholdDefault,
			Members:   members,
		},
		Domain: core.Payload("null"),
	}
	batch := []core.Envelope{{Cmd: core.Command{Tag: core.CmdImport, Import: &core.ImportPayload{ReplicaSeed: seed}}}}

	_, outbox, err := n.rt.Tick(batch, n.rt.NextTimestamp())
	if err != nil {
		return fmt.Errorf("bootstrap genesis: %w", err)
	}
	n.mu.Lock()
	n.carry = outbox
	n.mu.Unlock()
	return nil
}

// tickLoop drives one Runtime.Tick per interval until ctx is canceled,
// feeding each tick's outbox back in as the next tick's input batch along
// with any ADD_TX commands queued over HTTP, matching the single-process
// demo's self-clocked progression (no external transport).
func (n *node) tickLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.runTick(ctx)
		}
	}
}

func (n *node) runTick(ctx context.Context) {
	n.mu.Lock()
	batch := append(n.carry, n.inbox...)
	n.inbox = nil
	n.mu.Unlock()

	start := time.Now()
	frame, outbox, err := n.rt.Tick(batch, n.rt.NextTimestamp())
	metrics.TickDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		n.log.Error("tick failed", "err", err)
		return
	}
	metrics.TicksTotal.Inc()
	metrics.CurrentHeight.Set(float64(frame.Height))
	metrics.WALEntries.Set(float64(n.wal.NextSequence()))

	n.audit.Record(ctx, frame)
	if err := n.archive.Index(ctx, frame); err != nil {
		n.log.Error("archive index failed", "height", frame.Height, "err", err)
	}

	n.mu.Lock()
	n.carry = outbox
	n.mu.Unlock()
}

func (n *node) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	state := n.rt.State()
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"replicas": len(state.Replicas),
	})
}

func (n *node) handleMessages(w http.ResponseWriter, r *http.Request) {
	state := n.rt.State()
	addr := core.EntityAddress{Jurisdiction: n.jurisdiction, EntityID: n.entityID}
	var domain core.Payload
	for rk, replica := range state.Replicas {
		if rk.EntityAddress != addr {
			continue
		}
		domain = replica.Last.State.Domain
		break
	}
	log, err := chatapp.Messages(domain)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(log)
}

type sendMessageRequest struct {
	Message string       `json:"message"`
	From    core.Address `json:"from"`
	Nonce   uint64       `json:"nonce"`
}

// handleSendMessage queues an ADD_TX envelope for the next tick. The demo
// signs nothing here: From/Nonce are caller-supplied, standing in for a
// real client's own transaction signing.
func (n *node) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req sendMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	txBody, err := chatapp.NewMessage(req.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	addrKey := core.EntityAddress{Jurisdiction: n.jurisdiction, EntityID: n.entityID}.AddrKey()
	env := core.Envelope{
		To: req.From,
		Cmd: core.Command{Tag: core.CmdAddTx, AddTx: &core.AddTxPayload{
			AddrKey: addrKey,
			Transaction: core.Transaction{
				Kind: chatapp.Kind, Nonce: req.Nonce, From: req.From, Body: txBody,
			},
		}},
	}

	n.mu.Lock()
	n.inbox = append(n.inbox, env)
	n.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}
