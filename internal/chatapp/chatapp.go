// Copyright 2025 Certen Protocol
//
// chatapp is a minimal demo domain: an append-only message log per
// entity, used by cmd/bftnode and by package tests that need a concrete
// entity.Executor without pulling in a real application payload.

package chatapp

import (
	"encoding/json"
	"fmt"

	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/entity"
)

// Kind is the only core.Transaction.Kind this executor recognizes.
const Kind = "chat"

// Message is the JSON body of one chat transaction.
type Message struct {
	Message string `json:"message"`
}

// NewMessage builds a core.Transaction body holding one chat message.
func NewMessage(text string) (core.Payload, error) {
	b, err := json.Marshal(Message{Message: text})
	if err != nil {
		return nil, fmt.Errorf("chatapp: marshal message: %w", err)
	}
	return core.Payload(b), nil
}

// Log is the domain state folded by Executor: every message appended so
// far, oldest first.
type Log []string

// Executor folds "chat" transactions into a core.Payload holding a JSON
// array of messages. It is the domain hook threaded through
// internal/entity and internal/server wherever a concrete Executor is
// needed.
func Executor() entity.Executor {
	return entity.ExecutorFunc(apply)
}

func apply(domain core.Payload, tx core.Transaction) (core.Payload, error) {
	if tx.Kind != Kind {
		return nil, entity.ErrUnknownTxKind
	}
	var log Log
	if len(domain) > 0 {
		if err := json.Unmarshal(domain, &log); err != nil {
			return nil, fmt.Errorf("chatapp: unmarshal domain: %w", err)
		}
	}
	var body Message
	if err := json.Unmarshal(tx.Body, &body); err != nil {
		return nil, fmt.Errorf("chatapp: unmarshal message: %w", err)
	}
	log = append(log, body.Message)
	out, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("chatapp: marshal domain: %w", err)
	}
	return core.Payload(out), nil
}

// Messages decodes a domain Payload back into its message log. A nil or
// empty payload decodes to an empty log.
func Messages(domain core.Payload) (Log, error) {
	if len(domain) == 0 {
		return nil, nil
	}
	var log Log
	if err := json.Unmarshal(domain, &log); err != nil {
		return nil, fmt.Errorf("chatapp: unmarshal domain: %w", err)
	}
	return log, nil
}
