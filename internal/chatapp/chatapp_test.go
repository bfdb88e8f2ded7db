// Copyright 2025 Certen Protocol

package chatapp

import (
	"testing"

	"github.com/certen/bftcore/internal/core"
	"github.com/certen/bftcore/internal/entity"
)

func TestExecutorAppendsMessages(t *testing.T) {
	exec := Executor()
	body, err := NewMessage("hi")
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	domain, err := exec.Apply(nil, core.Transaction{Kind: Kind, Body: body})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	body2, err := NewMessage("there")
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	domain, err = exec.Apply(domain, core.Transaction{Kind: Kind, Body: body2})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	log, err := Messages(domain)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(log) != 2 || log[0] != "hi" || log[1] != "there" {
		t.Fatalf("unexpected log: %#v", log)
	}
}

func TestExecutorRejectsUnknownKind(t *testing.T) {
	exec := Executor()
	if _, err := exec.Apply(nil, core.Transaction{Kind: "other"}); err != entity.ErrUnknownTxKind {
		t.Fatalf("expected ErrUnknownTxKind, got %v", err)
	}
}

func TestMessagesOnEmptyDomain(t *testing.T) {
	log, err := Messages(nil)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if log != nil {
		t.Fatalf("expected nil log, got %#v", log)
	}
}
