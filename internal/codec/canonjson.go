// Copyright 2025 Certen Protocol
//
// Canonicalization for the opaque application payloads carried in
// Transaction.Body and EntityState.Domain. The specification leaves the
// payload's encoding to the application but requires that hashing and
// signing see byte-identical input for semantically-identical payloads;
// this file pins that to Go's encoding/json with object keys sorted (the
// standard library already does this when marshaling a map) and numeric
// fields round-tripped through json.Number so arbitrary-precision integers
// in application payloads are never rounded through float64.

package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalizeJSON re-marshals an application-supplied JSON payload into its
// canonical form: object keys sorted, no insignificant whitespace, and
// numbers preserved exactly as written. It is idempotent.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize json: %w", err)
	}
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("canonicalize json: trailing data after value")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize json: %w", err)
	}
	return out, nil
}

// EqualCanonicalJSON reports whether two raw JSON payloads canonicalize to
// the same bytes.
func EqualCanonicalJSON(a, b []byte) (bool, error) {
	ca, err := CanonicalizeJSON(a)
	if err != nil {
		return false, err
	}
	cb, err := CanonicalizeJSON(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}
