// Copyright 2025 Certen Protocol
//
// Core address, hash and signature primitives shared by the codec, the
// entity reducer and the server reducer.

package core

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	AddressBytes   = 20
	HashBytes      = 32
	SignatureBytes = 96
)

// Address is the right-most 20 bytes of the keccak-256 hash of a public key.
type Address [AddressBytes]byte

var ZeroAddress Address

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	b := make([]byte, AddressBytes)
	copy(b, a[:])
	return b
}

func (a Address) Less(b Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func AddressFromHex(s string) (Address, error) {
	var a Address
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("decode address hex: %w", err)
	}
	if len(b) != AddressBytes {
		return a, fmt.Errorf("invalid address length: got %d want %d", len(b), AddressBytes)
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromPublicKey derives an Address as the right-most 20 bytes of
// keccak256(pubKeyBytes).
func AddressFromPublicKey(pubKey []byte) Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(pubKey)
	sum := h.Sum(nil)
	var a Address
	copy(a[:], sum[len(sum)-AddressBytes:])
	return a
}

// Hash is a 32-byte keccak-256 output.
type Hash [HashBytes]byte

var ZeroHash Hash

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	b := make([]byte, HashBytes)
	copy(b, h[:])
	return b
}

func Keccak256(data ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	sum := h.Sum(nil)
	var out Hash
	copy(out[:], sum)
	return out
}

// Signature is a 96-byte aggregate-capable signature (a compressed G2 point
// under the minimal-pubkey-size BLS12-381 convention). Individual and
// aggregated ("hanko") signatures share this layout.
type Signature [SignatureBytes]byte

var ZeroSignature Signature

// IsPlaceholder reports whether sig is the all-zero runtime placeholder
// that stands in for "to be filled by the oracle" in an unresolved outbox
// entry. A placeholder must never reach a committed frame's hanko.
func (s Signature) IsPlaceholder() bool {
	return s == ZeroSignature
}

func (s Signature) Bytes() []byte {
	b := make([]byte, SignatureBytes)
	copy(b, s[:])
	return b
}
