// Copyright 2025 Certen Protocol
//
// BLS12-381 primitives for entity consensus signatures.
//
// Public keys live on G1 (48-byte compressed points); signatures and
// aggregated hankos live on G2 (96-byte compressed points) so that a
// signature/hanko is exactly core.SignatureBytes long. This is the
// "minimal-pubkey-size" BLS12-381 convention.
//
// Built on gnark-crypto's pure-Go bls12-381 implementation.

package blsoracle

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/certen/bftcore/internal/core"
)

var randReader io.Reader = cryptorand.Reader

var (
	initOnce sync.Once

	g1Gen bls12381.G1Affine
	g2Gen bls12381.G2Affine
)

// Domain separation tags, one per command whose payload gets signed.
const (
	DomainFrame = "BFTCORE_FRAME_V1"
)

const (
	PrivateKeySize = 32
	PublicKeySize  = 48
	SignatureSize  = core.SignatureBytes
)

func initialize() {
	initOnce.Do(func() {
		_, _, g1GenPoint, g2GenPoint := bls12381.Generators()
		g1Gen = g1GenPoint
		g2Gen = g2GenPoint
	})
}

// PrivateKey is a BLS12-381 scalar.
type PrivateKey struct {
	scalar fr.Element
}

// PublicKey is a point on G1.
type PublicKey struct {
	point bls12381.G1Affine
}

// Signature is a point on G2. A hanko is an aggregated Signature.
type Signature struct {
	point bls12381.G2Affine
}

// GenerateKeyPair returns a fresh, randomly-sampled key pair.
func GenerateKeyPair() (*PrivateKey, *PublicKey, error) {
	initialize()
	var sk fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, nil, fmt.Errorf("generate random scalar: %w", err)
	}
	priv := &PrivateKey{scalar: sk}
	return priv, priv.PublicKey(), nil
}

// GenerateKeyPairFromSeed derives a deterministic key pair from a seed of at
// least 32 bytes.
func GenerateKeyPairFromSeed(seed []byte) (*PrivateKey, *PublicKey, error) {
	initialize()
	if len(seed) < 32 {
		return nil, nil, errors.New("seed must be at least 32 bytes")
	}
	h := sha256.Sum256(seed)
	var sk fr.Element
	sk.SetBytes(h[:])
	priv := &PrivateKey{scalar: sk}
	return priv, priv.PublicKey(), nil
}

func PrivateKeyFromBytes(data []byte) (*PrivateKey, error) {
	initialize()
	if len(data) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d want %d", len(data), PrivateKeySize)
	}
	var sk fr.Element
	sk.SetBytes(data)
	return &PrivateKey{scalar: sk}, nil
}

func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return PrivateKeyFromBytes(b)
}

func PublicKeyFromBytes(data []byte) (*PublicKey, error) {
	initialize()
	var pk bls12381.G1Affine
	if _, err := pk.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize public key: %w", err)
	}
	return &PublicKey{point: pk}, nil
}

func SignatureFromBytes(data []byte) (*Signature, error) {
	initialize()
	var sig bls12381.G2Affine
	if _, err := sig.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize signature: %w", err)
	}
	return &Signature{point: sig}, nil
}

func (sk *PrivateKey) Bytes() []byte {
	b := sk.scalar.Bytes()
	return b[:]
}

func (sk *PrivateKey) Hex() string { return hex.EncodeToString(sk.Bytes()) }

// PublicKey derives pk = sk * G1.
func (sk *PrivateKey) PublicKey() *PublicKey {
	var pk bls12381.G1Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	pk.ScalarMultiplication(&g1Gen, &skBig)
	return &PublicKey{point: pk}
}

// Sign computes sig = sk * H(message), H mapping into G2.
func (sk *PrivateKey) Sign(message []byte) *Signature {
	h := hashToG2(message)
	var sig bls12381.G2Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	sig.ScalarMultiplication(&h, &skBig)
	return &Signature{point: sig}
}

func (sk *PrivateKey) SignWithDomain(message []byte, domain string) *Signature {
	return sk.Sign(domainMessage(domain, message))
}

func (pk *PublicKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

func (pk *PublicKey) Hex() string { return hex.EncodeToString(pk.Bytes()) }

func (pk *PublicKey) Equal(other *PublicKey) bool { return pk.point.Equal(&other.point) }

// Verify checks e(pk, H(message)) == e(G1, sig).
func (pk *PublicKey) Verify(sig *Signature, message []byte) bool {
	return verifyPairing(pk.point, sig.point, hashToG2(message))
}

// verifyPairing checks e(pk, H(msg)) == e(G1, sig), i.e.
// e(pk, H(msg)) * e(-G1, sig) == 1.
func verifyPairing(pk bls12381.G1Affine, sig, h bls12381.G2Affine) bool {
	var negG1 bls12381.G1Affine
	negG1.Neg(&g1Gen)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{pk, negG1},
		[]bls12381.G2Affine{h, sig},
	)
	if err != nil {
		return false
	}
	return ok
}

func (pk *PublicKey) VerifyWithDomain(sig *Signature, message []byte, domain string) bool {
	return verifyPairing(pk.point, sig.point, hashToG2(domainMessage(domain, message)))
}

func (sig *Signature) Bytes() []byte {
	b := sig.point.Bytes()
	return b[:]
}

func (sig *Signature) Hex() string { return hex.EncodeToString(sig.Bytes()) }

// AggregateSignatures folds signatures by G2 point addition.
func AggregateSignatures(sigs []*Signature) (*Signature, error) {
	if len(sigs) == 0 {
		return nil, errors.New("no signatures to aggregate")
	}
	var acc bls12381.G2Jac
	acc.FromAffine(&sigs[0].point)
	for _, s := range sigs[1:] {
		var jac bls12381.G2Jac
		jac.FromAffine(&s.point)
		acc.AddAssign(&jac)
	}
	var out bls12381.G2Affine
	out.FromJacobian(&acc)
	return &Signature{point: out}, nil
}

// AggregatePublicKeys folds public keys by G1 point addition.
func AggregatePublicKeys(pks []*PublicKey) (*PublicKey, error) {
	if len(pks) == 0 {
		return nil, errors.New("no public keys to aggregate")
	}
	var acc bls12381.G1Jac
	acc.FromAffine(&pks[0].point)
	for _, p := range pks[1:] {
		var jac bls12381.G1Jac
		jac.FromAffine(&p.point)
		acc.AddAssign(&jac)
	}
	var out bls12381.G1Affine
	out.FromJacobian(&acc)
	return &PublicKey{point: out}, nil
}

// VerifyAggregateSignature checks a single hanko against the aggregate of
// signer public keys, all over the same message.
func VerifyAggregateSignature(aggSig *Signature, pks []*PublicKey, message []byte) bool {
	aggPk, err := AggregatePublicKeys(pks)
	if err != nil {
		return false
	}
	return aggPk.Verify(aggSig, message)
}

func VerifyAggregateSignatureWithDomain(aggSig *Signature, pks []*PublicKey, message []byte, domain string) bool {
	return VerifyAggregateSignature(aggSig, pks, domainMessage(domain, message))
}

func hashToG2(message []byte) bls12381.G2Affine {
	h := sha256.New()
	h.Write([]byte("BFTCORE_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_"))
	h.Write(message)

	var counter uint64
	for {
		h2 := sha256.New()
		h2.Write(h.Sum(nil))
		binary.Write(h2, binary.BigEndian, counter)
		digest := h2.Sum(nil)

		var point bls12381.G2Affine
		if _, err := point.SetBytes(digest); err == nil && !point.IsInfinity() {
			return point
		}

		var scalar fr.Element
		scalar.SetBytes(digest)
		var scalarBig big.Int
		scalar.BigInt(&scalarBig)
		var result bls12381.G2Affine
		result.ScalarMultiplication(&g2Gen, &scalarBig)
		if !result.IsInfinity() {
			return result
		}

		counter++
		if counter > 1000 {
			return g2Gen
		}
	}
}

func domainMessage(domain string, message []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(message)
	return h.Sum(nil)
}

// GenerateRandomBytes returns n cryptographically secure random bytes.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, err
	}
	return b, nil
}
