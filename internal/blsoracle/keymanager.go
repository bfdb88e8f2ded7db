// Copyright 2025 Certen Protocol
//
// Key storage for one signer's BLS identity: load-or-generate from a key
// file, or derive deterministically from a signer id for test fixtures.

package blsoracle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// KeyManager owns one signer's BLS key pair.
type KeyManager struct {
	keyPath    string
	privateKey *PrivateKey
	publicKey  *PublicKey
}

func NewKeyManager(keyPath string) *KeyManager {
	return &KeyManager{keyPath: keyPath}
}

// LoadOrGenerateKey loads the key at keyPath, or generates and persists a
// new one if the file does not exist yet.
func (km *KeyManager) LoadOrGenerateKey() error {
	if km.keyPath != "" {
		if _, err := os.Stat(km.keyPath); err == nil {
			return km.LoadKey()
		}
	}
	return km.GenerateNewKey()
}

func (km *KeyManager) LoadKey() error {
	if km.keyPath == "" {
		return fmt.Errorf("no key path specified")
	}
	data, err := os.ReadFile(km.keyPath)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}
	keyBytes, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("decode key hex: %w", err)
	}
	km.privateKey, err = PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	km.publicKey = km.privateKey.PublicKey()
	return nil
}

func (km *KeyManager) GenerateNewKey() error {
	var err error
	km.privateKey, km.publicKey, err = GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	if km.keyPath != "" {
		return km.SaveKey()
	}
	return nil
}

// GenerateFromSignerID derives a deterministic key pair from a signer id and
// domain tag, so a fleet of test replicas can reconstruct the same keys
// without coordinating key files.
func (km *KeyManager) GenerateFromSignerID(signerID, domainTag string) error {
	seed := sha256.Sum256([]byte(fmt.Sprintf("BFTCORE_BLS_KEY_V1:%s:%s", domainTag, signerID)))
	var err error
	km.privateKey, km.publicKey, err = GenerateKeyPairFromSeed(seed[:])
	if err != nil {
		return fmt.Errorf("generate from signer id: %w", err)
	}
	return nil
}

func (km *KeyManager) SaveKey() error {
	if km.keyPath == "" {
		return fmt.Errorf("no key path specified")
	}
	if km.privateKey == nil {
		return fmt.Errorf("no private key to save")
	}
	dir := filepath.Dir(km.keyPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	keyHex := hex.EncodeToString(km.privateKey.Bytes())
	if err := os.WriteFile(km.keyPath, []byte(keyHex), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func (km *KeyManager) PrivateKey() *PrivateKey { return km.privateKey }
func (km *KeyManager) PublicKey() *PublicKey   { return km.publicKey }

func (km *KeyManager) PublicKeyBytes() []byte {
	if km.publicKey == nil {
		return nil
	}
	return km.publicKey.Bytes()
}
