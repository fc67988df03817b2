// Package vault seals tenant provider credentials at rest with NaCl secretbox.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var ErrUnsealFailed = errors.New("credential could not be unsealed")

// Store persists sealed credentials.
type Store interface {
	Sealed(ctx context.Context, userID, provider string) ([]byte, error)
	PutSealed(ctx context.Context, userID, provider string, sealed []byte) error
}

type Vault struct {
	store Store
	key   [keySize]byte
}

// New creates a vault from a base64-encoded 32-byte key.
func New(store Store, encodedKey string) (*Vault, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid vault key encoding: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", keySize, len(raw))
	}

	v := &Vault{store: store}
	copy(v.key[:], raw)
	return v, nil
}

// Credential returns the decrypted credential, or domain.ErrCredentialMissing
// as reported by the store.
func (v *Vault) Credential(ctx context.Context, userID, provider string) (string, error) {
	sealed, err := v.store.Sealed(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	plain, err := v.Open(sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// PutCredential seals and stores a credential.
func (v *Vault) PutCredential(ctx context.Context, userID, provider, secret string) error {
	sealed, err := v.Seal([]byte(secret))
	if err != nil {
		return err
	}
	return v.store.PutSealed(ctx, userID, provider, sealed)
}

// Seal encrypts plain as nonce || box.
func (v *Vault) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &v.key), nil
}

func (v *Vault) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &v.key)
	if !ok {
		return nil, ErrUnsealFailed
	}
	return plain, nil
}
