package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	keySize   = 32

	sealerInfo = "pointy-keystore-v1"
)

var (
	// ErrNoSecret is returned by NewSealer for an empty secret.
	ErrNoSecret = errors.New("keystore: empty sealing secret")
	// ErrOpen reports a sealed value that failed authentication.
	ErrOpen = errors.New("keystore: cannot open sealed value")
)

// Sealer encrypts facilitator keys at rest with nacl/secretbox. The box key is derived
// from an operator secret with HKDF-SHA256.
type Sealer struct {
	key [keySize]byte
}

// NewSealer derives the box key from secret.
func NewSealer(secret string) (*Sealer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrNoSecret
	}
	s := &Sealer{}
	h := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo))
	if _, err := io.ReadFull(h, s.key[:]); err != nil {
		return nil, err
	}
	return s, nil
}

// Seal returns nonce || box(plaintext).
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrOpen
	}
	return out, nil
}
