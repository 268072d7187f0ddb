// Package codec implements the reversible payload transforms used on the
// chat wire. Every payload travels as a single base64 token, so ciphers can
// be swapped without touching the line protocol.
package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrInvalidPayload reports a wire token that could not be decoded. Callers
// must treat it as a per-message failure, never as connection-fatal.
var ErrInvalidPayload = errors.New("codec: invalid payload")

// ErrEmptyKey reports an attempt to build a cipher without key material.
var ErrEmptyKey = errors.New("codec: key must not be empty")

// Cipher transforms message payloads to and from their wire form. Encode and
// Decode are exact inverses for any input under the same key.
type Cipher interface {
	Encode(plaintext string) (string, error)
	Decode(wireText string) (string, error)
}

// New builds the cipher selected by name. Supported names are "xor" (the
// default demo obfuscation) and "secretbox" (authenticated encryption with
// the same wire shape).
func New(name string, key []byte) (Cipher, error) {
	switch name {
	case "", "xor":
		return NewXORBase64(key)
	case "secretbox":
		return NewSecretBox(key)
	default:
		return nil, fmt.Errorf("codec: unknown cipher %q", name)
	}
}

// XORBase64 XORs each payload byte with the key byte at position i mod
// keyLength and base64-encodes the result. It is deterministic and
// length-preserving at the byte level. This is demo-grade obfuscation, not a
// security boundary: anyone holding the wire text and the key recovers the
// plaintext, and the key is shared by every client.
type XORBase64 struct {
	key []byte
}

// NewXORBase64 returns a cipher for the given shared key.
func NewXORBase64(key []byte) (*XORBase64, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	return &XORBase64{key: append([]byte(nil), key...)}, nil
}

// Encode obfuscates plaintext into a base64 wire token.
func (c *XORBase64) Encode(plaintext string) (string, error) {
	return base64.StdEncoding.EncodeToString(c.xor([]byte(plaintext))), nil
}

// Decode reverses Encode. It fails with ErrInvalidPayload when the wire text
// is not valid base64.
func (c *XORBase64) Decode(wireText string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(wireText)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return string(c.xor(raw)), nil
}

// xor applies the keystream in place on a copy of b. XOR is self-inverse, so
// the same pass serves both directions.
func (c *XORBase64) xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = v ^ c.key[i%len(c.key)]
	}
	return out
}

const nonceSize = 24

// SecretBox is the drop-in authenticated replacement for XORBase64: NaCl
// secretbox under a key derived from the shared secret, random nonce
// prepended, base64 on the outside. The wire shape is unchanged, so clients
// and server switch by configuration alone.
type SecretBox struct {
	key [32]byte
}

// NewSecretBox derives a 32-byte secretbox key from the shared secret.
func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	return &SecretBox{key: sha256.Sum256(key)}, nil
}

// Encode seals plaintext with a fresh random nonce.
func (c *SecretBox) Encode(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("codec: nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode opens a sealed token. Truncated, tampered, or non-base64 input
// fails with ErrInvalidPayload.
func (c *SecretBox) Decode(wireText string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(wireText)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: short token", ErrInvalidPayload)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", fmt.Errorf("%w: authentication failed", ErrInvalidPayload)
	}
	return string(plain), nil
}
