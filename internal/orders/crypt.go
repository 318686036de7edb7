package orders

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

// Cipher applies field-level encryption to the order owner column.
// Ciphertexts are self-framed (nonce ‖ sealed bytes incl. tag) and opaque
// to the database. Because AES-GCM is randomized, a keyed digest derived
// from the same configured key supports equality lookup without ever
// storing plaintext.
type Cipher struct {
	aead      cipher.AEAD
	digestKey []byte
}

// NewCipher builds a Cipher from a 32-byte key (AES-256-GCM).
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("orders: field key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("owner-digest"))
	return &Cipher{aead: aead, digestKey: mac.Sum(nil)}, nil
}

// Encode encrypts plaintext into a self-framed ciphertext.
func (c *Cipher) Encode(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decode authenticates and decrypts a ciphertext produced by Encode.
// Decryption under a different key fails.
func (c *Cipher) Decode(frame []byte) (string, error) {
	if len(frame) < c.aead.NonceSize() {
		return "", errors.New("orders: ciphertext too short")
	}
	nonce, sealed := frame[:c.aead.NonceSize()], frame[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("orders: decrypt owner: %w", err)
	}
	return string(plain), nil
}

// Digest computes the deterministic keyed digest used for owner lookups.
func (c *Cipher) Digest(plaintext string) []byte {
	mac := hmac.New(sha256.New, c.digestKey)
	mac.Write([]byte(plaintext))
	return mac.Sum(nil)
}
