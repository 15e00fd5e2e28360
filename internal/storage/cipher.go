// Package storage keeps small documents, such as the feature flag snapshot,
// on disk, optionally encrypted with a key derived from the project API key.
package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/teracrafts/posthog-go/errors"
)

const (
	// EnvelopeVersion is the current encrypted envelope format version.
	EnvelopeVersion = 1

	nonceLength      = 12
	keyLength        = 32
	pbkdf2Iterations = 100000
	keySalt          = "posthog-go-v1-storage"
)

// Envelope is the on-disk form of an encrypted document.
type Envelope struct {
	Version int    `json:"version"`
	Nonce   string `json:"nonce"`
	Data    string `json:"data"`
}

// Cipher seals documents with AES-256-GCM. The key is derived from the API
// key with PBKDF2-SHA256.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a key from apiKey and returns a ready cipher.
func NewCipher(apiKey string) (*Cipher, error) {
	if apiKey == "" {
		return nil, errors.NewError(errors.ErrInvalidConfig, "API key is required for encrypted storage")
	}

	key := pbkdf2.Key([]byte(apiKey), []byte(keySalt), pbkdf2Iterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to create cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to create GCM", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext into a JSON envelope.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to generate nonce", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	out, err := json.Marshal(Envelope{
		Version: EnvelopeVersion,
		Nonce:   base64.StdEncoding.EncodeToString(nonce),
		Data:    base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to encode envelope", err)
	}
	return out, nil
}

// Open decrypts a JSON envelope produced by Seal.
func (c *Cipher) Open(data []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "failed to parse envelope", err)
	}
	if env.Version != EnvelopeVersion {
		return nil, errors.NewError(errors.ErrStorage, "unsupported envelope version")
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != nonceLength {
		return nil, errors.NewError(errors.ErrStorage, "invalid envelope nonce")
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "invalid envelope data", err)
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrStorage, "decryption failed (wrong key or corrupted data)", err)
	}
	return plaintext, nil
}

// IsEnvelope reports whether data looks like an encrypted envelope.
func IsEnvelope(data []byte) bool {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	return env.Version > 0 && env.Nonce != "" && env.Data != ""
}
