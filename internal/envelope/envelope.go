package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the required key length (AES-256).
	KeySize = 32

	nonceSize    = 12
	versionMagic = byte('G')
)

var (
	// ErrInvalidKey is returned when the configured key is not a usable AES-256 key.
	ErrInvalidKey = errors.New("envelope: key must be 32 bytes")
	// ErrCrypto is returned for malformed, foreign-key or tampered tokens.
	ErrCrypto = errors.New("envelope: decryption failed")
)

// Cipher seals payloads with AES-256-GCM under a single process-wide key.
//
// Tokens are base64url("G" || nonce || ciphertext || tag). The leading byte is a
// format marker so a foreign blob is rejected before it reaches the AEAD.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Cipher{aead: aead}, nil
}

// ParseKey decodes a base64 (standard or URL alphabet) encoded key.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrInvalidKey
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(encoded); err == nil {
			if len(key) != KeySize {
				return nil, ErrInvalidKey
			}
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}

// GenerateKey returns a fresh random key encoded for configuration files.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	packed := make([]byte, 0, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	packed = append(packed, versionMagic)
	packed = append(packed, nonce...)
	packed = c.aead.Seal(packed, nonce, plaintext, nil)

	return base64.RawURLEncoding.EncodeToString(packed), nil
}

// Decrypt opens a token produced by Encrypt. Integrity is always verified.
func (c *Cipher) Decrypt(token string) ([]byte, error) {
	packed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrCrypto
	}
	if len(packed) < 1+nonceSize+c.aead.Overhead() || packed[0] != versionMagic {
		return nil, ErrCrypto
	}

	nonce := packed[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, packed[1+nonceSize:], nil)
	if err != nil {
		return nil, ErrCrypto
	}
	return plaintext, nil
}

// EncryptString is Encrypt for string payloads.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// DecryptString is Decrypt for string payloads.
func (c *Cipher) DecryptString(token string) (string, error) {
	b, err := c.Decrypt(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
