package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrCiphertextInvalid indicates the stored value could not be decrypted.
var ErrCiphertextInvalid = errors.New("cipher: invalid ciphertext")

// AESFieldCipher protects secret columns with AES-256-GCM and derives
// deterministic HMAC-SHA256 blind indexes for equality-searchable fields.
type AESFieldCipher struct {
	aead     cipher.AEAD
	indexKey []byte
}

// NewAESFieldCipher constructs a field cipher from hex-encoded keys. The
// encryption key must be 32 bytes; the index key may be any non-empty length.
func NewAESFieldCipher(hexKey, hexIndexKey string) (*AESFieldCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode cipher key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("cipher key must be 32 bytes, got %d", len(key))
	}

	indexKey, err := hex.DecodeString(hexIndexKey)
	if err != nil {
		return nil, fmt.Errorf("decode index key: %w", err)
	}
	if len(indexKey) == 0 {
		return nil, fmt.Errorf("index key is required")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &AESFieldCipher{aead: aead, indexKey: indexKey}, nil
}

// Encrypt seals the plaintext with a fresh nonce. The output is
// base64(nonce || ciphertext), so encrypting the same value twice yields
// different ciphertexts.
func (c *AESFieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *AESFieldCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrCiphertextInvalid
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertextInvalid
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}

	return string(plaintext), nil
}

// BlindIndex derives the deterministic search token stored beside the
// ciphertext column to permit equality lookups without decryption.
func (c *AESFieldCipher) BlindIndex(value string) string {
	mac := hmac.New(sha256.New, c.indexKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
