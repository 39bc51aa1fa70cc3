package hipaa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// PHIEncryptor seals contact data with AES-256-GCM. Every ciphertext is
// bound to the record it belongs to through the GCM additional data, so a
// ciphertext copied onto another lead row fails to open.
type PHIEncryptor struct {
	aead cipher.AEAD
}

// NewPHIEncryptor creates a PHIEncryptor with the given 32-byte key.
func NewPHIEncryptor(key []byte) (*PHIEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("phi encryptor: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create GCM: %w", err)
	}

	return &PHIEncryptor{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext) for plaintext bound to recordID.
func (e *PHIEncryptor) Seal(plaintext []byte, recordID string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("phi seal: generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, []byte(recordID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. recordID must match the one used to seal.
func (e *PHIEncryptor) Open(ciphertext, recordID string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("phi open: base64 decode: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("phi open: ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, []byte(recordID))
	if err != nil {
		return nil, fmt.Errorf("phi open: %w", err)
	}
	return plaintext, nil
}

// SealJSON marshals v and seals the result.
func (e *PHIEncryptor) SealJSON(v any, recordID string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("phi seal: marshal: %w", err)
	}
	return e.Seal(data, recordID)
}

// OpenJSON opens ciphertext and unmarshals it into v.
func (e *PHIEncryptor) OpenJSON(ciphertext, recordID string, v any) error {
	data, err := e.Open(ciphertext, recordID)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("phi open: unmarshal: %w", err)
	}
	return nil
}
