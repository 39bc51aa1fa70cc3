package hipaa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
)

// ContactVault bundles the encryptor and fingerprinter derived from one
// configured key.
type ContactVault struct {
	*PHIEncryptor
	*Fingerprinter
}

// NewContactVault builds a vault from a 64-character hex key.
//
// An empty key is only accepted in development: a random key is generated
// for the life of the process and a warning is logged, so contact data
// written in that mode cannot be read after a restart.
func NewContactVault(hexKey string, dev bool, logger zerolog.Logger) (*ContactVault, error) {
	var key []byte
	if hexKey == "" {
		if !dev {
			return nil, fmt.Errorf("PHI_ENCRYPTION_KEY is required outside development")
		}
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate development key: %w", err)
		}
		logger.Warn().Msg("PHI_ENCRYPTION_KEY not set: using an ephemeral development key")
	} else {
		var err error
		key, err = hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
		}
	}

	enc, err := NewPHIEncryptor(deriveKey(key, "contact-encryption"))
	if err != nil {
		return nil, fmt.Errorf("create PHI encryptor: %w", err)
	}
	return &ContactVault{
		PHIEncryptor:  enc,
		Fingerprinter: NewFingerprinter(deriveKey(key, "contact-fingerprint")),
	}, nil
}

// deriveKey separates the encryption and fingerprint keys so neither use
// weakens the other.
func deriveKey(master []byte, purpose string) []byte {
	mac := hmac.New(sha256.New, master)
	mac.Write([]byte(purpose))
	return mac.Sum(nil)
}
