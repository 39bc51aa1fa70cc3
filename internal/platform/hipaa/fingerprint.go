package hipaa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprinter derives a stable, keyed digest of a contact so repeat
// submissions can be matched without storing or indexing plaintext.
type Fingerprinter struct {
	key []byte
}

func NewFingerprinter(key []byte) *Fingerprinter {
	return &Fingerprinter{key: append([]byte(nil), key...)}
}

// Fingerprints returns one hex HMAC-SHA256 per usable identifier, email
// first. Each identifier is keyed separately so a resubmission that adds or
// drops the phone number still matches on the email. It returns nil when
// neither is usable, which disables duplicate matching.
func (f *Fingerprinter) Fingerprints(email, phone string) []string {
	var out []string
	if email = NormalizeEmail(email); email != "" {
		out = append(out, f.digest("email", email))
	}
	if phone = NormalizePhone(phone); phone != "" {
		out = append(out, f.digest("phone", phone))
	}
	return out
}

// digest namespaces value by kind so an email and a phone can never collide.
func (f *Fingerprinter) digest(kind, value string) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(kind))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}

// NormalizePhone keeps digits only and drops a leading US country code.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) < 7 {
		return ""
	}
	return digits
}
