// Package webhook ingests platform status callbacks and applies them to the
// distribution lifecycle exactly once.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"tunecast/internal/distribution"
	dErrors "tunecast/pkg/domain-errors"
)

// Signer derives one HMAC key per platform from a single master secret, so
// no platform can forge another platform's callbacks and key rotation means
// rotating one secret.
type Signer struct {
	keys map[distribution.Platform][]byte
}

// NewSigner derives per-platform keys with HKDF-SHA256. The platform code
// is the derivation info, the service name the salt.
func NewSigner(masterSecret string) (*Signer, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("webhook master secret must not be empty")
	}

	keys := make(map[distribution.Platform][]byte, len(distribution.SupportedPlatforms))
	for platform := range distribution.SupportedPlatforms {
		reader := hkdf.New(sha256.New, []byte(masterSecret), []byte("tunecast-webhook"), []byte(platform))
		key := make([]byte, 32)
		if _, err := io.ReadFull(reader, key); err != nil {
			return nil, fmt.Errorf("failed to derive key for %s: %w", string(platform), err)
		}
		keys[platform] = key
	}
	return &Signer{keys: keys}, nil
}

// Sign computes the hex HMAC-SHA256 of the payload under the platform key.
// Platforms receive their key at onboarding and send this value in the
// X-Tunecast-Signature header.
func (s *Signer) Sign(platform distribution.Platform, payload []byte) (string, error) {
	key, ok := s.keys[platform]
	if !ok {
		return "", fmt.Errorf("no signing key for platform %q", string(platform))
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks a received signature in constant time.
func (s *Signer) Verify(platform distribution.Platform, payload []byte, signature string) error {
	expected, err := s.Sign(platform, payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "unknown webhook source")
	}
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return dErrors.New(dErrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}
