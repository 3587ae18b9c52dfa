// Package credential issues and redeems short-lived single-use secrets:
// email-verification codes and password-reset tokens. Secrets are stored
// hashed, keyed by kind and subject, and redemption is an atomic
// check-and-delete so that two concurrent attempts cannot both succeed.
package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the credential namespaces
type Kind string

const (
	KindOTP   Kind = "otp"
	KindReset Kind = "reset"
)

// ErrInvalid is returned for every redemption failure: unknown key,
// expired entry, or mismatched secret. Callers must not be able to
// tell these apart; the distinction is logged server-side only.
var ErrInvalid = errors.New("invalid or expired credential")

// Store issues and redeems ephemeral credentials. Issuing a new
// credential for a key silently invalidates any previous one.
type Store interface {
	// Issue generates a new secret for (kind, subject), stores it with
	// the given payload and TTL, and returns the plaintext secret.
	Issue(ctx context.Context, kind Kind, subject, payload string, ttl time.Duration) (string, error)

	// Redeem atomically validates the supplied secret and deletes the
	// entry, returning the stored payload. Any failure is ErrInvalid.
	Redeem(ctx context.Context, kind Kind, subject, supplied string) (string, error)
}

var otpMax = big.NewInt(1000000)

// generateSecret produces a fresh secret for the given kind: a uniform
// 6-digit code for OTPs, a UUID for reset tokens.
func generateSecret(kind Kind) (string, error) {
	switch kind {
	case KindOTP:
		n, err := rand.Int(rand.Reader, otpMax)
		if err != nil {
			return "", fmt.Errorf("failed to generate otp: %w", err)
		}
		return fmt.Sprintf("%06d", n.Int64()), nil
	case KindReset:
		return uuid.NewString(), nil
	default:
		return "", fmt.Errorf("unknown credential kind: %q", kind)
	}
}

// digest hashes a secret for storage so the plaintext never rests
// anywhere, and so equality checks compare fixed-length values.
func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// storageKey builds the namespaced key for a credential
func storageKey(kind Kind, subject string) string {
	return fmt.Sprintf("cred:%s:%s", kind, subject)
}
