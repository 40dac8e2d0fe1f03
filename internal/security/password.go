package security

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes of input. Refresh tokens are longer
// than that, so long secrets are digested first and the whole value is bound
// into the hash.
const bcryptInputLimit = 72

// PasswordHasher is the credential store: a one-way salted hash with a
// constant-time comparison. It is used for passwords and refresh tokens.
type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prepareSecret(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

func (h *PasswordHasher) Verify(secret string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), prepareSecret(secret)) == nil
}

// VerifyDummy spends the same work as Verify against a throwaway hash. Login
// calls it for unknown accounts so response time does not reveal whether the
// email exists.
func (h *PasswordHasher) VerifyDummy(secret string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("caregiver-hub-dummy-secret"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, prepareSecret(secret))
}

func prepareSecret(secret string) []byte {
	raw := []byte(secret)
	if len(raw) <= bcryptInputLimit {
		return raw
	}
	sum := sha256.Sum256(raw)
	return []byte(base64.RawStdEncoding.EncodeToString(sum[:]))
}
