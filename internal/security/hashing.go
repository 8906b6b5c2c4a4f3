package security

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// dummySecret is hashed once per Hasher so VerifyDummy pays the same bcrypt cost as a real check.
const dummySecret = "sso-hub:no-such-credential"

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of the raw secret, suitable for storage.
func (h *Hasher) Hash(raw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(raw), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether raw matches the stored hash. An empty or malformed hash never verifies.
func (h *Hasher) Verify(hash, raw string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// VerifyDummy runs a full bcrypt comparison against a fixed hash at h.Cost and always reports
// false. Login paths call it when there is no stored hash so response time does not reveal
// whether an account exists.
func (h *Hasher) VerifyDummy(raw string) bool {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(dummySecret), h.Cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(raw))
	return false
}
