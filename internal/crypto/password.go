package crypto

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies passwords with bcrypt. Each hash embeds its own
// random salt and cost factor, and comparison is constant-time.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given cost factor. Costs outside the
// bcrypt range fall back to the library default.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash hashes plaintext using bcrypt.
func (h Hasher) Hash(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), h.cost)
}

// Compare compares plaintext to a hashed secret.
func (h Hasher) Compare(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}
