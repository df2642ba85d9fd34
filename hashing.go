package authservice

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the cost used for password changes and resets.
const DefaultBcryptCost = 12

// PasswordHasher wraps bcrypt with a configurable cost.
type PasswordHasher struct {
	Cost int
}

func (h PasswordHasher) cost() int {
	if h.Cost < bcrypt.MinCost {
		return DefaultBcryptCost
	}
	return h.Cost
}

func (h PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Matches reports whether password verifies against hash. An empty hash
// never matches.
func (h PasswordHasher) Matches(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PlaceholderHash returns the hash of a random secret that nobody knows.
// Federated accounts carry one so the password column is never empty.
func (h PasswordHasher) PlaceholderHash() (string, error) {
	secret, err := generateSecret(32)
	if err != nil {
		return "", err
	}
	// bcrypt only looks at the first 72 bytes.
	return h.Hash(secret[:64])
}

// NewAccountID returns a fresh random identifier for stores that do not
// assign their own.
func NewAccountID() string {
	return uuid.NewString()
}

func generateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
