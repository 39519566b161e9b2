// Package users holds player account records. Authentication itself is
// handled upstream; this layer only stores credentials and resolves the
// tribe-ownership references the persistence layer validates against.
package users

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultAdminName is the account created when a world is first
// initialized, so a fresh database is never without an operator login.
const DefaultAdminName = "admin"

// User is one player account.
type User struct {
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"password_hash" db:"password_hash"`
	Admin        bool      `json:"admin" db:"admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// New creates a user with the given plaintext password.
func New(name, password string, admin bool) *User {
	return &User{
		Name:         name,
		PasswordHash: HashPassword(password),
		Admin:        admin,
		CreatedAt:    time.Now().UTC(),
	}
}

// HashPassword returns the stored form of a password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Set is a name-indexed user collection used for ownership validation.
type Set map[string]*User

// NewSet builds a Set from a user list.
func NewSet(list []*User) Set {
	s := make(Set, len(list))
	for _, u := range list {
		s[u.Name] = u
	}
	return s
}

// Has reports whether a player name resolves to a known user.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}
