// Package registry implements the User Registry: a read-only mapping from
// username to account record, populated once before the server starts
// accepting connections and shared immutably across every connection
// thereafter.
package registry

import (
	"fmt"

	"github.com/boatd/boatd/internal/auth"
	"github.com/boatd/boatd/internal/validate"
)

// User is one account's read-only configuration.
type User struct {
	Username          string
	PasswordRecord    []byte // SALT‖hex-digest, length auth.RecordLength
	Repository        string
	VersioningEnabled bool
}

// Registry is an immutable username -> User lookup table.
type Registry struct {
	users map[string]User
}

// New builds a Registry from a set of users, validating each entry's
// repository name and password record shape up front so that a bad
// configuration fails at startup rather than on a client's first PASS.
func New(users []User) (*Registry, error) {
	m := make(map[string]User, len(users))
	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("registry: user with empty username")
		}
		if _, exists := m[u.Username]; exists {
			return nil, fmt.Errorf("registry: duplicate username %q", u.Username)
		}
		if !validate.Filename(u.Repository) {
			return nil, fmt.Errorf("registry: user %q has invalid repository name %q", u.Username, u.Repository)
		}
		if len(u.PasswordRecord) != auth.RecordLength {
			return nil, fmt.Errorf("registry: user %q has malformed password record", u.Username)
		}
		m[u.Username] = u
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("registry: at least one user must be configured")
	}
	return &Registry{users: m}, nil
}

// Lookup returns the User for username, and whether it was found.
func (r *Registry) Lookup(username string) (User, bool) {
	u, ok := r.users[username]
	return u, ok
}

// Repositories returns the distinct repository names across all users, in
// no particular order; used by the bootstrap step to create each user's
// on-disk directory.
func (r *Registry) Repositories() []string {
	seen := make(map[string]bool, len(r.users))
	var out []string
	for _, u := range r.users {
		if !seen[u.Repository] {
			seen[u.Repository] = true
			out = append(out, u.Repository)
		}
	}
	return out
}
