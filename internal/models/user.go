package models

import (
	"strings"
	"time"
)

// Role names recognised by the authorization middleware
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the system. The password hash never
// leaves the process; it is excluded from every JSON serialization,
// backup exports included.
type User struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Roles         []string  `json:"roles"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasRole checks whether the user carries the given role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// JoinRoles serializes roles for storage in a single column
func JoinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

// SplitRoles parses the stored role column back into a slice
func SplitRoles(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
