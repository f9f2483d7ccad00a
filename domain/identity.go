// Package domain contains core concepts of the chat system.
// This file defines user identities and roles.
// No runtime, network, or storage logic should be added here.
package domain

import "fmt"

// UserID is the opaque identifier issued by the auth collaborator.
// It is the routing key of every live connection.
type UserID string

func (u UserID) String() string { return string(u) }

type Role string

const (
	RoleCandidate  Role = "candidate"
	RoleInstructor Role = "instructor"
)

func (r Role) Valid() bool {
	return r == RoleCandidate || r == RoleInstructor
}

// ParseRole rejects anything outside the two chat roles.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Identity is immutable for the lifetime of a connection.
type Identity struct {
	UserID UserID
	Role   Role
}

// CanCorrespond reports whether two roles may exchange messages.
// Only candidate <-> instructor pairs are allowed.
func CanCorrespond(a, b Role) bool {
	return a.Valid() && b.Valid() && a != b
}
