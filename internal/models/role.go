package models

import (
	"fmt"
	"strings"
)

// Role classifies an account for single-session enforcement.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Roles lists every known role.
var Roles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

// ParseRole converts a case-insensitive role name into a Role.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("models: unknown role %q", value)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// EnforcesSingleSession reports whether accounts with the role may hold at most one live session.
func EnforcesSingleSession(role Role) bool {
	return role == RoleStudent
}
