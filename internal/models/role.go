package models

import (
	"fmt"
	"strings"
)

// Role is the closed set of identities the vault knows about.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
	RoleAuditor  Role = "auditor"
)

// ParseRole maps a stored or submitted value onto a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleEmployee:
		return RoleEmployee, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleAuditor:
		return RoleAuditor, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

// AccessType is the kind of access an employee asks for.
type AccessType string

const (
	AccessRead  AccessType = "read"
	AccessWrite AccessType = "write"
)

// ParseAccessType defaults an empty value to read.
func ParseAccessType(s string) (AccessType, error) {
	switch AccessType(strings.ToLower(strings.TrimSpace(s))) {
	case "", AccessRead:
		return AccessRead, nil
	case AccessWrite:
		return AccessWrite, nil
	default:
		return "", fmt.Errorf("unknown access type %q", s)
	}
}
