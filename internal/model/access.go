package model

import (
	"fmt"
	"strings"
	"time"
)

// PrincipalType distinguishes individual users from groups.
type PrincipalType string

const (
	PrincipalUser  PrincipalType = "user"
	PrincipalGroup PrincipalType = "group"
)

// ParsePrincipalType validates a principal type.
func ParsePrincipalType(s string) (PrincipalType, error) {
	switch PrincipalType(strings.ToLower(strings.TrimSpace(s))) {
	case PrincipalUser:
		return PrincipalUser, nil
	case PrincipalGroup:
		return PrincipalGroup, nil
	}
	return "", fmt.Errorf("%w: unknown principal type %q", ErrValidation, s)
}

// Access is an explicit preference. AccessNone is a real record, distinct from
// having no record at all, though both leave the keyword unrestricted.
type Access string

const (
	AccessAllow Access = "allow"
	AccessDeny  Access = "deny"
	AccessNone  Access = "none"
)

// ParseAccess validates an access value.
func ParseAccess(s string) (Access, error) {
	switch Access(strings.ToLower(strings.TrimSpace(s))) {
	case AccessAllow:
		return AccessAllow, nil
	case AccessDeny:
		return AccessDeny, nil
	case AccessNone:
		return AccessNone, nil
	}
	return "", fmt.Errorf("%w: unknown access state %q", ErrValidation, s)
}

// Restricts reports whether the state blocks the keyword.
func (a Access) Restricts() bool { return a == AccessDeny }

// AccessState is one version of the preference recorded for (Keyword, PrincipalID).
type AccessState struct {
	Keyword       string        `json:"keyword"`
	PrincipalID   string        `json:"principal_id"`
	PrincipalType PrincipalType `json:"principal_type"`
	State         Access        `json:"state"`
	Version       int           `json:"version"`
	UpdatedAt     time.Time     `json:"updated_at"`
	UpdatedBy     string        `json:"updated_by"`
}

// Principal is an entry of the identity or group registry.
type Principal struct {
	ID          string        `json:"id"`
	Type        PrincipalType `json:"type"`
	DisplayName string        `json:"display_name"`
}
