// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package auth

import (
	"strings"

	"github.com/samber/oops"
)

// Role is one of the closed set of CHMS account roles.
// Values outside this package can only be obtained through the Role*
// variables or ParseRole; the zero Role is invalid.
type Role struct {
	name string
}

// The three account roles.
var (
	RoleMother = Role{name: "MOTHER"}
	RoleDoctor = Role{name: "DOCTOR"}
	RoleAdmin  = Role{name: "ADMIN"}
)

// AllRoles lists every valid role.
func AllRoles() []Role {
	return []Role{RoleMother, RoleDoctor, RoleAdmin}
}

// ParseRole converts a stored or submitted role name into a Role.
// Matching ignores case and surrounding whitespace.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case RoleMother.name:
		return RoleMother, nil
	case RoleDoctor.name:
		return RoleDoctor, nil
	case RoleAdmin.name:
		return RoleAdmin, nil
	}
	return Role{}, oops.Code(CodeInvalidInput).
		With("role", s).
		Errorf("unknown role %q", s)
}

// String returns the canonical upper-case role name.
func (r Role) String() string {
	return r.name
}

// IsValid reports whether r is one of the defined roles.
func (r Role) IsValid() bool {
	return r == RoleMother || r == RoleDoctor || r == RoleAdmin
}

// In reports whether r is a member of allowed.
func (r Role) In(allowed ...Role) bool {
	if !r.IsValid() {
		return false
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, oops.Code(CodeInvalidInput).Errorf("cannot marshal invalid role")
	}
	return []byte(r.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func roleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	return names
}
