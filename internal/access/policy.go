// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

// Package access maps request paths to the roles allowed to reach them.
package access

import (
	"slices"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/chms/chms/internal/auth"
)

// Rule grants the listed roles access to every request path matching Pattern.
// Patterns use '/' as the separator: '*' matches within one segment, '**'
// across segments, and '{a,b}' either alternative.
type Rule struct {
	Pattern string
	Roles   []auth.Role
}

type compiledRule struct {
	glob  glob.Glob
	roles []auth.Role
}

// RoutePolicy maps request paths to the roles allowed to reach them.
// It is immutable after construction and safe for concurrent use.
type RoutePolicy struct {
	rules []compiledRule
}

// DefaultRules are the CHMS area rules: each role owns its own tree and
// /me is open to every authenticated role.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "{/mother,/mother/**}", Roles: []auth.Role{auth.RoleMother}},
		{Pattern: "{/doctor,/doctor/**}", Roles: []auth.Role{auth.RoleDoctor}},
		{Pattern: "{/admin,/admin/**}", Roles: []auth.Role{auth.RoleAdmin}},
		{Pattern: "/me", Roles: auth.AllRoles()},
	}
}

// NewRoutePolicy compiles rules in order. An invalid pattern or a rule
// without roles is a configuration error.
func NewRoutePolicy(rules []Rule) (*RoutePolicy, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			return nil, oops.In("access").
				Code("INVALID_ROUTE_PATTERN").
				With("pattern", r.Pattern).
				Wrap(err)
		}
		if len(r.Roles) == 0 {
			return nil, oops.In("access").
				Code("INVALID_ROUTE_RULE").
				With("pattern", r.Pattern).
				Errorf("rule grants no roles")
		}
		compiled = append(compiled, compiledRule{glob: g, roles: slices.Clone(r.Roles)})
	}
	return &RoutePolicy{rules: compiled}, nil
}

// MustRoutePolicy is NewRoutePolicy for rule sets fixed at compile time.
func MustRoutePolicy(rules []Rule) *RoutePolicy {
	p, err := NewRoutePolicy(rules)
	if err != nil {
		panic("invalid route policy: " + err.Error())
	}
	return p
}

// Allowed returns the roles of the first rule matching path. ok is false
// when no rule matches; callers must then deny the request.
func (p *RoutePolicy) Allowed(path string) (roles []auth.Role, ok bool) {
	for _, r := range p.rules {
		if r.glob.Match(path) {
			return slices.Clone(r.roles), true
		}
	}
	return nil, false
}
