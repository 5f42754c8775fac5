// Package policy decides whether a request path is reachable for a resolved
// role. The rule table is loaded once at startup and read-only afterwards, so
// Decide is a pure function of (path, identity).
package policy

import (
	"strings"

	"counselhub.org/internal/auth"
)

// Decision is the routing outcome for a request.
type Decision int

const (
	Allow Decision = iota
	RedirectToLogin
	RedirectToUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToUnauthorized:
		return "redirect_to_unauthorized"
	default:
		return "unknown"
	}
}

// Rule maps a path prefix to the set of roles permitted under it. Declaration
// order matters: the first matching prefix governs.
type Rule struct {
	PathPrefix   string
	AllowedRoles []auth.Role
}

func (r Rule) allows(role auth.Role) bool {
	for _, allowed := range r.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Engine evaluates the static access policy.
type Engine struct {
	publicPaths    []string
	publicPrefixes []string
	rules          []Rule
}

// Config captures the policy table. Engine copies every slice so later
// mutation of the caller's config cannot change decisions mid-flight.
type Config struct {
	PublicPaths    []string
	PublicPrefixes []string
	Rules          []Rule
}

// NewEngine builds an immutable engine from the given table.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		publicPaths:    append([]string(nil), cfg.PublicPaths...),
		publicPrefixes: append([]string(nil), cfg.PublicPrefixes...),
	}
	for _, rule := range cfg.Rules {
		e.rules = append(e.rules, Rule{
			PathPrefix:   rule.PathPrefix,
			AllowedRoles: append([]auth.Role(nil), rule.AllowedRoles...),
		})
	}
	return e
}

// DefaultConfig is the policy table for the portal layout: client, counsellor,
// admin and organization areas, with bookings shared by the roles that may
// create them.
func DefaultConfig() Config {
	return Config{
		PublicPaths: []string{
			"/",
			"/login",
			"/register",
			"/unauthorized",
			"/healthz",
			"/readyz",
			"/metrics",
			"/v1/info",
			"/auth/login",
			"/auth/register",
		},
		PublicPrefixes: []string{
			"/static/",
			"/assets/",
		},
		Rules: []Rule{
			{PathPrefix: "/admin", AllowedRoles: []auth.Role{auth.RoleAdmin}},
			{PathPrefix: "/counsellor", AllowedRoles: []auth.Role{auth.RoleCounsellor, auth.RoleAdmin}},
			{PathPrefix: "/client", AllowedRoles: []auth.Role{auth.RoleClient, auth.RoleAdmin}},
			{PathPrefix: "/org", AllowedRoles: []auth.Role{auth.RoleOrgContact, auth.RoleAdmin}},
			{PathPrefix: "/bookings", AllowedRoles: []auth.Role{auth.RoleClient, auth.RoleCounsellor, auth.RoleAdmin}},
			{PathPrefix: "/auth/me", AllowedRoles: []auth.Role{auth.RoleClient, auth.RoleCounsellor, auth.RoleAdmin, auth.RoleOrgContact}},
			{PathPrefix: "/auth/logout", AllowedRoles: []auth.Role{auth.RoleClient, auth.RoleCounsellor, auth.RoleAdmin, auth.RoleOrgContact}},
		},
	}
}

// Decide classifies a request. Public paths allow unconditionally; an absent
// identity redirects to login; the first matching rule checks the role; a path
// with no rule is allowed. The last step is deliberate default-permit for
// unlisted low-sensitivity pages — callers audit decisions taken that way.
func (e *Engine) Decide(path string, identity *auth.Identity) Decision {
	if e.IsPublic(path) {
		return Allow
	}
	if identity == nil {
		return RedirectToLogin
	}
	for _, rule := range e.rules {
		if !strings.HasPrefix(path, rule.PathPrefix) {
			continue
		}
		if rule.allows(identity.Role) {
			return Allow
		}
		return RedirectToUnauthorized
	}
	return Allow
}

// IsPublic reports whether the path short-circuits all auth checks.
func (e *Engine) IsPublic(path string) bool {
	for _, p := range e.publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range e.publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// HasRule reports whether any configured rule prefix matches the path. Used
// by callers that want to audit default-permit decisions.
func (e *Engine) HasRule(path string) bool {
	for _, rule := range e.rules {
		if strings.HasPrefix(path, rule.PathPrefix) {
			return true
		}
	}
	return false
}
