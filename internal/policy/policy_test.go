package policy

import (
	"testing"

	"counselhub.org/internal/auth"
)

func client() *auth.Identity {
	return &auth.Identity{ID: "c1", Role: auth.RoleClient, Status: auth.StatusActive}
}

func admin() *auth.Identity {
	return &auth.Identity{ID: "a1", Role: auth.RoleAdmin, Status: auth.StatusActive}
}

func TestDecidePublicShortCircuits(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	for _, path := range []string{"/", "/login", "/register", "/unauthorized", "/static/app.css", "/assets/logo.png"} {
		if got := engine.Decide(path, nil); got != Allow {
			t.Fatalf("Decide(%q, nil)=%v, want Allow", path, got)
		}
		// Public stays public even for an authenticated identity.
		if got := engine.Decide(path, client()); got != Allow {
			t.Fatalf("Decide(%q, client)=%v, want Allow", path, got)
		}
	}
}

func TestDecideNoSessionRedirectsToLogin(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	if got := engine.Decide("/admin/users", nil); got != RedirectToLogin {
		t.Fatalf("Decide(/admin/users, nil)=%v, want RedirectToLogin", got)
	}
}

func TestDecideWrongRoleRedirectsToUnauthorized(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	if got := engine.Decide("/admin/users", client()); got != RedirectToUnauthorized {
		t.Fatalf("Decide(/admin/users, client)=%v, want RedirectToUnauthorized", got)
	}
	if got := engine.Decide("/admin/users", admin()); got != Allow {
		t.Fatalf("Decide(/admin/users, admin)=%v, want Allow", got)
	}
}

func TestDecideFirstMatchingRuleGoverns(t *testing.T) {
	engine := NewEngine(Config{
		Rules: []Rule{
			{PathPrefix: "/area", AllowedRoles: []auth.Role{auth.RoleAdmin}},
			{PathPrefix: "/area/open", AllowedRoles: []auth.Role{auth.RoleClient}},
		},
	})
	// Declaration order, not longest prefix, decides.
	if got := engine.Decide("/area/open/page", client()); got != RedirectToUnauthorized {
		t.Fatalf("expected first rule to govern, got %v", got)
	}
}

func TestDecideUnlistedPathDefaultPermits(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	if got := engine.Decide("/about/team", client()); got != Allow {
		t.Fatalf("Decide(/about/team, client)=%v, want Allow (default-permit)", got)
	}
	if engine.HasRule("/about/team") {
		t.Fatal("expected no rule for /about/team")
	}
	// Unlisted still requires a session.
	if got := engine.Decide("/about/team", nil); got != RedirectToLogin {
		t.Fatalf("Decide(/about/team, nil)=%v, want RedirectToLogin", got)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	first := engine.Decide("/counsellor/schedule", client())
	for i := 0; i < 100; i++ {
		if got := engine.Decide("/counsellor/schedule", client()); got != first {
			t.Fatalf("decision changed across calls: %v then %v", first, got)
		}
	}
}

func TestEngineCopiesConfig(t *testing.T) {
	cfg := Config{Rules: []Rule{{PathPrefix: "/admin", AllowedRoles: []auth.Role{auth.RoleAdmin}}}}
	engine := NewEngine(cfg)
	cfg.Rules[0].AllowedRoles[0] = auth.RoleClient

	if got := engine.Decide("/admin/x", client()); got != RedirectToUnauthorized {
		t.Fatalf("engine shared caller's slices: %v", got)
	}
}
