package httpapi

import (
	"errors"
	"net/http"

	"counselhub.org/internal/audit"
	"counselhub.org/internal/auth"
	"counselhub.org/internal/obs"
	"counselhub.org/internal/policy"
)

const (
	loginPath        = "/login"
	unauthorizedPath = "/unauthorized"
)

// withAuthorize resolves the session and gates the request against the access
// policy before any handler runs. Session resolution always completes before
// the policy decision, which always completes before the handler.
func (a *API) withAuthorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		var identity *auth.Identity
		session, err := a.resolver.Resolve(r.Context(), r)
		switch {
		case err == nil:
			identity = session.Identity
		case errors.Is(err, auth.ErrNoSession), errors.Is(err, auth.ErrInvalidToken):
			// Both fall through with no identity; the policy layer decides.
		default:
			// Store unreachable or similar: fail closed, never default-permit.
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		path := r.URL.Path
		decision := a.engine.Decide(path, identity)

		// Policy rules check roles; lifecycle status is enforced here so a
		// token issued before a suspension stops working at the next request.
		if decision == policy.Allow && identity != nil &&
			identity.Status != auth.StatusActive && !a.engine.IsPublic(path) {
			decision = policy.RedirectToUnauthorized
		}

		switch decision {
		case policy.Allow:
			obs.ObserveAccessDecision("allow")
			if identity != nil && !a.engine.IsPublic(path) && !a.engine.HasRule(path) {
				a.recorder.Record(r.Context(), &audit.Entry{
					ActorID: identity.ID,
					Action:  audit.ActionDefaultPermit,
					Details: map[string]string{"path": path},
				})
			}
			ctx := r.Context()
			if identity != nil {
				ctx = auth.ContextWithIdentity(ctx, identity)
				if token, ok := auth.TokenFromRequest(r); ok {
					ctx = auth.ContextWithToken(ctx, token)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))

		case policy.RedirectToLogin:
			obs.ObserveAccessDecision("login")
			a.recorder.Record(r.Context(), &audit.Entry{
				Action:  audit.ActionAccessDenied,
				Details: map[string]string{"path": path, "reason": "no_session"},
			})
			if wantsHTML(r) {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			writeError(w, r, http.StatusUnauthorized, "authentication required")

		case policy.RedirectToUnauthorized:
			obs.ObserveAccessDecision("unauthorized")
			entry := &audit.Entry{
				Action:  audit.ActionAccessDenied,
				Details: map[string]string{"path": path, "reason": "role_not_allowed"},
			}
			if identity != nil {
				entry.ActorID = identity.ID
				entry.Details["role"] = string(identity.Role)
			}
			a.recorder.Record(r.Context(), entry)
			if wantsHTML(r) {
				http.Redirect(w, r, unauthorizedPath, http.StatusSeeOther)
				return
			}
			writeError(w, r, http.StatusForbidden, "access denied")
		}
	})
}
