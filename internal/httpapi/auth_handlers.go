package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"counselhub.org/internal/audit"
	"counselhub.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	RedirectPath string    `json:"redirect_path"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// landingPath is where each role lands after login.
func landingPath(role auth.Role) string {
	switch role {
	case auth.RoleAdmin:
		return "/admin/dashboard"
	case auth.RoleCounsellor:
		return "/counsellor/schedule"
	case auth.RoleOrgContact:
		return "/org/overview"
	default:
		return "/client/home"
	}
}

func (a *API) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	token, expiresAt, identity, err := a.authSvc.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		// One generic answer for unknown email and wrong password.
		a.recorder.Record(r.Context(), &audit.Entry{
			Action:  audit.ActionLoginFailure,
			Details: map[string]string{"reason": "invalid_credentials"},
		})
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	case errors.Is(err, auth.ErrAccountDisabled):
		a.recorder.Record(r.Context(), &audit.Entry{
			Action:  audit.ActionLoginFailure,
			Details: map[string]string{"reason": "account_disabled"},
		})
		writeError(w, r, http.StatusForbidden, "account disabled")
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	a.recorder.Record(r.Context(), &audit.Entry{
		ActorID:    identity.ID,
		Action:     audit.ActionLoginSuccess,
		EntityType: "identity",
		EntityID:   identity.ID,
		Details:    map[string]string{"role": string(identity.Role)},
	})

	http.SetCookie(w, a.sessionCookie(token, int(a.authSvc.Codec().TTL().Seconds())))
	writeJSON(w, http.StatusOK, loginResponse{
		Token:        token,
		ExpiresAt:    expiresAt,
		RedirectPath: landingPath(identity.Role),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// The server holds no revocable session state; logout just expires the
	// client-held cookie.
	entry := &audit.Entry{Action: audit.ActionLogout}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		entry.ActorID = identity.ID
	}
	a.recorder.Record(r.Context(), entry)

	http.SetCookie(w, a.sessionCookie("", -1))
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	payload := map[string]any{"identity": identity}
	if token, ok := auth.TokenFromContext(r.Context()); ok {
		if claims, err := a.authSvc.Codec().Verify(token); err == nil && claims.ExpiresAt != nil {
			payload["session_expires_at"] = claims.ExpiresAt.Time.UTC()
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if role == auth.RoleAdmin {
		// Admin accounts are provisioned operationally, not self-registered.
		writeError(w, r, http.StatusBadRequest, "role not available for registration")
		return
	}

	identity, err := a.authSvc.Register(r.Context(), req.Email, req.Password, role)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "email already registered")
		return
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"identity": identity})
}
