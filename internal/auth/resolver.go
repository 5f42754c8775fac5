package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "ch_session"

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// Session is a resolved request identity together with its verified claims.
type Session struct {
	Identity *Identity
	Claims   *Claims
}

// Resolver locates a token on a request, verifies it and resolves it to a
// live identity. It is a pure lookup: identities in any status resolve, and
// status enforcement is left to the access policy layer.
type Resolver struct {
	codec *TokenCodec
	store IdentityStore
}

// NewResolver constructs a Resolver.
func NewResolver(codec *TokenCodec, store IdentityStore) *Resolver {
	return &Resolver{codec: codec, store: store}
}

// Resolve returns the session for the request, ErrNoSession when no token is
// present, or ErrInvalidToken when a token is present but does not verify or
// no longer maps to a stored identity. Store failures other than not-found
// propagate unchanged so the caller fails closed.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Session, error) {
	token, ok := TokenFromRequest(req)
	if !ok {
		return nil, ErrNoSession
	}
	claims, err := r.codec.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	identity, err := r.store.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &Session{Identity: identity, Claims: claims}, nil
}

// TokenFromRequest extracts a candidate token, checking the session cookie
// first and the Authorization header second. The first present source wins
// even if its token later fails verification.
func TokenFromRequest(req *http.Request) (string, bool) {
	if cookie, err := req.Cookie(SessionCookieName); err == nil {
		if v := strings.TrimSpace(cookie.Value); v != "" {
			return v, true
		}
	}
	header := strings.TrimSpace(req.Header.Get(authHeader))
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
