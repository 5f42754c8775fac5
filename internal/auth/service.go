package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"counselhub.org/internal/ids"
)

// Service bundles credential verification and token issuance.
type Service struct {
	store IdentityStore
	codec *TokenCodec
	now   func() time.Time
}

// NewService constructs a Service around an identity store and token codec.
func NewService(store IdentityStore, codec *TokenCodec) *Service {
	return &Service{store: store, codec: codec, now: time.Now}
}

// Codec exposes the underlying token codec.
func (s *Service) Codec() *TokenCodec { return s.codec }

// Login verifies credentials and issues a session token. Unknown email and
// wrong password are indistinguishable to the caller (ErrInvalidCredentials)
// to avoid account enumeration; a non-active account with correct credentials
// is the one distinguishable failure (ErrAccountDisabled).
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, *Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", time.Time{}, nil, ErrInvalidCredentials
	}
	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, nil, ErrInvalidCredentials
		}
		return "", time.Time{}, nil, err
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return "", time.Time{}, nil, ErrInvalidCredentials
	}
	if identity.Status != StatusActive {
		return "", time.Time{}, nil, ErrAccountDisabled
	}
	token, expiresAt, err := s.codec.Issue(identity)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, expiresAt, identity, nil
}

// Register creates a pending identity with a freshly hashed credential.
func (s *Service) Register(ctx context.Context, email, password string, role Role) (*Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	identity := &Identity{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}
