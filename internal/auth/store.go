package auth

import "context"

// IdentityStore describes persistence operations required by the auth
// subsystem. Identities are soft-deleted only, via status transitions.
type IdentityStore interface {
	Create(ctx context.Context, identity *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
