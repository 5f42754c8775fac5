package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"counselhub.org/internal/ids"
)

var _ IdentityStore = (*PGIdentityStore)(nil)

const uniqueViolation = "23505"

// PGIdentityStore implements IdentityStore using PostgreSQL.
type PGIdentityStore struct {
	db *sql.DB
}

func NewPGIdentityStore(db *sql.DB) *PGIdentityStore {
	return &PGIdentityStore{db: db}
}

func (s *PGIdentityStore) Create(ctx context.Context, identity *Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into identities(id, email, password_hash, role, status)
		 values($1, $2, $3, $4, $5)`,
		identity.ID, identity.Email, identity.PasswordHash, string(identity.Role), string(identity.Status),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

func (s *PGIdentityStore) Find(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, status, created_at, updated_at
		 from identities where id = $1`, id)
	return scanIdentity(row)
}

func (s *PGIdentityStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, status, created_at, updated_at
		 from identities where email = $1`, email)
	return scanIdentity(row)
}

func (s *PGIdentityStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set status = $2, updated_at = now() where id = $1`,
		id, string(status))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGIdentityStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set password_hash = $2, updated_at = now() where id = $1`,
		id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var (
		identity     Identity
		role, status string
	)
	err := row.Scan(&identity.ID, &identity.Email, &identity.PasswordHash,
		&role, &status, &identity.CreatedAt, &identity.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if identity.Role, err = ParseRole(role); err != nil {
		return nil, err
	}
	if identity.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	return &identity, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
