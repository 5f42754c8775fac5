package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"counselhub.org/internal/booking"
	"counselhub.org/internal/ids"
)

// Store implements booking.Service on PostgreSQL. The check-then-create in
// Propose runs in a serializable transaction that locks the counsellor
// profile row, so concurrent proposals for one counsellor serialize while
// unrelated counsellors proceed without contention. The bookings table also
// carries an exclusion constraint on (counsellor, interval) as a backstop.
type Store struct {
	db *sql.DB
}

var _ booking.Service = (*Store)(nil)

// exclusionViolation is raised when the overlap backstop constraint fires.
const exclusionViolation = "23P01"

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Propose(ctx context.Context, p booking.Proposal) (booking.Booking, error) {
	if p.DurationMinutes <= 0 {
		return booking.Booking{}, booking.ErrInvalidDuration
	}
	start := p.StartTime.UTC()
	end := start.Add(time.Duration(p.DurationMinutes) * time.Minute)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return booking.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the counsellor row first: this both verifies existence and
	// serializes concurrent proposals for the same counsellor.
	var dummy int
	err = tx.QueryRowContext(ctx,
		`select 1 from counsellor_profiles where id = $1 for update`, p.CounsellorID).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrCounsellorNotFound
	}
	if err != nil {
		return booking.Booking{}, err
	}

	if p.RequesterID != p.ClientID {
		var primary string
		err = tx.QueryRowContext(ctx,
			`select primary_account_id from client_profiles where id = $1`, p.ClientID).Scan(&primary)
		if errors.Is(err, sql.ErrNoRows) {
			return booking.Booking{}, booking.ErrClientNotAuthorized
		}
		if err != nil {
			return booking.Booking{}, err
		}
		if primary != p.RequesterID {
			return booking.Booking{}, booking.ErrClientNotAuthorized
		}
	}

	// Half-open overlap test: new.start < existing.end AND existing.start < new.end.
	var existing booking.Booking
	err = tx.QueryRowContext(ctx, `
		select id, client_id, start_time, duration_minutes
		from bookings
		where counsellor_id = $1
		  and status = 'scheduled'
		  and start_time < $3
		  and start_time + make_interval(mins => duration_minutes) > $2
		order by start_time
		limit 1
	`, p.CounsellorID, start, end).Scan(&existing.ID, &existing.ClientID, &existing.StartTime, &existing.DurationMinutes)
	if err == nil {
		existing.CounsellorID = p.CounsellorID
		existing.Status = booking.StatusScheduled
		return booking.Booking{}, &booking.ConflictError{Existing: existing}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, err
	}

	created := booking.Booking{
		ID:              ids.New(),
		CounsellorID:    p.CounsellorID,
		ClientID:        p.ClientID,
		StartTime:       start,
		DurationMinutes: p.DurationMinutes,
		Status:          booking.StatusScheduled,
	}
	err = tx.QueryRowContext(ctx, `
		insert into bookings(id, counsellor_id, client_id, start_time, duration_minutes, status)
		values ($1, $2, $3, $4, $5, 'scheduled')
		returning created_at
	`, created.ID, created.CounsellorID, created.ClientID, created.StartTime, created.DurationMinutes).
		Scan(&created.CreatedAt)
	if err != nil {
		return booking.Booking{}, conflictFromConstraint(err)
	}

	if err := tx.Commit(); err != nil {
		return booking.Booking{}, conflictFromConstraint(err)
	}
	return created, nil
}

func (s *Store) Cancel(ctx context.Context, id, requesterID string, admin bool) (booking.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return booking.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		b      booking.Booking
		status string
	)
	err = tx.QueryRowContext(ctx, `
		select id, counsellor_id, client_id, start_time, duration_minutes, status, created_at
		from bookings where id = $1 for update
	`, id).Scan(&b.ID, &b.CounsellorID, &b.ClientID, &b.StartTime, &b.DurationMinutes, &status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.Booking{}, err
	}
	b.Status = booking.Status(status)

	if !admin && requesterID != b.ClientID && requesterID != b.CounsellorID {
		var primary string
		err = tx.QueryRowContext(ctx,
			`select primary_account_id from client_profiles where id = $1`, b.ClientID).Scan(&primary)
		if errors.Is(err, sql.ErrNoRows) {
			return booking.Booking{}, booking.ErrClientNotAuthorized
		}
		if err != nil {
			return booking.Booking{}, err
		}
		if primary != requesterID {
			return booking.Booking{}, booking.ErrClientNotAuthorized
		}
	}
	if b.Status != booking.StatusScheduled {
		return booking.Booking{}, booking.ErrNotCancellable
	}

	if _, err := tx.ExecContext(ctx,
		`update bookings set status = 'cancelled' where id = $1`, id); err != nil {
		return booking.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return booking.Booking{}, err
	}
	b.Status = booking.StatusCancelled
	return b, nil
}

func (s *Store) ListScheduled(ctx context.Context, counsellorID string) ([]booking.Booking, error) {
	var dummy int
	err := s.db.QueryRowContext(ctx,
		`select 1 from counsellor_profiles where id = $1`, counsellorID).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrCounsellorNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, counsellor_id, client_id, start_time, duration_minutes, status, created_at
		from bookings
		where counsellor_id = $1 and status = 'scheduled'
		order by start_time asc
	`, counsellorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []booking.Booking
	for rows.Next() {
		var (
			b      booking.Booking
			status string
		)
		if err := rows.Scan(&b.ID, &b.CounsellorID, &b.ClientID, &b.StartTime,
			&b.DurationMinutes, &status, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Status = booking.Status(status)
		res = append(res, b)
	}
	return res, rows.Err()
}

// conflictFromConstraint maps an exclusion-constraint violation, the backstop
// for a race the row lock did not cover, onto the domain conflict error.
func conflictFromConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return &booking.ConflictError{}
	}
	return err
}
