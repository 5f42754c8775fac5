package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"counselhub.org/internal/ids"
)

var _ Sink = (*PGSink)(nil)

// PGSink appends audit entries to PostgreSQL.
type PGSink struct {
	db *sql.DB
}

func NewPGSink(db *sql.DB) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	details, _ := json.Marshal(entry.Details)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, actor_id, action, entity_type, entity_id, details)
		 values($1, $2, nullif($3, ''), $4, nullif($5, ''), nullif($6, ''), $7)`,
		entry.ID, entry.OccurredAt, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, details,
	)
	return err
}
