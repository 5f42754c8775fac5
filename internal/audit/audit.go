// Package audit records security-relevant events: logins, logouts, denied
// access, booking outcomes. Entries are append-only and never mutated.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"counselhub.org/internal/auth"
	"counselhub.org/internal/obs"
)

// Well-known audit actions emitted by the core.
const (
	ActionLoginSuccess  = "auth.login.success"
	ActionLoginFailure  = "auth.login.failure"
	ActionLogout        = "auth.logout"
	ActionAccessDenied  = "access.denied"
	ActionDefaultPermit = "access.default_permit"
	ActionBookingCreate = "booking.create"
	ActionBookingDenied = "booking.conflict"
	ActionBookingCancel = "booking.cancel"
)

// Entry is one append-only audit record.
type Entry struct {
	ID         string            `json:"id"`
	OccurredAt time.Time         `json:"occurred_at"`
	ActorID    string            `json:"actor_id,omitempty"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// Sink persists audit entries.
type Sink interface {
	Append(ctx context.Context, entry *Entry) error
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Recorder writes entries to a sink and falls back to the structured log when
// the sink fails. A sink failure never propagates: audit is synchronous but
// must not corrupt request handling.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// NewRecorder constructs a Recorder. A nil sink records to the log only.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// Record fills defaults, persists the entry and emits a structured log line.
func (r *Recorder) Record(ctx context.Context, entry *Entry) {
	if entry == nil || strings.TrimSpace(entry.Action) == "" {
		return
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	if entry.ActorID == "" {
		if identity, ok := auth.IdentityFromContext(ctx); ok {
			entry.ActorID = identity.ID
		}
	}
	if r.sink != nil {
		if err := r.sink.Append(ctx, entry); err != nil {
			obs.LogRequest(map[string]any{
				"ts":     r.now().UTC().Format(time.RFC3339Nano),
				"level":  "error",
				"msg":    "audit append failed",
				"action": entry.Action,
				"error":  err.Error(),
			})
		}
	}
	fields := map[string]any{}
	for k, v := range entry.Details {
		fields[k] = v
	}
	_ = LogEvent(ctx, entry.Action, fields)
}

// LogEvent writes an audit log line enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		entry["actor_id"] = identity.ID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
