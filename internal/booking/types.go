package booking

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a booking. Time and counsellor fields are
// immutable after creation; a reschedule is a cancel plus a new booking.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Booking is a counselling session occupying [StartTime, EndTime).
type Booking struct {
	ID              string    `json:"id"`
	CounsellorID    string    `json:"counsellor_id"`
	ClientID        string    `json:"client_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// EndTime is the exclusive end of the booked interval.
func (b Booking) EndTime() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Overlaps reports whether [start, end) shares any instant with the booking.
// The half-open inequality covers partial overlap in either direction and
// full containment in one test.
func (b Booking) Overlaps(start, end time.Time) bool {
	return start.Before(b.EndTime()) && b.StartTime.Before(end)
}

// Proposal is a client-initiated booking request. RequesterID is the identity
// making the HTTP request; ClientID may be a secondary client registered
// under the requester's primary account.
type Proposal struct {
	CounsellorID    string
	ClientID        string
	RequesterID     string
	StartTime       time.Time
	DurationMinutes int
}

var (
	ErrInvalidDuration     = errors.New("booking: duration must be positive")
	ErrCounsellorNotFound  = errors.New("booking: counsellor not found")
	ErrClientNotAuthorized = errors.New("booking: client not authorized")
	ErrNotFound            = errors.New("booking: not found")
	ErrNotCancellable      = errors.New("booking: not in a cancellable state")
)

// ConflictError reports the existing scheduled booking that overlaps the
// proposed interval. The interval is non-sensitive and is surfaced to callers.
type ConflictError struct {
	Existing Booking
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking: conflicts with existing booking [%s, %s)",
		e.Existing.StartTime.Format(time.RFC3339), e.Existing.EndTime().Format(time.RFC3339))
}
