package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"counselhub.org/internal/audit"
	"counselhub.org/internal/auth"
	"counselhub.org/internal/booking"
	"counselhub.org/internal/obs"
)

type createBookingRequest struct {
	CounsellorID    string `json:"counsellor_id"`
	ClientID        string `json:"client_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type conflictResponse struct {
	Error         string    `json:"error"`
	ConflictStart time.Time `json:"conflict_start"`
	ConflictEnd   time.Time `json:"conflict_end"`
}

func (a *API) handleBookingsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createBooking(w, r)
	case http.MethodGet:
		a.listBookings(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleBookingResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/bookings/")
	if id, ok := strings.CutSuffix(path, "/cancel"); ok && id != "" && !strings.Contains(id, "/") {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.cancelBooking(w, r, id)
		return
	}
	writeError(w, r, http.StatusNotFound, "resource not found")
}

func (a *API) createBooking(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.CounsellorID) == "" {
		writeError(w, r, http.StatusBadRequest, "counsellor_id is required")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "start_time must be RFC 3339")
		return
	}
	if req.DurationMinutes <= 0 {
		writeError(w, r, http.StatusBadRequest, "duration_minutes must be positive")
		return
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = identity.ID
	}

	created, err := a.scheduler.Propose(r.Context(), booking.Proposal{
		CounsellorID:    req.CounsellorID,
		ClientID:        clientID,
		RequesterID:     identity.ID,
		StartTime:       start,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		a.handleBookingError(w, r, err, req.CounsellorID)
		return
	}

	obs.ObserveBookingProposal("accepted")
	a.recorder.Record(r.Context(), &audit.Entry{
		ActorID:    identity.ID,
		Action:     audit.ActionBookingCreate,
		EntityType: "booking",
		EntityID:   created.ID,
		Details: map[string]string{
			"counsellor_id": created.CounsellorID,
			"start_time":    created.StartTime.Format(time.RFC3339),
		},
	})

	w.Header().Set("Location", "/bookings/"+created.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"booking": created})
}

func (a *API) listBookings(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	counsellorID := strings.TrimSpace(r.URL.Query().Get("counsellor_id"))
	if counsellorID == "" {
		writeError(w, r, http.StatusBadRequest, "counsellor_id is required")
		return
	}

	// Counsellors see their own schedule; admins see any.
	switch identity.Role {
	case auth.RoleAdmin:
	case auth.RoleCounsellor:
		if counsellorID != identity.ID {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
	default:
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}

	list, err := a.scheduler.ListScheduled(r.Context(), counsellorID)
	if err != nil {
		a.handleBookingError(w, r, err, counsellorID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": list,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) cancelBooking(w http.ResponseWriter, r *http.Request, id string) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	cancelled, err := a.scheduler.Cancel(r.Context(), id, identity.ID, identity.Role == auth.RoleAdmin)
	if err != nil {
		a.handleBookingError(w, r, err, "")
		return
	}

	a.recorder.Record(r.Context(), &audit.Entry{
		ActorID:    identity.ID,
		Action:     audit.ActionBookingCancel,
		EntityType: "booking",
		EntityID:   cancelled.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"booking": cancelled})
}

func (a *API) handleBookingError(w http.ResponseWriter, r *http.Request, err error, counsellorID string) {
	var conflict *booking.ConflictError
	switch {
	case errors.As(err, &conflict):
		obs.ObserveBookingProposal("conflict")
		entry := &audit.Entry{
			Action:     audit.ActionBookingDenied,
			EntityType: "booking",
			Details:    map[string]string{"counsellor_id": counsellorID},
		}
		a.recorder.Record(r.Context(), entry)
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:         "slot conflicts with an existing booking",
			ConflictStart: conflict.Existing.StartTime,
			ConflictEnd:   conflict.Existing.EndTime(),
		})
	case errors.Is(err, booking.ErrInvalidDuration):
		obs.ObserveBookingProposal("rejected")
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrCounsellorNotFound):
		obs.ObserveBookingProposal("rejected")
		writeError(w, r, http.StatusNotFound, "counsellor not found")
	case errors.Is(err, booking.ErrClientNotAuthorized):
		obs.ObserveBookingProposal("rejected")
		writeError(w, r, http.StatusForbidden, "not authorized for this client")
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "booking not found")
	case errors.Is(err, booking.ErrNotCancellable):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		// Store failures surface as 500 rather than a false acceptance.
		obs.ObserveBookingProposal("error")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
