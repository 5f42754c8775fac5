package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"counselhub.org/internal/auth"
)

func bookingEnv(t *testing.T) (*testEnv, *auth.Identity, *auth.Identity) {
	t.Helper()
	env := newTestEnv(t)
	counsellor := env.addIdentity(t, "id-coun", "coun@example.org", "pw123456", auth.RoleCounsellor, auth.StatusActive)
	client := env.addIdentity(t, "id-client", "client@example.org", "pw123456", auth.RoleClient, auth.StatusActive)
	env.scheduler.RegisterCounsellor(counsellor.ID)
	env.scheduler.RegisterClient(client.ID, client.ID)
	return env, counsellor, client
}

func proposalBody(counsellorID string, start time.Time, minutes int) string {
	return fmt.Sprintf(`{"counsellor_id":%q,"start_time":%q,"duration_minutes":%d}`,
		counsellorID, start.Format(time.RFC3339), minutes)
}

func TestCreateBookingAccepted(t *testing.T) {
	env, counsellor, client := bookingEnv(t)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	rr := doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody(counsellor.ID, start, 60), env.token(t, client))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Booking struct {
			ID           string    `json:"id"`
			CounsellorID string    `json:"counsellor_id"`
			ClientID     string    `json:"client_id"`
			StartTime    time.Time `json:"start_time"`
			Status       string    `json:"status"`
		} `json:"booking"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Booking.ID == "" {
		t.Fatal("expected booking id")
	}
	if body.Booking.ClientID != client.ID {
		t.Fatalf("client_id = %q, want %q", body.Booking.ClientID, client.ID)
	}
	if !body.Booking.StartTime.Equal(start) {
		t.Fatalf("start_time = %v, want %v", body.Booking.StartTime, start)
	}
	if body.Booking.Status != "scheduled" {
		t.Fatalf("status = %q, want scheduled", body.Booking.Status)
	}
}

func TestCreateBookingConflict(t *testing.T) {
	env, counsellor, client := bookingEnv(t)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	first := doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody(counsellor.ID, start, 60), env.token(t, client))
	if first.Code != http.StatusCreated {
		t.Fatalf("first booking = %d, want 201, body %s", first.Code, first.Body.String())
	}

	second := doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody(counsellor.ID, start.Add(30*time.Minute), 60), env.token(t, client))
	if second.Code != http.StatusConflict {
		t.Fatalf("overlapping booking = %d, want 409, body %s", second.Code, second.Body.String())
	}

	var body struct {
		Error         string    `json:"error"`
		ConflictStart time.Time `json:"conflict_start"`
		ConflictEnd   time.Time `json:"conflict_end"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.ConflictStart.Equal(start) {
		t.Fatalf("conflict_start = %v, want %v", body.ConflictStart, start)
	}
	if !body.ConflictEnd.Equal(start.Add(60 * time.Minute)) {
		t.Fatalf("conflict_end = %v, want %v", body.ConflictEnd, start.Add(60*time.Minute))
	}
}

func TestCreateBookingUnknownCounsellor(t *testing.T) {
	env, _, client := bookingEnv(t)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	rr := doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody("id-nobody", start, 60), env.token(t, client))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestCreateBookingInvalidDuration(t *testing.T) {
	env, counsellor, client := bookingEnv(t)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	rr := doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody(counsellor.ID, start, 0), env.token(t, client))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateBookingForOtherClientDenied(t *testing.T) {
	env, counsellor, client := bookingEnv(t)
	other := env.addIdentity(t, "id-other", "other@example.org", "pw123456", auth.RoleClient, auth.StatusActive)
	env.scheduler.RegisterClient(other.ID, other.ID)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	body := fmt.Sprintf(`{"counsellor_id":%q,"client_id":%q,"start_time":%q,"duration_minutes":60}`,
		counsellor.ID, other.ID, start.Format(time.RFC3339))
	rr := doJSON(t, env.handler, http.MethodPost, "/bookings", body, env.token(t, client))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestListBookingsAsCounsellor(t *testing.T) {
	env, counsellor, client := bookingEnv(t)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	created := doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody(counsellor.ID, start, 60), env.token(t, client))
	if created.Code != http.StatusCreated {
		t.Fatalf("create = %d, body %s", created.Code, created.Body.String())
	}

	rr := doJSON(t, env.handler, http.MethodGet, "/bookings?counsellor_id="+counsellor.ID,
		"", env.token(t, counsellor))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(body.Items))
	}
}

func TestListBookingsOtherCounsellorDenied(t *testing.T) {
	env, counsellor, _ := bookingEnv(t)
	rival := env.addIdentity(t, "id-rival", "rival@example.org", "pw123456", auth.RoleCounsellor, auth.StatusActive)
	env.scheduler.RegisterCounsellor(rival.ID)

	rr := doJSON(t, env.handler, http.MethodGet, "/bookings?counsellor_id="+counsellor.ID,
		"", env.token(t, rival))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestListBookingsAsAdmin(t *testing.T) {
	env, counsellor, client := bookingEnv(t)
	admin := env.addIdentity(t, "id-admin", "admin@example.org", "pw123456", auth.RoleAdmin, auth.StatusActive)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody(counsellor.ID, start, 60), env.token(t, client))

	rr := doJSON(t, env.handler, http.MethodGet, "/bookings?counsellor_id="+counsellor.ID,
		"", env.token(t, admin))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rr.Code, rr.Body.String())
	}
}

func TestCancelBookingFreesSlot(t *testing.T) {
	env, counsellor, client := bookingEnv(t)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	created := doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody(counsellor.ID, start, 60), env.token(t, client))
	if created.Code != http.StatusCreated {
		t.Fatalf("create = %d, body %s", created.Code, created.Body.String())
	}
	var body struct {
		Booking struct {
			ID string `json:"id"`
		} `json:"booking"`
	}
	if err := json.Unmarshal(created.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	cancelled := doJSON(t, env.handler, http.MethodPost, "/bookings/"+body.Booking.ID+"/cancel",
		"", env.token(t, client))
	if cancelled.Code != http.StatusOK {
		t.Fatalf("cancel = %d, want 200, body %s", cancelled.Code, cancelled.Body.String())
	}

	rebooked := doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody(counsellor.ID, start, 60), env.token(t, client))
	if rebooked.Code != http.StatusCreated {
		t.Fatalf("rebook after cancel = %d, want 201, body %s", rebooked.Code, rebooked.Body.String())
	}
}

func TestCancelBookingByStrangerDenied(t *testing.T) {
	env, counsellor, client := bookingEnv(t)
	stranger := env.addIdentity(t, "id-stranger", "stranger@example.org", "pw123456", auth.RoleClient, auth.StatusActive)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	created := doJSON(t, env.handler, http.MethodPost, "/bookings",
		proposalBody(counsellor.ID, start, 60), env.token(t, client))
	var body struct {
		Booking struct {
			ID string `json:"id"`
		} `json:"booking"`
	}
	if err := json.Unmarshal(created.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	rr := doJSON(t, env.handler, http.MethodPost, "/bookings/"+body.Booking.ID+"/cancel",
		"", env.token(t, stranger))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestCancelUnknownBooking(t *testing.T) {
	env, _, client := bookingEnv(t)

	rr := doJSON(t, env.handler, http.MethodPost, "/bookings/no-such-id/cancel",
		"", env.token(t, client))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
