package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"counselhub.org/internal/audit"
	"counselhub.org/internal/auth"
	"counselhub.org/internal/booking"
	"counselhub.org/internal/policy"
)

// fakeIdentityStore is a map-backed auth.IdentityStore for handler tests.
type fakeIdentityStore struct {
	byID    map[string]*auth.Identity
	byEmail map[string]*auth.Identity
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{
		byID:    map[string]*auth.Identity{},
		byEmail: map[string]*auth.Identity{},
	}
}

func (s *fakeIdentityStore) add(identity *auth.Identity) {
	s.byID[identity.ID] = identity
	s.byEmail[identity.Email] = identity
}

func (s *fakeIdentityStore) Create(ctx context.Context, identity *auth.Identity) error {
	if _, ok := s.byEmail[identity.Email]; ok {
		return auth.ErrAlreadyExists
	}
	s.add(identity)
	return nil
}

func (s *fakeIdentityStore) Find(ctx context.Context, id string) (*auth.Identity, error) {
	identity, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return identity, nil
}

func (s *fakeIdentityStore) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	identity, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return identity, nil
}

func (s *fakeIdentityStore) UpdateStatus(ctx context.Context, id string, status auth.Status) error {
	identity, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.Status = status
	return nil
}

func (s *fakeIdentityStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	identity, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.PasswordHash = passwordHash
	return nil
}

type testEnv struct {
	api       *API
	handler   http.Handler
	store     *fakeIdentityStore
	scheduler *booking.InMemory
	codec     *auth.TokenCodec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	codec, err := auth.NewTokenCodec([]byte("api-test-secret"))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	store := newFakeIdentityStore()
	scheduler := booking.NewInMemory()
	api := New(Config{
		Version:     "test",
		AuthService: auth.NewService(store, codec),
		Resolver:    auth.NewResolver(codec, store),
		Scheduler:   scheduler,
		Engine:      policy.NewEngine(policy.DefaultConfig()),
		Recorder:    audit.NewRecorder(nil),
	})
	// The authorize middleware is the piece under test; the outer logging
	// and rate limit wrappers are covered separately.
	handler := RequestID(api.withAuthorize(api.mux))
	return &testEnv{api: api, handler: handler, store: store, scheduler: scheduler, codec: codec}
}

func (e *testEnv) addIdentity(t *testing.T, id, email, password string, role auth.Role, status auth.Status) *auth.Identity {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	identity := &auth.Identity{ID: id, Email: email, PasswordHash: hash, Role: role, Status: status}
	e.store.add(identity)
	return identity
}

func (e *testEnv) token(t *testing.T, identity *auth.Identity) string {
	t.Helper()
	token, _, err := e.codec.Issue(identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
