package booking

import (
	"context"
	"sync"
	"time"

	"counselhub.org/internal/ids"
)

// Service defines scheduling operations. The check-then-create inside Propose
// is atomic per counsellor: two concurrent proposals for overlapping slots on
// the same counsellor never both succeed.
type Service interface {
	Propose(ctx context.Context, p Proposal) (Booking, error)
	Cancel(ctx context.Context, id, requesterID string, admin bool) (Booking, error)
	ListScheduled(ctx context.Context, counsellorID string) ([]Booking, error)
}

// InMemory implements Service with in-process concurrency safety. Used in
// tests and single-node deployments without Postgres.
type InMemory struct {
	mu          sync.RWMutex
	counsellors map[string]struct{}
	clients     map[string]string // client id -> primary account id
	bookings    map[string]*Booking

	// One lock per counsellor so unrelated counsellors' proposals never
	// contend with each other.
	slotMu    sync.Mutex
	slotLocks map[string]*sync.Mutex
}

// NewInMemory creates an empty scheduler.
func NewInMemory() *InMemory {
	return &InMemory{
		counsellors: make(map[string]struct{}),
		clients:     make(map[string]string),
		bookings:    make(map[string]*Booking),
		slotLocks:   make(map[string]*sync.Mutex),
	}
}

// RegisterCounsellor records a known counsellor profile.
func (s *InMemory) RegisterCounsellor(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counsellors[id] = struct{}{}
}

// RegisterClient records a client profile. primaryAccountID is the account
// allowed to book on the client's behalf; pass the client's own id when the
// client holds its own account.
func (s *InMemory) RegisterClient(id, primaryAccountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[id] = primaryAccountID
}

func (s *InMemory) lockCounsellor(id string) *sync.Mutex {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	lock, ok := s.slotLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.slotLocks[id] = lock
	}
	return lock
}

func (s *InMemory) Propose(ctx context.Context, p Proposal) (Booking, error) {
	if p.DurationMinutes <= 0 {
		return Booking{}, ErrInvalidDuration
	}
	start := p.StartTime.UTC()
	end := start.Add(time.Duration(p.DurationMinutes) * time.Minute)

	s.mu.RLock()
	_, counsellorKnown := s.counsellors[p.CounsellorID]
	primary, clientKnown := s.clients[p.ClientID]
	s.mu.RUnlock()

	if !counsellorKnown {
		return Booking{}, ErrCounsellorNotFound
	}
	if p.RequesterID != p.ClientID {
		if !clientKnown || primary != p.RequesterID {
			return Booking{}, ErrClientNotAuthorized
		}
	}

	lock := s.lockCounsellor(p.CounsellorID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.bookings {
		if existing.CounsellorID != p.CounsellorID || existing.Status != StatusScheduled {
			continue
		}
		if existing.Overlaps(start, end) {
			return Booking{}, &ConflictError{Existing: *existing}
		}
	}

	created := &Booking{
		ID:              ids.New(),
		CounsellorID:    p.CounsellorID,
		ClientID:        p.ClientID,
		StartTime:       start,
		DurationMinutes: p.DurationMinutes,
		Status:          StatusScheduled,
		CreatedAt:       time.Now().UTC(),
	}
	s.bookings[created.ID] = created
	return *created, nil
}

func (s *InMemory) Cancel(ctx context.Context, id, requesterID string, admin bool) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	if !admin && !s.mayActOn(existing, requesterID) {
		return Booking{}, ErrClientNotAuthorized
	}
	if existing.Status != StatusScheduled {
		return Booking{}, ErrNotCancellable
	}
	existing.Status = StatusCancelled
	return *existing, nil
}

// mayActOn reports whether the requester is the booking's client, its primary
// account, or the counsellor. Caller holds mu.
func (s *InMemory) mayActOn(b *Booking, requesterID string) bool {
	if requesterID == b.ClientID || requesterID == b.CounsellorID {
		return true
	}
	return s.clients[b.ClientID] == requesterID
}

func (s *InMemory) ListScheduled(ctx context.Context, counsellorID string) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.counsellors[counsellorID]; !ok {
		return nil, ErrCounsellorNotFound
	}
	var res []Booking
	for _, b := range s.bookings {
		if b.CounsellorID == counsellorID && b.Status == StatusScheduled {
			res = append(res, *b)
		}
	}
	return res, nil
}
