package domain

import (
	"fmt"
	"sync"
	"time"
)

// Principal is the authenticated user behind a connection, resolved to the
// patient or doctor id used in chat payloads.
type Principal struct {
	UserID string
	Role   SenderType
	ID     int64
}

// Authorize checks that p speaks as this principal and addresses a room on
// the principal's side.
func (pr *Principal) Authorize(p JoinPayload) error {
	if p.SenderType != "" && SenderType(p.SenderType) != pr.Role {
		return fmt.Errorf("%w: senderType %q", ErrUnauthorized, p.SenderType)
	}
	if p.SenderID.Valid && p.SenderID.Value != pr.ID {
		return fmt.Errorf("%w: senderId %s", ErrUnauthorized, p.SenderID)
	}

	side := p.PatientID
	if pr.Role == SenderDoctor {
		side = p.DoctorID
	}
	if side.Valid && side.Value != pr.ID {
		return fmt.Errorf("%w: not a participant of this room", ErrUnauthorized)
	}
	return nil
}

// Session is the per-connection state kept by the relay.
type Session struct {
	ID           string
	Principal    *Principal
	CreatedAt    time.Time
	LastActiveAt time.Time
	lastPayload  *JoinPayload
	rooms        map[RoomKey]struct{}
	mu           sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
		rooms:        make(map[RoomKey]struct{}),
	}
}

// Authenticate attaches the connection's principal.
func (s *Session) Authenticate(p *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Principal = p
}

// GetPrincipal returns the authenticated principal, or nil.
func (s *Session) GetPrincipal() *Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Principal
}

// Authorize applies the principal check when the connection has one.
func (s *Session) Authorize(p JoinPayload) error {
	pr := s.GetPrincipal()
	if pr == nil {
		return nil
	}
	return pr.Authorize(p)
}

func (s *Session) JoinRoom(key RoomKey, payload JoinPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[key] = struct{}{}
	s.lastPayload = &payload
	s.LastActiveAt = time.Now()
}

func (s *Session) LeaveRoom(key RoomKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, key)
	s.LastActiveAt = time.Now()
}

func (s *Session) IsInRoom(key RoomKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[key]
	return ok
}

// Rooms returns the rooms currently joined.
func (s *Session) Rooms() []RoomKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]RoomKey, 0, len(s.rooms))
	for k := range s.rooms {
		keys = append(keys, k)
	}
	return keys
}

// LastPayload returns the payload of the most recent join.
func (s *Session) LastPayload() (JoinPayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastPayload == nil {
		return JoinPayload{}, false
	}
	return *s.lastPayload, true
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
