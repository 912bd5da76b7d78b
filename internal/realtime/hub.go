package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/teamboard/teamboard-api/internal/metrics"
	"go.uber.org/zap"
)

// sessionBuffer is how many undelivered events a session may lag behind
// before further events to it are dropped.
const sessionBuffer = 64

// Session is one connected push channel for one authenticated user. A user
// may hold several sessions (browser tabs).
type Session struct {
	ID     string
	UserID uint64

	send   chan Event
	closed bool
	mu     sync.Mutex
}

// Events returns the channel the transport drains to the client. The
// channel is closed when the session is unregistered.
func (s *Session) Events() <-chan Event {
	return s.send
}

// push hands an event to the session without blocking. Delivery is
// at-most-once: a session that cannot keep up loses the event and must
// re-sync by refetching state.
func (s *Session) push(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Hub maintains the project-id to session-set mapping ("rooms") and a
// per-user session set for personal notifications. It is created at service
// start and torn down at shutdown; all mutation goes through its mutex.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[uint64]map[*Session]struct{}
	users    map[uint64]map[*Session]struct{}
	sessions map[string]*Session
	shutdown bool

	logger *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:    make(map[uint64]map[*Session]struct{}),
		users:    make(map[uint64]map[*Session]struct{}),
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register creates a session for a user and adds it to the user's personal
// connection set. Returns nil after Shutdown.
func (h *Hub) Register(userID uint64) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return nil
	}

	s := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan Event, sessionBuffer),
	}
	h.sessions[s.ID] = s
	if h.users[userID] == nil {
		h.users[userID] = make(map[*Session]struct{})
	}
	h.users[userID][s] = struct{}{}

	metrics.ConnectedSessions.Inc()
	return s
}

// Unregister removes a session from every room and from its user's set,
// then closes its event channel.
func (h *Hub) Unregister(s *Session) {
	if s == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.sessions[s.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ID)
	for _, room := range h.rooms {
		delete(room, s)
	}
	if set, ok := h.users[s.UserID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.users, s.UserID)
		}
	}
	h.mu.Unlock()

	s.close()
	metrics.ConnectedSessions.Dec()
}

// Get looks up a registered session by id.
func (h *Hub) Get(sessionID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[sessionID]
	return s, ok
}

// JoinProject subscribes a session to a project room. Joining twice is a
// no-op.
func (h *Hub) JoinProject(s *Session, projectID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return
	}
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	if h.rooms[projectID] == nil {
		h.rooms[projectID] = make(map[*Session]struct{})
	}
	h.rooms[projectID][s] = struct{}{}
}

// LeaveProject unsubscribes a session from a project room. Leaving a room
// the session is not in is a no-op.
func (h *Hub) LeaveProject(s *Session, projectID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[projectID]
	if !ok {
		return
	}
	delete(room, s)
	if len(room) == 0 {
		delete(h.rooms, projectID)
	}
}

// BroadcastToProject pushes an event to every session currently in the
// project's room. Best effort: sessions that are gone or lagging receive
// nothing and are expected to re-sync on reconnect.
func (h *Hub) BroadcastToProject(projectID uint64, ev Event) {
	h.mu.RLock()
	room := h.rooms[projectID]
	targets := make([]*Session, 0, len(room))
	for s := range room {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, ev)
	}
}

// SendToUser pushes an event to all of one user's sessions, regardless of
// which rooms they joined.
func (h *Hub) SendToUser(userID uint64, ev Event) {
	h.mu.RLock()
	set := h.users[userID]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, ev)
	}
}

func (h *Hub) deliver(s *Session, ev Event) {
	if s.push(ev) {
		metrics.BroadcastsDelivered.WithLabelValues(string(ev.Type)).Inc()
		return
	}
	metrics.BroadcastsDropped.WithLabelValues(string(ev.Type)).Inc()
	h.logger.Warn("dropped event for session",
		zap.String("session_id", s.ID),
		zap.Uint64("user_id", s.UserID),
		zap.String("event", string(ev.Type)),
	)
}

// RoomSize returns the number of sessions in a project room.
func (h *Hub) RoomSize(projectID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}

// Shutdown force-leaves every session from every room and closes all
// sessions. Further registrations are refused.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return
	}
	h.shutdown = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.rooms = make(map[uint64]map[*Session]struct{})
	h.users = make(map[uint64]map[*Session]struct{})
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
		metrics.ConnectedSessions.Dec()
	}
}
