package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session binds one client-visible identifier to one live engine connection.
// At most one live connection exists per identifier, and an identifier is
// never reused for a second connection.
type Session struct {
	ID        string
	Conn      Connection
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Registry is the session table. It is the only shared mutable structure in
// this layer; every mutation goes through its mutex. Entries leave the table
// exactly once, always through the connection's own close signal: callers that
// want a session gone close its connection and let the signal do the removal.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// NewRegistry creates an empty registry. If idleTimeout is positive, a
// background sweep closes connections idle for longer than that; the closed
// connections then remove themselves through the normal close signal.
func NewRegistry(idleTimeout time.Duration) *Registry {
	r := &Registry{
		sessions:  make(map[string]*Session),
		stopSweep: make(chan struct{}),
	}
	if idleTimeout > 0 {
		go r.sweep(idleTimeout)
	}
	return r
}

// Add mints a fresh session identifier for conn, registers it, and arranges
// for removal when the connection signals closure.
func (r *Registry) Add(conn Connection) *Session {
	now := time.Now()
	session := &Session{
		ID:        uuid.NewString(),
		Conn:      conn,
		CreatedAt: now,
		lastSeen:  now,
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	conn.OnClose(func() {
		r.mu.Lock()
		delete(r.sessions, session.ID)
		r.mu.Unlock()
	})

	return session
}

// Get returns the live session for id and marks it active. The second return
// is false for identifiers that were never minted or whose connection has
// already closed.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		session.touch()
	}
	return session, ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the sweep and closes every live connection. Removal still
// happens through each connection's close signal.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopSweep) })

	r.mu.RLock()
	conns := make([]Connection, 0, len(r.sessions))
	for _, session := range r.sessions {
		conns = append(conns, session.Conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (r *Registry) sweep(idleTimeout time.Duration) {
	interval := idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopSweep:
			return
		case now := <-ticker.C:
			r.mu.RLock()
			var expired []Connection
			for _, session := range r.sessions {
				if session.idleSince(now) > idleTimeout {
					expired = append(expired, session.Conn)
				}
			}
			r.mu.RUnlock()

			for _, conn := range expired {
				conn.Close()
			}
		}
	}
}
