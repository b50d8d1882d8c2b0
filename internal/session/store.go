// ABOUTME: Thread-safe session registry with TTL expiry and a capacity bound.
// ABOUTME: Sessions are keyed by platform+user and evicted least-recently-active first.

package session

import (
	"container/list"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// ErrCapacity is returned when the store is full and every resident session
// is pinned by an in-flight request, so nothing can be evicted.
var ErrCapacity = errors.New("session store at capacity")

// Session is one logical conversation thread bound to a platform+user pair.
type Session struct {
	ID           string
	Platform     string
	UserID       string
	Nickname     string
	CreatedAt    time.Time
	LastActivity time.Time
	MessageCount int
}

// Key builds the session ID for a platform+user pair.
func Key(platform, userID string) string {
	return platform + "_" + userID
}

// entry stores the session and its recency-list element.
// inflight counts requests currently being served through the session;
// a pinned session is never evicted.
type entry struct {
	sess     *Session
	element  *list.Element
	inflight int
}

// Store provides a thread-safe, TTL-based, size-limited registry of active
// sessions. A doubly-linked list maintains activity order for O(1) eviction
// of the least-recently-active session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	order    *list.List // session IDs in activity order (least recent at front)
	ttl      time.Duration
	maxSize  int
	logger   *slog.Logger
	done     chan struct{}
	closed   bool
}

// NewStore creates a session store with the given TTL and capacity.
// A background goroutine sweeps expired sessions every sweepInterval.
func NewStore(ttl, sweepInterval time.Duration, maxSize int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		sessions: make(map[string]*entry),
		order:    list.New(),
		ttl:      ttl,
		maxSize:  maxSize,
		logger:   logger.With("component", "session"),
		done:     make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

// GetOrCreate returns the live session for the platform+user pair, creating it
// if absent or expired. Concurrent calls for the same key yield the same
// session. Returns ErrCapacity if a new session is needed but the store is
// full and no session can be evicted.
func (s *Store) GetOrCreate(platform, userID, nickname string) (Session, error) {
	id := Key(platform, userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		if !s.expiredLocked(e) {
			return *e.sess, nil
		}
		// Expired sessions behave as not-found and are recreated.
		s.removeLocked(id, e)
	}

	if len(s.sessions) >= s.maxSize {
		if !s.evictOldestLocked() {
			return Session{}, ErrCapacity
		}
	}

	now := time.Now()
	sess := &Session{
		ID:           id,
		Platform:     platform,
		UserID:       userID,
		Nickname:     nickname,
		CreatedAt:    now,
		LastActivity: now,
	}
	elem := s.order.PushBack(id)
	s.sessions[id] = &entry{sess: sess, element: elem}

	s.logger.Debug("session created", "session_id", id, "total_sessions", len(s.sessions))
	return *sess, nil
}

// Get returns the session with the given ID, or ErrNotFound if it does not
// exist or has expired.
func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if s.expiredLocked(e) {
		s.removeLocked(id, e)
		return Session{}, ErrNotFound
	}
	return *e.sess, nil
}

// List returns summaries of all live sessions, most recently active first.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for elem := s.order.Back(); elem != nil; elem = elem.Prev() {
		id, _ := elem.Value.(string)
		if e, ok := s.sessions[id]; ok && !s.expiredLocked(e) {
			out = append(out, *e.sess)
		}
	}
	return out
}

// Touch records a message served through the session: bumps LastActivity,
// increments MessageCount, and moves the session to the back of the
// eviction order. Unknown IDs are ignored.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return
	}
	e.sess.LastActivity = time.Now()
	e.sess.MessageCount++
	s.order.MoveToBack(e.element)
}

// Acquire pins the session against eviction while a request is in flight.
// Every Acquire must be paired with a Release.
func (s *Store) Acquire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		e.inflight++
	}
}

// Release unpins the session after a request completes.
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok && e.inflight > 0 {
		e.inflight--
	}
}

// Delete removes the session with the given ID. Returns false if absent.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	s.removeLocked(id, e)
	s.logger.Info("session closed", "session_id", id)
	return true
}

// Len returns the number of resident sessions, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// expiredLocked reports whether the entry is past its TTL. Must be called with mu held.
func (s *Store) expiredLocked(e *entry) bool {
	return time.Since(e.sess.LastActivity) > s.ttl
}

// removeLocked deletes an entry from the map and order list. Must be called with mu held.
func (s *Store) removeLocked(id string, e *entry) {
	s.order.Remove(e.element)
	delete(s.sessions, id)
}

// evictOldestLocked removes the least-recently-active session that is not
// pinned by an in-flight request. Returns false if every session is pinned.
// Must be called with mu held.
func (s *Store) evictOldestLocked() bool {
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		id, _ := elem.Value.(string)
		e, ok := s.sessions[id]
		if !ok {
			continue
		}
		if e.inflight > 0 {
			continue
		}
		s.removeLocked(id, e)
		s.logger.Info("session evicted", "session_id", id)
		return true
	}
	return false
}

// sweep runs in a background goroutine, periodically removing expired sessions.
func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-s.done:
			return
		}
	}
}

// runSweep removes all expired sessions from the store.
func (s *Store) runSweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if s.expiredLocked(e) && e.inflight == 0 {
			s.removeLocked(id, e)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("expired sessions swept", "removed", removed, "remaining", len(s.sessions))
	}
}

// Close stops the background sweep goroutine. It is safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
