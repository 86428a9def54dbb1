// Package session tracks anonymous browsing sessions and the posts each one
// has already viewed. Nothing here is persisted; ending or expiring a session
// forgets its views.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTTL            = 30 * time.Minute
	defaultReaperInterval = time.Minute
)

// Session is one browsing context.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
	viewed   map[string]struct{}
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now, lastSeen: now, viewed: make(map[string]struct{})}
}

// ClaimView records postID as viewed and reports whether this call was the first.
func (s *Session) ClaimView(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.viewed[postID]; ok {
		return false
	}
	s.viewed[postID] = struct{}{}
	return true
}

// ReleaseView forgets a claim, used when the increment it guarded failed.
func (s *Session) ReleaseView(postID string) {
	s.mu.Lock()
	delete(s.viewed, postID)
	s.mu.Unlock()
}

// HasViewed reports whether postID was claimed in this session.
func (s *Session) HasViewed(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.viewed[postID]
	return ok
}

// LastSeen returns the time of the last registry lookup that touched s.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastSeen()) > ttl
}

// RegistryConfig controls session lifetime.
type RegistryConfig struct {
	// TTL is the idle time after which a session ends.
	TTL time.Duration
	// ReaperInterval is how often Run sweeps expired sessions.
	ReaperInterval time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
	// OnEnd is called after a session is removed.
	OnEnd func(id string)
}

// Registry owns all live sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl            time.Duration
	reaperInterval time.Duration
	now            func() time.Time
	onEnd          func(id string)
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		sessions:       make(map[string]*Session),
		ttl:            defaultTTL,
		reaperInterval: defaultReaperInterval,
		now:            time.Now,
		onEnd:          cfg.OnEnd,
	}
	if cfg.TTL > 0 {
		r.ttl = cfg.TTL
	}
	if cfg.ReaperInterval > 0 {
		r.reaperInterval = cfg.ReaperInterval
	}
	if cfg.Now != nil {
		r.now = cfg.Now
	}
	return r
}

// Get returns the live session for id and refreshes its idle timer.
func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	now := r.now()

	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && s.expired(now, r.ttl) {
		delete(r.sessions, id)
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		if s != nil {
			r.ended(id)
		}
		return nil, false
	}
	s.touch(now)
	return s, true
}

// GetOrCreate returns the live session for id, or a fresh one with a new ID
// when id is unknown, malformed or expired. created reports the latter.
func (r *Registry) GetOrCreate(id string) (s *Session, created bool) {
	if _, err := uuid.Parse(id); err == nil {
		if s, ok := r.Get(id); ok {
			return s, false
		}
	}
	return r.Create(), true
}

// Create starts a new session.
func (r *Registry) Create() *Session {
	s := newSession(uuid.NewString(), r.now())
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// End removes a session and its viewed set. Unknown ids are ignored.
func (r *Registry) End(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		r.ended(id)
	}
}

// Sweep removes every expired session and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()
	var expired []string

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.expired(now, r.ttl) {
			delete(r.sessions, id)
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.ended(id)
	}
	return len(expired)
}

// Len reports the number of tracked sessions, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run sweeps on the reaper interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) ended(id string) {
	if r.onEnd != nil {
		r.onEnd(id)
	}
}
