package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/domain"
)

// Session is a conversational context with the generation pipeline.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	Turns     int       `json:"turns"`
}

// SessionBuilder prepares backend state for a new session. It may be slow;
// concurrent requests for the same ID share one call.
type SessionBuilder func(ctx context.Context, s *Session) error

// SessionRegistry holds sessions keyed by caller-supplied ID. A session not
// used for the configured TTL is evicted by a background sweep.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	build    SessionBuilder
	group    singleflight.Group
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
}

// NewSessionRegistry creates a registry and starts its sweep goroutine.
// build may be nil. Call Close to stop the sweep.
func NewSessionRegistry(cfg config.Sessions, build SessionBuilder) *SessionRegistry {
	return newSessionRegistry(cfg, build, time.Now)
}

func newSessionRegistry(cfg config.Sessions, build SessionBuilder, now func() time.Time) *SessionRegistry {
	r := &SessionRegistry{
		sessions: make(map[string]*Session),
		ttl:      cfg.TTL,
		build:    build,
		now:      now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go r.sweepLoop(interval)
	return r
}

// Create builds a fresh session under id, replacing any existing one.
func (r *SessionRegistry) Create(ctx context.Context, id, userID string) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("session id is required: %w", domain.ErrValidation)
	}
	now := r.now()
	s := &Session{ID: id, UserID: userID, CreatedAt: now, LastUsed: now}
	if r.build != nil {
		if err := r.build(ctx, s); err != nil {
			return Session{}, fmt.Errorf("build session %s: %w", id, err)
		}
	}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	slog.DebugContext(ctx, "session created", "session_id", id, "user_id", userID)
	return *s, nil
}

// Get returns the live session for id and marks it used.
func (r *SessionRegistry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || r.expired(s, r.now()) {
		return Session{}, false
	}
	s.LastUsed = r.now()
	return *s, true
}

// GetOrCreate returns the live session for id, creating it if needed.
// created reports whether the session was built for this request; callers
// coalesced onto the same build see it too.
func (r *SessionRegistry) GetOrCreate(ctx context.Context, id, userID string) (s Session, created bool, err error) {
	if s, ok := r.Get(id); ok {
		return s, false, nil
	}
	v, err, _ := r.group.Do(id, func() (any, error) {
		if s, ok := r.Get(id); ok {
			return built{session: s}, nil
		}
		s, err := r.Create(ctx, id, userID)
		return built{session: s, created: true}, err
	})
	if err != nil {
		return Session{}, false, err
	}
	b := v.(built)
	return b.session, b.created, nil
}

type built struct {
	session Session
	created bool
}

// Touch records one completed turn on the session.
func (r *SessionRegistry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.Turns++
		s.LastUsed = r.now()
	}
}

// Invalidate drops the session. It reports whether one existed.
func (r *SessionRegistry) Invalidate(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Len returns the number of tracked sessions, expired or not.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (r *SessionRegistry) Close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
}

func (r *SessionRegistry) sweepLoop(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if n := r.sweep(); n > 0 {
				slog.Debug("sessions evicted", "count", n)
			}
		}
	}
}

// sweep removes expired sessions and returns how many it removed.
func (r *SessionRegistry) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for id, s := range r.sessions {
		if r.expired(s, now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// expired must be called with r.mu held.
func (r *SessionRegistry) expired(s *Session, now time.Time) bool {
	return r.ttl > 0 && now.Sub(s.LastUsed) >= r.ttl
}
