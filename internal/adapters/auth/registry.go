package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/bnema/modelgw/internal/domain"
)

// SessionTTL bounds how long a started login attempt stays valid.
const SessionTTL = 10 * time.Minute

// Session is the ephemeral record of one in-flight login attempt. It lives
// only in process memory; a restart silently expires every pending flow.
type Session struct {
	State     string
	Verifier  string
	Provider  domain.Provider
	ExpiresAt time.Time
}

// Registry keys pending sessions by their state token. Expired entries are
// swept opportunistically on every Create; no background timer is needed at
// this volume.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		ttl:      SessionTTL,
		now:      time.Now,
	}
}

// Create generates a fresh verifier and state token and registers the
// session for provider.
func (r *Registry) Create(provider domain.Provider) (Session, error) {
	pair, err := NewPKCEPair()
	if err != nil {
		return Session{}, fmt.Errorf("generate pkce pair: %w", err)
	}

	state, err := NewState()
	if err != nil {
		return Session{}, fmt.Errorf("generate state token: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)

	session := Session{
		State:     state,
		Verifier:  pair.Verifier,
		Provider:  provider,
		ExpiresAt: now.Add(r.ttl),
	}
	r.sessions[state] = session

	return session, nil
}

// Consume atomically retrieves and deletes the session for state. A second
// call with the same state always fails, even when the first exchange is
// still in flight.
func (r *Registry) Consume(state string, provider domain.Provider) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[state]
	if !ok {
		return Session{}, domain.ErrSessionNotFound
	}
	delete(r.sessions, state)

	if r.now().After(session.ExpiresAt) {
		return Session{}, domain.ErrSessionExpired
	}
	if session.Provider != provider {
		return Session{}, domain.ErrProviderMismatch
	}

	return session, nil
}

func (r *Registry) sweepLocked(now time.Time) {
	for state, session := range r.sessions {
		if now.After(session.ExpiresAt) {
			delete(r.sessions, state)
		}
	}
}
