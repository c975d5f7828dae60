package auth

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultSessionTTL is how long an admin session stays valid.
const DefaultSessionTTL = 24 * time.Hour

// SessionStore holds live admin sessions in memory.
type SessionStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewSessionStore creates a store whose sessions expire after ttl. The
// store purges expired sessions on its own every ttl/4.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		cache: cache.New(ttl, ttl/4),
		ttl:   ttl,
	}
}

// TTL returns the session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create starts a session for username and returns its token.
func (s *SessionStore) Create(username string) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	s.cache.Set(token, username, cache.DefaultExpiration)
	return token, nil
}

// Validate returns the username owning token, if the session is live.
func (s *SessionStore) Validate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	v, ok := s.cache.Get(token)
	if !ok {
		return "", false
	}
	username, ok := v.(string)
	return username, ok
}

// Destroy ends the session. Unknown tokens are ignored.
func (s *SessionStore) Destroy(token string) {
	s.cache.Delete(token)
}

// DeleteExpired drops every expired session.
func (s *SessionStore) DeleteExpired() {
	s.cache.DeleteExpired()
}

// Len returns the number of stored sessions, including expired ones not yet purged.
func (s *SessionStore) Len() int {
	return s.cache.ItemCount()
}
