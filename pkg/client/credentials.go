package client

import (
	"sync"

	"github.com/spec-kit/session-service/pkg/identity"
)

// CredentialStore keeps the access token in memory. The refresh token never
// reaches it; that lives in the HTTP cookie jar.
type CredentialStore struct {
	mu      sync.RWMutex
	token   string
	deriver *identity.Deriver
}

// NewCredentialStore creates an empty store.
func NewCredentialStore(deriver *identity.Deriver) *CredentialStore {
	if deriver == nil {
		deriver = identity.NewDeriver(nil)
	}
	return &CredentialStore{deriver: deriver}
}

// SetCredentials replaces the held token and returns the user it describes.
// An empty token leaves the store untouched.
func (s *CredentialStore) SetCredentials(token string) identity.View {
	if token == "" {
		return s.User()
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return s.deriver.Derive(token)
}

// Clear forgets the held token.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Token returns the held access token, or "".
func (s *CredentialStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User derives the current user from the held token on every call.
func (s *CredentialStore) User() identity.View {
	return s.deriver.Derive(s.Token())
}
