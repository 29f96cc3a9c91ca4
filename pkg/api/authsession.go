package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenTTL bounds how long a login token remains valid before the client
// must authenticate again.
const tokenTTL = 24 * time.Hour

// authSession is one issued bearer token.
type authSession struct {
	UserID    string
	Username  string
	Role      string
	ExpiresAt time.Time
}

// authSessionManager holds issued login tokens in memory. Tokens do not
// survive a process restart, which is acceptable here since every role
// worker is driven off the database, not the API session state.
type authSessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*authSession
}

func newAuthSessionManager() *authSessionManager {
	return &authSessionManager{sessions: make(map[string]*authSession)}
}

// Issue creates a new bearer token for an authenticated user.
func (m *authSessionManager) Issue(userID, username, role string) string {
	token := uuid.New().String()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = &authSession{
		UserID:    userID,
		Username:  username,
		Role:      role,
		ExpiresAt: time.Now().Add(tokenTTL),
	}
	return token
}

// Lookup returns the session for a token, or an error if it is missing or
// expired.
func (m *authSessionManager) Lookup(token string) (*authSession, error) {
	m.mu.RLock()
	sess, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	if time.Now().After(sess.ExpiresAt) {
		m.mu.Lock()
		delete(m.sessions, token)
		m.mu.Unlock()
		return nil, fmt.Errorf("token expired")
	}
	return sess, nil
}

// Revoke drops a token, the logout endpoint's write path.
func (m *authSessionManager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}
