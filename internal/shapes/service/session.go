package service

import (
	"sync"

	"github.com/google/uuid"
)

// ============================================================
// Session Manager
// ============================================================

type session struct {
	email string
	csrf  string
}

// SessionManager хранит сессии в памяти: cookie-токен -> пользователь и
// выданный для сессии CSRF-токен.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*session),
	}
}

func (m *SessionManager) Issue(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := uuid.NewString()
	m.sessions[token] = &session{email: email}
	return token
}

func (m *SessionManager) Resolve(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return "", false
	}
	return s.email, true
}

func (m *SessionManager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// CSRFToken выдаёт токен сессии; повторный вызов возвращает тот же.
func (m *SessionManager) CSRFToken(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return "", false
	}
	if s.csrf == "" {
		s.csrf = uuid.NewString()
	}
	return s.csrf, true
}

// VerifyCSRF сверяет присланный токен с выданным для сессии.
func (m *SessionManager) VerifyCSRF(token, csrf string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	return ok && csrf != "" && s.csrf == csrf
}
