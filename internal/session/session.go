// Package session keeps opaque admin session tokens.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// ErrInvalid is returned for unknown, expired or logged-out tokens.
var ErrInvalid = errors.New("invalid or expired session")

type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Store interface {
	Create(ctx context.Context, username, role string) (Session, error)
	Verify(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}

// NewToken returns 32 random bytes as URL-safe base64.
func NewToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// Memory holds sessions in process memory. Expired entries are evicted when
// they are next verified.
type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]Session
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, sessions: map[string]Session{}}
}

func (m *Memory) Create(_ context.Context, username, role string) (Session, error) {
	token, err := NewToken()
	if err != nil {
		return Session{}, err
	}
	s := Session{Token: token, Username: username, Role: role, ExpiresAt: m.now().Add(m.ttl)}
	m.mu.Lock()
	m.sessions[token] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Memory) Verify(_ context.Context, token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return Session{}, ErrInvalid
	}
	if !m.now().Before(s.ExpiresAt) {
		delete(m.sessions, token)
		return Session{}, ErrInvalid
	}
	return s, nil
}

func (m *Memory) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
	return nil
}

// Len reports how many sessions are held, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
