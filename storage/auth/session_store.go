package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
)

// SessionBinding ties an issued API key to a wallet session.
type SessionBinding struct {
	Key       string    `json:"key"`
	Account   string    `json:"account"`
	ChainID   string    `json:"chain_id"`
	IsAdmin   bool      `json:"is_admin"`
	Source    string    `json:"source,omitempty"` // e.g. "seed", "connect"
	CreatedAt time.Time `json:"created_at"`
}

// Session converts the binding into the session shape the engines consume.
func (b SessionBinding) Session() escrow.Session {
	return escrow.Session{Account: b.Account, ChainID: b.ChainID, IsAdmin: b.IsAdmin}
}

// SessionValidator defines the minimal interface required by auth middleware.
type SessionValidator interface {
	Validate(key string) bool
	Get(key string) (SessionBinding, bool)
}

// SessionIssuer allows creating new session keys on wallet connect.
type SessionIssuer interface {
	Issue(account, chainID string, isAdmin bool, source string) (SessionBinding, error)
}

// SessionStore provides in-memory session key validation/issuance.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionBinding
}

// NewSessionStore constructs an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]SessionBinding)}
}

// Seed adds a pre-existing key (e.g., from env).
func (s *SessionStore) Seed(key, account string, isAdmin bool, source string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = SessionBinding{
		Key:       key,
		Account:   account,
		IsAdmin:   isAdmin,
		Source:    source,
		CreatedAt: time.Now(),
	}
}

// Validate returns true if the key exists.
func (s *SessionStore) Validate(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[key]
	return ok
}

// Get returns the binding for a key.
func (s *SessionStore) Get(key string) (SessionBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.sessions[key]
	return b, ok
}

// Issue creates a new session key bound to a wallet account.
func (s *SessionStore) Issue(account, chainID string, isAdmin bool, source string) (SessionBinding, error) {
	key, err := randomKey()
	if err != nil {
		return SessionBinding{}, err
	}
	binding := SessionBinding{
		Key:       key,
		Account:   account,
		ChainID:   chainID,
		IsAdmin:   isAdmin,
		Source:    source,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.sessions[key] = binding
	s.mu.Unlock()
	return binding, nil
}

// Revoke removes a session key.
func (s *SessionStore) Revoke(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

func randomKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session key: %w", err)
	}
	return "tw_" + hex.EncodeToString(b), nil
}
