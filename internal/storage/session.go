package storage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"discord_web/pkg"
)

// DefaultSessionTTL applies when NewSessionStore gets a non-positive ttl
const DefaultSessionTTL = 7 * 24 * time.Hour

// sessionTokenBytes gives 256 bits of entropy per token
const sessionTokenBytes = 32

// ErrSessionNotFound is returned for unknown, empty or expired tokens
var ErrSessionNotFound = errors.New("session not found")

// SessionStore maps opaque browser tokens to authenticated users.
// Tokens are bearer credentials and must never be logged.
type SessionStore struct {
	store HashStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionStore creates a session store on top of store
func NewSessionStore(store HashStore, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{store: store, ttl: ttl, now: time.Now}
}

// Create mints a fresh token for user and persists the session
func (s *SessionStore) Create(ctx context.Context, user pkg.User) (string, error) {
	token, err := NewSessionToken()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	record := pkg.SessionRecord{
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session data: %w", err)
	}

	if err := s.store.Set(ctx, NamespaceSessions, token, string(data)); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return token, nil
}

// Lookup returns the user for token. Expired sessions are removed.
func (s *SessionStore) Lookup(ctx context.Context, token string) (pkg.User, error) {
	if token == "" {
		return pkg.User{}, ErrSessionNotFound
	}

	data, err := s.store.Get(ctx, NamespaceSessions, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return pkg.User{}, ErrSessionNotFound
		}
		return pkg.User{}, fmt.Errorf("failed to load session: %w", err)
	}

	var record pkg.SessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return pkg.User{}, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	if record.Expired(s.now()) {
		if _, err := s.store.Delete(ctx, NamespaceSessions, token); err != nil {
			return pkg.User{}, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return pkg.User{}, ErrSessionNotFound
	}

	return record.User, nil
}

// Delete removes the session and reports whether one existed
func (s *SessionStore) Delete(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	deleted, err := s.store.Delete(ctx, NamespaceSessions, token)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return deleted, nil
}

// NewSessionToken returns a random base64url token
func NewSessionToken() (string, error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
