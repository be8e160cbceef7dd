// Copyright 2026 The Digital Portal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Service manages the session lifecycle: creation on login, validation on
// every request, and destruction on logout or revocation.
type Service struct {
	repo        Repository
	lifetime    time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

// NewService creates a new session service. A nil clock defaults to time.Now.
func NewService(repo Repository, lifetime, idleTimeout time.Duration, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:        repo,
		lifetime:    lifetime,
		idleTimeout: idleTimeout,
		now:         clock,
	}
}

// Create starts a new session for the given user
func (s *Service) Create(ctx context.Context, userID, ipAddress, userAgent string) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := s.now()
	sess := &Session{
		ID:         id,
		UserID:     userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(s.lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// Get retrieves a session, enforcing expiry and idle timeout. An expired or
// idle session is destroyed on the spot and reported as expired.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionInvalid
	}

	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sess.IsExpired(now) || sess.IsIdle(now, s.idleTimeout) {
		// Best-effort cleanup; the session is unusable either way.
		_ = s.repo.Delete(ctx, sess.ID)
		return nil, ErrSessionExpired
	}

	return sess, nil
}

// Touch updates the session's last seen time, keeping it from going idle
func (s *Service) Touch(ctx context.Context, sess *Session) error {
	sess.LastSeenAt = s.now()
	return s.repo.Update(ctx, sess)
}

// Destroy ends a single session
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// DestroyAllForUser ends every session belonging to a user. Called on
// password reset and account suspension so access is revoked everywhere.
func (s *Service) DestroyAllForUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// CleanupExpired removes sessions whose lifetime has passed. Intended to be
// run periodically from a background sweeper.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
