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

package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GavinAlgin/digital-portal/internal/identity"
	"github.com/GavinAlgin/digital-portal/internal/session"
)

type fakeSessionStore struct {
	sessions map[string]*session.Session
}

func (s *fakeSessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

type fakeProfileStore struct {
	profiles map[string]*identity.Profile
	err      error
}

func (s *fakeProfileStore) GetByUserID(_ context.Context, userID string) (*identity.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	return p, nil
}

func newTestGate(role identity.Role, status identity.Status) (*Gate, *fakeSessionStore, *fakeProfileStore) {
	sessions := &fakeSessionStore{sessions: map[string]*session.Session{
		"sess-1": {ID: "sess-1", UserID: "user-1"},
	}}
	profiles := &fakeProfileStore{profiles: map[string]*identity.Profile{
		"user-1": {UserID: "user-1", Role: role, Status: status},
	}}
	return NewGate(sessions, profiles, nil, nil), sessions, profiles
}

// TestPurpose: Role equality check
// Security: The gate grants access only on an exact role match
// Expected: Matching role yields an actor; any other role is forbidden
func TestGate_Authorize_RoleMatch(t *testing.T) {
	gate, _, _ := newTestGate(identity.RoleAdmin, identity.StatusActive)

	actor, err := gate.Authorize(context.Background(), "sess-1", identity.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "user-1", actor.UserID)
	assert.Equal(t, identity.RoleAdmin, actor.Role)

	_, err = gate.Authorize(context.Background(), "sess-1", identity.RoleStaff)
	assert.ErrorIs(t, err, ErrForbidden)
}

// TestPurpose: Fail-closed on missing or invalid sessions
// Security: No session means no access, regardless of the required role
// Expected: Empty and unknown session IDs are both unauthenticated
func TestGate_Authorize_NoSession(t *testing.T) {
	gate, _, _ := newTestGate(identity.RoleAdmin, identity.StatusActive)

	_, err := gate.Authorize(context.Background(), "", identity.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = gate.Authorize(context.Background(), "no-such-session", identity.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

// TestPurpose: Fail-closed on profile lookup failures
// Security: A user without a profile, or an unreachable profile store,
// must never be granted access or assumed a default role
// Expected: Missing profile and store errors are both unauthenticated
func TestGate_Authorize_ProfileFailures(t *testing.T) {
	gate, _, profiles := newTestGate(identity.RoleAdmin, identity.StatusActive)

	delete(profiles.profiles, "user-1")
	_, err := gate.Authorize(context.Background(), "sess-1", identity.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	profiles.err = errors.New("connection refused")
	_, err = gate.Authorize(context.Background(), "sess-1", identity.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.NotErrorIs(t, err, ErrForbidden)
}

// TestPurpose: Suspended accounts are denied
// Expected: A valid session with a suspended profile is forbidden
func TestGate_Authorize_Suspended(t *testing.T) {
	gate, _, _ := newTestGate(identity.RoleAdmin, identity.StatusSuspended)

	_, err := gate.Authorize(context.Background(), "sess-1", identity.RoleAdmin)
	assert.ErrorIs(t, err, ErrForbidden)
}

// TestPurpose: Multi-role authorization
// Expected: Any listed role grants access; an empty role list denies everyone
func TestGate_AuthorizeAny(t *testing.T) {
	gate, _, _ := newTestGate(identity.RoleStaff, identity.StatusActive)

	actor, err := gate.AuthorizeAny(context.Background(), "sess-1", identity.RoleAdmin, identity.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleStaff, actor.Role)

	_, err = gate.AuthorizeAny(context.Background(), "sess-1", identity.RoleAdmin)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = gate.AuthorizeAny(context.Background(), "sess-1")
	assert.ErrorIs(t, err, ErrForbidden)
}

// TestPurpose: Privileged operations never run on denial
// Security: The gate is the only path to the operation
// Expected: op is invoked exactly once on success and never on denial
func TestRunPrivileged(t *testing.T) {
	gate, _, _ := newTestGate(identity.RoleAdmin, identity.StatusActive)

	calls := 0
	err := RunPrivileged(context.Background(), gate, "sess-1", identity.RoleAdmin, func(ctx context.Context, actor *Actor) error {
		calls++
		assert.Equal(t, "user-1", actor.UserID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	err = RunPrivileged(context.Background(), gate, "sess-1", identity.RoleStudent, func(ctx context.Context, actor *Actor) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, calls, "operation must not run on a denied call")
}

// TestPurpose: Privileged operations with results
// Expected: The result flows through on success; the zero value on denial
func TestRunPrivilegedResult(t *testing.T) {
	gate, _, _ := newTestGate(identity.RoleAdmin, identity.StatusActive)

	got, err := RunPrivilegedResult(context.Background(), gate, "sess-1", identity.RoleAdmin, func(ctx context.Context, actor *Actor) (string, error) {
		return "report", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "report", got)

	got, err = RunPrivilegedResult(context.Background(), gate, "", identity.RoleAdmin, func(ctx context.Context, actor *Actor) (string, error) {
		return "report", nil
	})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, got)
}

// TestPurpose: Revocation takes effect on the next call
// Security: No grant is cached between calls
// Expected: Deleting the session or downgrading the role denies the very next call
func TestGate_NoCaching(t *testing.T) {
	gate, sessions, profiles := newTestGate(identity.RoleAdmin, identity.StatusActive)

	_, err := gate.Authorize(context.Background(), "sess-1", identity.RoleAdmin)
	require.NoError(t, err)

	// Role downgrade is visible immediately.
	profiles.profiles["user-1"].Role = identity.RoleStudent
	_, err = gate.Authorize(context.Background(), "sess-1", identity.RoleAdmin)
	assert.ErrorIs(t, err, ErrForbidden)

	// Session revocation is visible immediately.
	profiles.profiles["user-1"].Role = identity.RoleAdmin
	delete(sessions.sessions, "sess-1")
	_, err = gate.Authorize(context.Background(), "sess-1", identity.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
