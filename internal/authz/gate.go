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

// Package authz guards privileged operations. Every privileged code path
// resolves the caller's session, looks up the profile role fresh from the
// store, and compares it against the required role. There is no caching:
// a role change or session revocation takes effect on the next call. Any
// failure along the way denies access.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/GavinAlgin/digital-portal/internal/audit"
	"github.com/GavinAlgin/digital-portal/internal/identity"
	"github.com/GavinAlgin/digital-portal/internal/observability/metrics"
	"github.com/GavinAlgin/digital-portal/internal/session"
)

var (
	// ErrNotAuthenticated means no valid session could be resolved.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrForbidden means the caller is authenticated but lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// SessionStore resolves session IDs to live sessions.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
}

// ProfileStore looks up the profile holding a user's role.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*identity.Profile, error)
}

// Actor is the authenticated caller of a privileged operation.
type Actor struct {
	UserID    string
	SessionID string
	Role      identity.Role
	Profile   *identity.Profile
}

// Gate is the authorization primitive for privileged operations.
type Gate struct {
	sessions SessionStore
	profiles ProfileStore
	audit    audit.Logger
	metrics  *metrics.Portal
}

// NewGate creates a new authorization gate. portalMetrics may be nil.
func NewGate(sessions SessionStore, profiles ProfileStore, auditLogger audit.Logger, portalMetrics *metrics.Portal) *Gate {
	return &Gate{
		sessions: sessions,
		profiles: profiles,
		audit:    auditLogger,
		metrics:  portalMetrics,
	}
}

// Authorize resolves the session and checks the caller holds exactly the
// required role. It returns the actor on success and an error on any
// failure: missing or expired session, missing profile, suspended account,
// or role mismatch.
func (g *Gate) Authorize(ctx context.Context, sessionID string, required identity.Role) (*Actor, error) {
	return g.AuthorizeAny(ctx, sessionID, required)
}

// AuthorizeAny is Authorize for operations open to more than one role. The
// caller must hold one of the listed roles; an empty list denies everyone.
func (g *Gate) AuthorizeAny(ctx context.Context, sessionID string, roles ...identity.Role) (*Actor, error) {
	actor, err := g.resolve(ctx, sessionID)
	if err != nil {
		g.logDenial(ctx, "", roles, "unauthenticated")
		return nil, err
	}

	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}

	g.logDenial(ctx, actor.UserID, roles, "role mismatch")
	return nil, ErrForbidden
}

func (g *Gate) resolve(ctx context.Context, sessionID string) (*Actor, error) {
	if sessionID == "" {
		return nil, ErrNotAuthenticated
	}

	sess, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	// No loadable profile means no role: absence and store failure both
	// deny as unauthenticated, never a default role.
	profile, err := g.profiles.GetByUserID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("%w: profile lookup: %v", ErrNotAuthenticated, err)
	}

	if profile.Status != identity.StatusActive {
		return nil, ErrForbidden
	}

	return &Actor{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Role:      profile.Role,
		Profile:   profile,
	}, nil
}

func (g *Gate) logDenial(ctx context.Context, userID string, roles []identity.Role, reason string) {
	g.metrics.RecordAuthorizationDenial(ctx)
	if g.audit == nil {
		return
	}
	required := make([]string, len(roles))
	for i, r := range roles {
		required[i] = string(r)
	}
	actor := audit.ActorSystem
	if userID != "" {
		actor = userID
	}
	g.audit.Log(ctx, audit.Event{
		Type:    audit.TypeAccessDenied,
		ActorID: actor,
		Metadata: map[string]any{
			audit.AttrReason:   reason,
			audit.AttrRequired: required,
		},
	})
}

// RunPrivileged authorizes the caller and, only on success, invokes op with
// the resolved actor. The operation never runs on a denied call.
func RunPrivileged(ctx context.Context, g *Gate, sessionID string, required identity.Role, op func(ctx context.Context, actor *Actor) error) error {
	actor, err := g.Authorize(ctx, sessionID, required)
	if err != nil {
		return err
	}
	return op(ctx, actor)
}

// RunPrivilegedResult is RunPrivileged for operations that return a value.
func RunPrivilegedResult[T any](ctx context.Context, g *Gate, sessionID string, required identity.Role, op func(ctx context.Context, actor *Actor) (T, error)) (T, error) {
	actor, err := g.Authorize(ctx, sessionID, required)
	if err != nil {
		var zero T
		return zero, err
	}
	return op(ctx, actor)
}
