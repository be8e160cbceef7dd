// Copyright 2026 The Digital Portal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeLoginSuccess          = "login_success"
	TypeLoginFailed           = "login_failed"
	TypeLogout                = "logout"
	TypeUserLocked            = "user_locked"
	TypeUserUnlocked          = "user_unlocked"
	TypePasswordChanged       = "password_changed"
	TypePasswordResetRequest  = "password_reset_requested"
	TypePasswordResetComplete = "password_reset_completed"
	TypeUserEnrolled          = "user_enrolled"
	TypeAdminCreated          = "admin_created"
	TypeUserUpdated           = "user_updated"
	TypeUserStatusChanged     = "user_status_changed"
	TypeUserDeleted           = "user_deleted"
	TypeIDAllocated           = "id_allocated"
	TypeIDAllocationConflict  = "id_allocation_conflict"
	TypeEnrollmentOrphaned    = "enrollment_orphaned"
	TypeAccessDenied          = "access_denied"
	TypeEventCreated          = "event_created"
	TypeEventUpdated          = "event_updated"
	TypeEventDeleted          = "event_deleted"
	TypeAdminBootstrap        = "admin_bootstrap"
)

// Metadata attribute keys
const (
	AttrReason   = "reason"
	AttrAttempts = "attempts"
	AttrEmail    = "email"
	AttrIDNumber = "id_number"
	AttrRole     = "role"
	AttrRequired = "required_role"
	AttrScope    = "scope_prefix"
)

// Actor placeholder for system-initiated events
const ActorSystem = "system"

// Event represents an auditable action
type Event struct {
	Type      string
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
	UserAgent string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	// Ensure timestamp is set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	// Flatten metadata
	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			// Redact secrets
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// isSecret checks if a metadata key likely carries a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "key", "hash", "credential", "authorization"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
