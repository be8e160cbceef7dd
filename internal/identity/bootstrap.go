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

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/GavinAlgin/digital-portal/internal/audit"
)

// Bootstrap environment variables. Both must be set for bootstrap to
// run; the password variable should come from a secret store, not a
// checked-in env file.
const (
	EnvBootstrapAdminEmail    = "PORTAL_BOOTSTRAP_ADMIN_EMAIL"
	EnvBootstrapAdminPassword = "PORTAL_BOOTSTRAP_ADMIN_PASSWORD"
)

// BootstrapService creates the initial administrator account on first
// start so the portal is never deployed without a way in.
type BootstrapService struct {
	identityService *Service
	profiles        ProfileRepository
	auditLogger     audit.Logger
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(
	identityService *Service,
	profiles ProfileRepository,
	auditLogger audit.Logger,
) *BootstrapService {
	return &BootstrapService{
		identityService: identityService,
		profiles:        profiles,
		auditLogger:     auditLogger,
	}
}

// Bootstrap creates the initial admin from the environment if, and only
// if, no admin account exists yet. It is a no-op when the environment is
// unset or an admin is already present, so it is safe to run on every
// start.
func (s *BootstrapService) Bootstrap(ctx context.Context) error {
	email := os.Getenv(EnvBootstrapAdminEmail)
	password := os.Getenv(EnvBootstrapAdminPassword)

	if email == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("%s is set but %s is empty", EnvBootstrapAdminEmail, EnvBootstrapAdminPassword)
	}

	adminRole := RoleAdmin
	admins, err := s.profiles.List(ctx, &adminRole)
	if err != nil {
		return fmt.Errorf("failed to check for existing admins: %w", err)
	}
	if len(admins) > 0 {
		return nil
	}

	user, err := s.identityService.ProvisionIdentity(ctx, email, "Portal", "Administrator")
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin identity: %w", err)
	}
	if err := s.identityService.AddPassword(ctx, user.ID, password); err != nil {
		return fmt.Errorf("failed to set bootstrap admin password: %w", err)
	}

	profile := &Profile{
		UserID: user.ID,
		Role:   RoleAdmin,
		Status: StatusActive,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return fmt.Errorf("failed to create bootstrap admin profile: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAdminBootstrap,
		ActorID:  audit.ActorSystem,
		Resource: user.ID,
		Metadata: map[string]any{audit.AttrEmail: email},
	})

	slog.InfoContext(ctx, "bootstrapped initial administrator",
		slog.String("email", email),
		slog.String("user_id", user.ID),
	)
	return nil
}
