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

// Package enrollment runs the two-phase account creation flow. Phase one
// provisions the identity and credentials; phase two allocates an
// identifier and inserts the profile, which is the commit point. If phase
// two cannot complete, phase one is rolled back by deleting the identity.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GavinAlgin/digital-portal/internal/audit"
	"github.com/GavinAlgin/digital-portal/internal/identity"
	"github.com/GavinAlgin/digital-portal/internal/idnumber"
	"github.com/GavinAlgin/digital-portal/internal/observability/metrics"
)

// ErrAllocationContention means every allocation attempt lost the race for
// its candidate identifier. The caller may simply retry.
var ErrAllocationContention = errors.New("identifier allocation contention, retry")

// Input carries the fields common to all enrollment operations.
type Input struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Course      string
	Faculty     string
	DateOfBirth *time.Time
}

// Service orchestrates enrollment across the identity store, the profile
// store, and the identifier allocator.
type Service struct {
	identities  *identity.Service
	profiles    identity.ProfileRepository
	allocator   *idnumber.Allocator
	audit       audit.Logger
	metrics     *metrics.Portal
	maxAttempts int
}

// NewService creates a new enrollment service. maxAttempts bounds how many
// times a lost allocation race is retried before giving up.
func NewService(
	identities *identity.Service,
	profiles identity.ProfileRepository,
	allocator *idnumber.Allocator,
	auditLogger audit.Logger,
	portalMetrics *metrics.Portal,
	maxAttempts int,
) *Service {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Service{
		identities:  identities,
		profiles:    profiles,
		allocator:   allocator,
		audit:       auditLogger,
		metrics:     portalMetrics,
		maxAttempts: maxAttempts,
	}
}

// EnrollStudent creates a student account with an allocated identifier.
func (s *Service) EnrollStudent(ctx context.Context, in Input) (*identity.Principal, error) {
	return s.enroll(ctx, in, identity.RoleStudent)
}

// EnrollStaff creates a staff account with an allocated identifier.
func (s *Service) EnrollStaff(ctx context.Context, in Input) (*identity.Principal, error) {
	return s.enroll(ctx, in, identity.RoleStaff)
}

// CreateAdmin creates an administrator account. Admins carry no allocated
// identifier; their profile commits without one.
func (s *Service) CreateAdmin(ctx context.Context, actorID string, in Input) (*identity.Principal, error) {
	principal, err := s.enroll(ctx, in, identity.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.log(ctx, audit.Event{
		Type:     audit.TypeAdminCreated,
		ActorID:  actorID,
		Resource: principal.User.ID,
		Metadata: map[string]any{audit.AttrEmail: principal.User.Email},
	})
	return principal, nil
}

func (s *Service) enroll(ctx context.Context, in Input, role identity.Role) (*identity.Principal, error) {
	// Phase one: identity and credentials. Nothing here is externally
	// visible until the profile insert commits.
	user, err := s.identities.ProvisionIdentity(ctx, in.Email, in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}
	if err := s.identities.AddPassword(ctx, user.ID, in.Password); err != nil {
		s.compensate(ctx, user.ID)
		return nil, err
	}

	profile, err := s.commitProfile(ctx, user.ID, in, role)
	if err != nil {
		s.compensate(ctx, user.ID)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordEnrollment(ctx)
	}
	s.log(ctx, audit.Event{
		Type:     audit.TypeUserEnrolled,
		ActorID:  audit.ActorSystem,
		Resource: user.ID,
		Metadata: map[string]any{
			audit.AttrEmail: user.Email,
			audit.AttrRole:  string(role),
		},
	})

	return &identity.Principal{User: *user, Profile: *profile}, nil
}

// commitProfile is phase two: allocate a candidate identifier and insert
// the profile row. The unique index on the identifier column is the real
// arbiter; losing the race means re-reading the sequence and trying a
// fresh candidate, never incrementing the lost one locally.
func (s *Service) commitProfile(ctx context.Context, userID string, in Input, role identity.Role) (*identity.Profile, error) {
	profile := &identity.Profile{
		UserID:      userID,
		Role:        role,
		Course:      in.Course,
		Faculty:     in.Faculty,
		Status:      identity.StatusActive,
		DateOfBirth: in.DateOfBirth,
	}

	if !role.RequiresIDNumber() {
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, err
		}
		return profile, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		candidate, err := s.allocator.Next(ctx, in.Course, in.Faculty)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate identifier: %w", err)
		}

		profile.IDNumber = &candidate
		err = s.profiles.Create(ctx, profile)
		if err == nil {
			s.log(ctx, audit.Event{
				Type:     audit.TypeIDAllocated,
				ActorID:  audit.ActorSystem,
				Resource: userID,
				Metadata: map[string]any{
					audit.AttrIDNumber: candidate,
					audit.AttrAttempts: attempt,
				},
			})
			return profile, nil
		}
		if !errors.Is(err, identity.ErrIDNumberTaken) {
			return nil, err
		}

		if s.metrics != nil {
			s.metrics.RecordAllocationConflict(ctx)
		}
		s.log(ctx, audit.Event{
			Type:     audit.TypeIDAllocationConflict,
			ActorID:  audit.ActorSystem,
			Resource: userID,
			Metadata: map[string]any{
				audit.AttrIDNumber: candidate,
				audit.AttrAttempts: attempt,
			},
		})
	}

	return nil, ErrAllocationContention
}

// compensate rolls back phase one. If even the rollback fails the identity
// row is left behind without a profile; the audit event marks it for
// reconciliation.
func (s *Service) compensate(ctx context.Context, userID string) {
	if err := s.identities.HardDelete(ctx, userID); err != nil {
		s.log(ctx, audit.Event{
			Type:     audit.TypeEnrollmentOrphaned,
			ActorID:  audit.ActorSystem,
			Resource: userID,
			Metadata: map[string]any{audit.AttrReason: err.Error()},
		})
	}
}

// DeleteUser removes an account entirely: profile first, then identity and
// credentials. The identifier, if any, stays burned and is never reissued.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID string) error {
	if err := s.profiles.Delete(ctx, userID); err != nil && !errors.Is(err, identity.ErrProfileNotFound) {
		return err
	}
	if err := s.identities.HardDelete(ctx, userID); err != nil {
		return err
	}
	s.log(ctx, audit.Event{
		Type:     audit.TypeUserDeleted,
		ActorID:  actorID,
		Resource: userID,
	})
	return nil
}

func (s *Service) log(ctx context.Context, event audit.Event) {
	if s.audit != nil {
		s.audit.Log(ctx, event)
	}
}
