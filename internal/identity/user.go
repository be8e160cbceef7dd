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
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is locked")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrProfileExists      = errors.New("profile already exists for user")
	ErrIDNumberTaken      = errors.New("identifier already committed by another enrollment")
	ErrInvalidRole        = errors.New("invalid role")
	ErrResetTokenInvalid  = errors.New("password reset token is invalid or expired")
)

// Role classifies a principal. The authorization gate compares these by
// simple equality; there are no implicit role hierarchies.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleStudent, RoleStaff, RoleAdmin:
		return Role(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// RequiresIDNumber reports whether principals of this role must carry
// an allocated identifier once enrollment completes.
func (r Role) RequiresIDNumber() bool {
	return r == RoleStudent || r == RoleStaff
}

// Status is the account status shown on the admin dashboard.
type Status string

const (
	StatusActive    Status = "Active"
	StatusSuspended Status = "Suspended"
)

// User is the authentication-provider half of a principal: the email
// identity that credentials and sessions attach to.
type User struct {
	ID                  string
	Email               string
	EmailVerified       bool
	FirstName           string
	LastName            string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

// FullName renders the display name.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Profile is the data-store half of a principal: role,
// classification, and the allocated identifier. It is inserted in the
// second phase of enrollment; the insert carrying a non-nil IDNumber
// is what commits that identifier.
type Profile struct {
	UserID      string
	Role        Role
	IDNumber    *string // nil until assigned; immutable and never reused after
	Course      string  // free text as entered
	Faculty     string  // free text as entered
	Status      Status
	DateOfBirth *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Principal is the joined read model for listings: a profile with its
// owning identity.
type Principal struct {
	User    User
	Profile Profile
}

// Credentials represents user authentication credentials
type Credentials struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// UserRepository defines the interface for identity persistence
type UserRepository interface {
	// Create creates a new user identity
	Create(ctx context.Context, user *User) error

	// AddCredentials adds credentials for a user
	AddCredentials(ctx context.Context, credentials *Credentials) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates identity information (email, names)
	Update(ctx context.Context, user *User) error

	// UpdateLockout updates user lockout status
	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error

	// Delete soft-deletes a user
	Delete(ctx context.Context, id string) error

	// HardDelete removes the user row and its credentials. Used by the
	// enrollment saga's compensation path and by admin user deletion.
	HardDelete(ctx context.Context, id string) error

	// GetCredentials retrieves user credentials
	GetCredentials(ctx context.Context, userID string) (*Credentials, error)

	// UpdatePassword updates user password
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
}

// ProfileRepository defines the interface for profile persistence.
// The implementation must enforce a uniqueness constraint on the
// identifier column and surface violations as ErrIDNumberTaken.
type ProfileRepository interface {
	// Create inserts the profile row. A non-nil IDNumber is committed
	// here or not at all.
	Create(ctx context.Context, profile *Profile) error

	// GetByUserID retrieves a profile by owning user ID
	GetByUserID(ctx context.Context, userID string) (*Profile, error)

	// GetByIDNumber retrieves a profile by allocated identifier
	GetByIDNumber(ctx context.Context, idNumber string) (*Profile, error)

	// Update updates mutable profile fields (course, faculty, date of
	// birth). The identifier is immutable and not written here.
	Update(ctx context.Context, profile *Profile) error

	// UpdateStatus flips the account status
	UpdateStatus(ctx context.Context, userID string, status Status) error

	// Delete removes the profile row
	Delete(ctx context.Context, userID string) error

	// List retrieves principals, optionally filtered by role
	List(ctx context.Context, role *Role) ([]*Principal, error)
}
