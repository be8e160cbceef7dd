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
	"testing"
	"time"

	"github.com/GavinAlgin/digital-portal/internal/audit"
)

// MockUserRepository is a simple in-memory implementation of UserRepository
type MockUserRepository struct {
	users       map[string]*User
	credentials map[string]*Credentials
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:       make(map[string]*User),
		credentials: make(map[string]*Credentials),
	}
}

func (m *MockUserRepository) Create(_ context.Context, user *User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) AddCredentials(_ context.Context, credentials *Credentials) error {
	m.credentials[credentials.UserID] = credentials
	return nil
}

func (m *MockUserRepository) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) Update(_ context.Context, user *User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) UpdateLockout(_ context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}

func (m *MockUserRepository) Delete(_ context.Context, id string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now()
	u.DeletedAt = &now
	return nil
}

func (m *MockUserRepository) HardDelete(_ context.Context, id string) error {
	delete(m.users, id)
	delete(m.credentials, id)
	return nil
}

func (m *MockUserRepository) GetCredentials(_ context.Context, userID string) (*Credentials, error) {
	c, ok := m.credentials[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return c, nil
}

func (m *MockUserRepository) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	c, ok := m.credentials[userID]
	if !ok {
		return ErrUserNotFound
	}
	c.PasswordHash = passwordHash
	return nil
}

func newTestService(repo UserRepository) *Service {
	hasher := NewPasswordHasher(65536, 3, 4, 16, 32)
	resetTokens := NewResetTokens([]byte("test-secret"), time.Hour, nil)
	return NewService(repo, hasher, resetTokens, audit.NewSlogLogger(), 3, 5*time.Minute)
}

// TestPurpose: Validates the user authentication flow, including success, failure, and account lockout after multiple failed attempts.
// Scope: Unit Test
// Security: Authentication mechanisms and Brute-force protection (lockout)
// Expected: Successful login for correct credentials, error for wrong credentials, and account lockout after the threshold.
func TestIdentity_Service_Authenticate(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo)

	ctx := context.Background()
	email := "test@example.com"
	password := "SecurePassword123"

	user, err := s.ProvisionIdentity(ctx, email, "Test", "User")
	if err != nil {
		t.Fatalf("failed to provision: %v", err)
	}

	if err := s.AddPassword(ctx, user.ID, password); err != nil {
		t.Fatalf("failed to add password: %v", err)
	}

	authed, err := s.Authenticate(ctx, email, password)
	if err != nil {
		t.Fatalf("expected success, got err: %v", err)
	}
	if authed.ID != user.ID {
		t.Errorf("expected user ID %s, got %s", user.ID, authed.ID)
	}

	_, err = s.Authenticate(ctx, email, "WrongPassword")
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}

	// Drive the account to the lockout threshold.
	s.Authenticate(ctx, email, "WrongPassword")
	_, err = s.Authenticate(ctx, email, "WrongPassword")
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for 3rd failed attempt, got %v", err)
	}

	_, err = s.Authenticate(ctx, email, password)
	if err != ErrAccountLocked {
		t.Errorf("expected ErrAccountLocked, got %v", err)
	}
}

// TestPurpose: Validates that provisioning an identity fails if a user with the same email already exists.
// Scope: Unit Test
// Security: Data Integrity and Unique Constraint Enforcement
// Expected: ErrUserAlreadyExists when email is already registered.
func TestIdentity_Service_ProvisionIdentity_Conflict(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo)

	ctx := context.Background()
	email := "conflict@example.com"

	if _, err := s.ProvisionIdentity(ctx, email, "First", "User"); err != nil {
		t.Fatalf("first provision failed: %v", err)
	}
	_, err := s.ProvisionIdentity(ctx, email, "Second", "User")
	if err != ErrUserAlreadyExists {
		t.Errorf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestIdentity_Service_ProvisionIdentity_InvalidEmail(t *testing.T) {
	s := newTestService(NewMockUserRepository())

	for _, email := range []string{"", "not-an-email", "a@", "@b"} {
		if _, err := s.ProvisionIdentity(context.Background(), email, "A", "B"); err != ErrInvalidEmail {
			t.Errorf("email %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
}

func TestIdentity_Service_ChangePassword(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo)
	ctx := context.Background()

	user, err := s.ProvisionIdentity(ctx, "pw@example.com", "Pw", "User")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddPassword(ctx, user.ID, "OriginalPass1"); err != nil {
		t.Fatal(err)
	}

	if err := s.ChangePassword(ctx, user.ID, "wrong", "NextPassword1"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := s.ChangePassword(ctx, user.ID, "OriginalPass1", "short"); err != ErrWeakPassword {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	if err := s.ChangePassword(ctx, user.ID, "OriginalPass1", "NextPassword1"); err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "pw@example.com", "NextPassword1"); err != nil {
		t.Errorf("new password should authenticate, got %v", err)
	}
}

// TestPurpose: Validates the full password reset round trip and that a
// completed reset clears an active lockout.
// Scope: Unit Test
// Security: Account Recovery
// Expected: Token from BeginPasswordReset is accepted once by CompletePasswordReset; the new password logs in.
func TestIdentity_Service_PasswordReset(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo)
	ctx := context.Background()

	user, err := s.ProvisionIdentity(ctx, "reset@example.com", "Reset", "User")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddPassword(ctx, user.ID, "ForgottenPass1"); err != nil {
		t.Fatal(err)
	}

	_, token, err := s.BeginPasswordReset(ctx, "reset@example.com")
	if err != nil {
		t.Fatalf("begin reset: %v", err)
	}

	reset, err := s.CompletePasswordReset(ctx, token, "BrandNewPass1")
	if err != nil {
		t.Fatalf("complete reset: %v", err)
	}
	if reset.ID != user.ID {
		t.Errorf("expected reset to report user %s, got %s", user.ID, reset.ID)
	}
	if _, err := s.Authenticate(ctx, "reset@example.com", "BrandNewPass1"); err != nil {
		t.Errorf("new password should authenticate, got %v", err)
	}

	if _, err := s.CompletePasswordReset(ctx, "garbage-token", "AnotherPass1"); err != ErrResetTokenInvalid {
		t.Errorf("expected ErrResetTokenInvalid, got %v", err)
	}
}

func TestIdentity_Service_BeginPasswordReset_UnknownEmail(t *testing.T) {
	s := newTestService(NewMockUserRepository())

	_, _, err := s.BeginPasswordReset(context.Background(), "nobody@example.com")
	if err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestIdentity_Service_HardDelete(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo)
	ctx := context.Background()

	user, err := s.ProvisionIdentity(ctx, "gone@example.com", "Gone", "User")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddPassword(ctx, user.ID, "SomePassword1"); err != nil {
		t.Fatal(err)
	}

	if err := s.HardDelete(ctx, user.ID); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := s.GetUser(ctx, user.ID); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound after hard delete, got %v", err)
	}
	if _, err := repo.GetCredentials(ctx, user.ID); err != ErrUserNotFound {
		t.Errorf("credentials should be removed with the identity, got %v", err)
	}
}
