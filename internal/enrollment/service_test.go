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

package enrollment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GavinAlgin/digital-portal/internal/audit"
	"github.com/GavinAlgin/digital-portal/internal/identity"
	"github.com/GavinAlgin/digital-portal/internal/idnumber"
)

// memUsers is an in-memory identity.UserRepository.
type memUsers struct {
	mu             sync.Mutex
	users          map[string]*identity.User
	creds          map[string]*identity.Credentials
	failHardDelete bool
}

func newMemUsers() *memUsers {
	return &memUsers{
		users: make(map[string]*identity.User),
		creds: make(map[string]*identity.Credentials),
	}
}

func (m *memUsers) Create(_ context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) AddCredentials(_ context.Context, c *identity.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.UserID] = c
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUsers) Update(_ context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) UpdateLockout(_ context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.FailedLoginAttempts = failedAttempts
		u.LockedUntil = lockedUntil
	}
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		now := time.Now()
		u.DeletedAt = &now
	}
	return nil
}

func (m *memUsers) HardDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHardDelete {
		return errors.New("store unavailable")
	}
	delete(m.users, id)
	delete(m.creds, id)
	return nil
}

func (m *memUsers) GetCredentials(_ context.Context, userID string) (*identity.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[userID]
	if !ok {
		return nil, identity.ErrInvalidCredentials
	}
	return c, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[userID] = &identity.Credentials{UserID: userID, PasswordHash: hash}
	return nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// memProfiles is an in-memory identity.ProfileRepository that also serves
// the allocator. Allocated identifiers go into a ledger that survives
// profile deletion, matching the durable allocation record in the real
// store.
type memProfiles struct {
	mu          sync.Mutex
	profiles    map[string]*identity.Profile
	ledger      map[string]bool
	failCreates int // next N creates fail with ErrIDNumberTaken
	createCalls int
}

func newMemProfiles() *memProfiles {
	return &memProfiles{
		profiles: make(map[string]*identity.Profile),
		ledger:   make(map[string]bool),
	}
}

func (m *memProfiles) Create(_ context.Context, p *identity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.failCreates > 0 {
		m.failCreates--
		return identity.ErrIDNumberTaken
	}
	if p.IDNumber != nil {
		if m.ledger[*p.IDNumber] {
			return identity.ErrIDNumberTaken
		}
		m.ledger[*p.IDNumber] = true
	}
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *memProfiles) GetByUserID(_ context.Context, userID string) (*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	return p, nil
}

func (m *memProfiles) GetByIDNumber(_ context.Context, idNumber string) (*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.IDNumber != nil && *p.IDNumber == idNumber {
			return p, nil
		}
	}
	return nil, identity.ErrProfileNotFound
}

func (m *memProfiles) Update(_ context.Context, p *identity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UserID]; !ok {
		return identity.ErrProfileNotFound
	}
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *memProfiles) UpdateStatus(_ context.Context, userID string, status identity.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return identity.ErrProfileNotFound
	}
	p.Status = status
	return nil
}

func (m *memProfiles) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[userID]; !ok {
		return identity.ErrProfileNotFound
	}
	delete(m.profiles, userID)
	return nil
}

func (m *memProfiles) List(_ context.Context, _ *identity.Role) ([]*identity.Principal, error) {
	return nil, nil
}

// LastAllocated implements idnumber.Repository over the ledger.
func (m *memProfiles) LastAllocated(_ context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []string
	for id := range m.ledger {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	if len(matches) == 0 {
		return "", idnumber.ErrNoneAllocated
	}
	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) > len(matches[j])
		}
		return matches[i] > matches[j]
	})
	return matches[0], nil
}

// recordingAudit captures audit events for assertions.
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T) (*Service, *memUsers, *memProfiles, *recordingAudit) {
	t.Helper()
	users := newMemUsers()
	profiles := newMemProfiles()
	auditLog := &recordingAudit{}

	hasher := identity.NewPasswordHasher(1024, 1, 1, 8, 16)
	resetTokens := identity.NewResetTokens([]byte("test-secret"), time.Hour, nil)
	identities := identity.NewService(users, hasher, resetTokens, auditLog, 3, 5*time.Minute)

	clock := func() time.Time { return time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC) }
	allocator := idnumber.NewAllocator(profiles, clock)

	return NewService(identities, profiles, allocator, auditLog, nil, 3), users, profiles, auditLog
}

func studentInput(email string) Input {
	return Input{
		Email:     email,
		Password:  "SecurePassword123",
		FirstName: "Thandi",
		LastName:  "Mokoena",
		Course:    "BSc Computer Science",
		Faculty:   "Science",
	}
}

// TestPurpose: Happy-path student enrollment
// Scope: Two-phase flow end to end against in-memory stores
// Expected: Identity, credentials, and profile all exist; identifiers
// are sequential within the scope
func TestService_EnrollStudent(t *testing.T) {
	svc, users, profiles, auditLog := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnrollStudent(ctx, studentInput("thandi@example.com"))
	require.NoError(t, err)
	require.NotNil(t, first.Profile.IDNumber)
	assert.Equal(t, "LIS-25BSCSCI-001", *first.Profile.IDNumber)
	assert.Equal(t, identity.RoleStudent, first.Profile.Role)
	assert.Equal(t, identity.StatusActive, first.Profile.Status)

	second, err := svc.EnrollStudent(ctx, studentInput("sipho@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "LIS-25BSCSCI-002", *second.Profile.IDNumber)

	assert.Equal(t, 2, users.count())
	_, err = profiles.GetByUserID(ctx, first.User.ID)
	assert.NoError(t, err)
	assert.True(t, auditLog.has(audit.TypeUserEnrolled))
	assert.True(t, auditLog.has(audit.TypeIDAllocated))
}

// TestPurpose: Staff enrollment shares the allocator with students
// Expected: Staff receive identifiers from the same scoped sequence
func TestService_EnrollStaff(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.EnrollStaff(ctx, studentInput("lecturer@example.com"))
	require.NoError(t, err)
	require.NotNil(t, p.Profile.IDNumber)
	assert.Equal(t, "LIS-25BSCSCI-001", *p.Profile.IDNumber)
	assert.Equal(t, identity.RoleStaff, p.Profile.Role)
}

// TestPurpose: Admin accounts carry no allocated identifier
// Expected: Profile commits with a nil identifier and an audit trail
func TestService_CreateAdmin(t *testing.T) {
	svc, _, _, auditLog := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateAdmin(ctx, "admin-0", Input{
		Email:     "root@example.com",
		Password:  "SecurePassword123",
		FirstName: "Site",
		LastName:  "Admin",
	})
	require.NoError(t, err)
	assert.Nil(t, p.Profile.IDNumber)
	assert.Equal(t, identity.RoleAdmin, p.Profile.Role)
	assert.True(t, auditLog.has(audit.TypeAdminCreated))
}

// TestPurpose: Lost allocation races retry with a fresh candidate
// Expected: A conflicted insert re-allocates and succeeds within bounds
func TestService_Enroll_ConflictRetries(t *testing.T) {
	svc, _, profiles, auditLog := newTestService(t)
	profiles.failCreates = 1
	ctx := context.Background()

	p, err := svc.EnrollStudent(ctx, studentInput("thandi@example.com"))
	require.NoError(t, err)
	require.NotNil(t, p.Profile.IDNumber)
	assert.Equal(t, 2, profiles.createCalls)
	assert.True(t, auditLog.has(audit.TypeIDAllocationConflict))
	assert.True(t, auditLog.has(audit.TypeIDAllocated))
}

// TestPurpose: Bounded retries under sustained contention
// Expected: After the attempt budget the saga fails and rolls back the
// identity created in phase one
func TestService_Enroll_ContentionExhausted(t *testing.T) {
	svc, users, profiles, _ := newTestService(t)
	profiles.failCreates = 100
	ctx := context.Background()

	_, err := svc.EnrollStudent(ctx, studentInput("thandi@example.com"))
	assert.ErrorIs(t, err, ErrAllocationContention)
	assert.Equal(t, 3, profiles.createCalls)
	assert.Equal(t, 0, users.count(), "identity must be rolled back")
}

// TestPurpose: Failed compensation is surfaced for reconciliation
// Expected: When the rollback delete fails, the orphaned identity is
// recorded in the audit log
func TestService_Enroll_CompensationFailure(t *testing.T) {
	svc, users, profiles, auditLog := newTestService(t)
	profiles.failCreates = 100
	users.failHardDelete = true
	ctx := context.Background()

	_, err := svc.EnrollStudent(ctx, studentInput("thandi@example.com"))
	require.Error(t, err)
	assert.True(t, auditLog.has(audit.TypeEnrollmentOrphaned))
}

// TestPurpose: Invalid course input fails before anything commits
// Expected: Allocation rejects the input and phase one is rolled back
func TestService_Enroll_InvalidCourse(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()

	in := studentInput("thandi@example.com")
	in.Course = "12345"
	_, err := svc.EnrollStudent(ctx, in)
	assert.ErrorIs(t, err, idnumber.ErrInvalidCode)
	assert.Equal(t, 0, users.count())
}

// TestPurpose: Deleted principals do not release their identifiers
// Expected: After deleting the holder of the highest identifier, the
// next enrollment continues the sequence instead of reusing it
func TestService_DeleteUser_IdentifierNotReused(t *testing.T) {
	svc, users, profiles, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnrollStudent(ctx, studentInput("a@example.com"))
	require.NoError(t, err)
	second, err := svc.EnrollStudent(ctx, studentInput("b@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "LIS-25BSCSCI-002", *second.Profile.IDNumber)

	require.NoError(t, svc.DeleteUser(ctx, "admin-0", second.User.ID))
	assert.Equal(t, 1, users.count())
	_, err = profiles.GetByUserID(ctx, second.User.ID)
	assert.ErrorIs(t, err, identity.ErrProfileNotFound)

	third, err := svc.EnrollStudent(ctx, studentInput("c@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "LIS-25BSCSCI-003", *third.Profile.IDNumber)
}
