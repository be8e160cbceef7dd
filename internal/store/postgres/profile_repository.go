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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GavinAlgin/digital-portal/internal/identity"
	"github.com/GavinAlgin/digital-portal/internal/idnumber"
)

// ProfileRepository implements identity.ProfileRepository and serves as
// the allocator's idnumber.Repository.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create inserts the profile row. When the profile carries an identifier,
// the identifier is first recorded in id_allocations inside the same
// transaction; its primary key settles allocation races. Ledger rows are
// never deleted, so identifiers of deleted principals stay unavailable.
func (r *ProfileRepository) Create(ctx context.Context, profile *identity.Profile) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	if profile.IDNumber != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO id_allocations (id_number, allocated_at)
			VALUES ($1, $2)
		`, *profile.IDNumber, now)
		if err != nil {
			if isUniqueViolation(err, "id_allocations_pkey") {
				return identity.ErrIDNumberTaken
			}
			return fmt.Errorf("failed to record identifier allocation: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (
			user_id, role, id_number, course, faculty, status, date_of_birth,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		profile.UserID, string(profile.Role), profile.IDNumber,
		profile.Course, profile.Faculty, string(profile.Status), profile.DateOfBirth,
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err, "profiles_pkey") {
			return identity.ErrProfileExists
		}
		if isUniqueViolation(err, "profiles_id_number_key") {
			return identity.ErrIDNumberTaken
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit profile: %w", err)
	}

	profile.CreatedAt = now
	profile.UpdatedAt = now

	return nil
}

const profileColumns = `user_id, role, id_number, course, faculty, status,
	date_of_birth, created_at, updated_at`

func scanProfile(row pgx.Row) (*identity.Profile, error) {
	var profile identity.Profile
	var role, status string
	var idNumber sql.NullString
	var dob sql.NullTime

	err := row.Scan(
		&profile.UserID, &role, &idNumber, &profile.Course, &profile.Faculty,
		&status, &dob, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.Role = identity.Role(role)
	profile.Status = identity.Status(status)
	if idNumber.Valid {
		profile.IDNumber = &idNumber.String
	}
	if dob.Valid {
		profile.DateOfBirth = &dob.Time
	}

	return &profile, nil
}

// GetByUserID retrieves a profile by owning user ID
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*identity.Profile, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE user_id = $1
	`, userID)
	return scanProfile(row)
}

// GetByIDNumber retrieves a profile by allocated identifier
func (r *ProfileRepository) GetByIDNumber(ctx context.Context, idNumber string) (*identity.Profile, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE id_number = $1
	`, idNumber)
	return scanProfile(row)
}

// Update updates mutable profile fields. The identifier column is left
// untouched.
func (r *ProfileRepository) Update(ctx context.Context, profile *identity.Profile) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE profiles SET
			course = $2,
			faculty = $3,
			date_of_birth = $4,
			updated_at = NOW()
		WHERE user_id = $1
	`, profile.UserID, profile.Course, profile.Faculty, profile.DateOfBirth)

	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrProfileNotFound
	}

	return nil
}

// UpdateStatus flips the account status
func (r *ProfileRepository) UpdateStatus(ctx context.Context, userID string, status identity.Status) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE profiles SET status = $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, string(status))

	if err != nil {
		return fmt.Errorf("failed to update profile status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrProfileNotFound
	}

	return nil
}

// Delete removes the profile row. The id_allocations ledger keeps the
// identifier.
func (r *ProfileRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM profiles WHERE user_id = $1
	`, userID)

	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrProfileNotFound
	}

	return nil
}

// List retrieves principals joined with their identities, optionally
// filtered by role.
func (r *ProfileRepository) List(ctx context.Context, role *identity.Role) ([]*identity.Principal, error) {
	query := `
		SELECT u.id, u.email, u.email_verified, u.first_name, u.last_name,
			u.created_at, u.updated_at,
			p.role, p.id_number, p.course, p.faculty, p.status,
			p.date_of_birth, p.created_at, p.updated_at
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE u.deleted_at IS NULL
	`
	args := []any{}
	if role != nil {
		query += ` AND p.role = $1`
		args = append(args, string(*role))
	}
	query += ` ORDER BY u.created_at`

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	var principals []*identity.Principal
	for rows.Next() {
		var p identity.Principal
		var roleStr, statusStr string
		var idNumber sql.NullString
		var dob sql.NullTime

		err := rows.Scan(
			&p.User.ID, &p.User.Email, &p.User.EmailVerified,
			&p.User.FirstName, &p.User.LastName,
			&p.User.CreatedAt, &p.User.UpdatedAt,
			&roleStr, &idNumber, &p.Profile.Course, &p.Profile.Faculty,
			&statusStr, &dob, &p.Profile.CreatedAt, &p.Profile.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}

		p.Profile.UserID = p.User.ID
		p.Profile.Role = identity.Role(roleStr)
		p.Profile.Status = identity.Status(statusStr)
		if idNumber.Valid {
			p.Profile.IDNumber = &idNumber.String
		}
		if dob.Valid {
			p.Profile.DateOfBirth = &dob.Time
		}

		principals = append(principals, &p)
	}

	return principals, rows.Err()
}

// LastAllocated implements idnumber.Repository over the allocation ledger.
// Ordering by length before value keeps 1000 above 999 once the sequence
// outgrows its padding.
func (r *ProfileRepository) LastAllocated(ctx context.Context, prefix string) (string, error) {
	var idNumber string

	err := r.db.pool.QueryRow(ctx, `
		SELECT id_number
		FROM id_allocations
		WHERE id_number LIKE $1 || '%'
		ORDER BY length(id_number) DESC, id_number DESC
		LIMIT 1
	`, prefix).Scan(&idNumber)

	if err != nil {
		if err == pgx.ErrNoRows {
			return "", idnumber.ErrNoneAllocated
		}
		return "", fmt.Errorf("failed to query last allocation: %w", err)
	}

	return idNumber, nil
}
