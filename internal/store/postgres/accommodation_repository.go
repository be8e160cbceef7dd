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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GavinAlgin/digital-portal/internal/accommodation"
)

// AccommodationRepository implements accommodation.Repository
type AccommodationRepository struct {
	db *DB
}

// NewAccommodationRepository creates a new accommodation repository
func NewAccommodationRepository(db *DB) *AccommodationRepository {
	return &AccommodationRepository{db: db}
}

// CreateAccommodation inserts a catalog entry
func (r *AccommodationRepository) CreateAccommodation(ctx context.Context, a *accommodation.Accommodation) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO partnered_accommodations (
			id, name, location, leaser_name, leaser_email, leaser_phone,
			deposit_account, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		a.ID, a.Name, a.Location, a.LeaserName, a.LeaserEmail, a.LeaserPhone,
		a.DepositAccount, now, now,
	)

	if err != nil {
		return fmt.Errorf("failed to insert accommodation: %w", err)
	}

	a.CreatedAt = now
	a.UpdatedAt = now

	return nil
}

const accommodationColumns = `id, name, location, leaser_name, leaser_email,
	leaser_phone, deposit_account, created_at, updated_at`

func scanAccommodation(row pgx.Row) (*accommodation.Accommodation, error) {
	var a accommodation.Accommodation
	err := row.Scan(
		&a.ID, &a.Name, &a.Location, &a.LeaserName, &a.LeaserEmail,
		&a.LeaserPhone, &a.DepositAccount, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, accommodation.ErrAccommodationNotFound
		}
		return nil, fmt.Errorf("failed to get accommodation: %w", err)
	}
	return &a, nil
}

// GetAccommodation retrieves a catalog entry by ID
func (r *AccommodationRepository) GetAccommodation(ctx context.Context, id string) (*accommodation.Accommodation, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+accommodationColumns+`
		FROM partnered_accommodations
		WHERE id = $1
	`, id)
	return scanAccommodation(row)
}

// ListAccommodations retrieves the full catalog
func (r *AccommodationRepository) ListAccommodations(ctx context.Context) ([]*accommodation.Accommodation, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+accommodationColumns+`
		FROM partnered_accommodations
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accommodations: %w", err)
	}
	defer rows.Close()

	var out []*accommodation.Accommodation
	for rows.Next() {
		var a accommodation.Accommodation
		err := rows.Scan(
			&a.ID, &a.Name, &a.Location, &a.LeaserName, &a.LeaserEmail,
			&a.LeaserPhone, &a.DepositAccount, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan accommodation: %w", err)
		}
		out = append(out, &a)
	}

	return out, rows.Err()
}

// UpdateAccommodation updates a catalog entry
func (r *AccommodationRepository) UpdateAccommodation(ctx context.Context, a *accommodation.Accommodation) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE partnered_accommodations SET
			name = $2,
			location = $3,
			leaser_name = $4,
			leaser_email = $5,
			leaser_phone = $6,
			deposit_account = $7,
			updated_at = NOW()
		WHERE id = $1
	`, a.ID, a.Name, a.Location, a.LeaserName, a.LeaserEmail, a.LeaserPhone, a.DepositAccount)

	if err != nil {
		return fmt.Errorf("failed to update accommodation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return accommodation.ErrAccommodationNotFound
	}

	return nil
}

// DeleteAccommodation removes a catalog entry
func (r *AccommodationRepository) DeleteAccommodation(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM partnered_accommodations WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete accommodation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return accommodation.ErrAccommodationNotFound
	}

	return nil
}

// CreateRequest stores a student's accommodation request
func (r *AccommodationRepository) CreateRequest(ctx context.Context, req *accommodation.Request) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO accommodation_requests (
			id, accommodation_id, student_name, student_email, student_phone,
			agreed_to_share, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		req.ID, req.AccommodationID, req.StudentName, req.StudentEmail,
		req.StudentPhone, req.AgreedToShare, now,
	)

	if err != nil {
		return fmt.Errorf("failed to insert accommodation request: %w", err)
	}

	req.CreatedAt = now

	return nil
}

// ListRequests retrieves requests, optionally narrowed to one accommodation
func (r *AccommodationRepository) ListRequests(ctx context.Context, accommodationID string) ([]*accommodation.Request, error) {
	query := `
		SELECT id, accommodation_id, student_name, student_email, student_phone,
			agreed_to_share, created_at
		FROM accommodation_requests
	`
	args := []any{}
	if accommodationID != "" {
		query += ` WHERE accommodation_id = $1`
		args = append(args, accommodationID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accommodation requests: %w", err)
	}
	defer rows.Close()

	var out []*accommodation.Request
	for rows.Next() {
		var req accommodation.Request
		err := rows.Scan(
			&req.ID, &req.AccommodationID, &req.StudentName, &req.StudentEmail,
			&req.StudentPhone, &req.AgreedToShare, &req.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan accommodation request: %w", err)
		}
		out = append(out, &req)
	}

	return out, rows.Err()
}
