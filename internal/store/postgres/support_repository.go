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

	"github.com/GavinAlgin/digital-portal/internal/support"
)

// SupportRepository implements support.Repository
type SupportRepository struct {
	db *DB
}

// NewSupportRepository creates a new support message repository
func NewSupportRepository(db *DB) *SupportRepository {
	return &SupportRepository{db: db}
}

// Create stores a new support message
func (r *SupportRepository) Create(ctx context.Context, message *support.Message) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO support_messages (id, email, subject, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, message.ID, message.Email, message.Subject, message.Body, message.Status, now)

	if err != nil {
		return fmt.Errorf("failed to insert support message: %w", err)
	}

	message.CreatedAt = now

	return nil
}

// GetByID retrieves a support message by ID
func (r *SupportRepository) GetByID(ctx context.Context, id string) (*support.Message, error) {
	var message support.Message
	var closedAt sql.NullTime

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, email, subject, body, status, created_at, closed_at
		FROM support_messages
		WHERE id = $1
	`, id).Scan(
		&message.ID, &message.Email, &message.Subject, &message.Body,
		&message.Status, &message.CreatedAt, &closedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, support.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get support message: %w", err)
	}

	if closedAt.Valid {
		message.ClosedAt = &closedAt.Time
	}

	return &message, nil
}

// List retrieves support messages, newest first, optionally filtered by status
func (r *SupportRepository) List(ctx context.Context, status string) ([]*support.Message, error) {
	query := `
		SELECT id, email, subject, body, status, created_at, closed_at
		FROM support_messages
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list support messages: %w", err)
	}
	defer rows.Close()

	var out []*support.Message
	for rows.Next() {
		var message support.Message
		var closedAt sql.NullTime

		err := rows.Scan(
			&message.ID, &message.Email, &message.Subject, &message.Body,
			&message.Status, &message.CreatedAt, &closedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan support message: %w", err)
		}
		if closedAt.Valid {
			message.ClosedAt = &closedAt.Time
		}
		out = append(out, &message)
	}

	return out, rows.Err()
}

// UpdateStatus updates a message's status and close time
func (r *SupportRepository) UpdateStatus(ctx context.Context, id, status string, closedAt *time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE support_messages SET status = $2, closed_at = $3
		WHERE id = $1
	`, id, status, closedAt)

	if err != nil {
		return fmt.Errorf("failed to update support message: %w", err)
	}

	if result.RowsAffected() == 0 {
		return support.ErrMessageNotFound
	}

	return nil
}
