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

	"github.com/GavinAlgin/digital-portal/internal/events"
)

// EventRepository implements events.Repository
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create creates a new calendar event
func (r *EventRepository) Create(ctx context.Context, event *events.Event) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO events (id, title, date, color, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.Title, event.Date, event.Color, event.CreatedBy, now, now)

	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	event.CreatedAt = now
	event.UpdatedAt = now

	return nil
}

// GetByID retrieves an event by ID
func (r *EventRepository) GetByID(ctx context.Context, id string) (*events.Event, error) {
	var event events.Event

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, title, date, color, created_by, created_at, updated_at
		FROM events
		WHERE id = $1
	`, id).Scan(
		&event.ID, &event.Title, &event.Date, &event.Color,
		&event.CreatedBy, &event.CreatedAt, &event.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, events.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return &event, nil
}

// ListByRange retrieves events with dates inside the inclusive window
func (r *EventRepository) ListByRange(ctx context.Context, from, to time.Time) ([]*events.Event, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, title, date, color, created_by, created_at, updated_at
		FROM events
		WHERE date >= $1 AND date <= $2
		ORDER BY date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*events.Event
	for rows.Next() {
		var event events.Event
		err := rows.Scan(
			&event.ID, &event.Title, &event.Date, &event.Color,
			&event.CreatedBy, &event.CreatedAt, &event.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, &event)
	}

	return out, rows.Err()
}

// Update updates an event
func (r *EventRepository) Update(ctx context.Context, event *events.Event) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE events SET title = $2, date = $3, color = $4, updated_at = NOW()
		WHERE id = $1
	`, event.ID, event.Title, event.Date, event.Color)

	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	if result.RowsAffected() == 0 {
		return events.ErrEventNotFound
	}

	return nil
}

// Delete removes an event
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM events WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	if result.RowsAffected() == 0 {
		return events.ErrEventNotFound
	}

	return nil
}
