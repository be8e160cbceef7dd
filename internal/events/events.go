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

// Package events manages the portal calendar.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GavinAlgin/digital-portal/internal/audit"
	"github.com/GavinAlgin/digital-portal/internal/id"
)

// Domain errors
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("event title and date are required")
)

// Colors the calendar UI knows how to render.
var allowedColors = map[string]bool{
	"blue":   true,
	"green":  true,
	"red":    true,
	"yellow": true,
	"purple": true,
}

const defaultColor = "blue"

// Event is a single calendar entry. Date carries day precision only.
type Event struct {
	ID        string
	Title     string
	Date      time.Time
	Color     string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines the interface for event persistence
type Repository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	ListByRange(ctx context.Context, from, to time.Time) ([]*Event, error)
	Update(ctx context.Context, event *Event) error
	Delete(ctx context.Context, id string) error
}

// Service provides calendar business logic
type Service struct {
	repo  Repository
	audit audit.Logger
}

// NewService creates a new events service
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, audit: auditLogger}
}

// Create adds a calendar entry. The color falls back to the default when
// absent or unknown to the UI palette.
func (s *Service) Create(ctx context.Context, actorID, title string, date time.Time, color string) (*Event, error) {
	title = strings.TrimSpace(title)
	if title == "" || date.IsZero() {
		return nil, ErrInvalidEvent
	}
	if !allowedColors[color] {
		color = defaultColor
	}

	event := &Event{
		ID:        id.NewUUIDv7(),
		Title:     title,
		Date:      date.Truncate(24 * time.Hour),
		Color:     color,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.log(ctx, audit.TypeEventCreated, actorID, event.ID)
	return event, nil
}

// ListMonth returns the events falling within the month containing ref.
func (s *Service) ListMonth(ctx context.Context, ref time.Time) ([]*Event, error) {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-24 * time.Hour)
	return s.repo.ListByRange(ctx, start, end)
}

// Get retrieves a single event
func (s *Service) Get(ctx context.Context, eventID string) (*Event, error) {
	return s.repo.GetByID(ctx, eventID)
}

// Update edits an event's title, date, or color. Rescheduling by dragging
// a calendar cell comes through here as a date-only change.
func (s *Service) Update(ctx context.Context, actorID, eventID, title string, date time.Time, color string) (*Event, error) {
	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if title = strings.TrimSpace(title); title != "" {
		event.Title = title
	}
	if !date.IsZero() {
		event.Date = date.Truncate(24 * time.Hour)
	}
	if allowedColors[color] {
		event.Color = color
	}

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	s.log(ctx, audit.TypeEventUpdated, actorID, event.ID)
	return event, nil
}

// Delete removes an event
func (s *Service) Delete(ctx context.Context, actorID, eventID string) error {
	if err := s.repo.Delete(ctx, eventID); err != nil {
		return err
	}
	s.log(ctx, audit.TypeEventDeleted, actorID, eventID)
	return nil
}

func (s *Service) log(ctx context.Context, eventType, actorID, resource string) {
	if s.audit != nil {
		s.audit.Log(ctx, audit.Event{Type: eventType, ActorID: actorID, Resource: resource})
	}
}
