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

// Package support handles contact messages submitted through the public
// support form.
package support

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/GavinAlgin/digital-portal/internal/id"
	"github.com/GavinAlgin/digital-portal/internal/observability/metrics"
)

// Domain errors
var (
	ErrMessageNotFound = errors.New("support message not found")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrSubjectTooShort = errors.New("subject must be at least 5 characters")
)

const minSubjectLength = 5

// Message status values
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Message is a support request from a portal visitor. Body is optional;
// the subject carries the minimum signal.
type Message struct {
	ID        string
	Email     string
	Subject   string
	Body      string
	Status    string
	CreatedAt time.Time
	ClosedAt  *time.Time
}

// Repository defines the interface for support message persistence
type Repository interface {
	Create(ctx context.Context, message *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	List(ctx context.Context, status string) ([]*Message, error)
	UpdateStatus(ctx context.Context, id, status string, closedAt *time.Time) error
}

// Service provides support desk business logic
type Service struct {
	repo    Repository
	metrics *metrics.Portal
	now     func() time.Time
}

// NewService creates a new support service. A nil clock defaults to time.Now.
func NewService(repo Repository, portalMetrics *metrics.Portal, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, metrics: portalMetrics, now: clock}
}

// Submit validates and stores a new support message. This is a public
// endpoint; validation is the only gate.
func (s *Service) Submit(ctx context.Context, email, subject, body string) (*Message, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	subject = strings.TrimSpace(subject)
	if len(subject) < minSubjectLength {
		return nil, ErrSubjectTooShort
	}

	message := &Message{
		ID:      id.NewUUIDv7(),
		Email:   email,
		Subject: subject,
		Body:    strings.TrimSpace(body),
		Status:  StatusOpen,
	}
	if err := s.repo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to store support message: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSupportMessage(ctx)
	}
	return message, nil
}

// List returns messages for the admin inbox, optionally filtered by status.
// An empty status returns everything.
func (s *Service) List(ctx context.Context, status string) ([]*Message, error) {
	return s.repo.List(ctx, status)
}

// Close marks a message as handled
func (s *Service) Close(ctx context.Context, messageID string) error {
	if _, err := s.repo.GetByID(ctx, messageID); err != nil {
		return err
	}
	closedAt := s.now()
	return s.repo.UpdateStatus(ctx, messageID, StatusClosed, &closedAt)
}
