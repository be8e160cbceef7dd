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

// Package accommodation covers the partnered-accommodation catalog and
// student requests against it. The catalog is admin-managed; requests
// come in through a public form and must carry explicit consent to share
// the student's details with the leaser.
package accommodation

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/GavinAlgin/digital-portal/internal/id"
)

// Domain errors
var (
	ErrAccommodationNotFound = errors.New("accommodation not found")
	ErrRequestNotFound       = errors.New("accommodation request not found")
	ErrInvalidAccommodation  = errors.New("accommodation name and location are required")
	ErrInvalidRequest        = errors.New("request is missing required fields")
	ErrConsentRequired       = errors.New("consent to share details is required")
)

// Accommodation is a catalog entry for a partnered residence.
type Accommodation struct {
	ID             string
	Name           string
	Location       string
	LeaserName     string
	LeaserEmail    string
	LeaserPhone    string
	DepositAccount string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Request is a student's application for a catalog entry.
type Request struct {
	ID              string
	AccommodationID string
	StudentName     string
	StudentEmail    string
	StudentPhone    string
	AgreedToShare   bool
	CreatedAt       time.Time
}

// Repository defines the interface for accommodation persistence
type Repository interface {
	CreateAccommodation(ctx context.Context, a *Accommodation) error
	GetAccommodation(ctx context.Context, id string) (*Accommodation, error)
	ListAccommodations(ctx context.Context) ([]*Accommodation, error)
	UpdateAccommodation(ctx context.Context, a *Accommodation) error
	DeleteAccommodation(ctx context.Context, id string) error

	CreateRequest(ctx context.Context, r *Request) error
	ListRequests(ctx context.Context, accommodationID string) ([]*Request, error)
}

// Service provides accommodation business logic
type Service struct {
	repo Repository
}

// NewService creates a new accommodation service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AddToCatalog creates a catalog entry
func (s *Service) AddToCatalog(ctx context.Context, a *Accommodation) (*Accommodation, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.Location = strings.TrimSpace(a.Location)
	if a.Name == "" || a.Location == "" {
		return nil, ErrInvalidAccommodation
	}

	a.ID = id.NewUUIDv7()
	if err := s.repo.CreateAccommodation(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create accommodation: %w", err)
	}
	return a, nil
}

// Catalog lists every partnered accommodation
func (s *Service) Catalog(ctx context.Context) ([]*Accommodation, error) {
	return s.repo.ListAccommodations(ctx)
}

// GetFromCatalog retrieves a single catalog entry
func (s *Service) GetFromCatalog(ctx context.Context, accommodationID string) (*Accommodation, error) {
	return s.repo.GetAccommodation(ctx, accommodationID)
}

// UpdateCatalog edits a catalog entry
func (s *Service) UpdateCatalog(ctx context.Context, a *Accommodation) (*Accommodation, error) {
	existing, err := s.repo.GetAccommodation(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(a.Name); v != "" {
		existing.Name = v
	}
	if v := strings.TrimSpace(a.Location); v != "" {
		existing.Location = v
	}
	if v := strings.TrimSpace(a.LeaserName); v != "" {
		existing.LeaserName = v
	}
	if v := strings.TrimSpace(a.LeaserEmail); v != "" {
		existing.LeaserEmail = v
	}
	if v := strings.TrimSpace(a.LeaserPhone); v != "" {
		existing.LeaserPhone = v
	}
	if v := strings.TrimSpace(a.DepositAccount); v != "" {
		existing.DepositAccount = v
	}

	if err := s.repo.UpdateAccommodation(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update accommodation: %w", err)
	}
	return existing, nil
}

// RemoveFromCatalog deletes a catalog entry
func (s *Service) RemoveFromCatalog(ctx context.Context, accommodationID string) error {
	return s.repo.DeleteAccommodation(ctx, accommodationID)
}

// SubmitRequest records a student's application. The referenced catalog
// entry must exist and the consent box must be ticked.
func (s *Service) SubmitRequest(ctx context.Context, r *Request) (*Request, error) {
	r.StudentName = strings.TrimSpace(r.StudentName)
	r.StudentEmail = strings.TrimSpace(r.StudentEmail)
	r.StudentPhone = strings.TrimSpace(r.StudentPhone)

	if r.StudentName == "" || r.StudentPhone == "" || r.AccommodationID == "" {
		return nil, ErrInvalidRequest
	}
	if _, err := mail.ParseAddress(r.StudentEmail); err != nil {
		return nil, ErrInvalidRequest
	}
	if !r.AgreedToShare {
		return nil, ErrConsentRequired
	}

	if _, err := s.repo.GetAccommodation(ctx, r.AccommodationID); err != nil {
		return nil, err
	}

	r.ID = id.NewUUIDv7()
	if err := s.repo.CreateRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return r, nil
}

// Requests lists applications, optionally narrowed to one accommodation.
// An empty accommodation ID returns all requests.
func (s *Service) Requests(ctx context.Context, accommodationID string) ([]*Request, error) {
	return s.repo.ListRequests(ctx, accommodationID)
}
