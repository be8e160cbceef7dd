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

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GavinAlgin/digital-portal/internal/accommodation"
	"github.com/GavinAlgin/digital-portal/internal/authz"
	"github.com/GavinAlgin/digital-portal/internal/identity"
)

// AccommodationRequest carries catalog entry fields for create and update.
type AccommodationRequest struct {
	Name           string `json:"name"`
	Location       string `json:"location"`
	LeaserName     string `json:"leaser_name"`
	LeaserEmail    string `json:"leaser_email"`
	LeaserPhone    string `json:"leaser_phone"`
	DepositAccount string `json:"deposit_account"`
}

func (req *AccommodationRequest) toModel(id string) *accommodation.Accommodation {
	return &accommodation.Accommodation{
		ID:             id,
		Name:           req.Name,
		Location:       req.Location,
		LeaserName:     req.LeaserName,
		LeaserEmail:    req.LeaserEmail,
		LeaserPhone:    req.LeaserPhone,
		DepositAccount: req.DepositAccount,
	}
}

// StayRequest is the public form a student fills in to request a stay.
type StayRequest struct {
	AccommodationID string `json:"accommodation_id"`
	StudentName     string `json:"student_name"`
	StudentEmail    string `json:"student_email"`
	StudentPhone    string `json:"student_phone"`
	AgreedToShare   bool   `json:"agreed_to_share"`
}

func accommodationResponse(a *accommodation.Accommodation) map[string]any {
	return map[string]any{
		"id":              a.ID,
		"name":            a.Name,
		"location":        a.Location,
		"leaser_name":     a.LeaserName,
		"leaser_email":    a.LeaserEmail,
		"leaser_phone":    a.LeaserPhone,
		"deposit_account": a.DepositAccount,
	}
}

// ListAccommodations returns the partnered accommodation catalog. Public:
// prospective students browse before they have an account.
func (h *Handler) ListAccommodations(w http.ResponseWriter, r *http.Request) {
	list, err := h.accommodationSvc.Catalog(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list accommodations")
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, a := range list {
		out = append(out, accommodationResponse(a))
	}

	respondJSON(w, http.StatusOK, map[string]any{"accommodations": out})
}

// SubmitAccommodationRequest records a student's stay request. Public.
func (h *Handler) SubmitAccommodationRequest(w http.ResponseWriter, r *http.Request) {
	var req StayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.accommodationSvc.SubmitRequest(r.Context(), &accommodation.Request{
		AccommodationID: req.AccommodationID,
		StudentName:     req.StudentName,
		StudentEmail:    req.StudentEmail,
		StudentPhone:    req.StudentPhone,
		AgreedToShare:   req.AgreedToShare,
	})
	if err != nil {
		switch {
		case errors.Is(err, accommodation.ErrConsentRequired):
			respondError(w, http.StatusBadRequest, "consent to share your details with the leaser is required")
		case errors.Is(err, accommodation.ErrInvalidRequest):
			respondError(w, http.StatusBadRequest, "name, email and phone are required")
		case errors.Is(err, accommodation.ErrAccommodationNotFound):
			respondError(w, http.StatusNotFound, "accommodation not found")
		default:
			respondError(w, http.StatusInternalServerError, "failed to submit request")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":      created.ID,
		"message": "accommodation request received",
	})
}

// CreateAccommodation adds a catalog entry. Admin only.
func (h *Handler) CreateAccommodation(w http.ResponseWriter, r *http.Request) {
	var req AccommodationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := authz.RunPrivilegedResult(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) (*accommodation.Accommodation, error) {
			return h.accommodationSvc.AddToCatalog(ctx, req.toModel(""))
		})
	if err != nil {
		h.respondAccommodationError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, accommodationResponse(created))
}

// UpdateAccommodation edits a catalog entry. Admin only.
func (h *Handler) UpdateAccommodation(w http.ResponseWriter, r *http.Request) {
	var req AccommodationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accommodationID := chi.URLParam(r, "accommodationID")

	updated, err := authz.RunPrivilegedResult(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) (*accommodation.Accommodation, error) {
			return h.accommodationSvc.UpdateCatalog(ctx, req.toModel(accommodationID))
		})
	if err != nil {
		h.respondAccommodationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, accommodationResponse(updated))
}

// DeleteAccommodation removes a catalog entry. Admin only.
func (h *Handler) DeleteAccommodation(w http.ResponseWriter, r *http.Request) {
	accommodationID := chi.URLParam(r, "accommodationID")

	err := authz.RunPrivileged(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) error {
			return h.accommodationSvc.RemoveFromCatalog(ctx, accommodationID)
		})
	if err != nil {
		h.respondAccommodationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "accommodation removed"})
}

// ListAccommodationRequests returns stay requests, optionally filtered by
// ?accommodation_id=. Admin only: requests carry student contact details.
func (h *Handler) ListAccommodationRequests(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate.AuthorizeAny(r.Context(), GetSessionID(r.Context()), identity.RoleAdmin); err != nil {
		respondDenied(w, denialStatus(err))
		return
	}

	list, err := h.accommodationSvc.Requests(r.Context(), r.URL.Query().Get("accommodation_id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, req := range list {
		out = append(out, map[string]any{
			"id":               req.ID,
			"accommodation_id": req.AccommodationID,
			"student_name":     req.StudentName,
			"student_email":    req.StudentEmail,
			"student_phone":    req.StudentPhone,
			"created_at":       req.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *Handler) respondAccommodationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrNotAuthenticated), errors.Is(err, authz.ErrForbidden):
		respondDenied(w, denialStatus(err))
	case errors.Is(err, accommodation.ErrAccommodationNotFound):
		respondError(w, http.StatusNotFound, "accommodation not found")
	case errors.Is(err, accommodation.ErrInvalidAccommodation):
		respondError(w, http.StatusBadRequest, "name and location are required")
	default:
		respondError(w, http.StatusInternalServerError, "failed to process accommodation")
	}
}
