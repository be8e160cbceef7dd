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
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GavinAlgin/digital-portal/internal/authz"
	"github.com/GavinAlgin/digital-portal/internal/events"
	"github.com/GavinAlgin/digital-portal/internal/identity"
)

// EventRequest carries calendar event fields
type EventRequest struct {
	Title string `json:"title"`
	Date  string `json:"date"` // YYYY-MM-DD
	Color string `json:"color"`
}

func eventResponse(e *events.Event) map[string]any {
	return map[string]any{
		"id":    e.ID,
		"title": e.Title,
		"date":  e.Date.Format("2006-01-02"),
		"color": e.Color,
	}
}

// ListEvents returns the calendar for the month given by ?month=YYYY-MM,
// defaulting to the current month. Any authenticated user may read.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ref := time.Now()
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid month, expected YYYY-MM")
			return
		}
		ref = parsed
	}

	list, err := h.eventService.ListMonth(r.Context(), ref)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		out = append(out, eventResponse(e))
	}

	respondJSON(w, http.StatusOK, map[string]any{"events": out})
}

// CreateEvent adds a calendar entry. Admin only.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	event, err := authz.RunPrivilegedResult(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) (*events.Event, error) {
			return h.eventService.Create(ctx, actor.UserID, req.Title, date, req.Color)
		})
	if err != nil {
		h.respondEventError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, eventResponse(event))
}

// UpdateEvent edits or reschedules a calendar entry. Admin only.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var date time.Time
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	eventID := chi.URLParam(r, "eventID")

	event, err := authz.RunPrivilegedResult(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) (*events.Event, error) {
			return h.eventService.Update(ctx, actor.UserID, eventID, req.Title, date, req.Color)
		})
	if err != nil {
		h.respondEventError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, eventResponse(event))
}

// DeleteEvent removes a calendar entry. Admin only.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	err := authz.RunPrivileged(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) error {
			return h.eventService.Delete(ctx, actor.UserID, eventID)
		})
	if err != nil {
		h.respondEventError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "event deleted"})
}

func (h *Handler) respondEventError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrNotAuthenticated), errors.Is(err, authz.ErrForbidden):
		respondDenied(w, denialStatus(err))
	case errors.Is(err, events.ErrEventNotFound):
		respondError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, events.ErrInvalidEvent):
		respondError(w, http.StatusBadRequest, "event title and date are required")
	default:
		respondError(w, http.StatusInternalServerError, "failed to process event")
	}
}
