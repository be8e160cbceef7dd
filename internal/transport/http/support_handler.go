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

	"github.com/GavinAlgin/digital-portal/internal/authz"
	"github.com/GavinAlgin/digital-portal/internal/identity"
	"github.com/GavinAlgin/digital-portal/internal/support"
)

// SupportRequest is the public contact form payload.
type SupportRequest struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func supportResponse(m *support.Message) map[string]any {
	resp := map[string]any{
		"id":         m.ID,
		"email":      m.Email,
		"subject":    m.Subject,
		"body":       m.Body,
		"status":     m.Status,
		"created_at": m.CreatedAt,
	}
	if m.ClosedAt != nil {
		resp["closed_at"] = *m.ClosedAt
	}
	return resp
}

// SubmitSupportMessage accepts a contact form submission. Unauthenticated:
// prospective students and outside visitors use this too.
func (h *Handler) SubmitSupportMessage(w http.ResponseWriter, r *http.Request) {
	var req SupportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.supportService.Submit(r.Context(), req.Email, req.Subject, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, support.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "a valid email address is required")
		case errors.Is(err, support.ErrSubjectTooShort):
			respondError(w, http.StatusBadRequest, "subject is too short")
		default:
			respondError(w, http.StatusInternalServerError, "failed to submit message")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":      msg.ID,
		"message": "support request received",
	})
}

// ListSupportMessages returns the support inbox, optionally filtered by
// ?status=open|closed. Admin only.
func (h *Handler) ListSupportMessages(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate.AuthorizeAny(r.Context(), GetSessionID(r.Context()), identity.RoleAdmin); err != nil {
		respondDenied(w, denialStatus(err))
		return
	}

	list, err := h.supportService.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, m := range list {
		out = append(out, supportResponse(m))
	}

	respondJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// CloseSupportMessage marks a support message resolved. Admin only.
func (h *Handler) CloseSupportMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	err := authz.RunPrivileged(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) error {
			return h.supportService.Close(ctx, messageID)
		})
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrNotAuthenticated), errors.Is(err, authz.ErrForbidden):
			respondDenied(w, denialStatus(err))
		case errors.Is(err, support.ErrMessageNotFound):
			respondError(w, http.StatusNotFound, "message not found")
		default:
			respondError(w, http.StatusInternalServerError, "failed to close message")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "support request closed"})
}
