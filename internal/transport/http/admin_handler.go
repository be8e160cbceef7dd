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
	"github.com/GavinAlgin/digital-portal/internal/enrollment"
	"github.com/GavinAlgin/digital-portal/internal/identity"
	"github.com/GavinAlgin/digital-portal/internal/idnumber"
)

// EnrollRequest carries the fields for enrolling a student or staff member
type EnrollRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Course      string `json:"course"`
	Faculty     string `json:"faculty"`
	DateOfBirth string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
}

func (req *EnrollRequest) toInput() (enrollment.Input, error) {
	in := enrollment.Input{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Course:    req.Course,
		Faculty:   req.Faculty,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			return in, err
		}
		in.DateOfBirth = &dob
	}
	return in, nil
}

// EnrollStudent enrolls a new student. Admin only.
func (h *Handler) EnrollStudent(w http.ResponseWriter, r *http.Request) {
	h.enroll(w, r, h.enrollmentService.EnrollStudent)
}

// EnrollStaff enrolls a new staff member. Admin only.
func (h *Handler) EnrollStaff(w http.ResponseWriter, r *http.Request) {
	h.enroll(w, r, h.enrollmentService.EnrollStaff)
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request, op func(context.Context, enrollment.Input) (*identity.Principal, error)) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in, err := req.toInput()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date of birth, expected YYYY-MM-DD")
		return
	}

	principal, err := authz.RunPrivilegedResult(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) (*identity.Principal, error) {
			return op(ctx, in)
		})
	if err != nil {
		h.respondEnrollmentError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, principalResponse(principal))
}

// CreateAdmin creates a new administrator account. Admin only.
func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in, err := req.toInput()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date of birth, expected YYYY-MM-DD")
		return
	}

	principal, err := authz.RunPrivilegedResult(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) (*identity.Principal, error) {
			return h.enrollmentService.CreateAdmin(ctx, actor.UserID, in)
		})
	if err != nil {
		h.respondEnrollmentError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, principalResponse(principal))
}

func (h *Handler) respondEnrollmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrNotAuthenticated), errors.Is(err, authz.ErrForbidden):
		respondDenied(w, denialStatus(err))
	case errors.Is(err, identity.ErrUserAlreadyExists):
		respondError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, identity.ErrInvalidEmail):
		respondError(w, http.StatusBadRequest, "invalid email address")
	case errors.Is(err, identity.ErrWeakPassword):
		respondError(w, http.StatusBadRequest, "password does not meet security requirements")
	case errors.Is(err, idnumber.ErrInvalidCode):
		respondError(w, http.StatusBadRequest, "course and faculty must contain letters")
	case errors.Is(err, enrollment.ErrAllocationContention):
		respondError(w, http.StatusServiceUnavailable, "enrollment is busy, please retry")
	default:
		respondError(w, http.StatusInternalServerError, "failed to enroll user")
	}
}

// ListUsers lists principals, optionally filtered by role. Staff can see
// the listing; only admins may mutate.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	_, err := h.gate.AuthorizeAny(r.Context(), GetSessionID(r.Context()), identity.RoleAdmin, identity.RoleStaff)
	if err != nil {
		respondDenied(w, denialStatus(err))
		return
	}

	var roleFilter *identity.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, err := identity.ParseRole(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "unknown role")
			return
		}
		roleFilter = &role
	}

	principals, err := h.profiles.List(r.Context(), roleFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	out := make([]map[string]any, 0, len(principals))
	for _, p := range principals {
		out = append(out, principalResponse(p))
	}

	respondJSON(w, http.StatusOK, map[string]any{"users": out})
}

// GetUser retrieves a single principal. Staff or admin.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	_, err := h.gate.AuthorizeAny(r.Context(), GetSessionID(r.Context()), identity.RoleAdmin, identity.RoleStaff)
	if err != nil {
		respondDenied(w, denialStatus(err))
		return
	}

	userID := chi.URLParam(r, "userID")

	user, err := h.identityService.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	profile, err := h.profiles.GetByUserID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, principalResponse(&identity.Principal{User: *user, Profile: *profile}))
}

// UpdateUserRequest carries admin-editable user fields. The identifier
// is immutable and deliberately absent.
type UpdateUserRequest struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Course      string `json:"course"`
	Faculty     string `json:"faculty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

// UpdateUser edits a principal's identity and profile fields. Admin only.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := chi.URLParam(r, "userID")

	var dob *time.Time
	if req.DateOfBirth != "" {
		parsed, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid date of birth, expected YYYY-MM-DD")
			return
		}
		dob = &parsed
	}

	err := authz.RunPrivileged(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) error {
			profile, err := h.profiles.GetByUserID(ctx, userID)
			if err != nil {
				return err
			}

			user, err := h.identityService.GetUser(ctx, userID)
			if err != nil {
				return err
			}

			email := user.Email
			if req.Email != "" {
				email = req.Email
			}
			firstName := user.FirstName
			if req.FirstName != "" {
				firstName = req.FirstName
			}
			lastName := user.LastName
			if req.LastName != "" {
				lastName = req.LastName
			}
			if _, err := h.identityService.UpdateIdentity(ctx, userID, email, firstName, lastName); err != nil {
				return err
			}

			if req.Course != "" {
				profile.Course = req.Course
			}
			if req.Faculty != "" {
				profile.Faculty = req.Faculty
			}
			if dob != nil {
				profile.DateOfBirth = dob
			}
			return h.profiles.Update(ctx, profile)
		})
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrNotAuthenticated), errors.Is(err, authz.ErrForbidden):
			respondDenied(w, denialStatus(err))
		case errors.Is(err, identity.ErrUserNotFound), errors.Is(err, identity.ErrProfileNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "email already in use")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		default:
			respondError(w, http.StatusInternalServerError, "failed to update user")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "user updated successfully"})
}

// SuspendUser suspends an account and revokes its sessions. Admin only.
func (h *Handler) SuspendUser(w http.ResponseWriter, r *http.Request) {
	h.setUserStatus(w, r, identity.StatusSuspended)
}

// ActivateUser reactivates a suspended account. Admin only.
func (h *Handler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	h.setUserStatus(w, r, identity.StatusActive)
}

func (h *Handler) setUserStatus(w http.ResponseWriter, r *http.Request, status identity.Status) {
	userID := chi.URLParam(r, "userID")

	err := authz.RunPrivileged(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) error {
			if err := h.profiles.UpdateStatus(ctx, userID, status); err != nil {
				return err
			}
			if status == identity.StatusSuspended {
				// Suspension takes effect on the next request.
				return h.sessionService.DestroyAllForUser(ctx, userID)
			}
			return nil
		})
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrNotAuthenticated), errors.Is(err, authz.ErrForbidden):
			respondDenied(w, denialStatus(err))
		case errors.Is(err, identity.ErrProfileNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		default:
			respondError(w, http.StatusInternalServerError, "failed to update user status")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "user status updated"})
}

// DeleteUser removes an account entirely. Admin only; self-deletion is
// refused so the last admin cannot lock everyone out by accident.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	err := authz.RunPrivileged(r.Context(), h.gate, GetSessionID(r.Context()), identity.RoleAdmin,
		func(ctx context.Context, actor *authz.Actor) error {
			if actor.UserID == userID {
				return authz.ErrForbidden
			}
			if err := h.sessionService.DestroyAllForUser(ctx, userID); err != nil {
				return err
			}
			return h.enrollmentService.DeleteUser(ctx, actor.UserID, userID)
		})
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrNotAuthenticated), errors.Is(err, authz.ErrForbidden):
			respondDenied(w, denialStatus(err))
		case errors.Is(err, identity.ErrUserNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		default:
			respondError(w, http.StatusInternalServerError, "failed to delete user")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
