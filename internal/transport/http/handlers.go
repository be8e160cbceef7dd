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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/GavinAlgin/digital-portal/internal/accommodation"
	"github.com/GavinAlgin/digital-portal/internal/audit"
	"github.com/GavinAlgin/digital-portal/internal/authz"
	"github.com/GavinAlgin/digital-portal/internal/enrollment"
	"github.com/GavinAlgin/digital-portal/internal/events"
	"github.com/GavinAlgin/digital-portal/internal/identity"
	"github.com/GavinAlgin/digital-portal/internal/mail"
	"github.com/GavinAlgin/digital-portal/internal/observability/logger"
	"github.com/GavinAlgin/digital-portal/internal/session"
	"github.com/GavinAlgin/digital-portal/internal/support"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService   *identity.Service
	sessionService    *session.Service
	enrollmentService *enrollment.Service
	eventService      *events.Service
	supportService    *support.Service
	accommodationSvc  *accommodation.Service
	profiles          identity.ProfileRepository
	gate              *authz.Gate
	mailer            mail.Mailer
	auditLogger       audit.Logger
	sessionConfig     SessionConfig
	frontendBaseURL   string
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
	Lifetime       time.Duration
}

// HandlerDeps bundles the services the handler needs.
type HandlerDeps struct {
	Identity      *identity.Service
	Sessions      *session.Service
	Enrollment    *enrollment.Service
	Events        *events.Service
	Support       *support.Service
	Accommodation *accommodation.Service
	Profiles      identity.ProfileRepository
	Gate          *authz.Gate
	Mailer        mail.Mailer
	AuditLogger   audit.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps HandlerDeps, sessionConfig SessionConfig, frontendBaseURL string) *Handler {
	return &Handler{
		identityService:   deps.Identity,
		sessionService:    deps.Sessions,
		enrollmentService: deps.Enrollment,
		eventService:      deps.Events,
		supportService:    deps.Support,
		accommodationSvc:  deps.Accommodation,
		profiles:          deps.Profiles,
		gate:              deps.Gate,
		mailer:            deps.Mailer,
		auditLogger:       deps.AuditLogger,
		sessionConfig:     sessionConfig,
		frontendBaseURL:   frontendBaseURL,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)
		r.Post("/auth/forgot-password", h.ForgotPassword)
		r.Post("/auth/reset-password", h.ResetPassword)
		r.Post("/support", h.SubmitSupportMessage)
		r.Get("/accommodations", h.ListAccommodations)
		r.Post("/accommodations/requests", h.SubmitAccommodationRequest)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Use(h.CSRFMiddleware)

			r.Get("/auth/me", h.GetCurrentUser)

			r.Get("/user/profile", h.GetProfile)
			r.Put("/user/profile", h.UpdateProfile)
			r.Post("/user/change-password", h.ChangePassword)

			r.Get("/events", h.ListEvents)

			// Privileged routes. Each handler runs the authorization
			// gate itself; the auth middleware only establishes the
			// session.
			r.Post("/events", h.CreateEvent)
			r.Put("/events/{eventID}", h.UpdateEvent)
			r.Delete("/events/{eventID}", h.DeleteEvent)

			r.Get("/support", h.ListSupportMessages)
			r.Post("/support/{messageID}/close", h.CloseSupportMessage)

			r.Post("/accommodations", h.CreateAccommodation)
			r.Put("/accommodations/{accommodationID}", h.UpdateAccommodation)
			r.Delete("/accommodations/{accommodationID}", h.DeleteAccommodation)
			r.Get("/accommodations/requests", h.ListAccommodationRequests)

			r.Route("/admin/users", func(r chi.Router) {
				r.Post("/students", h.EnrollStudent)
				r.Post("/staff", h.EnrollStaff)
				r.Post("/admins", h.CreateAdmin)
				r.Get("/", h.ListUsers)
				r.Get("/{userID}", h.GetUser)
				r.Put("/{userID}", h.UpdateUser)
				r.Post("/{userID}/suspend", h.SuspendUser)
				r.Post("/{userID}/activate", h.ActivateUser)
				r.Delete("/{userID}", h.DeleteUser)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "digital-portal",
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and opens a session
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	profile, err := h.profiles.GetByUserID(r.Context(), user.ID)
	if err != nil {
		// An identity without a profile is an orphan from a failed
		// enrollment; it must not be able to log in.
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if profile.Status != identity.StatusActive {
		respondDenied(w, http.StatusForbidden)
		return
	}

	sess, err := h.sessionService.Create(r.Context(), user.ID, getIPAddress(r), r.UserAgent())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, sess.ID)

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLoginSuccess,
		ActorID:   user.ID,
		Resource:  "session",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})

	respondJSON(w, http.StatusOK, principalResponse(&identity.Principal{User: *user, Profile: *profile}))
}

// Logout destroys the current session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := h.getSessionFromCookie(r)
	if sessionID == "" {
		respondDenied(w, http.StatusUnauthorized)
		return
	}

	sess, err := h.sessionService.Get(r.Context(), sessionID)
	if err == nil {
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:      audit.TypeLogout,
			ActorID:   sess.UserID,
			Resource:  "session",
			IPAddress: getIPAddress(r),
			UserAgent: r.UserAgent(),
		})
		h.sessionService.Destroy(r.Context(), sessionID)
	}

	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// ForgotPasswordRequest carries the reset request email
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword issues a reset token and mails it. The response never
// reveals whether the account exists.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.identityService.BeginPasswordReset(r.Context(), req.Email)
	if err == nil {
		msg := mail.PasswordResetMessage(user.FullName(), user.Email, token, h.frontendBaseURL)
		if err := h.mailer.Send(r.Context(), msg); err != nil {
			slog.ErrorContext(r.Context(), "failed to send reset mail", logger.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "if the account exists, a reset link has been sent",
	})
}

// ResetPasswordRequest carries the reset token and the new password
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetPassword completes a password reset and revokes every open
// session of the affected user.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.CompletePasswordReset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrResetTokenInvalid):
			respondError(w, http.StatusBadRequest, "invalid or expired reset token")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "new password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to reset password")
		}
		return
	}

	if err := h.sessionService.DestroyAllForUser(r.Context(), user.ID); err != nil {
		slog.ErrorContext(r.Context(), "failed to revoke sessions after reset", logger.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "password reset successfully",
	})
}

// GetCurrentUser returns the authenticated principal
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

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

// GetProfile returns the user's own profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	h.GetCurrentUser(w, r)
}

// UpdateProfileRequest carries the self-editable profile fields
type UpdateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// UpdateProfile updates the caller's own identity fields. Role, course,
// faculty, and the identifier are admin-managed and not editable here.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.UpdateIdentity(r.Context(), userID, req.Email, req.FirstName, req.LastName)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "email already in use")
		default:
			respondError(w, http.StatusInternalServerError, "failed to update profile")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":    user.ID,
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	})
}

// ChangePasswordRequest represents password change data
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword changes the caller's own password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	var req ChangePasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.identityService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid old password")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "new password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "password changed successfully",
	})
}

// Helper functions

// principalResponse shapes a principal for API responses.
func principalResponse(p *identity.Principal) map[string]any {
	out := map[string]any{
		"user_id":    p.User.ID,
		"email":      p.User.Email,
		"first_name": p.User.FirstName,
		"last_name":  p.User.LastName,
		"role":       p.Profile.Role,
		"course":     p.Profile.Course,
		"faculty":    p.Profile.Faculty,
		"status":     p.Profile.Status,
	}
	if p.Profile.IDNumber != nil {
		out["id_number"] = *p.Profile.IDNumber
	}
	if p.Profile.DateOfBirth != nil {
		out["date_of_birth"] = p.Profile.DateOfBirth.Format("2006-01-02")
	}
	return out
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	maxAge := int(h.sessionConfig.Lifetime.Seconds())
	if maxAge <= 0 {
		maxAge = 86400
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   maxAge,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondDenied writes the uniform denial body. The body never explains
// why access was refused; logs and audit events keep the distinction.
func respondDenied(w http.ResponseWriter, status int) {
	respondError(w, status, "not permitted")
}

// denialStatus maps gate errors to status codes, keeping the body uniform.
func denialStatus(err error) int {
	if errors.Is(err, authz.ErrNotAuthenticated) {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
