// Package api provides the HTTP handlers of the intake console.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/careportal/internal/app"
	"github.com/ashureev/careportal/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxRequestBody = 1 << 20 // 1MB, enough for a signature data URL

// Handler serves the console routes for one App.
type Handler struct {
	app           *app.App
	healthTimeout time.Duration
}

// NewHandler creates a Handler.
func NewHandler(a *app.App) *Handler {
	timeout := 5 * time.Second
	if a.Config != nil && a.Config.Timeout.HealthCheck > 0 {
		timeout = a.Config.Timeout.HealthCheck
	}
	return &Handler{app: a, healthTimeout: timeout}
}

// RegisterRoutes mounts every /api route. authLimit wraps the auth routes.
func (h *Handler) RegisterRoutes(r chi.Router, authLimit func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", h.GetView)
		r.Post("/view/{screen}", h.SwitchView)

		r.Route("/auth", func(r chi.Router) {
			if authLimit != nil {
				r.Use(authLimit)
			}
			r.Post("/login", h.Login)
			r.Post("/signup", h.Signup)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Post("/reset-password", h.ResetPassword)
			r.Post("/logout", h.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Get("/agreements", h.ListAgreements)
			r.Get("/agreements/{id}/pdf", h.DownloadAgreement)
			r.Get("/branches", h.ListBranches)
			r.Get("/status", h.Status)

			r.Get("/draft", h.GetDraft)
			r.Post("/draft", h.OpenDraft)
			r.Patch("/draft", h.UpdateDraft)
			r.Delete("/draft", h.DiscardDraft)
			r.Put("/draft/signature", h.PutSignature)
			r.Delete("/draft/signature", h.ClearSignature)
			r.Post("/draft/submit", h.SubmitDraft)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type failureBody struct {
	Error  string              `json:"error"`
	Kind   string              `json:"kind"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

// Failure writes err using its domain.Failure kind to pick the status.
func Failure(w http.ResponseWriter, err error) {
	f, ok := domain.AsFailure(err)
	if !ok {
		slog.Error("Unclassified error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, statusFor(f), failureBody{Error: f.Message, Kind: f.Kind.String(), Fields: f.Fields})
}

func statusFor(f *domain.Failure) int {
	switch f.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindBackend:
		if len(f.Fields) > 0 {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindTransport:
		return http.StatusServiceUnavailable
	case domain.KindBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.app.Sessions.Current().Authenticated() {
			JSON(w, http.StatusUnauthorized, failureBody{
				Error: "Please log in first.",
				Kind:  domain.KindUnauthorized.String(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
