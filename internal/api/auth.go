package api

import (
	"net/http"

	"github.com/ashureev/careportal/internal/domain"
	"github.com/go-chi/chi/v5"
)

type viewResponse struct {
	View       domain.ViewState `json:"view"`
	User       *domain.User     `json:"user,omitempty"`
	ResetToken bool             `json:"reset_token,omitempty"`
}

func (h *Handler) viewSnapshot() viewResponse {
	return viewResponse{
		View:       h.app.Router.Current(),
		User:       h.app.Sessions.Current().User,
		ResetToken: h.app.Router.NavContext().ResetToken != "",
	}
}

// GetView returns the visible screen and the signed-in user.
func (h *Handler) GetView(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.viewSnapshot())
}

// SwitchView moves between the auth screens.
func (h *Handler) SwitchView(w http.ResponseWriter, r *http.Request) {
	target, err := domain.ParseViewState(chi.URLParam(r, "screen"))
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err := h.app.Router.SwitchTo(target); err != nil {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	JSON(w, http.StatusOK, h.viewSnapshot())
}

type credentialsRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Role       string `json:"role,omitempty"`
}

// Login starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.app.Auth.Login(r.Context(), req.Identifier, req.Password); err != nil {
		Failure(w, err)
		return
	}
	JSON(w, http.StatusOK, h.viewSnapshot())
}

// Signup registers an account.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.app.Auth.Signup(r.Context(), req.Identifier, req.Password, req.Role)
	if err != nil {
		Failure(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]string{"message": msg})
}

// ForgotPassword requests a reset e-mail.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.app.Auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		Failure(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": msg})
}

// ResetPassword sets a new password. The token defaults to the one the
// console was started with.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token           string `json:"token"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		req.Token = h.app.Router.NavContext().ResetToken
	}
	msg, err := h.app.Auth.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword)
	if err != nil {
		Failure(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": msg})
}

// Logout ends the session. It succeeds when already logged out.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Logout(r.Context()); err != nil {
		Error(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	JSON(w, http.StatusOK, h.viewSnapshot())
}
