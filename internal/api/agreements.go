package api

import (
	"context"
	"mime"
	"net/http"
	"strconv"

	"github.com/ashureev/careportal/internal/domain"
	"github.com/go-chi/chi/v5"
)

type agreementsResponse struct {
	Agreements []domain.AgreementSummary `json:"agreements"`
	Error      string                    `json:"error,omitempty"`
	Stale      bool                      `json:"stale,omitempty"`
}

// ListAgreements returns the agreement list. When the refresh fails for a
// reason other than an expired session the previous list is returned,
// flagged as stale.
func (h *Handler) ListAgreements(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Agreements.List(r.Context())
	if err != nil {
		if domain.IsKind(err, domain.KindUnauthorized) {
			Failure(w, err)
			return
		}
		JSON(w, http.StatusOK, agreementsResponse{Agreements: nonNil(list), Error: err.Error(), Stale: true})
		return
	}
	JSON(w, http.StatusOK, agreementsResponse{Agreements: nonNil(list)})
}

// DownloadAgreement streams one agreement's PDF as an attachment.
func (h *Handler) DownloadAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid agreement id")
		return
	}

	doc, err := h.app.Agreements.FetchDocument(r.Context(), id)
	if err != nil {
		Failure(w, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

// ListBranches returns the branch lookup; empty when it is unavailable.
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches := h.app.Agreements.Branches(r.Context())
	if branches == nil {
		branches = []domain.Branch{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"branches": branches})
}

// Status loads the whole dashboard in one call.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Agreements.Refresh(r.Context())
	if err != nil && domain.IsKind(err, domain.KindUnauthorized) {
		Failure(w, err)
		return
	}
	resp := map[string]interface{}{
		"online":     st.Online,
		"agreements": nonNil(st.Agreements),
		"branches":   st.Branches,
		"draft":      h.app.Drafts.State(),
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	JSON(w, http.StatusOK, resp)
}

// Health reports the console's own state plus the backend badge.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "database": "ok", "backend": "ok"}
	status := map[string]interface{}{"status": "healthy", "checks": checks}
	statusCode := http.StatusOK

	if err := h.app.Store.Ping(ctx); err != nil {
		h.app.Logger.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	}
	// The backend only feeds the badge; an offline backend does not make
	// the console unhealthy.
	if !h.app.Agreements.HealthCheck(ctx) {
		checks["backend"] = "offline"
	}

	JSON(w, statusCode, status)
}

func nonNil(list []domain.AgreementSummary) []domain.AgreementSummary {
	if list == nil {
		return []domain.AgreementSummary{}
	}
	return list
}
