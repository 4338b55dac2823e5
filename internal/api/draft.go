package api

import (
	"net/http"
	"sort"

	"github.com/ashureev/careportal/internal/agreement"
)

// GetDraft returns the intake form state.
func (h *Handler) GetDraft(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.app.Drafts.State())
}

// OpenDraft shows the form, keeping a retained draft.
func (h *Handler) OpenDraft(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.app.Drafts.Open())
}

// UpdateDraft applies a {field: value} patch in field-name order. The
// first rejected field stops the patch.
func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	patch := map[string]string{}
	if err := decode(w, r, &patch); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fields := make([]string, 0, len(patch))
	for f := range patch {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		if _, err := h.app.Drafts.Update(f, patch[f]); err != nil {
			Failure(w, err)
			return
		}
	}
	JSON(w, http.StatusOK, h.app.Drafts.State())
}

// DiscardDraft throws the draft away.
func (h *Handler) DiscardDraft(w http.ResponseWriter, _ *http.Request) {
	if err := h.app.Drafts.Discard(); err != nil {
		Failure(w, err)
		return
	}
	JSON(w, http.StatusOK, h.app.Drafts.State())
}

type signatureRequest struct {
	Strokes []agreement.Stroke `json:"strokes,omitempty"`
	DataURL string             `json:"data_url,omitempty"`
}

// PutSignature captures strokes or loads a rendered PNG data URL.
func (h *Handler) PutSignature(w http.ResponseWriter, r *http.Request) {
	var req signatureRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch {
	case req.DataURL != "":
		err = h.app.Drafts.LoadSignature(req.DataURL)
	case len(req.Strokes) > 0:
		err = h.app.Drafts.CaptureSignature(req.Strokes...)
	default:
		Error(w, http.StatusBadRequest, "strokes or data_url is required")
		return
	}
	if err != nil {
		Failure(w, err)
		return
	}
	JSON(w, http.StatusOK, h.app.Drafts.State())
}

// ClearSignature empties the signature pad.
func (h *Handler) ClearSignature(w http.ResponseWriter, _ *http.Request) {
	if err := h.app.Drafts.ClearSignature(); err != nil {
		Failure(w, err)
		return
	}
	JSON(w, http.StatusOK, h.app.Drafts.State())
}

// SubmitDraft creates the agreement.
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Drafts.Submit(r.Context())
	if err != nil {
		Failure(w, err)
		return
	}
	if res.Agreements == nil {
		res.Agreements = h.app.Agreements.Agreements()
	}
	JSON(w, http.StatusCreated, res)
}
