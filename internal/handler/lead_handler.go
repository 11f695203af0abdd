package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"crm-api/internal/model"
	"crm-api/internal/service"
	"crm-api/internal/undo"
)

type LeadHandler struct {
	service *service.LeadService
}

func NewLeadHandler(service *service.LeadService) *LeadHandler {
	return &LeadHandler{service: service}
}

type leadListData struct {
	Items []model.Lead `json:"items"`
}

type leadPendingData struct {
	Items []undo.Pending[model.Lead] `json:"items"`
}

func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	leads, err := h.service.List(r.Context(), tenantID, model.LeadQuery{
		Status:  model.LeadStatus(strings.ToLower(strings.TrimSpace(query.Get("status")))),
		Q:       query.Get("q"),
		Refresh: parseBool(query.Get("refresh")),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, leadListData{Items: leads}, &model.Meta{Page: 1, Limit: len(leads), Total: len(leads), TotalPages: 1})
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	lead, err := h.service.Get(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, lead, nil)
}

func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.CreateLeadRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	lead, err := h.service.Create(r.Context(), tenantID, actor, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, lead, nil)
}

func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.UpdateLeadRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	lead, err := h.service.Update(r.Context(), tenantID, actor, chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, lead, nil)
}

// Delete hides the lead and answers 202; the delete is committed when the
// undo window closes.
func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pending, err := h.service.RequestDelete(r.Context(), tenantID, actor, chi.URLParam(r, "id"))
	writeDeleteResult(w, pending, err)
}

func (h *LeadHandler) PendingDeletions(w http.ResponseWriter, r *http.Request) {
	tenantID, _, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, leadPendingData{Items: h.service.PendingDeletions(tenantID)}, nil)
}

func (h *LeadHandler) Undo(w http.ResponseWriter, r *http.Request) {
	tenantID, _, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pending, err := h.service.Undo(r.Context(), tenantID, chi.URLParam(r, "pending_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, pending, nil)
}
