package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"crm-api/internal/model"
	"crm-api/internal/service"
	"crm-api/internal/undo"
)

type OpportunityHandler struct {
	service *service.OpportunityService
}

func NewOpportunityHandler(service *service.OpportunityService) *OpportunityHandler {
	return &OpportunityHandler{service: service}
}

type opportunityListData struct {
	Items []model.Opportunity `json:"items"`
}

type opportunityPendingData struct {
	Items []undo.Pending[model.Opportunity] `json:"items"`
}

func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	items, err := h.service.List(r.Context(), tenantID, model.OpportunityQuery{
		Stage:   model.Stage(strings.ToLower(strings.TrimSpace(query.Get("stage")))),
		OwnerID: strings.TrimSpace(query.Get("owner_id")),
		Q:       query.Get("q"),
		Refresh: parseBool(query.Get("refresh")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, opportunityListData{Items: items}, nil)
}

func (h *OpportunityHandler) Pipeline(w http.ResponseWriter, r *http.Request) {
	tenantID, _, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pipeline, err := h.service.Pipeline(r.Context(), tenantID, r.URL.Query().Get("currency"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, pipeline, nil)
}

func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := h.service.Get(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, o, nil)
}

func (h *OpportunityHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.CreateOpportunityRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	o, err := h.service.Create(r.Context(), tenantID, actor, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, o, nil)
}

func (h *OpportunityHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.UpdateOpportunityRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	o, err := h.service.Update(r.Context(), tenantID, actor, chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, o, nil)
}

func (h *OpportunityHandler) Move(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.MoveOpportunityRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	o, err := h.service.Move(r.Context(), tenantID, actor, chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, o, nil)
}

func (h *OpportunityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pending, err := h.service.RequestDelete(r.Context(), tenantID, actor, chi.URLParam(r, "id"))
	writeDeleteResult(w, pending, err)
}

func (h *OpportunityHandler) PendingDeletions(w http.ResponseWriter, r *http.Request) {
	tenantID, _, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, opportunityPendingData{Items: h.service.PendingDeletions(tenantID)}, nil)
}

func (h *OpportunityHandler) Undo(w http.ResponseWriter, r *http.Request) {
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
