package handler

import (
	"net/http"
	"strings"

	"crm-api/internal/model"
	"crm-api/internal/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List only ever returns entries of the caller's tenant.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _, err := principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	items, meta, err := h.service.Query(r.Context(), model.AuditQuery{
		TenantID: tenantID,
		Action:   strings.TrimSpace(query.Get("action")),
		ActorID:  strings.TrimSpace(query.Get("actor_id")),
		Status:   strings.TrimSpace(query.Get("status")),
		Resource: strings.TrimSpace(query.Get("resource")),
		From:     strings.TrimSpace(query.Get("from")),
		To:       strings.TrimSpace(query.Get("to")),
		Page:     parseIntOrDefault(query.Get("page"), 1),
		Limit:    parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}
