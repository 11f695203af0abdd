package handler

import (
	"net/http"

	"crm-api/internal/middleware"
	"crm-api/internal/websocket"
	"crm-api/pkg/apierror"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Serve streams the caller's tenant events, including undo toasts.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}
	h.hub.ServeWS(w, r, claims.TenantID, claims.UserID)
}
