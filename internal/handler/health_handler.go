package handler

import (
	"context"
	"net/http"
)

type pinger interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	db pinger
}

func NewHealthHandler(db pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "ok"}

	if h.db != nil {
		if err := h.db.Health(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			writeSuccess(w, http.StatusServiceUnavailable, status, nil)
			return
		}
	}

	writeSuccess(w, http.StatusOK, status, nil)
}
