package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crm-api/internal/event"
	"crm-api/internal/middleware"
	"crm-api/internal/model"
	"crm-api/internal/repository"
	"crm-api/internal/service"
	"crm-api/internal/undo"
)

func newOpportunityRouter(t *testing.T) http.Handler {
	t.Helper()

	repo := new(repository.MockOpportunityStore)
	auditStore := new(repository.MockAuditStore)
	auditStore.On("Log", mock.Anything, mock.Anything).Return(nil).Maybe()

	board := []model.Opportunity{
		{ID: "o1", TenantID: tenant, Name: "Renewal", Stage: model.StageProspecting, AmountCents: 1_000_000, Currency: "USD", Probability: 10},
		{ID: "o2", TenantID: tenant, Name: "Expansion", Stage: model.StageClosedWon, AmountCents: 500_000, Currency: "USD", Probability: 100},
	}
	repo.On("List", mock.Anything, tenant).Return(board, nil).Maybe()
	for _, o := range board {
		repo.On("Get", mock.Anything, tenant, o.ID).Return(o, nil).Maybe()
	}

	svc := service.NewOpportunityService(repo, event.NewBus(), service.NewAuditService(auditStore), time.Hour, service.DeletionOptions{
		Window:    5 * time.Second,
		Scheduler: undo.NewManualScheduler(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	})
	h := NewOpportunityHandler(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := &model.AuthClaims{UserID: "user-1", Role: model.RoleAdmin, TenantID: tenant}
			next.ServeHTTP(w, req.WithContext(middleware.WithClaims(req.Context(), claims)))
		})
	})
	r.Get("/opportunities", h.List)
	r.Get("/opportunities/pipeline", h.Pipeline)
	r.Put("/opportunities/{id}/move", h.Move)
	r.Delete("/opportunities/{id}", h.Delete)
	return r
}

func serve(t *testing.T, router http.Handler, method string, target string, body string) (int, envelope) {
	t.Helper()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestOpportunityHandler_Pipeline(t *testing.T) {
	router := newOpportunityRouter(t)

	status, env := serve(t, router, http.MethodGet, "/opportunities/pipeline?currency=usd", "")
	require.Equal(t, http.StatusOK, status)

	var pipeline model.Pipeline
	require.NoError(t, json.Unmarshal(env.Data, &pipeline))
	assert.Equal(t, "USD", pipeline.Currency)
	assert.Equal(t, 1, pipeline.OpenCount)
	assert.Equal(t, "USD 10,000.00", pipeline.Total)
	assert.Len(t, pipeline.Stages, len(model.Stages))

	status, _ = serve(t, router, http.MethodDelete, "/opportunities/o1", "")
	require.Equal(t, http.StatusAccepted, status)

	_, env = serve(t, router, http.MethodGet, "/opportunities/pipeline", "")
	require.NoError(t, json.Unmarshal(env.Data, &pipeline))
	assert.Equal(t, 0, pipeline.OpenCount)
}

func TestOpportunityHandler_MoveValidation(t *testing.T) {
	router := newOpportunityRouter(t)

	status, env := serve(t, router, http.MethodPut, "/opportunities/o1/move", `{"stage":"archived","position":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

type stubPinger struct {
	err error
}

func (s stubPinger) Health(context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         pinger
		wantStatus int
		wantState  string
	}{
		{name: "healthy", db: stubPinger{}, wantStatus: http.StatusOK, wantState: "ok"},
		{name: "database down", db: stubPinger{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantState: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.db).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			var env envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			var body map[string]string
			require.NoError(t, json.Unmarshal(env.Data, &body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantState, body["status"])
		})
	}
}

func TestDocsHandler_OpenAPI(t *testing.T) {
	rec := httptest.NewRecorder()
	NewDocsHandler().OpenAPI(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/api/v1/leads/deletions/{pending_id}/undo")
}
