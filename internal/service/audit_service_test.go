package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crm-api/internal/model"
	"crm-api/internal/repository"
	"crm-api/pkg/apierror"
)

func TestAuditService_Query(t *testing.T) {
	t.Run("normalizes filters and clamps paging", func(t *testing.T) {
		store := new(repository.MockAuditStore)
		svc := NewAuditService(store)

		store.On("Query", mock.Anything, mock.MatchedBy(func(q model.AuditQuery) bool {
			return q.TenantID == tenant &&
				q.Action == "lead.delete" &&
				q.Limit == 200 &&
				q.Page == 1 &&
				q.From == "2026-01-01T00:00:00Z"
		})).Return([]model.AuditEntry{{Action: "lead.delete"}}, model.Meta{Page: 1, Limit: 200, Total: 1, TotalPages: 1}, nil).Once()

		items, meta, err := svc.Query(context.Background(), model.AuditQuery{
			TenantID: tenant,
			Action:   " Lead.Delete ",
			From:     "2026-01-01",
			Limit:    1000,
		})
		require.NoError(t, err)
		assert.Len(t, items, 1)
		assert.Equal(t, 1, meta.Total)
		store.AssertExpectations(t)
	})

	t.Run("rejects bad time", func(t *testing.T) {
		svc := NewAuditService(new(repository.MockAuditStore))

		_, _, err := svc.Query(context.Background(), model.AuditQuery{TenantID: tenant, To: "yesterday"})

		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "BAD_REQUEST", apiErr.Code)
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		svc := NewAuditService(new(repository.MockAuditStore))

		_, _, err := svc.Query(context.Background(), model.AuditQuery{TenantID: tenant, From: "2026-02-01", To: "2026-01-01"})
		require.Error(t, err)
	})
}

func TestAuditService_LogSwallowsStoreErrors(t *testing.T) {
	store := new(repository.MockAuditStore)
	store.On("Log", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	svc := NewAuditService(store)
	assert.NotPanics(t, func() {
		svc.Log(context.Background(), tenant, model.AuditLeadCreate, testActor, model.AuditStatusSuccess, "lead/1", nil, nil, "")
	})
	store.AssertExpectations(t)

	var nilService *AuditService
	assert.NotPanics(t, func() {
		nilService.Log(context.Background(), tenant, model.AuditLeadCreate, testActor, model.AuditStatusSuccess, "lead/1", nil, nil, "")
	})
}
