package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crm-api/internal/event"
	"crm-api/internal/model"
	"crm-api/internal/repository"
	"crm-api/internal/undo"
)

const tenant = "acme"

var (
	testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	testActor = model.AuditActor{UserID: "user-1", Username: "alice", Role: model.RoleSales}
)

type leadHarness struct {
	svc    *LeadService
	repo   *repository.MockLeadStore
	audit  *repository.MockAuditStore
	clock  *undo.ManualScheduler
	events <-chan event.Event
}

func newLeadHarness(t *testing.T, leads ...model.Lead) *leadHarness {
	t.Helper()

	repo := new(repository.MockLeadStore)
	auditStore := new(repository.MockAuditStore)
	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	clock := undo.NewManualScheduler(testStart)
	svc := NewLeadService(repo, bus, NewAuditService(auditStore), time.Hour, DeletionOptions{
		Window:    5 * time.Second,
		Scheduler: clock,
	})

	repo.On("List", mock.Anything, tenant).Return(leads, nil).Maybe()
	for _, lead := range leads {
		repo.On("Get", mock.Anything, tenant, lead.ID).Return(lead, nil).Maybe()
	}

	return &leadHarness{svc: svc, repo: repo, audit: auditStore, clock: clock, events: events}
}

func (h *leadHarness) visible(t *testing.T) []string {
	t.Helper()
	leads, err := h.svc.List(context.Background(), tenant, model.LeadQuery{})
	require.NoError(t, err)
	ids := make([]string, 0, len(leads))
	for _, lead := range leads {
		ids = append(ids, lead.ID)
	}
	return ids
}

func (h *leadHarness) nextEvent(t *testing.T) event.Event {
	t.Helper()
	select {
	case e := <-h.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return event.Event{}
	}
}

func sampleLeads() []model.Lead {
	return []model.Lead{
		{ID: "l1", TenantID: tenant, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Status: model.LeadStatusNew, Score: 80},
		{ID: "l2", TenantID: tenant, FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", Status: model.LeadStatusQualified, Score: 45},
		{ID: "l3", TenantID: tenant, Company: "Initech", Email: "sales@initech.example", Status: model.LeadStatusNew, Score: 10},
	}
}

func TestLeadService_List(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)

	t.Run("filters by status", func(t *testing.T) {
		leads, err := h.svc.List(context.Background(), tenant, model.LeadQuery{Status: model.LeadStatusNew})
		require.NoError(t, err)
		require.Len(t, leads, 2)
		assert.Equal(t, "l1", leads[0].ID)
		assert.Equal(t, "l3", leads[1].ID)
	})

	t.Run("filters by search text", func(t *testing.T) {
		leads, err := h.svc.List(context.Background(), tenant, model.LeadQuery{Q: "initech"})
		require.NoError(t, err)
		require.Len(t, leads, 1)
		assert.Equal(t, "l3", leads[0].ID)
	})

	t.Run("serves from the cached view", func(t *testing.T) {
		h.visible(t)
		h.repo.AssertNumberOfCalls(t, "List", 1)
	})

	t.Run("refresh reloads", func(t *testing.T) {
		_, err := h.svc.List(context.Background(), tenant, model.LeadQuery{Refresh: true})
		require.NoError(t, err)
		h.repo.AssertNumberOfCalls(t, "List", 2)
	})
}

func TestLeadService_Create(t *testing.T) {
	t.Run("normalizes and publishes", func(t *testing.T) {
		h := newLeadHarness(t)
		h.repo.On("Create", mock.Anything, mock.AnythingOfType("model.Lead")).Return(nil).Once()
		h.audit.On("Log", mock.Anything, mock.MatchedBy(func(e model.AuditEntry) bool {
			return e.Action == model.AuditLeadCreate && e.Status == model.AuditStatusSuccess && e.TenantID == tenant
		})).Return(nil).Once()

		lead, err := h.svc.Create(context.Background(), tenant, testActor, model.CreateLeadRequest{
			FirstName: "  Linus ",
			Email:     "linus@example.com",
			Tags:      []string{"Enterprise Plan", "enterprise plan", " "},
		})
		require.NoError(t, err)

		assert.NotEmpty(t, lead.ID)
		assert.Equal(t, "Linus", lead.FirstName)
		assert.Equal(t, model.LeadStatusNew, lead.Status)
		assert.Equal(t, []string{"enterprise-plan"}, lead.Tags)
		assert.Equal(t, testActor.UserID, lead.OwnerID)

		e := h.nextEvent(t)
		assert.Equal(t, event.TypeLeadCreated, e.Type)
		assert.Equal(t, tenant, e.TenantID)
		h.repo.AssertExpectations(t)
		h.audit.AssertExpectations(t)
	})

	t.Run("invalid request never reaches the store", func(t *testing.T) {
		h := newLeadHarness(t)

		_, err := h.svc.Create(context.Background(), tenant, testActor, model.CreateLeadRequest{Email: "nope", Score: 101})

		var fieldErrs criterio.FieldErrors
		require.ErrorAs(t, err, &fieldErrs)
		assert.Len(t, fieldErrs, 3)
		h.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("duplicate email is reported and audited", func(t *testing.T) {
		h := newLeadHarness(t)
		h.repo.On("Create", mock.Anything, mock.Anything).Return(model.ErrLeadEmailTaken).Once()
		h.audit.On("Log", mock.Anything, mock.MatchedBy(func(e model.AuditEntry) bool {
			return e.Status == model.AuditStatusFailure
		})).Return(nil).Once()

		_, err := h.svc.Create(context.Background(), tenant, testActor, model.CreateLeadRequest{FirstName: "Ada", Email: "ada@example.com"})
		require.ErrorIs(t, err, model.ErrLeadEmailTaken)
		assert.NotErrorIs(t, err, model.ErrLeadEmailPending)
		h.audit.AssertExpectations(t)
	})

	t.Run("email held by a pending deletion", func(t *testing.T) {
		h := newLeadHarness(t, sampleLeads()...)
		h.visible(t)
		h.repo.On("Create", mock.Anything, mock.Anything).Return(model.ErrLeadEmailTaken).Once()
		h.audit.On("Log", mock.Anything, mock.Anything).Return(nil)

		_, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l2")
		require.NoError(t, err)

		_, err = h.svc.Create(context.Background(), tenant, testActor, model.CreateLeadRequest{FirstName: "Grace", Email: "grace@example.com"})
		require.ErrorIs(t, err, model.ErrLeadEmailPending)
		require.ErrorIs(t, err, model.ErrLeadEmailTaken)
	})
}

func TestLeadService_Update(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)
	h.visible(t)

	score := 90
	h.repo.On("Update", mock.Anything, mock.MatchedBy(func(l model.Lead) bool {
		return l.ID == "l2" && l.Score == 90
	})).Return(nil).Once()
	h.audit.On("Log", mock.Anything, mock.Anything).Return(nil)

	updated, err := h.svc.Update(context.Background(), tenant, testActor, "l2", model.UpdateLeadRequest{Score: &score})
	require.NoError(t, err)
	assert.Equal(t, model.ScoreBucketHot, updated.ScoreBucket())
	assert.Equal(t, "Grace", updated.FirstName)

	leads, err := h.svc.List(context.Background(), tenant, model.LeadQuery{})
	require.NoError(t, err)
	assert.Equal(t, 90, leads[1].Score)
}

func TestLeadService_DeleteAndUndo(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)
	h.visible(t)

	pending, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l2")
	require.NoError(t, err)
	assert.Equal(t, 1, pending.OriginalIndex)
	assert.Equal(t, testStart.Add(5*time.Second), pending.Deadline)

	e := h.nextEvent(t)
	require.Equal(t, event.TypeDeletionPending, e.Type)
	payload, ok := e.Payload.(DeletionPayload[model.Lead])
	require.True(t, ok)
	assert.Equal(t, "Grace", payload.Record.FirstName)
	assert.Equal(t, `Lead "Grace Hopper" deleted`, payload.Message)
	assert.Equal(t, testActor.UserID, e.ActorID)

	assert.Equal(t, []string{"l1", "l3"}, h.visible(t))
	_, err = h.svc.Get(context.Background(), tenant, "l2")
	require.ErrorIs(t, err, model.ErrLeadNotFound)
	require.Len(t, h.svc.PendingDeletions(tenant), 1)

	restored, err := h.svc.Undo(context.Background(), tenant, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, undo.StatusUndone, restored.Status)
	assert.Equal(t, []string{"l1", "l2", "l3"}, h.visible(t))
	assert.Equal(t, event.TypeDeletionUndone, h.nextEvent(t).Type)

	h.clock.Advance(time.Minute)
	h.repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.svc.PendingDeletions(tenant))
}

func TestLeadService_DeleteCommits(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)
	h.visible(t)

	// Mock expectations
	h.repo.On("Delete", mock.Anything, tenant, "l1").Return(nil).Once()
	h.audit.On("Log", mock.Anything, mock.MatchedBy(func(e model.AuditEntry) bool {
		return e.Action == model.AuditLeadDelete &&
			e.Status == model.AuditStatusSuccess &&
			e.Actor.UserID == testActor.UserID &&
			e.Resource == "lead/l1"
	})).Return(nil).Once()

	pending, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l1")
	require.NoError(t, err)
	h.nextEvent(t)

	h.clock.Advance(4 * time.Second)
	h.repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)

	h.clock.Advance(time.Second)
	committed := h.nextEvent(t)
	assert.Equal(t, event.TypeDeletionCommitted, committed.Type)
	assert.Equal(t, testActor.UserID, committed.ActorID)

	_, err = h.svc.Undo(context.Background(), tenant, pending.ID)
	require.ErrorIs(t, err, undo.ErrAlreadyCommitted)

	assert.Equal(t, []string{"l2", "l3"}, h.visible(t))
	h.repo.AssertExpectations(t)
	h.audit.AssertExpectations(t)
}

func TestLeadService_DeleteFailureRestores(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)
	h.visible(t)

	h.repo.On("Delete", mock.Anything, tenant, "l3").Return(errors.New("connection reset")).Once()
	h.audit.On("Log", mock.Anything, mock.MatchedBy(func(e model.AuditEntry) bool {
		return e.Action == model.AuditLeadDelete && e.Status == model.AuditStatusFailure && e.Error == "connection reset"
	})).Return(nil).Once()

	_, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l3")
	require.NoError(t, err)
	h.nextEvent(t)

	h.clock.Advance(5 * time.Second)

	failed := h.nextEvent(t)
	require.Equal(t, event.TypeDeletionFailed, failed.Type)
	payload := failed.Payload.(DeletionPayload[model.Lead])
	assert.Equal(t, undo.LevelError, payload.Level)
	assert.Equal(t, []string{"l1", "l2", "l3"}, h.visible(t))
	h.audit.AssertExpectations(t)
}

func TestLeadService_AlreadyDeletedElsewhereCommits(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)
	h.visible(t)

	h.repo.On("Delete", mock.Anything, tenant, "l2").Return(model.ErrLeadNotFound).Once()
	h.audit.On("Log", mock.Anything, mock.Anything).Return(nil)

	_, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l2")
	require.NoError(t, err)
	h.nextEvent(t)

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, event.TypeDeletionCommitted, h.nextEvent(t).Type)
	assert.Equal(t, []string{"l1", "l3"}, h.visible(t))
}

func TestLeadService_RequestReadBeforeCommitIsNotFound(t *testing.T) {
	h := newLeadHarness(t)
	leads := sampleLeads()
	h.repo.On("List", mock.Anything, tenant).Return(leads, nil)
	h.repo.On("Get", mock.Anything, tenant, "l2").Return(leads[1], nil).Once()
	// The second read returns the row, then the first deletion commits
	// before the request reaches the coordinator.
	h.repo.On("Get", mock.Anything, tenant, "l2").Return(leads[1], nil).Run(func(mock.Arguments) {
		h.clock.Advance(5 * time.Second)
	}).Once()
	h.repo.On("Delete", mock.Anything, tenant, "l2").Return(nil).Once()
	h.audit.On("Log", mock.Anything, mock.MatchedBy(func(e model.AuditEntry) bool {
		return e.Action == model.AuditLeadDelete && e.Status == model.AuditStatusSuccess
	})).Return(nil).Once()
	h.visible(t)

	_, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l2")
	require.NoError(t, err)

	_, err = h.svc.RequestDelete(context.Background(), tenant, testActor, "l2")
	require.ErrorIs(t, err, model.ErrLeadNotFound)
	assert.Empty(t, h.svc.PendingDeletions(tenant))
	assert.Equal(t, []string{"l1", "l3"}, h.visible(t))

	t.Run("reload that still sees the row keeps it hidden", func(t *testing.T) {
		refreshed, err := h.svc.List(context.Background(), tenant, model.LeadQuery{Refresh: true})
		require.NoError(t, err)
		require.Len(t, refreshed, 2)
		assert.Equal(t, "l1", refreshed[0].ID)
		assert.Equal(t, "l3", refreshed[1].ID)

		_, err = h.svc.Get(context.Background(), tenant, "l2")
		require.ErrorIs(t, err, model.ErrLeadNotFound)
	})

	h.repo.AssertNumberOfCalls(t, "Delete", 1)
	h.audit.AssertExpectations(t)
}

func TestLeadService_RefreshKeepsPendingHidden(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)
	h.visible(t)

	_, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l1")
	require.NoError(t, err)

	leads, err := h.svc.List(context.Background(), tenant, model.LeadQuery{Refresh: true})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "l2", leads[0].ID)
}

func TestLeadService_DuplicateDelete(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)
	h.visible(t)

	first, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l1")
	require.NoError(t, err)

	h.clock.Advance(3 * time.Second)
	second, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l1")
	require.ErrorIs(t, err, undo.ErrDuplicatePendingDeletion)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, testStart.Add(8*time.Second), second.Deadline)
}

func TestLeadService_TenantsAreIsolated(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)
	h.visible(t)

	pending, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l1")
	require.NoError(t, err)

	_, err = h.svc.Undo(context.Background(), "globex", pending.ID)
	require.ErrorIs(t, err, undo.ErrPendingNotFound)
	assert.Empty(t, h.svc.PendingDeletions("globex"))
}

func TestLeadService_Shutdown(t *testing.T) {
	h := newLeadHarness(t, sampleLeads()...)
	h.visible(t)

	h.repo.On("Delete", mock.Anything, tenant, "l2").Return(nil).Once()
	h.audit.On("Log", mock.Anything, mock.Anything).Return(nil)

	_, err := h.svc.RequestDelete(context.Background(), tenant, testActor, "l2")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.svc.Shutdown(ctx))
	h.repo.AssertExpectations(t)

	_, err = h.svc.RequestDelete(context.Background(), tenant, testActor, "l1")
	require.ErrorIs(t, err, ErrClosed)

	h.repo.On("Get", mock.Anything, "globex", "g1").Return(model.Lead{ID: "g1", TenantID: "globex", FirstName: "Hank"}, nil).Once()
	h.repo.On("List", mock.Anything, "globex").Return([]model.Lead{}, nil).Once()
	_, err = h.svc.RequestDelete(context.Background(), "globex", testActor, "g1")
	require.ErrorIs(t, err, ErrClosed)
}
