package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crm-api/internal/event"
	"crm-api/internal/model"
	"crm-api/internal/repository"
	"crm-api/internal/undo"
)

func sampleBoard() []model.Opportunity {
	return []model.Opportunity{
		{ID: "o1", TenantID: tenant, Name: "Acme renewal", Stage: model.StageProspecting, Position: 0, AmountCents: 1_000_000, Currency: "USD", Probability: 10},
		{ID: "o2", TenantID: tenant, Name: "Globex pilot", Stage: model.StageProposal, Position: 0, AmountCents: 2_500_000, Currency: "USD", Probability: 50},
		{ID: "o3", TenantID: tenant, Name: "Initech expansion", Stage: model.StageClosedWon, Position: 0, AmountCents: 500_000, Currency: "USD", Probability: 100},
		{ID: "o4", TenantID: tenant, Name: "Umbrella EU", Stage: model.StageProposal, Position: 1, AmountCents: 900_000, Currency: "EUR", Probability: 50},
	}
}

func newOpportunityService(t *testing.T, board []model.Opportunity) (*OpportunityService, *repository.MockOpportunityStore, *undo.ManualScheduler, <-chan event.Event) {
	t.Helper()

	repo := new(repository.MockOpportunityStore)
	auditStore := new(repository.MockAuditStore)
	auditStore.On("Log", mock.Anything, mock.Anything).Return(nil).Maybe()

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	clock := undo.NewManualScheduler(testStart)
	svc := NewOpportunityService(repo, bus, NewAuditService(auditStore), time.Hour, DeletionOptions{
		Window:    5 * time.Second,
		Scheduler: clock,
	})

	repo.On("List", mock.Anything, tenant).Return(board, nil).Maybe()
	for _, o := range board {
		repo.On("Get", mock.Anything, tenant, o.ID).Return(o, nil).Maybe()
	}
	return svc, repo, clock, events
}

func TestOpportunityService_Create(t *testing.T) {
	svc, repo, _, events := newOpportunityService(t, nil)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(o model.Opportunity) bool {
		return o.Stage == model.StageProspecting && o.Probability == 10 && o.Currency == "USD" && o.LeadID == nil
	})).Return(model.Opportunity{ID: "o9", TenantID: tenant, Name: "New deal", Stage: model.StageProspecting, Position: 3, OwnerID: testActor.UserID}, nil).Once()

	emptyLead := ""
	created, err := svc.Create(context.Background(), tenant, testActor, model.CreateOpportunityRequest{
		Name:        "New deal",
		AmountCents: 120_000,
		LeadID:      &emptyLead,
	})
	require.NoError(t, err)
	assert.Equal(t, "New deal", created.Name)
	assert.Equal(t, 3, created.Position)

	e := <-events
	assert.Equal(t, event.TypeOpportunityCreated, e.Type)
	repo.AssertExpectations(t)
}

func TestOpportunityService_Move(t *testing.T) {
	board := sampleBoard()
	svc, repo, _, events := newOpportunityService(t, board)

	moved := board[0]
	moved.Stage = model.StageProposal
	moved.Position = 1

	// Mock expectations
	repo.On("Move", mock.Anything, tenant, "o1", model.StageProposal, 1).Return(moved, nil).Once()
	repo.On("Update", mock.Anything, mock.MatchedBy(func(o model.Opportunity) bool {
		return o.ID == "o1" && o.Probability == 50
	})).Return(nil).Once()

	got, err := svc.Move(context.Background(), tenant, testActor, "o1", model.MoveOpportunityRequest{Stage: model.StageProposal, Position: 1})
	require.NoError(t, err)
	assert.Equal(t, model.StageProposal, got.Stage)
	assert.Equal(t, 50, got.Probability)

	e := <-events
	require.Equal(t, event.TypeOpportunityMoved, e.Type)
	payload := e.Payload.(MovedPayload)
	assert.Equal(t, model.StageProspecting, payload.FromStage)

	repo.AssertExpectations(t)
	// The board is reloaded after the move.
	repo.AssertNumberOfCalls(t, "List", 1)
}

func TestOpportunityService_MoveKeepsCustomProbability(t *testing.T) {
	board := sampleBoard()
	board[0].Probability = 33
	svc, repo, _, _ := newOpportunityService(t, board)

	moved := board[0]
	moved.Stage = model.StageNegotiation
	repo.On("Move", mock.Anything, tenant, "o1", model.StageNegotiation, -1).Return(moved, nil).Once()

	got, err := svc.Move(context.Background(), tenant, testActor, "o1", model.MoveOpportunityRequest{Stage: model.StageNegotiation, Position: -1})
	require.NoError(t, err)
	assert.Equal(t, 33, got.Probability)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestOpportunityService_MovePendingIsNotFound(t *testing.T) {
	svc, _, _, _ := newOpportunityService(t, sampleBoard())
	_, err := svc.List(context.Background(), tenant, model.OpportunityQuery{})
	require.NoError(t, err)

	_, err = svc.RequestDelete(context.Background(), tenant, testActor, "o2")
	require.NoError(t, err)

	_, err = svc.Move(context.Background(), tenant, testActor, "o2", model.MoveOpportunityRequest{Stage: model.StageClosedWon})
	require.ErrorIs(t, err, model.ErrOpportunityNotFound)
}

func TestOpportunityService_Pipeline(t *testing.T) {
	svc, _, _, _ := newOpportunityService(t, sampleBoard())

	t.Run("summarizes one currency", func(t *testing.T) {
		pipeline, err := svc.Pipeline(context.Background(), tenant, "")
		require.NoError(t, err)

		assert.Equal(t, "USD", pipeline.Currency)
		require.Len(t, pipeline.Stages, len(model.Stages))
		assert.Equal(t, 2, pipeline.OpenCount)
		assert.Equal(t, int64(3_500_000), pipeline.TotalCents)
		assert.Equal(t, int64(100_000+1_250_000), pipeline.WeightedCents)
		assert.Equal(t, "USD 35,000.00", pipeline.Total)

		proposal := pipeline.Stages[2]
		assert.Equal(t, model.StageProposal, proposal.Stage)
		assert.Equal(t, 1, proposal.Count)
		assert.Equal(t, "USD 12,500.00", proposal.Weighted)

		won := pipeline.Stages[4]
		assert.Equal(t, 1, won.Count)
		assert.Equal(t, "USD 5,000.00", won.Total)
	})

	t.Run("pending deletions are left out", func(t *testing.T) {
		_, err := svc.RequestDelete(context.Background(), tenant, testActor, "o2")
		require.NoError(t, err)

		pipeline, err := svc.Pipeline(context.Background(), tenant, "usd")
		require.NoError(t, err)
		assert.Equal(t, 1, pipeline.OpenCount)
		assert.Equal(t, "USD 10,000.00", pipeline.Total)
	})
}

func TestOpportunityService_DeleteCommit(t *testing.T) {
	svc, repo, clock, events := newOpportunityService(t, sampleBoard())
	repo.On("Delete", mock.Anything, tenant, "o3").Return(nil).Once()

	_, err := svc.List(context.Background(), tenant, model.OpportunityQuery{})
	require.NoError(t, err)

	pending, err := svc.RequestDelete(context.Background(), tenant, testActor, "o3")
	require.NoError(t, err)
	assert.Equal(t, 2, pending.OriginalIndex)
	assert.Equal(t, event.TypeDeletionPending, (<-events).Type)

	clock.Advance(5 * time.Second)
	e := <-events
	require.Equal(t, event.TypeDeletionCommitted, e.Type)
	payload := e.Payload.(DeletionPayload[model.Opportunity])
	assert.Equal(t, `Opportunity "Initech expansion, USD 5,000.00" permanently deleted`, payload.Message)
	assert.Equal(t, "o3", payload.Record.ID)

	visible, err := svc.List(context.Background(), tenant, model.OpportunityQuery{})
	require.NoError(t, err)
	require.Len(t, visible, 3)
	repo.AssertExpectations(t)
}
