package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crm-api/internal/cache"
	"crm-api/internal/event"
	"crm-api/internal/model"
	"crm-api/internal/repository"
	"crm-api/internal/undo"
	"crm-api/internal/util"
)

const DefaultCurrency = "USD"

type OpportunityService struct {
	repo  repository.OpportunityStore
	views *cache.Views[model.Opportunity]
	desk  *deletionDesk[model.Opportunity]
	bus   event.Bus
	audit *AuditService
	now   func() time.Time
}

func NewOpportunityService(repo repository.OpportunityStore, bus event.Bus, audit *AuditService, viewTTL time.Duration, opts DeletionOptions) *OpportunityService {
	s := &OpportunityService{repo: repo, bus: bus, audit: audit, now: time.Now}

	s.views = cache.NewViews(repo.List, viewTTL, cache.WithExclude[model.Opportunity](func(tenantID, recordID string) bool {
		return s.desk.IsHidden(tenantID, recordID)
	}))
	s.desk = newDeletionDesk("opportunity", "Opportunity", model.AuditOpportunityDelete, s.views, s.remove, bus, audit, opts)
	return s
}

// MovedPayload is the body of opportunity.moved events.
type MovedPayload struct {
	Opportunity  model.Opportunity `json:"opportunity"`
	FromStage    model.Stage       `json:"from_stage"`
	FromPosition int               `json:"from_position"`
}

// List returns the visible board in stage and position order.
func (s *OpportunityService) List(ctx context.Context, tenantID string, query model.OpportunityQuery) ([]model.Opportunity, error) {
	list, err := s.views.Get(ctx, tenantID, query.Refresh)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query.Q))
	return list.Filter(func(o model.Opportunity) bool {
		if query.Stage != "" && o.Stage != query.Stage {
			return false
		}
		if query.OwnerID != "" && o.OwnerID != query.OwnerID {
			return false
		}
		return q == "" || strings.Contains(strings.ToLower(o.Name), q)
	}), nil
}

func (s *OpportunityService) Get(ctx context.Context, tenantID string, id string) (model.Opportunity, error) {
	if s.desk.IsHidden(tenantID, id) {
		return model.Opportunity{}, model.ErrOpportunityNotFound
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *OpportunityService) Create(ctx context.Context, tenantID string, actor model.AuditActor, req model.CreateOpportunityRequest) (model.Opportunity, error) {
	if err := req.Validate(); err != nil {
		return model.Opportunity{}, err
	}

	now := s.now().UTC()
	o := model.Opportunity{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		LeadID:            req.LeadID,
		Name:              req.Name,
		Stage:             req.Stage,
		AmountCents:       req.AmountCents,
		Currency:          req.Currency,
		ExpectedCloseDate: req.ExpectedCloseDate,
		OwnerID:           strings.TrimSpace(req.OwnerID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if o.Stage == "" {
		o.Stage = model.StageProspecting
	}
	if req.Probability != nil {
		o.Probability = *req.Probability
	} else {
		o.Probability = o.Stage.DefaultProbability()
	}
	if o.OwnerID == "" {
		o.OwnerID = actor.UserID
	}
	normalizeOpportunity(&o)

	created, err := s.repo.Create(ctx, o)
	if err != nil {
		s.audit.Log(ctx, tenantID, model.AuditOpportunityCreate, actor, model.AuditStatusFailure, "opportunity/"+o.ID, nil, o, err.Error())
		return model.Opportunity{}, err
	}

	// The new card sits at the end of its stage, which only a reload places
	// correctly among the other stages.
	s.views.Invalidate(tenantID)
	s.bus.Publish(event.Event{Type: event.TypeOpportunityCreated, TenantID: tenantID, ActorID: actor.UserID, Payload: created})
	s.audit.Log(ctx, tenantID, model.AuditOpportunityCreate, actor, model.AuditStatusSuccess, "opportunity/"+created.ID, nil, created, "")
	return created, nil
}

func (s *OpportunityService) Update(ctx context.Context, tenantID string, actor model.AuditActor, id string, req model.UpdateOpportunityRequest) (model.Opportunity, error) {
	if err := req.Validate(); err != nil {
		return model.Opportunity{}, err
	}

	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return model.Opportunity{}, err
	}

	before := current.Clone()
	req.Apply(&current)
	normalizeOpportunity(&current)
	current.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, current); err != nil {
		s.audit.Log(ctx, tenantID, model.AuditOpportunityUpdate, actor, model.AuditStatusFailure, "opportunity/"+id, before, current, err.Error())
		return model.Opportunity{}, err
	}

	s.views.List(tenantID).Upsert(current)
	s.bus.Publish(event.Event{Type: event.TypeOpportunityUpdated, TenantID: tenantID, ActorID: actor.UserID, Payload: current})
	s.audit.Log(ctx, tenantID, model.AuditOpportunityUpdate, actor, model.AuditStatusSuccess, "opportunity/"+id, before, current, "")
	return current, nil
}

// Move changes the card's stage and position on the board. Without an
// explicit probability the stage default is applied when the stage changes.
func (s *OpportunityService) Move(ctx context.Context, tenantID string, actor model.AuditActor, id string, req model.MoveOpportunityRequest) (model.Opportunity, error) {
	if err := req.Validate(); err != nil {
		return model.Opportunity{}, err
	}

	before, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return model.Opportunity{}, err
	}

	moved, err := s.repo.Move(ctx, tenantID, id, req.Stage, req.Position)
	if err != nil {
		s.audit.Log(ctx, tenantID, model.AuditOpportunityMove, actor, model.AuditStatusFailure, "opportunity/"+id, before, nil, err.Error())
		return model.Opportunity{}, err
	}

	if moved.Stage != before.Stage && before.Probability == before.Stage.DefaultProbability() {
		moved.Probability = moved.Stage.DefaultProbability()
		moved.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, moved); err != nil {
			return model.Opportunity{}, fmt.Errorf("apply stage probability: %w", err)
		}
	}

	// Neighbouring cards were renumbered, so the whole board is reloaded.
	if _, err := s.views.Get(ctx, tenantID, true); err != nil {
		s.views.Invalidate(tenantID)
	}

	s.bus.Publish(event.Event{
		Type:     event.TypeOpportunityMoved,
		TenantID: tenantID,
		ActorID:  actor.UserID,
		Payload:  MovedPayload{Opportunity: moved, FromStage: before.Stage, FromPosition: before.Position},
	})
	s.audit.Log(ctx, tenantID, model.AuditOpportunityMove, actor, model.AuditStatusSuccess, "opportunity/"+id, before, moved, "")
	return moved, nil
}

// Pipeline summarizes the visible board per stage for one currency. Totals
// at the top level cover open stages only.
func (s *OpportunityService) Pipeline(ctx context.Context, tenantID string, currency string) (model.Pipeline, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	list, err := s.views.Get(ctx, tenantID, false)
	if err != nil {
		return model.Pipeline{}, err
	}

	byStage := make(map[model.Stage]*model.PipelineStage, len(model.Stages))
	pipeline := model.Pipeline{Currency: currency, Stages: make([]model.PipelineStage, len(model.Stages))}
	for i, stage := range model.Stages {
		pipeline.Stages[i].Stage = stage
		byStage[stage] = &pipeline.Stages[i]
	}

	for _, o := range list.Snapshot() {
		if o.Currency != currency {
			continue
		}
		summary, ok := byStage[o.Stage]
		if !ok {
			continue
		}
		summary.Count++
		summary.TotalCents += o.AmountCents
		summary.WeightedCents += o.WeightedCents()

		if o.Stage != model.StageClosedWon && o.Stage != model.StageClosedLost {
			pipeline.OpenCount++
			pipeline.TotalCents += o.AmountCents
			pipeline.WeightedCents += o.WeightedCents()
		}
	}

	for i := range pipeline.Stages {
		pipeline.Stages[i].Total = model.FormatAmount(pipeline.Stages[i].TotalCents, currency)
		pipeline.Stages[i].Weighted = model.FormatAmount(pipeline.Stages[i].WeightedCents, currency)
	}
	pipeline.Total = model.FormatAmount(pipeline.TotalCents, currency)
	pipeline.Weighted = model.FormatAmount(pipeline.WeightedCents, currency)
	return pipeline, nil
}

func (s *OpportunityService) RequestDelete(ctx context.Context, tenantID string, actor model.AuditActor, id string) (undo.Pending[model.Opportunity], error) {
	o, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return undo.Pending[model.Opportunity]{}, err
	}

	if _, err := s.views.Get(ctx, tenantID, false); err != nil {
		return undo.Pending[model.Opportunity]{}, fmt.Errorf("prepare opportunity deletion: %w", err)
	}

	pending, err := s.desk.Request(tenantID, actor, o)
	if errors.Is(err, undo.ErrAlreadyCommitted) {
		// Read before a concurrent deletion committed; the row is gone.
		return undo.Pending[model.Opportunity]{}, model.ErrOpportunityNotFound
	}
	return pending, err
}

func (s *OpportunityService) Undo(_ context.Context, tenantID string, pendingID string) (undo.Pending[model.Opportunity], error) {
	return s.desk.Undo(tenantID, pendingID)
}

func (s *OpportunityService) PendingDeletions(tenantID string) []undo.Pending[model.Opportunity] {
	return s.desk.Pending(tenantID)
}

func (s *OpportunityService) Shutdown(ctx context.Context) error {
	return s.desk.Shutdown(ctx)
}

func (s *OpportunityService) remove(ctx context.Context, tenantID string, id string) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil && !errors.Is(err, model.ErrOpportunityNotFound) {
		return err
	}
	return nil
}

func normalizeOpportunity(o *model.Opportunity) {
	o.Name = util.CleanText(o.Name, util.MaxTextLength)
	o.Currency = strings.ToUpper(strings.TrimSpace(o.Currency))
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if o.LeadID != nil && strings.TrimSpace(*o.LeadID) == "" {
		o.LeadID = nil
	}
}
