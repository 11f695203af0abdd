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

type LeadService struct {
	repo  repository.LeadStore
	views *cache.Views[model.Lead]
	desk  *deletionDesk[model.Lead]
	bus   event.Bus
	audit *AuditService
	now   func() time.Time
}

func NewLeadService(repo repository.LeadStore, bus event.Bus, audit *AuditService, viewTTL time.Duration, opts DeletionOptions) *LeadService {
	s := &LeadService{repo: repo, bus: bus, audit: audit, now: time.Now}

	s.views = cache.NewViews(repo.List, viewTTL, cache.WithExclude[model.Lead](func(tenantID, recordID string) bool {
		return s.desk.IsHidden(tenantID, recordID)
	}))
	s.desk = newDeletionDesk("lead", "Lead", model.AuditLeadDelete, s.views, s.remove, bus, audit, opts)
	return s
}

// List serves the tenant's visible leads, which never include leads inside
// their undo window.
func (s *LeadService) List(ctx context.Context, tenantID string, query model.LeadQuery) ([]model.Lead, error) {
	list, err := s.views.Get(ctx, tenantID, query.Refresh)
	if err != nil {
		return nil, err
	}

	return list.Filter(func(lead model.Lead) bool {
		if query.Status != "" && lead.Status != query.Status {
			return false
		}
		return lead.Matches(query.Q)
	}), nil
}

func (s *LeadService) Get(ctx context.Context, tenantID string, id string) (model.Lead, error) {
	if s.desk.IsHidden(tenantID, id) {
		return model.Lead{}, model.ErrLeadNotFound
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *LeadService) Create(ctx context.Context, tenantID string, actor model.AuditActor, req model.CreateLeadRequest) (model.Lead, error) {
	if err := req.Validate(); err != nil {
		return model.Lead{}, err
	}

	now := s.now().UTC()
	lead := model.Lead{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Company:   req.Company,
		Source:    req.Source,
		Status:    req.Status,
		Score:     req.Score,
		Tags:      req.Tags,
		OwnerID:   strings.TrimSpace(req.OwnerID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if lead.OwnerID == "" {
		lead.OwnerID = actor.UserID
	}
	normalizeLead(&lead)

	if err := s.repo.Create(ctx, lead); err != nil {
		err = s.emailConflict(tenantID, lead.ID, lead.Email, err)
		s.audit.Log(ctx, tenantID, model.AuditLeadCreate, actor, model.AuditStatusFailure, "lead/"+lead.ID, nil, lead, err.Error())
		return model.Lead{}, err
	}

	s.views.List(tenantID).Upsert(lead)
	s.bus.Publish(event.Event{Type: event.TypeLeadCreated, TenantID: tenantID, ActorID: actor.UserID, Payload: lead})
	s.audit.Log(ctx, tenantID, model.AuditLeadCreate, actor, model.AuditStatusSuccess, "lead/"+lead.ID, nil, lead, "")
	return lead, nil
}

func (s *LeadService) Update(ctx context.Context, tenantID string, actor model.AuditActor, id string, req model.UpdateLeadRequest) (model.Lead, error) {
	if err := req.Validate(); err != nil {
		return model.Lead{}, err
	}

	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return model.Lead{}, err
	}

	before := current.Clone()
	req.Apply(&current)
	normalizeLead(&current)
	current.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, current); err != nil {
		err = s.emailConflict(tenantID, current.ID, current.Email, err)
		s.audit.Log(ctx, tenantID, model.AuditLeadUpdate, actor, model.AuditStatusFailure, "lead/"+id, before, current, err.Error())
		return model.Lead{}, err
	}

	s.views.List(tenantID).Upsert(current)
	s.bus.Publish(event.Event{Type: event.TypeLeadUpdated, TenantID: tenantID, ActorID: actor.UserID, Payload: current})
	s.audit.Log(ctx, tenantID, model.AuditLeadUpdate, actor, model.AuditStatusSuccess, "lead/"+id, before, current, "")
	return current, nil
}

// RequestDelete hides the lead and schedules its removal. The returned
// pending entry carries the id needed to undo it.
func (s *LeadService) RequestDelete(ctx context.Context, tenantID string, actor model.AuditActor, id string) (undo.Pending[model.Lead], error) {
	lead, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return undo.Pending[model.Lead]{}, err
	}

	// Load the view first so the lead's position is known for a restore.
	if _, err := s.views.Get(ctx, tenantID, false); err != nil {
		return undo.Pending[model.Lead]{}, fmt.Errorf("prepare lead deletion: %w", err)
	}

	pending, err := s.desk.Request(tenantID, actor, lead)
	if errors.Is(err, undo.ErrAlreadyCommitted) {
		// Read before a concurrent deletion committed; the row is gone.
		return undo.Pending[model.Lead]{}, model.ErrLeadNotFound
	}
	return pending, err
}

func (s *LeadService) Undo(_ context.Context, tenantID string, pendingID string) (undo.Pending[model.Lead], error) {
	return s.desk.Undo(tenantID, pendingID)
}

func (s *LeadService) PendingDeletions(tenantID string) []undo.Pending[model.Lead] {
	return s.desk.Pending(tenantID)
}

func (s *LeadService) Shutdown(ctx context.Context) error {
	return s.desk.Shutdown(ctx)
}

// remove treats a lead that is already gone as deleted, so a concurrent
// delete elsewhere does not bring it back.
func (s *LeadService) remove(ctx context.Context, tenantID string, id string) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil && !errors.Is(err, model.ErrLeadNotFound) {
		return err
	}
	return nil
}

// emailConflict narrows a duplicate email error when the other lead is only
// waiting out its undo window. The store still holds that row, so the email
// stays taken until the deletion is undone or committed.
func (s *LeadService) emailConflict(tenantID string, leadID string, email string, err error) error {
	if !errors.Is(err, model.ErrLeadEmailTaken) || email == "" {
		return err
	}
	for _, p := range s.desk.Pending(tenantID) {
		if p.RecordID != leadID && strings.EqualFold(p.Record.Email, email) {
			return fmt.Errorf("%w: %w", model.ErrLeadEmailPending, err)
		}
	}
	return err
}

func normalizeLead(lead *model.Lead) {
	lead.FirstName = util.CleanText(lead.FirstName, util.MaxTextLength)
	lead.LastName = util.CleanText(lead.LastName, util.MaxTextLength)
	lead.Email = util.NormalizeEmail(lead.Email)
	lead.Phone = util.CleanText(lead.Phone, 64)
	lead.Company = util.CleanText(lead.Company, util.MaxTextLength)
	lead.Source = util.CleanText(lead.Source, util.MaxTextLength)
	lead.Tags = util.NormalizeTags(lead.Tags)
	if lead.Status == "" {
		lead.Status = model.LeadStatusNew
	}
}
