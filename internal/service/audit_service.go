package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crm-api/internal/model"
	"crm-api/internal/repository"
	"crm-api/pkg/apierror"
)

type AuditService struct {
	store repository.AuditStore
	now   func() time.Time
}

func NewAuditService(store repository.AuditStore) *AuditService {
	return &AuditService{store: store, now: time.Now}
}

// Log records an audit entry. Failures are logged and otherwise ignored so a
// broken audit trail never fails the user's request.
func (s *AuditService) Log(ctx context.Context, tenantID string, action string, actor model.AuditActor, status string, resource string, before any, after any, errText string) {
	if s == nil {
		return
	}

	entry := model.AuditEntry{
		TenantID:   tenantID,
		Action:     action,
		OccurredAt: s.now().UTC().Format(time.RFC3339Nano),
		Actor:      actor,
		Status:     status,
		Resource:   resource,
		Before:     before,
		After:      after,
		Error:      errText,
	}

	// Commits run after the request is gone; the entry must still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit entry", "action", action, "tenant_id", tenantID, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	from, err := parseOptionalAuditTime(query.From)
	if err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'from' datetime format", query.From)
	}
	to, err := parseOptionalAuditTime(query.To)
	if err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'to' datetime format", query.To)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, model.Meta{}, apierror.BadRequest("'to' must not be before 'from'", "")
	}

	query.Action = strings.ToLower(strings.TrimSpace(query.Action))
	query.Status = strings.ToLower(strings.TrimSpace(query.Status))
	query.ActorID = strings.TrimSpace(query.ActorID)
	query.Resource = strings.TrimSpace(query.Resource)
	query.From = formatOptionalAuditTime(from)
	query.To = formatOptionalAuditTime(to)

	items, meta, err := s.store.Query(ctx, query)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	return items, meta, nil
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	if value, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(time.DateOnly, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}

func formatOptionalAuditTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
