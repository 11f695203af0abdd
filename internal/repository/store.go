package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"crm-api/internal/model"
)

// LeadStore persists leads. Every method is scoped to one tenant.
type LeadStore interface {
	List(ctx context.Context, tenantID string) ([]model.Lead, error)
	Get(ctx context.Context, tenantID string, id string) (model.Lead, error)
	Create(ctx context.Context, lead model.Lead) error
	Update(ctx context.Context, lead model.Lead) error
	Delete(ctx context.Context, tenantID string, id string) error
}

type OpportunityStore interface {
	List(ctx context.Context, tenantID string) ([]model.Opportunity, error)
	Get(ctx context.Context, tenantID string, id string) (model.Opportunity, error)
	Create(ctx context.Context, o model.Opportunity) (model.Opportunity, error)
	Update(ctx context.Context, o model.Opportunity) error
	Move(ctx context.Context, tenantID string, id string, stage model.Stage, position int) (model.Opportunity, error)
	Delete(ctx context.Context, tenantID string, id string) error
}

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, tenantID string, username string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	Count(ctx context.Context) (int, error)
}

type TokenStore interface {
	Store(ctx context.Context, token string, userID string, expiresAt time.Time) error
	Validate(ctx context.Context, token string) (string, error)
	Rotate(ctx context.Context, oldToken string, newToken string, userID string, expiresAt time.Time) error
	Revoke(ctx context.Context, token string) error
	CleanExpired(ctx context.Context) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

var (
	_ LeadStore        = (*LeadRepository)(nil)
	_ OpportunityStore = (*OpportunityRepository)(nil)
	_ UserStore        = (*UserRepository)(nil)
	_ TokenStore       = (*TokenRepository)(nil)
	_ AuditStore       = (*AuditRepository)(nil)
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
