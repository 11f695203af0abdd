package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crm-api/internal/model"
)

const opportunityColumns = `id, tenant_id, lead_id, name, stage, position, amount_cents, currency,
	probability, expected_close_date, owner_id, created_at, updated_at`

type OpportunityRepository struct {
	pool *pgxpool.Pool
}

func NewOpportunityRepository(pool *pgxpool.Pool) *OpportunityRepository {
	return &OpportunityRepository{pool: pool}
}

// List returns the board in stage order, then by position within a stage.
func (r *OpportunityRepository) List(ctx context.Context, tenantID string) ([]model.Opportunity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities
		 WHERE tenant_id = $1
		 ORDER BY array_position($2::text[], stage), position, created_at`,
		tenantID, stageNames())
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	out := make([]model.Opportunity, 0)
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OpportunityRepository) Get(ctx context.Context, tenantID string, id string) (model.Opportunity, error) {
	o, err := scanOpportunity(r.pool.QueryRow(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE tenant_id = $1 AND id = $2`, tenantID, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Opportunity{}, model.ErrOpportunityNotFound
	}
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("get opportunity: %w", err)
	}
	return o, nil
}

// Create appends the opportunity to the end of its stage and returns it with
// the assigned position.
func (r *OpportunityRepository) Create(ctx context.Context, o model.Opportunity) (model.Opportunity, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO opportunities (`+opportunityColumns+`)
		 VALUES ($1, $2, $3, $4, $5,
		         COALESCE((SELECT MAX(position) + 1 FROM opportunities WHERE tenant_id = $2 AND stage = $5), 0),
		         $6, $7, $8, $9, $10, $11, $12)
		 RETURNING position`,
		o.ID, o.TenantID, o.LeadID, o.Name, o.Stage, o.AmountCents, o.Currency,
		o.Probability, o.ExpectedCloseDate, o.OwnerID, o.CreatedAt, o.UpdatedAt).Scan(&o.Position)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("create opportunity: %w", err)
	}
	return o, nil
}

func (r *OpportunityRepository) Update(ctx context.Context, o model.Opportunity) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE opportunities SET lead_id = $3, name = $4, amount_cents = $5, currency = $6,
		        probability = $7, expected_close_date = $8, owner_id = $9, updated_at = $10
		 WHERE tenant_id = $1 AND id = $2`,
		o.TenantID, o.ID, o.LeadID, o.Name, o.AmountCents, o.Currency,
		o.Probability, o.ExpectedCloseDate, o.OwnerID, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update opportunity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOpportunityNotFound
	}
	return nil
}

// Move places the opportunity at position within stage, closing the gap it
// leaves and shifting the cards after the target. A position past the end of
// the stage, or a negative one, appends.
func (r *OpportunityRepository) Move(ctx context.Context, tenantID string, id string, stage model.Stage, position int) (model.Opportunity, error) {
	var moved model.Opportunity

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanOpportunity(tx.QueryRow(ctx,
			`SELECT `+opportunityColumns+` FROM opportunities
			 WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrOpportunityNotFound
		}
		if err != nil {
			return fmt.Errorf("lock opportunity: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE opportunities SET position = position - 1
			 WHERE tenant_id = $1 AND stage = $2 AND position > $3`,
			tenantID, current.Stage, current.Position); err != nil {
			return fmt.Errorf("close stage gap: %w", err)
		}

		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM opportunities WHERE tenant_id = $1 AND stage = $2 AND id <> $3`,
			tenantID, stage, id).Scan(&count); err != nil {
			return fmt.Errorf("count stage: %w", err)
		}
		if position < 0 || position > count {
			position = count
		}

		if _, err := tx.Exec(ctx,
			`UPDATE opportunities SET position = position + 1
			 WHERE tenant_id = $1 AND stage = $2 AND position >= $3 AND id <> $4`,
			tenantID, stage, position, id); err != nil {
			return fmt.Errorf("open stage slot: %w", err)
		}

		moved, err = scanOpportunity(tx.QueryRow(ctx,
			`UPDATE opportunities SET stage = $3, position = $4, updated_at = $5
			 WHERE tenant_id = $1 AND id = $2
			 RETURNING `+opportunityColumns,
			tenantID, id, stage, position, time.Now().UTC()))
		if err != nil {
			return fmt.Errorf("place opportunity: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrOpportunityNotFound) {
			return model.Opportunity{}, err
		}
		return model.Opportunity{}, fmt.Errorf("move opportunity: %w", err)
	}

	return moved, nil
}

func (r *OpportunityRepository) Delete(ctx context.Context, tenantID string, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var stage model.Stage
		var position int
		err := tx.QueryRow(ctx,
			`DELETE FROM opportunities WHERE tenant_id = $1 AND id = $2 RETURNING stage, position`,
			tenantID, id).Scan(&stage, &position)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrOpportunityNotFound
		}
		if err != nil {
			return fmt.Errorf("delete opportunity: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE opportunities SET position = position - 1
			 WHERE tenant_id = $1 AND stage = $2 AND position > $3`,
			tenantID, stage, position); err != nil {
			return fmt.Errorf("close stage gap: %w", err)
		}
		return nil
	})
}

func scanOpportunity(row pgx.Row) (model.Opportunity, error) {
	var o model.Opportunity
	err := row.Scan(&o.ID, &o.TenantID, &o.LeadID, &o.Name, &o.Stage, &o.Position, &o.AmountCents,
		&o.Currency, &o.Probability, &o.ExpectedCloseDate, &o.OwnerID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func stageNames() []string {
	names := make([]string, 0, len(model.Stages))
	for _, stage := range model.Stages {
		names = append(names, string(stage))
	}
	return names
}
