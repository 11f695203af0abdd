package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crm-api/internal/model"
)

const leadColumns = `id, tenant_id, first_name, last_name, email, phone, company, source,
	status, score, tags, owner_id, created_at, updated_at`

type LeadRepository struct {
	pool *pgxpool.Pool
}

func NewLeadRepository(pool *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

func (r *LeadRepository) List(ctx context.Context, tenantID string) ([]model.Lead, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE tenant_id = $1
		 ORDER BY created_at DESC, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]model.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (r *LeadRepository) Get(ctx context.Context, tenantID string, id string) (model.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE tenant_id = $1 AND id = $2`, tenantID, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Lead{}, model.ErrLeadNotFound
	}
	if err != nil {
		return model.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

func (r *LeadRepository) Create(ctx context.Context, lead model.Lead) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		lead.ID, lead.TenantID, lead.FirstName, lead.LastName, lead.Email, lead.Phone,
		lead.Company, lead.Source, lead.Status, lead.Score, tagsOrEmpty(lead.Tags), lead.OwnerID,
		lead.CreatedAt, lead.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrLeadEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (r *LeadRepository) Update(ctx context.Context, lead model.Lead) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET first_name = $3, last_name = $4, email = $5, phone = $6, company = $7,
		        source = $8, status = $9, score = $10, tags = $11, owner_id = $12, updated_at = $13
		 WHERE tenant_id = $1 AND id = $2`,
		lead.TenantID, lead.ID, lead.FirstName, lead.LastName, lead.Email, lead.Phone,
		lead.Company, lead.Source, lead.Status, lead.Score, tagsOrEmpty(lead.Tags), lead.OwnerID,
		lead.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrLeadEmailTaken
	}
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrLeadNotFound
	}
	return nil
}

func (r *LeadRepository) Delete(ctx context.Context, tenantID string, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrLeadNotFound
	}
	return nil
}

func scanLead(row pgx.Row) (model.Lead, error) {
	var l model.Lead
	err := row.Scan(&l.ID, &l.TenantID, &l.FirstName, &l.LastName, &l.Email, &l.Phone,
		&l.Company, &l.Source, &l.Status, &l.Score, &l.Tags, &l.OwnerID, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
