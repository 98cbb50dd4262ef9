package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadwidget/internal/entities"
)

type LeadRepository struct {
	db *pgxpool.Pool
}

func NewLeadRepository(db *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{db: db}
}

// CreateLead always inserts a new row; leads are not deduplicated.
func (r *LeadRepository) CreateLead(ctx context.Context, lead *entities.LeadRecord) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	fields, err := json.Marshal(lead.Fields)
	if err != nil {
		return fmt.Errorf("encode lead fields: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO leads (id, tenant_id, owner_id, fields, interest, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, lead.ID, lead.TenantID, lead.OwnerID, fields, lead.Interest, lead.Phone, lead.CreatedAt)
	return err
}

// ListLeads returns the newest leads of a tenant first.
func (r *LeadRepository) ListLeads(ctx context.Context, tenantID string, limit int) ([]entities.LeadRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, owner_id, fields, interest, phone, created_at
		FROM leads WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []entities.LeadRecord{}
	for rows.Next() {
		var (
			l      entities.LeadRecord
			fields []byte
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &l.OwnerID, &fields, &l.Interest, &l.Phone, &l.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(fields, &l.Fields); err != nil {
			return nil, fmt.Errorf("decode lead %s fields: %w", l.ID, err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}
