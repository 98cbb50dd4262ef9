package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadwidget/internal/entities"
)

type BlockRepository struct {
	db *pgxpool.Pool
}

func NewBlockRepository(db *pgxpool.Pool) *BlockRepository {
	return &BlockRepository{db: db}
}

func (r *BlockRepository) IsBlocked(ctx context.Context, tenantID, origin string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM blocked_visitors WHERE tenant_id=$1 AND visitor_origin=$2)",
		tenantID, origin).Scan(&exists)
	return exists, err
}

// Block records the (tenant, origin) pair. A second block for the same pair is a no-op.
func (r *BlockRepository) Block(ctx context.Context, rec entities.BlockRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO blocked_visitors (tenant_id, visitor_origin, reason, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, visitor_origin) DO NOTHING
	`, rec.TenantID, rec.VisitorOrigin, rec.Reason, rec.CreatedAt)
	return err
}

func (r *BlockRepository) Unblock(ctx context.Context, tenantID, origin string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM blocked_visitors WHERE tenant_id=$1 AND visitor_origin=$2", tenantID, origin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
