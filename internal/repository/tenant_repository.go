package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadwidget/internal/entities"
)

type TenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `id, public_id, status, ai_enabled, COALESCE(system_prompt, ''), COALESCE(model, ''),
	temperature, COALESCE(notify_telegram_chat_id, 0), COALESCE(widget, '{}'::jsonb)`

func (r *TenantRepository) GetTenant(ctx context.Context, id string) (*entities.Tenant, error) {
	return r.getBy(ctx, "id", id)
}

func (r *TenantRepository) GetTenantByPublicID(ctx context.Context, publicID string) (*entities.Tenant, error) {
	return r.getBy(ctx, "public_id", publicID)
}

// getBy is only called with a fixed column name.
func (r *TenantRepository) getBy(ctx context.Context, column, value string) (*entities.Tenant, error) {
	var (
		t      entities.Tenant
		widget []byte
	)
	err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM tenants WHERE %s = $1", tenantColumns, column), value).Scan(
		&t.ID, &t.PublicID, &t.Status, &t.AIEnabled, &t.SystemPrompt, &t.Model,
		&t.Temperature, &t.NotifyTelegramChatID, &widget,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if err := json.Unmarshal(widget, &t.Widget); err != nil {
		return nil, fmt.Errorf("decode widget settings for tenant %s: %w", t.ID, err)
	}
	return &t, nil
}

// SaveTenant inserts or replaces a tenant record.
func (r *TenantRepository) SaveTenant(ctx context.Context, t *entities.Tenant) error {
	widget, err := json.Marshal(t.Widget)
	if err != nil {
		return fmt.Errorf("encode widget settings: %w", err)
	}
	status := t.Status
	if status == "" {
		status = entities.StatusActive
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO tenants (id, public_id, status, ai_enabled, system_prompt, model, temperature, notify_telegram_chat_id, widget, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			public_id = EXCLUDED.public_id,
			status = EXCLUDED.status,
			ai_enabled = EXCLUDED.ai_enabled,
			system_prompt = EXCLUDED.system_prompt,
			model = EXCLUDED.model,
			temperature = EXCLUDED.temperature,
			notify_telegram_chat_id = EXCLUDED.notify_telegram_chat_id,
			widget = EXCLUDED.widget,
			updated_at = NOW()
	`, t.ID, t.PublicID, status, t.AIEnabled, t.SystemPrompt, t.Model, t.Temperature, t.NotifyTelegramChatID, widget)
	return err
}
