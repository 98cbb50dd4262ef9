package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadwidget/internal/entities"
)

// MemoryStore is an in-process store used when no DATABASE_URL is configured
// and by tests. It implements every storage port.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]entities.Tenant
	blocks  map[string]entities.BlockRecord
	leads   []entities.LeadRecord
	events  map[string]int // widget|date|event -> count
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]entities.Tenant),
		blocks:  make(map[string]entities.BlockRecord),
		events:  make(map[string]int),
	}
}

func (m *MemoryStore) GetTenant(_ context.Context, id string) (*entities.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) GetTenantByPublicID(_ context.Context, publicID string) (*entities.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if t.PublicID == publicID {
			t := t
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SaveTenant(_ context.Context, t *entities.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	if cp.Status == "" {
		cp.Status = entities.StatusActive
	}
	m.tenants[cp.ID] = cp
	return nil
}

func blockKey(tenantID, origin string) string {
	return tenantID + "|" + origin
}

func (m *MemoryStore) IsBlocked(_ context.Context, tenantID, origin string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[blockKey(tenantID, origin)]
	return ok, nil
}

func (m *MemoryStore) Block(_ context.Context, rec entities.BlockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := blockKey(rec.TenantID, rec.VisitorOrigin)
	if _, ok := m.blocks[key]; !ok {
		m.blocks[key] = rec
	}
	return nil
}

func (m *MemoryStore) Unblock(_ context.Context, tenantID, origin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := blockKey(tenantID, origin)
	if _, ok := m.blocks[key]; !ok {
		return ErrNotFound
	}
	delete(m.blocks, key)
	return nil
}

// Blocks returns a snapshot of all block records.
func (m *MemoryStore) Blocks() []entities.BlockRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entities.BlockRecord, 0, len(m.blocks))
	for _, b := range m.blocks {
		out = append(out, b)
	}
	return out
}

func (m *MemoryStore) CreateLead(_ context.Context, lead *entities.LeadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	cp := *lead
	cp.Fields = make(map[string]string, len(lead.Fields))
	for k, v := range lead.Fields {
		cp.Fields[k] = v
	}
	m.leads = append(m.leads, cp)
	return nil
}

func (m *MemoryStore) ListLeads(_ context.Context, tenantID string, limit int) ([]entities.LeadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []entities.LeadRecord{}
	for i := len(m.leads) - 1; i >= 0; i-- {
		if m.leads[i].TenantID != tenantID {
			continue
		}
		out = append(out, m.leads[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Record(_ context.Context, ev entities.AnalyticsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.WidgetID+"|"+at.Format("2006-01-02")+"|"+ev.EventType]++
	return nil
}

func (m *MemoryStore) History(_ context.Context, widgetID string, days int) ([]DailyEventCount, error) {
	start := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []DailyEventCount{}
	for key, n := range m.events {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) != 3 || parts[0] != widgetID || parts[1] < start {
			continue
		}
		date, err := time.Parse("2006-01-02", parts[1])
		if err != nil {
			continue
		}
		out = append(out, DailyEventCount{Date: date, EventType: parts[2], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].EventType < out[j].EventType
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}
