package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadwidget/internal/entities"
)

// AnalyticsRepository keeps daily event counters per widget.
type AnalyticsRepository struct {
	db *pgxpool.Pool
}

type DailyEventCount struct {
	Date      time.Time `json:"date"`
	EventType string    `json:"event_type"`
	Count     int       `json:"count"`
}

func NewAnalyticsRepository(db *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Record increments today's counter for the event.
func (r *AnalyticsRepository) Record(ctx context.Context, ev entities.AnalyticsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO widget_events (widget_id, date, event_type, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (widget_id, date, event_type)
		DO UPDATE SET count = widget_events.count + 1
	`, ev.WidgetID, at.Format("2006-01-02"), ev.EventType)
	return err
}

// History returns the last N days of counters for a widget.
func (r *AnalyticsRepository) History(ctx context.Context, widgetID string, days int) ([]DailyEventCount, error) {
	startDate := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := r.db.Query(ctx, `
		SELECT date, event_type, count
		FROM widget_events
		WHERE widget_id = $1 AND date >= $2
		ORDER BY date ASC, event_type ASC
	`, widgetID, startDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DailyEventCount{}
	for rows.Next() {
		var c DailyEventCount
		if err := rows.Scan(&c.Date, &c.EventType, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
