package infrastructure

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"leadwidget/internal/entities"
	"leadwidget/internal/repository"
)

// RedisAnalytics counts widget events in one hash per widget and day.
type RedisAnalytics struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisAnalytics(rdb *redis.Client, prefix string, ttl time.Duration) *RedisAnalytics {
	if prefix == "" {
		prefix = "widget_events"
	}
	return &RedisAnalytics{rdb: rdb, prefix: prefix, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (a *RedisAnalytics) key(widgetID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s", a.prefix, widgetID, at.Format("2006-01-02"))
}

func (a *RedisAnalytics) Record(ctx context.Context, ev entities.AnalyticsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	key := a.key(ev.WidgetID, at)
	pipe := a.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, ev.EventType, 1)
	if a.ttl > 0 {
		pipe.Expire(ctx, key, a.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// History returns the last N days of counters, read day by day.
func (a *RedisAnalytics) History(ctx context.Context, widgetID string, days int) ([]repository.DailyEventCount, error) {
	out := []repository.DailyEventCount{}
	today := time.Now()
	for i := days; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		raw, err := a.rdb.HGetAll(ctx, a.key(widgetID, day)).Result()
		if err != nil {
			return nil, err
		}
		date, _ := time.Parse("2006-01-02", day.Format("2006-01-02"))
		types := make([]string, 0, len(raw))
		for k := range raw {
			types = append(types, k)
		}
		sort.Strings(types)
		for _, k := range types {
			n, err := strconv.Atoi(raw[k])
			if err != nil {
				continue
			}
			out = append(out, repository.DailyEventCount{Date: date, EventType: k, Count: n})
		}
	}
	return out, nil
}
