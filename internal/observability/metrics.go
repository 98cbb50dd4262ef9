package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leadwidget"

var latencyBuckets = []float64{
	0.005, 0.01, 0.02, 0.05,
	0.1, 0.2, 0.5,
	1, 2, 5, 10, 30,
}

var (
	// TurnsTotal counts conversation turns by outcome:
	// reply, blocked, rejected, lead, ai_disabled, upstream_error.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "turn",
		Name:      "total",
		Help:      "Conversation turns broken down by outcome.",
	}, []string{"outcome"})

	DirectivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "turn",
		Name:      "directives_total",
		Help:      "Directives found in model answers by kind.",
	}, []string{"kind"})

	LLMLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Latency distribution of model calls.",
		Buckets:   latencyBuckets,
	}, []string{"result"})

	ScriptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "script",
		Name:      "rendered_total",
		Help:      "Client scripts rendered by variant.",
	}, []string{"variant"})

	WidgetEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "widget",
		Name:      "events_total",
		Help:      "Widget analytics pings by event type.",
	}, []string{"event"})

	EffectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "effect",
		Name:      "total",
		Help:      "Best-effort side effects by name and result.",
	}, []string{"effect", "result"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status class.",
	}, []string{"route", "result"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "latency_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   latencyBuckets,
	}, []string{"route", "result"})
)

// ObserveLLM records the duration of one model call.
func ObserveLLM(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	LLMLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// GinMiddleware instruments every request by its route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		result := statusClass(c.Writer.Status())
		httpRequests.WithLabelValues(route, result).Inc()
		httpLatency.WithLabelValues(route, result).Observe(time.Since(start).Seconds())
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
