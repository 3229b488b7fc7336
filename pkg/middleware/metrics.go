package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics はゲートウェイのPrometheusメトリクスを保持する。
type Metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	authOutcomes    *prometheus.CounterVec
	panicsRecovered prometheus.Counter
}

// NewMetrics はメトリクスを生成し reg に登録する。
// テストやサーバーごとに独立した prometheus.Registry を渡すこと。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "haystack",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "haystack",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		authOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "haystack",
				Subsystem: "auth",
				Name:      "outcomes_total",
				Help:      "Total number of authentication decisions by outcome",
			},
			[]string{"outcome"},
		),
		panicsRecovered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "haystack",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered while serving requests",
			},
		),
	}
}

// Middleware はリクエスト数・レイテンシ・認証結果を記録するGinミドルウェアを返す。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		if outcome := OutcomeFrom(c); outcome != "" {
			m.authOutcomes.WithLabelValues(string(outcome)).Inc()
		}
	}
}

func (m *Metrics) panicRecovered() {
	if m == nil {
		return
	}
	m.panicsRecovered.Inc()
}
