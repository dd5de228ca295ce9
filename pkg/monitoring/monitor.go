package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// VerificationTotal 按判题方式统计（local_numeric / remote_semantic / local_fallback / deferred_grading）
	VerificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_prep_verifications_total",
			Help: "Answer verifications by method and verdict",
		},
		[]string{"method", "correct"},
	)

	GradingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_prep_gradings_total",
			Help: "Background free-response gradings by final status",
		},
		[]string{"status"},
	)

	GradingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exam_prep_grading_duration_seconds",
			Help:    "Duration of background grading calls",
			Buckets: []float64{1, 5, 15, 30, 60, 120},
		},
	)

	SessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_prep_sessions_finished_total",
			Help: "Finished sessions by mode and finish reason",
		},
		[]string{"mode", "reason"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exam_prep_active_sessions",
			Help: "Sessions currently running in this process",
		},
	)

	registerOnce sync.Once
)

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(VerificationTotal)
		prometheus.MustRegister(GradingTotal)
		prometheus.MustRegister(GradingDuration)
		prometheus.MustRegister(SessionsFinished)
		prometheus.MustRegister(ActiveSessions)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
