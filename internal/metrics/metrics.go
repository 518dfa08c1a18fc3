package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"choicetube/internal/core"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "choicetube_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "choicetube_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "choicetube_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	watchFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "choicetube_watch_flushes_total",
		Help: "Total number of successful watch-progress flushes.",
	})

	usageMinutesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "choicetube_usage_minutes_credited_total",
		Help: "Total screen-time minutes credited to daily usage.",
	})

	policyDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "choicetube_policy_decisions_total",
		Help: "Screen-time decisions published to clients, by state.",
	}, []string{"state"})

	unlockAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "choicetube_unlock_attempts_total",
		Help: "Parent-password unlock attempts, by result.",
	}, []string{"result"})

	prayerFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "choicetube_prayer_fetches_total",
		Help: "Prayer-time schedule fetches, by result.",
	}, []string{"result"})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "choicetube_stream_clients",
		Help: "Currently connected event-stream clients.",
	})
)

// Middleware records request metrics for gin routes
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		method := c.Request.Method
		statusCode := strconv.Itoa(status)

		httpRequestsTotal.WithLabelValues(method, route).Inc()
		httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(time.Since(start).Seconds())
		if status >= http.StatusInternalServerError {
			httpErrorsTotal.WithLabelValues(method, route, statusCode).Inc()
		}
	}
}

// Handler exposes the Prometheus metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFlush records a successful watch flush and the minutes it credited
func ObserveFlush(userID string, credited int) {
	watchFlushesTotal.Inc()
	if credited > 0 {
		usageMinutesTotal.Add(float64(credited))
	}
}

// ObserveDecision records a published policy decision
func ObserveDecision(state core.PolicyState) {
	policyDecisionsTotal.WithLabelValues(string(state)).Inc()
}

// ObserveUnlock records an unlock attempt
func ObserveUnlock(err error) {
	result := "granted"
	if err != nil {
		result = "refused"
	}
	unlockAttemptsTotal.WithLabelValues(result).Inc()
}

// StreamConnected adjusts the connected-clients gauge
func StreamConnected(delta int) {
	streamClients.Add(float64(delta))
}

// TimesSource fetches prayer times
type TimesSource interface {
	Timings(ctx context.Context, at time.Time, settings *core.PrayerTimeSettings) (*core.PrayerTimes, error)
}

type instrumentedTimes struct {
	next TimesSource
}

// InstrumentTimes counts fetch outcomes of a prayer-times source
func InstrumentTimes(next TimesSource) TimesSource {
	return &instrumentedTimes{next: next}
}

func (i *instrumentedTimes) Timings(ctx context.Context, at time.Time, settings *core.PrayerTimeSettings) (*core.PrayerTimes, error) {
	times, err := i.next.Timings(ctx, at, settings)
	result := "ok"
	if err != nil {
		result = "error"
	}
	prayerFetchesTotal.WithLabelValues(result).Inc()
	return times, err
}
