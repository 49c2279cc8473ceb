package metrics

import (
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// all metrics and middlewares for the REST API
var (
	// to prevent metrics from being initialized multiple times
	isMetricsInitVar uint32 = 0

	// active REST API connections
	activeRESTConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_rest_connections",
			Help: "Number of active REST API connections",
		},
	)

	// response times for REST APIs
	responseTimeRESTAPI = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restapi_response_time_milliseconds",
			Help:    "REST API response time distributions",
			Buckets: []float64{1, 10, 50, 100, 200, 300, 400, 500},
		},
		[]string{"method", "endpoint"},
	)

	// Number of requests processed by REST API
	RESTRequestMetricsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rest_requests_processed_total",
		Help: "The total number of processed REST requests",
	}, []string{"method", "endpoint"})

	// Number of rotations started
	RotationStartedMetricsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotations_started_total",
		Help: "The total number of rotation tickets opened",
	})

	// Number of rotations committed
	RotationCompletedMetricsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotations_completed_total",
		Help: "The total number of rotations committed",
	})

	// Number of rotations rolled back within the deprecation window
	RotationRolledBackMetricsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotations_rolled_back_total",
		Help: "The total number of completed rotations rolled back",
	})

	// Number of rotation starts denied by the per-owner limiter
	RotationDeniedMetricsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotations_denied_total",
		Help: "The total number of rotation starts denied by cooldown or daily cap",
	})
)

func setIsMetricsInit() {
	atomic.StoreUint32(&isMetricsInitVar, 1)
}

func isMetricsInit() bool {
	return atomic.LoadUint32(&isMetricsInitVar) == 1
}

func InitMetrics() {
	if !isMetricsInit() {
		setIsMetricsInit()

		// Metrics have to be registered to be exposed
		prometheus.MustRegister(activeRESTConnections)
		prometheus.MustRegister(responseTimeRESTAPI)
		prometheus.MustRegister(RESTRequestMetricsTotal)
		prometheus.MustRegister(RotationStartedMetricsCount)
		prometheus.MustRegister(RotationCompletedMetricsCount)
		prometheus.MustRegister(RotationRolledBackMetricsCount)
		prometheus.MustRegister(RotationDeniedMetricsCount)
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Increment the counter for the given endpoint:
		RESTRequestMetricsTotal.WithLabelValues(c.Request.Method, c.FullPath()).Inc()

		// Start timing responseTime histogram
		start := time.Now()

		// Set activeConnections gauge
		activeRESTConnections.Inc()
		defer activeRESTConnections.Dec()

		c.Next()

		// Set responseTime histogram
		latency := time.Since(start)
		responseTimeRESTAPI.WithLabelValues(c.Request.Method, c.Request.URL.Path).Observe(float64(latency.Milliseconds()))
	}
}
