package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	reqInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "In-flight HTTP requests",
		},
	)

	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	cacheItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_presence_cache_items",
			Help: "Approximate number of cached offline presence payloads",
		},
	)

	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_probes_total",
			Help: "Presence probes by authorization outcome",
		},
		[]string{"outcome"},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_deliveries_total",
			Help: "Presence packet deliveries by result",
		},
		[]string{"result"},
	)

	offlineWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_presence_writes_total",
			Help: "Offline presence rows written to durable storage",
		},
	)
)

func init() {
	Registry.MustRegister(reqTotal, reqInFlight, reqDuration, cacheItems, probesTotal, deliveriesTotal, offlineWrites)
}

// CacheSizer provides ability to get cache size
// Implemented by the cache layer via Items()
type CacheSizer interface{ Items() int }

// UpdateCacheItems gauges current cache size
func UpdateCacheItems(c CacheSizer) {
	if c == nil {
		return
	}
	cacheItems.Set(float64(c.Items()))
}

// ObserveProbe counts a probe by its authorization outcome
func ObserveProbe(outcome string) {
	probesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDelivery counts a delivery attempt
func ObserveDelivery(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	deliveriesTotal.WithLabelValues(result).Inc()
}

// ObserveOfflineWrite counts a durable offline presence write
func ObserveOfflineWrite() {
	offlineWrites.Inc()
}

// Middleware instruments HTTP requests
func Middleware(route string, next http.Handler, sizer CacheSizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqInFlight.Inc()
		defer reqInFlight.Dec()

		// Capture status code
		rw := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(rw, r)

		dur := time.Since(start).Seconds()
		reqDuration.WithLabelValues(r.Method, route).Observe(dur)
		reqTotal.WithLabelValues(r.Method, route, http.StatusText(rw.status)).Inc()

		// Update cache items gauge opportunistically
		UpdateCacheItems(sizer)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Handler returns a promhttp handler for the Registry
func Handler() http.Handler { return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}) }
