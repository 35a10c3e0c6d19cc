package observability

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	bankMetricsOnce sync.Once
	bankRegistry    *BankMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record RPC
// handler activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bank",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bank",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bank",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bank",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of RPC requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an RPC request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// BankMetrics captures ledger operation outcomes. A nil *BankMetrics is valid
// and records nothing.
type BankMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	sweeps      prometheus.Counter
	reentrancy  *prometheus.CounterVec
	transferErr prometheus.Counter
	active      prometheus.Gauge
}

// Bank returns the lazily-initialised bank metrics registry.
func Bank() *BankMetrics {
	bankMetricsOnce.Do(func() {
		bankRegistry = &BankMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bank",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bank",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			sweeps: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bank",
				Subsystem: "ledger",
				Name:      "sweeps_total",
				Help:      "Count of admin sweeps that committed.",
			}),
			reentrancy: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bank",
				Subsystem: "ledger",
				Name:      "reentrancy_rejections_total",
				Help:      "Calls rejected because another operation was in flight.",
			}, []string{"op"}),
			transferErr: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bank",
				Subsystem: "ledger",
				Name:      "transfer_failures_total",
				Help:      "Outbound transfers that failed and rolled back their operation.",
			}),
			active: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "bank",
				Subsystem: "ledger",
				Name:      "active_accounts",
				Help:      "Number of accounts holding a nonzero balance.",
			}),
		}
		prometheus.MustRegister(
			bankRegistry.operations,
			bankRegistry.latency,
			bankRegistry.sweeps,
			bankRegistry.reentrancy,
			bankRegistry.transferErr,
			bankRegistry.active,
		)
	})
	return bankRegistry
}

// ObserveOperation records one ledger operation. outcome is derived from err
// with the sentinel supplied by the caller classifying transfer failures.
func (m *BankMetrics) ObserveOperation(op string, duration time.Duration, err error, transferFailed error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if transferFailed != nil && errors.Is(err, transferFailed) {
			m.transferErr.Inc()
		}
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordReentrancy counts a rejected nested call.
func (m *BankMetrics) RecordReentrancy(op string) {
	if m == nil {
		return
	}
	m.reentrancy.WithLabelValues(op).Inc()
}

// RecordSweep counts a committed admin sweep.
func (m *BankMetrics) RecordSweep() {
	if m == nil {
		return
	}
	m.sweeps.Inc()
}

// SetActiveAccounts publishes the membership size.
func (m *BankMetrics) SetActiveAccounts(n uint64) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}
