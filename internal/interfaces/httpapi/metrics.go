package httpapi

import (
	"errors"
	"net/http"
	"time"

	"txstatus/internal/application"
	"txstatus/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "txstatus"

// Metrics is the prometheus view of the service. It observes resolutions,
// pending snapshots and ledger sync progress.
type Metrics struct {
	registry *prometheus.Registry

	resolutions       *prometheus.CounterVec
	resolutionErrors  *prometheus.CounterVec
	resolutionLatency *prometheus.HistogramVec
	rpcRequests       *prometheus.CounterVec
	pendingSize       prometheus.Gauge
	pendingUpdated    prometheus.Gauge
	ledgerHead        prometheus.Gauge
	l1Head            prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "transaction status resolutions by answering stage and status",
		}, []string{"stage", "status"}),
		resolutionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "errors_total",
			Help:      "failed resolutions by failing stage and error kind",
		}, []string{"stage", "kind"}),
		resolutionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "duration_seconds",
			Help:      "time to resolve a transaction status",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		rpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "json-rpc calls by method and result code",
		}, []string{"method", "code"}),
		pendingSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pending",
			Name:      "transactions",
			Help:      "transactions in the latest pending block snapshot",
		}),
		pendingUpdated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pending",
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "unix time of the latest pending block snapshot",
		}),
		ledgerHead: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "head_block",
			Help:      "highest block stored in the ledger",
		}),
		l1Head: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "l1_head_block",
			Help:      "highest ledger block accepted on L1",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OnResolved(stage application.Stage, status domain.TransactionStatus, elapsed time.Duration) {
	m.resolutions.WithLabelValues(string(stage), string(status)).Inc()
	m.resolutionLatency.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *Metrics) OnResolutionFailed(stage application.Stage, err error, elapsed time.Duration) {
	m.resolutionErrors.WithLabelValues(string(stage), errorKind(err)).Inc()
	m.resolutionLatency.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *Metrics) OnPendingSnapshot(transactions int) {
	m.pendingSize.Set(float64(transactions))
	m.pendingUpdated.SetToCurrentTime()
}

func (m *Metrics) OnLedgerHead(number uint64) {
	m.ledgerHead.Set(float64(number))
}

func (m *Metrics) OnL1Head(number uint64) {
	m.l1Head.Set(float64(number))
}

func (m *Metrics) observeRPC(method string, code int) {
	m.rpcRequests.WithLabelValues(method, rpcCodeLabel(code)).Inc()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, application.ErrLedgerConnection):
		return "ledger_connection"
	case errors.Is(err, application.ErrLedgerTransaction):
		return "ledger_transaction"
	case errors.Is(err, application.ErrLedgerQuery):
		return "ledger_query"
	case errors.Is(err, application.ErrUnknownGatewayStatus):
		return "unknown_gateway_status"
	default:
		return "other"
	}
}
