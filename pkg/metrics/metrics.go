// Package metrics exposes registry activity to prometheus.
package metrics

import (
	"math/big"
	"strconv"
	"time"

	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is an event sink counting what the registry and auction engine do,
// plus the HTTP request histogram used by the API server.
type Metrics struct {
	Registry *prometheus.Registry

	Events          *prometheus.CounterVec
	Charged         *prometheus.CounterVec
	Refunded        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "acorn_names_events_total",
			Help: "Total number of registry and auction events by kind",
		}, []string{"kind"}),
		Charged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "acorn_names_charged_ether_total",
			Help: "Payments kept by registrations, renewals and auction settlements, in ether",
		}, []string{"kind"}),
		Refunded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "acorn_names_refunded_ether_total",
			Help: "Overpayments handed back, in ether",
		}, []string{"kind"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "acorn_names_http_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "status"}),
	}
}

func (m *Metrics) Emit(evs ...events.Event) {
	for _, ev := range evs {
		kind := string(ev.Kind)
		m.Events.WithLabelValues(kind).Inc()
		if ev.Kind == events.KindWithdrawn || ev.Kind == events.KindBidRevealed {
			// Moves money already counted, or escrow that may come back.
			continue
		}
		if ev.Amount != nil && ev.Amount.Sign() > 0 {
			m.Charged.WithLabelValues(kind).Add(ether(ev.Amount))
		}
		if ev.Refund != nil && ev.Refund.Sign() > 0 {
			m.Refunded.WithLabelValues(kind).Add(ether(ev.Refund))
		}
	}
}

// ObserveRequest records one API request. Call with time.Now() at the start
// of the request.
func (m *Metrics) ObserveRequest(method string, status int, start time.Time) {
	m.RequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

func ether(wei *big.Int) float64 {
	f, _ := new(big.Rat).SetFrac(wei, pricing.Ether).Float64()
	return f
}
