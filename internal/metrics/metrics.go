// Package metrics define los collectors Prometheus del servicio. Vive en un
// paquete propio para que callback y http los compartan sin ciclos.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics agrupa los collectors. Un *Metrics nil es válido y no registra nada.
type Metrics struct {
	outcomes     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	invalidScope *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInflight prometheus.Gauge
}

// New crea y registra los collectors en reg (o el default si es nil).
// Registrar dos veces reutiliza los collectors existentes.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error

	if m.outcomes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthcallback_outcomes_total",
		Help: "Callbacks OAuth por resultado terminal",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}

	if m.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oauthcallback_duration_seconds",
		Help:    "Duración del callback OAuth completo",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"outcome"})); err != nil {
		return nil, err
	}

	if m.invalidScope, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthcallback_invalid_scope_total",
		Help: "Grants rechazados por scope inválido (indica un bug del cliente)",
	}, []string{"tenancy"})); err != nil {
		return nil, err
	}

	if m.httpRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}

	if m.httpDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})); err != nil {
		return nil, err
	}

	if m.httpInflight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Requests en vuelo",
	})); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// ObserveOutcome registra un callback terminado.
func (m *Metrics) ObserveOutcome(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

// InvalidScope cuenta un grant rechazado por scope.
func (m *Metrics) InvalidScope(tenancyID string) {
	if m == nil {
		return
	}
	m.invalidScope.WithLabelValues(tenancyID).Inc()
}

// HTTPStart marca un request en vuelo y retorna la función que lo cierra.
func (m *Metrics) HTTPStart() func(method, route string, status int, d time.Duration) {
	if m == nil {
		return func(string, string, int, time.Duration) {}
	}
	m.httpInflight.Inc()
	return func(method, route string, status int, d time.Duration) {
		m.httpInflight.Dec()
		m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
