// Package metrics expone contadores Prometheus de los flujos de autenticación y perfil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder es la interfaz que usan servicios y vistas.
type Recorder interface {
	RecordAuth(flow, outcome string)
	RecordProfileOp(op, outcome string)
	ObserveProfileLookup(d time.Duration)
	RecordAuthState(phase string)
}

// Resultados registrados.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeMissing = "missing"
)

// Collector implementa Recorder con Prometheus.
type Collector struct {
	authAttempts  *prometheus.CounterVec
	profileOps    *prometheus.CounterVec
	profileLookup prometheus.Histogram
	authStates    *prometheus.CounterVec
}

// NewCollector registra las métricas en reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_auth_attempts_total",
			Help: "Intentos de registro/login por flujo y resultado.",
		}, []string{"flow", "outcome"}),
		profileOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_profile_store_ops_total",
			Help: "Operaciones del almacén de perfiles por tipo y resultado.",
		}, []string{"op", "outcome"}),
		profileLookup: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portal_profile_lookup_seconds",
			Help:    "Latencia de la lectura de perfil en la vista de cuenta.",
			Buckets: prometheus.DefBuckets,
		}),
		authStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_auth_state_transitions_total",
			Help: "Transiciones del observador de sesión por fase destino.",
		}, []string{"phase"}),
	}
	reg.MustRegister(c.authAttempts, c.profileOps, c.profileLookup, c.authStates)
	return c
}

func (c *Collector) RecordAuth(flow, outcome string) {
	c.authAttempts.WithLabelValues(flow, outcome).Inc()
}

func (c *Collector) RecordProfileOp(op, outcome string) {
	c.profileOps.WithLabelValues(op, outcome).Inc()
}

func (c *Collector) ObserveProfileLookup(d time.Duration) {
	c.profileLookup.Observe(d.Seconds())
}

func (c *Collector) RecordAuthState(phase string) {
	c.authStates.WithLabelValues(phase).Inc()
}

// Handler devuelve el endpoint /metrics para el registry dado.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop descarta todas las métricas.
type Nop struct{}

func (Nop) RecordAuth(string, string)          {}
func (Nop) RecordProfileOp(string, string)     {}
func (Nop) ObserveProfileLookup(time.Duration) {}
func (Nop) RecordAuthState(string)             {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
