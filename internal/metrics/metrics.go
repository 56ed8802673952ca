// Package metrics exposes daemon counters for the /metrics endpoint.
// Counters carry outcomes only; no user or license identifiers become
// label values.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry *prometheus.Registry

	Activations *prometheus.CounterVec
	Validations *prometheus.CounterVec
	RPCRequests *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usenet_sync",
			Name:      "license_activations_total",
			Help:      "License activation attempts by tier and outcome.",
		}, []string{"tier", "outcome"}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usenet_sync",
			Name:      "license_validations_total",
			Help:      "License validation results.",
		}, []string{"outcome"}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usenet_sync",
			Name:      "rpc_requests_total",
			Help:      "RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "usenet_sync",
			Name:      "secret_store_errors_total",
			Help:      "Secret store failures observed by the daemon.",
		}),
	}
	reg.MustRegister(
		m.Activations,
		m.Validations,
		m.RPCRequests,
		m.StoreErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
