package router

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "router",
		Name:      "requests_total",
		Help:      "Backend calls by backend, operation and outcome (ok or error kind).",
	}, []string{"backend", "op", "outcome"})
	fallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "router",
		Name:      "fallbacks_total",
		Help:      "Cloud failures that fell back to the local backend.",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(requestsTotal, fallbacksTotal)
}
