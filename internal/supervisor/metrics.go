package supervisor

import "github.com/prometheus/client_golang/prometheus"

var (
	spawnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "supervisor",
		Name:      "spawns_total",
		Help:      "Server spawn attempts by outcome (ready, loading, exit, fatal, spawn_error, canceled, stopped).",
	}, []string{"outcome"})
	stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "inferd",
		Subsystem: "supervisor",
		Name:      "state",
		Help:      "1 for the current readiness state of the local server, 0 otherwise.",
	}, []string{"state"})
	stopsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "supervisor",
		Name:      "stops_total",
		Help:      "Server stops by how the process ended (graceful, killed).",
	}, []string{"mode"})
)

func init() {
	prometheus.MustRegister(spawnsTotal, stateGauge, stopsTotal)
}

func observeState(s ReadinessState) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		stateGauge.WithLabelValues(string(st)).Set(v)
	}
}
