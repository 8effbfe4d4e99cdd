package realtime

import "github.com/prometheus/client_golang/prometheus"

var subscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "recipememo",
	Subsystem: "realtime",
	Name:      "subscribers",
	Help:      "Open comment stream subscriptions.",
})

// Collectors returns the package metrics for registration
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{subscribersGauge}
}
