package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// resolutionsTotal counts resolutions by role and the stage that decided
	// them. Unresolved references are counted under stage "none".
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doxylink",
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Symbol resolutions by role and deciding stage",
	}, []string{"role", "stage"})

	indexEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "doxylink",
		Subsystem: "index",
		Name:      "entries",
		Help:      "Entries in the current index of each role",
	}, []string{"role"})

	indexSkipped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "doxylink",
		Subsystem: "index",
		Name:      "skipped_records",
		Help:      "Malformed tag file records skipped by the last build of each role",
	}, []string{"role"})

	indexBuildSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "doxylink",
		Subsystem: "index",
		Name:      "build_seconds",
		Help:      "Time to read, parse and index a role's tag file",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"role"})
)
