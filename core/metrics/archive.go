package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(formsArchivedTotal)
}

var formsArchivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "forms_archived_total",
		Help: "Completed forms written to the archive, by backend and result.",
	},
	[]string{"backend", "result"},
)

func IncFormArchived(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	formsArchivedTotal.WithLabelValues(norm(backend), result).Inc()
}
