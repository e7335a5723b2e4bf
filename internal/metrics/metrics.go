package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subs_submissions_total",
			Help: "Public sign-up submissions by outcome",
		},
		[]string{"outcome"}, // created|existing|verification_failed|invalid_input|error
	)

	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subs_verifications_total",
			Help: "Bot-verification gate calls by result",
		},
		[]string{"result"}, // passed|rejected|error|breaker_open
	)

	ImportRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subs_import_rows_total",
			Help: "CSV import rows by outcome",
		},
		[]string{"outcome"}, // inserted|duplicate|invalid
	)

	SignupsProjectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subs_signups_projected_total",
			Help: "Signup events written to the reporting store",
		},
		[]string{"source"},
	)
)

var registerOnce sync.Once

// MustRegister registers the collectors once; serve and worker may both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			SubmissionsTotal,
			VerificationsTotal,
			ImportRowsTotal,
			SignupsProjectedTotal,
		)
	})
}
