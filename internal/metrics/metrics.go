package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated counts attendance sessions opened by teachers.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_created_total",
		Help: "Number of attendance sessions created.",
	})

	// Scans counts scan submissions by outcome
	// (marked, invalid_token, expired, duplicate, error).
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_attendance_scans_total",
		Help: "Number of scan submissions by outcome.",
	}, []string{"result"})
)
