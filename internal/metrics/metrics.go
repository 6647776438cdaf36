package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exported on /metrics.
var (
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_opened_total",
		Help: "Attendance sessions opened by lecturers.",
	})

	SessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_closed_total",
		Help: "Attendance sessions explicitly closed.",
	})

	MarksRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_marks_recorded_total",
		Help: "Attendance records created through code redemption.",
	})

	MarksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_marks_rejected_total",
		Help: "Redemption attempts rejected, by reason.",
	}, []string{"reason"})
)

// Rejection reasons used as label values.
const (
	ReasonNotFound  = "not_found"
	ReasonExpired   = "expired"
	ReasonDuplicate = "duplicate"
)
