package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the service updates. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Recognitions     *prometheus.CounterVec
	AttendanceWrites *prometheus.CounterVec
	Enrollments      *prometheus.CounterVec
	ExtractSeconds   prometheus.Histogram
	HTTPDuration     *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Recognitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_recognitions_total",
			Help: "Gallery scans by category and outcome.",
		}, []string{"category", "outcome"}),
		AttendanceWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_attendance_writes_total",
			Help: "Attendance submissions by method and outcome.",
		}, []string{"method", "outcome"}),
		Enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_enrollments_total",
			Help: "Face enrolments by category and outcome.",
		}, []string{"category", "outcome"}),
		ExtractSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_face_extract_seconds",
			Help:    "Latency of face extraction calls.",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollcall_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.Recognitions, m.AttendanceWrites, m.Enrollments, m.ExtractSeconds, m.HTTPDuration)
	return m
}

func (m *Metrics) Recognition(category, outcome string) {
	if m == nil {
		return
	}
	m.Recognitions.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) AttendanceWrite(method, outcome string) {
	if m == nil {
		return
	}
	m.AttendanceWrites.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) Enrollment(category, outcome string) {
	if m == nil {
		return
	}
	m.Enrollments.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) ObserveExtract(seconds float64) {
	if m == nil {
		return
	}
	m.ExtractSeconds.Observe(seconds)
}
