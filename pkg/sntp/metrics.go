package sntp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "countdown_sntp_attempts_total",
		Help: "SNTP exchanges by result (ok, timeout, malformed, error)",
	}, []string{"result"})

	offsetMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "countdown_sntp_offset_seconds",
		Help: "Local clock offset of the last successful exchange",
	})

	roundTripMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "countdown_sntp_round_trip_seconds",
		Help: "Round trip delay of the last successful exchange",
	})
)
