package countdown

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var startedMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "countdown_started_total",
	Help: "Countdowns started by mode",
}, []string{"mode"})

// RemainingCollector exports the remaining time of the current countdown
// of timer. Register it once per timer.
func RemainingCollector(timer *Timer) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "countdown_remaining_milliseconds",
		Help: "Remaining time of the current countdown",
	}, func() float64 {
		current := timer.Current()
		if current == nil {
			return 0
		}
		return float64(current.Get())
	})
}
