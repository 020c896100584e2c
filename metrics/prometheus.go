package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every exported metric name.
const Namespace = "tally"

// Register exposes the collector's counters on reg as CounterFuncs labelled
// with the collector's instrument and strategy dimensions.
func (c *Collector) Register(reg prometheus.Registerer) error {
	if c == nil {
		return errors.New("metrics: register nil collector")
	}
	labels := prometheus.Labels{
		"instrument": c.instrument,
		"controller": c.controller,
		"waiter":     c.waiter,
		"reducer":    c.reducer,
	}

	counter := func(name, help string, read func(Snapshot) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(read(c.Snapshot())) })
	}

	collectors := []prometheus.Collector{
		counter("points_triggered_total", "Acquisition points triggered.", func(s Snapshot) int64 { return s.PointsTriggered }),
		counter("points_completed_total", "Acquisition points reduced successfully.", func(s Snapshot) int64 { return s.PointsCompleted }),
		counter("waiter_polls_total", "Counter waiter polls.", func(s Snapshot) int64 { return s.WaiterPolls }),
		counter("counter_decreases_total", "Progress counter decreases observed by waiters.", func(s Snapshot) int64 { return s.CounterDecreases }),
		counter("runs_begun_total", "Runs begun by controllers.", func(s Snapshot) int64 { return s.RunsBegun }),
		counter("runs_ended_total", "Runs ended and saved by controllers.", func(s Snapshot) int64 { return s.RunsEnded }),
		counter("runs_aborted_total", "Runs aborted by controllers.", func(s Snapshot) int64 { return s.RunsAborted }),
		counter("periods_advanced_total", "Hardware period changes confirmed by the apparatus.", func(s Snapshot) int64 { return s.PeriodsAdvanced }),
		counter("record_writes_total", "Point records written.", func(s Snapshot) int64 { return s.RecordWriteSuccess }),
		counter("record_write_failures_total", "Point record writes that failed.", func(s Snapshot) int64 { return s.RecordWriteFailure }),
	}
	for _, kind := range FailureKinds {
		kindLabels := prometheus.Labels{"kind": kind}
		for k, v := range labels {
			kindLabels[k] = v
		}
		collectors = append(collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "points_failed_total",
			Help:        "Acquisition points that failed, by error kind.",
			ConstLabels: kindLabels,
		}, func() float64 { return float64(c.Snapshot().FailedByKind[kind]) }))
	}

	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}
