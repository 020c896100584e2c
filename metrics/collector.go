// Package metrics provides per-scan metrics collection for the acquisition engine.
//
// The Collector accumulates counters during a scan. Strategies and the
// orchestrator increment it directly; a nil Collector discards everything.
// Register exposes the counters to a Prometheus registry.
package metrics

import "sync"

// FailureKinds are the error classifications points can fail with.
var FailureKinds = []string{"configuration", "lifecycle", "timeout", "invalid_point", "canceled", "other"}

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Points
	PointsTriggered int64
	PointsCompleted int64
	PointsFailed    int64
	FailedByKind    map[string]int64

	// Waiters
	WaiterPolls      int64
	CounterDecreases int64

	// Controllers
	RunsBegun       int64
	RunsEnded       int64
	RunsAborted     int64
	PeriodsAdvanced int64

	// Recording
	RecordWriteSuccess int64
	RecordWriteFailure int64

	// Dimensions (informational, set at construction)
	Instrument string
	Controller string
	Waiter     string
	Reducer    string
	ScanID     string
}

// Collector accumulates metrics during a scan.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	pointsTriggered int64
	pointsCompleted int64
	pointsFailed    int64
	failedByKind    map[string]int64

	waiterPolls      int64
	counterDecreases int64

	runsBegun       int64
	runsEnded       int64
	runsAborted     int64
	periodsAdvanced int64

	recordWriteSuccess int64
	recordWriteFailure int64

	instrument string
	controller string
	waiter     string
	reducer    string
	scanID     string
}

// Dimensions labels a Collector.
type Dimensions struct {
	Instrument string
	Controller string
	Waiter     string
	Reducer    string
	ScanID     string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(d Dimensions) *Collector {
	return &Collector{
		failedByKind: make(map[string]int64),
		instrument:   d.Instrument,
		controller:   d.Controller,
		waiter:       d.Waiter,
		reducer:      d.Reducer,
		scanID:       d.ScanID,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// IncPointTriggered increments the triggered point counter.
func (c *Collector) IncPointTriggered() {
	if c == nil {
		return
	}
	c.inc(&c.pointsTriggered)
}

// IncPointCompleted increments the completed point counter.
func (c *Collector) IncPointCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.pointsCompleted)
}

// IncPointFailed increments the failed point counter for kind.
func (c *Collector) IncPointFailed(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pointsFailed++
	c.failedByKind[kind]++
}

// IncWaiterPoll increments the waiter poll counter.
func (c *Collector) IncWaiterPoll() {
	if c == nil {
		return
	}
	c.inc(&c.waiterPolls)
}

// IncCounterDecrease increments the counter decrease counter.
func (c *Collector) IncCounterDecrease() {
	if c == nil {
		return
	}
	c.inc(&c.counterDecreases)
}

// IncRunBegun increments the begun run counter.
func (c *Collector) IncRunBegun() {
	if c == nil {
		return
	}
	c.inc(&c.runsBegun)
}

// IncRunEnded increments the ended (saved) run counter.
func (c *Collector) IncRunEnded() {
	if c == nil {
		return
	}
	c.inc(&c.runsEnded)
}

// IncRunAborted increments the aborted run counter.
func (c *Collector) IncRunAborted() {
	if c == nil {
		return
	}
	c.inc(&c.runsAborted)
}

// IncPeriodAdvanced increments the hardware period change counter.
func (c *Collector) IncPeriodAdvanced() {
	if c == nil {
		return
	}
	c.inc(&c.periodsAdvanced)
}

// IncRecordWriteSuccess increments the successful point record write counter.
func (c *Collector) IncRecordWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.recordWriteSuccess)
}

// IncRecordWriteFailure increments the failed point record write counter.
func (c *Collector) IncRecordWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.recordWriteFailure)
}

// Snapshot returns an immutable point-in-time copy of all metrics.
// FailedByKind is deep-copied.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{FailedByKind: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.failedByKind))
	for k, v := range c.failedByKind {
		byKind[k] = v
	}

	return Snapshot{
		PointsTriggered:    c.pointsTriggered,
		PointsCompleted:    c.pointsCompleted,
		PointsFailed:       c.pointsFailed,
		FailedByKind:       byKind,
		WaiterPolls:        c.waiterPolls,
		CounterDecreases:   c.counterDecreases,
		RunsBegun:          c.runsBegun,
		RunsEnded:          c.runsEnded,
		RunsAborted:        c.runsAborted,
		PeriodsAdvanced:    c.periodsAdvanced,
		RecordWriteSuccess: c.recordWriteSuccess,
		RecordWriteFailure: c.recordWriteFailure,
		Instrument:         c.instrument,
		Controller:         c.controller,
		Waiter:             c.waiter,
		Reducer:            c.reducer,
		ScanID:             c.scanID,
	}
}
