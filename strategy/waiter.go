package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/tally/apparatus"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/telemetry"
	"github.com/pithecene-io/tally/types"
)

// Waiter defaults.
const (
	DefaultPollInterval  = 50 * time.Millisecond
	DefaultDecreaseGrace = 5 * time.Second
)

// Counter names a monotonic apparatus progress counter.
type Counter string

// Progress counters a CounterWaiter can wait on.
const (
	CounterGoodFrames       Counter = "good_frames"
	CounterPeriodGoodFrames Counter = "period_good_frames"
	CounterGoodUAH          Counter = "good_uah"
	CounterMEvents          Counter = "m_events"
)

func (c Counter) path() (string, bool) {
	switch c {
	case CounterGoodFrames:
		return telemetry.PathGoodFrames, true
	case CounterPeriodGoodFrames:
		return telemetry.PathPeriodGoodFrames, true
	case CounterGoodUAH:
		return telemetry.PathGoodUAH, true
	case CounterMEvents:
		return telemetry.PathMEvents, true
	default:
		return "", false
	}
}

func (c Counter) signal(app *apparatus.Apparatus) *apparatus.Signal {
	switch c {
	case CounterPeriodGoodFrames:
		return app.PeriodGoodFramesSignal()
	case CounterGoodUAH:
		return app.GoodUAHSignal()
	case CounterMEvents:
		return app.MEventsSignal()
	default:
		return app.GoodFramesSignal()
	}
}

// CounterWaiterConfig configures a CounterWaiter.
type CounterWaiterConfig struct {
	// PollInterval is the delay between counter reads (default 50ms).
	PollInterval time.Duration
	// Timeout bounds the whole wait. Zero means no timeout.
	Timeout time.Duration
	// DecreaseGrace is how long a decreased counter may take to start
	// increasing again before the wait fails (default 5s).
	DecreaseGrace time.Duration
	// Logger is optional.
	Logger *log.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
}

// CounterWaiter waits until a progress counter has advanced by Target since
// the point started.
type CounterWaiter struct {
	counter Counter
	path    string
	target  float64
	cfg     CounterWaiterConfig
}

// NewCounterWaiter creates a waiter on counter. Target must be > 0.
func NewCounterWaiter(counter Counter, target float64, cfg CounterWaiterConfig) (*CounterWaiter, error) {
	path, ok := counter.path()
	if !ok {
		return nil, types.NewConfigError("new_waiter", "unknown counter %q", counter)
	}
	if target <= 0 {
		return nil, types.NewConfigError("new_waiter", "%s target must be > 0, got %v", counter, target)
	}
	if cfg.PollInterval < 0 || cfg.Timeout < 0 || cfg.DecreaseGrace < 0 {
		return nil, types.NewConfigError("new_waiter", "durations must be >= 0")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DecreaseGrace == 0 {
		cfg.DecreaseGrace = DefaultDecreaseGrace
	}
	return &CounterWaiter{counter: counter, path: path, target: target, cfg: cfg}, nil
}

// NewGoodFramesWaiter waits for frames good frames.
func NewGoodFramesWaiter(frames int64, cfg CounterWaiterConfig) (*CounterWaiter, error) {
	return NewCounterWaiter(CounterGoodFrames, float64(frames), cfg)
}

// NewPeriodGoodFramesWaiter waits for frames good frames in the current period.
func NewPeriodGoodFramesWaiter(frames int64, cfg CounterWaiterConfig) (*CounterWaiter, error) {
	return NewCounterWaiter(CounterPeriodGoodFrames, float64(frames), cfg)
}

// NewGoodUAHWaiter waits for uah micro-amp hours of good proton charge.
func NewGoodUAHWaiter(uah float64, cfg CounterWaiterConfig) (*CounterWaiter, error) {
	return NewCounterWaiter(CounterGoodUAH, uah, cfg)
}

// NewMEventsWaiter waits for mevents million neutron events.
func NewMEventsWaiter(mevents float64, cfg CounterWaiterConfig) (*CounterWaiter, error) {
	return NewCounterWaiter(CounterMEvents, mevents, cfg)
}

// Kind returns the counter name.
func (w *CounterWaiter) Kind() string { return string(w.counter) }

// Counter returns the counter waited on.
func (w *CounterWaiter) Counter() Counter { return w.counter }

// Target returns the required counter advance.
func (w *CounterWaiter) Target() float64 { return w.target }

// Wait polls the counter until it has advanced by the target from its value
// at entry. A decrease (e.g. the apparatus restarting a count) re-bases the
// baseline so progress already made is kept, and must be followed by an
// increase within DecreaseGrace.
func (w *CounterWaiter) Wait(ctx context.Context, app *apparatus.Apparatus) error {
	clk := app.Clock()
	start := clk.Now()

	baseline, err := app.ReadFloat(ctx, w.path)
	if err != nil {
		return w.readErr(ctx, err)
	}
	prev := baseline

	var (
		polls      int
		inGrace    bool
		graceStart time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait %s: %w", w.counter, ctx.Err())
		case <-clk.After(w.cfg.PollInterval):
		}

		cur, err := app.ReadFloat(ctx, w.path)
		if err != nil {
			return w.readErr(ctx, err)
		}
		polls++
		w.cfg.Metrics.IncWaiterPoll()

		switch {
		case cur < prev:
			progress := prev - baseline
			baseline = cur - progress
			w.cfg.Metrics.IncCounterDecrease()
			w.cfg.Logger.Warn("progress counter decreased", map[string]any{
				"counter":  string(w.counter),
				"previous": prev,
				"current":  cur,
				"progress": progress,
			})
			if !inGrace {
				inGrace = true
				graceStart = clk.Now()
			}
		case cur > prev:
			inGrace = false
		}
		prev = cur

		if cur-baseline >= w.target {
			w.cfg.Logger.Debug("wait complete", map[string]any{
				"counter": string(w.counter),
				"target":  w.target,
				"polls":   polls,
			})
			return nil
		}

		now := clk.Now()
		if inGrace && now.Sub(graceStart) >= w.cfg.DecreaseGrace {
			return types.NewTimeoutError("wait", "%s decreased and did not recover within %s", w.counter, w.cfg.DecreaseGrace)
		}
		if w.cfg.Timeout > 0 && now.Sub(start) >= w.cfg.Timeout {
			return types.NewTimeoutError("wait", "%s advanced %v of %v within %s", w.counter, cur-baseline, w.target, w.cfg.Timeout)
		}
	}
}

func (w *CounterWaiter) readErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("wait %s: %w", w.counter, ctxErr)
	}
	return fmt.Errorf("wait %s: read counter: %w", w.counter, err)
}

// ExtraReadables publishes the waited-on counter.
func (w *CounterWaiter) ExtraReadables(app *apparatus.Apparatus) []Readable {
	return []Readable{w.counter.signal(app)}
}

// TimeWaiter waits a fixed duration. It never touches the apparatus.
type TimeWaiter struct {
	duration time.Duration
}

// NewTimeWaiter creates a waiter sleeping d. d must be > 0.
func NewTimeWaiter(d time.Duration) (*TimeWaiter, error) {
	if d <= 0 {
		return nil, types.NewConfigError("new_waiter", "duration must be > 0, got %s", d)
	}
	return &TimeWaiter{duration: d}, nil
}

// Kind returns "time".
func (w *TimeWaiter) Kind() string { return "time" }

// Duration returns the wait duration.
func (w *TimeWaiter) Duration() time.Duration { return w.duration }

// Wait sleeps the configured duration or until ctx is done.
func (w *TimeWaiter) Wait(ctx context.Context, app *apparatus.Apparatus) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait time: %w", ctx.Err())
	case <-app.Clock().After(w.duration):
		return nil
	}
}

var (
	_ Waiter         = (*CounterWaiter)(nil)
	_ ExtraReadables = (*CounterWaiter)(nil)
	_ Waiter         = (*TimeWaiter)(nil)
)
