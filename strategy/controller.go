package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/tally/apparatus"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/telemetry"
	"github.com/pithecene-io/tally/types"
)

// DefaultStateTimeout bounds how long a controller waits for the apparatus
// to reach the run state a command should produce.
const DefaultStateTimeout = 10 * time.Second

// Controller kinds.
const (
	KindRunPerPoint    = "run_per_point"
	KindRunPerScan     = "run_per_scan"
	KindPeriodPerPoint = "period_per_point"
)

var countingStates = []types.RunState{types.RunStateRunning, types.RunStateWaiting, types.RunStateVetoing}

// ControllerConfig configures the run controllers.
type ControllerConfig struct {
	// SaveRun ends (saves) runs when true and aborts (discards) them when false.
	SaveRun bool
	// StateTimeout bounds each wait for a run state (default 10s).
	StateTimeout time.Duration
	// Logger is optional.
	Logger *log.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
}

func (c ControllerConfig) withDefaults() (ControllerConfig, error) {
	if c.StateTimeout < 0 {
		return c, types.NewConfigError("new_controller", "state timeout must be >= 0, got %s", c.StateTimeout)
	}
	if c.StateTimeout == 0 {
		c.StateTimeout = DefaultStateTimeout
	}
	return c, nil
}

// runControl is the run bookkeeping shared by the controllers: whether this
// controller opened the current run, and the run number it counted into.
type runControl struct {
	cfg ControllerConfig

	mu        sync.Mutex
	open      bool
	runNumber int64
}

func (r *runControl) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

func (r *runControl) setOpen(open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = open
}

func (r *runControl) lastRunNumber() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runNumber == 0 {
		return nil
	}
	return r.runNumber
}

// begin opens a run with start and waits for one of states.
func (r *runControl) begin(ctx context.Context, app *apparatus.Apparatus, op string, start func(context.Context) error, states ...types.RunState) error {
	state, err := app.RunState(ctx)
	if err != nil {
		return lifecycleErr(ctx, op, fmt.Errorf("read run state: %w", err))
	}
	if !state.IsIdle() {
		return types.NewLifecycleError(op, fmt.Errorf("a run is already active (state %s)", state))
	}

	if err := start(ctx); err != nil {
		return lifecycleErr(ctx, op, err)
	}
	r.setOpen(true)
	r.cfg.Metrics.IncRunBegun()

	if _, err := app.WaitForRunState(ctx, r.cfg.StateTimeout, states...); err != nil {
		return lifecycleErr(ctx, op, err)
	}

	n, err := app.RunNumber(ctx)
	if err != nil {
		return lifecycleErr(ctx, op, fmt.Errorf("read run number: %w", err))
	}
	r.mu.Lock()
	r.runNumber = n
	r.mu.Unlock()

	r.cfg.Logger.Info("run begun", map[string]any{"run_number": n})
	return nil
}

// end closes the run this controller opened, saving or discarding it.
// It is a no-op when no run is open.
func (r *runControl) end(ctx context.Context, app *apparatus.Apparatus) error {
	if !r.isOpen() {
		return nil
	}

	op, closeRun := "abort_run", app.AbortRun
	if r.cfg.SaveRun {
		op, closeRun = "end_run", app.EndRun
	}
	if err := closeRun(ctx); err != nil {
		return lifecycleErr(ctx, op, err)
	}
	if _, err := app.WaitForRunState(ctx, r.cfg.StateTimeout, types.RunStateIdle); err != nil {
		return lifecycleErr(ctx, op, err)
	}
	r.setOpen(false)

	if r.cfg.SaveRun {
		r.cfg.Metrics.IncRunEnded()
	} else {
		r.cfg.Metrics.IncRunAborted()
	}
	r.mu.Lock()
	n := r.runNumber
	r.mu.Unlock()
	r.cfg.Logger.Info("run closed", map[string]any{"run_number": n, "saved": r.cfg.SaveRun})
	return nil
}

func (r *runControl) runNumberReadable(app *apparatus.Apparatus) Readable {
	return NewFuncReadable(types.Descriptor{
		Name:   "run_number",
		Source: telemetry.PathRunNumber,
		Dtype:  types.DtypeInteger,
	}, app.Clock(), r.lastRunNumber)
}

// lifecycleErr classifies err as a lifecycle failure unless the caller's
// context ended, in which case the context error is surfaced.
func lifecycleErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(err, ctxErr) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return types.NewLifecycleError(op, err)
}

// RunPerPoint begins a run at the start of every point and ends or aborts it
// when the point stops counting.
type RunPerPoint struct {
	runControl
}

// NewRunPerPoint creates a RunPerPoint controller.
func NewRunPerPoint(cfg ControllerConfig) (*RunPerPoint, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &RunPerPoint{runControl{cfg: cfg}}, nil
}

// Kind returns "run_per_point".
func (c *RunPerPoint) Kind() string { return KindRunPerPoint }

// StartCounting begins a run. The apparatus must be idle.
func (c *RunPerPoint) StartCounting(ctx context.Context, app *apparatus.Apparatus) error {
	return c.begin(ctx, app, "begin_run", app.BeginRun, countingStates...)
}

// StopCounting ends or aborts the run opened by StartCounting.
func (c *RunPerPoint) StopCounting(ctx context.Context, app *apparatus.Apparatus) error {
	return c.end(ctx, app)
}

// Setup has nothing to prepare.
func (c *RunPerPoint) Setup(context.Context, *apparatus.Apparatus) error { return nil }

// Teardown closes a run left open by a failed or cancelled point.
func (c *RunPerPoint) Teardown(ctx context.Context, app *apparatus.Apparatus) error {
	if c.isOpen() {
		c.cfg.Logger.Warn("closing run left open by an interrupted point", nil)
	}
	return c.end(ctx, app)
}

// ExtraReadables publishes the run number each point counted into when runs are saved.
func (c *RunPerPoint) ExtraReadables(app *apparatus.Apparatus) []Readable {
	if !c.cfg.SaveRun {
		return nil
	}
	return []Readable{c.runNumberReadable(app)}
}

// RunPerScan begins one run before the first point and ends it after the last.
// Points themselves issue no run controls.
type RunPerScan struct {
	runControl
}

// NewRunPerScan creates a RunPerScan controller.
func NewRunPerScan(cfg ControllerConfig) (*RunPerScan, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &RunPerScan{runControl{cfg: cfg}}, nil
}

// Kind returns "run_per_scan".
func (c *RunPerScan) Kind() string { return KindRunPerScan }

// Setup begins the scan's run.
func (c *RunPerScan) Setup(ctx context.Context, app *apparatus.Apparatus) error {
	return c.begin(ctx, app, "begin_run", app.BeginRun, countingStates...)
}

// StartCounting does nothing: the run is already counting.
func (c *RunPerScan) StartCounting(context.Context, *apparatus.Apparatus) error { return nil }

// StopCounting does nothing: the run keeps counting between points.
func (c *RunPerScan) StopCounting(context.Context, *apparatus.Apparatus) error { return nil }

// Teardown ends or aborts the scan's run.
func (c *RunPerScan) Teardown(ctx context.Context, app *apparatus.Apparatus) error {
	return c.end(ctx, app)
}

// ExtraReadables publishes the scan's run number when the run is saved.
func (c *RunPerScan) ExtraReadables(app *apparatus.Apparatus) []Readable {
	if !c.cfg.SaveRun {
		return nil
	}
	return []Readable{c.runNumberReadable(app)}
}

// PeriodPerPoint counts each point into its own hardware period of a single
// run. The run begins paused in Setup; each point switches to the next period,
// waits for the period counters to clear, and resumes; stopping pauses again.
type PeriodPerPoint struct {
	runControl

	pmu    sync.Mutex
	period int
}

// NewPeriodPerPoint creates a PeriodPerPoint controller.
func NewPeriodPerPoint(cfg ControllerConfig) (*PeriodPerPoint, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &PeriodPerPoint{runControl: runControl{cfg: cfg}}, nil
}

// Kind returns "period_per_point".
func (c *PeriodPerPoint) Kind() string { return KindPeriodPerPoint }

// Setup begins a paused run.
func (c *PeriodPerPoint) Setup(ctx context.Context, app *apparatus.Apparatus) error {
	c.pmu.Lock()
	c.period = 0
	c.pmu.Unlock()
	begin := func(ctx context.Context) error { return app.BeginRunEx(ctx, apparatus.BeginPaused) }
	return c.begin(ctx, app, "begin_run_paused", begin, types.RunStatePaused)
}

// StartCounting advances to the next period and resumes counting.
func (c *PeriodPerPoint) StartCounting(ctx context.Context, app *apparatus.Apparatus) error {
	if !c.isOpen() {
		return types.NewLifecycleError("start_period", errors.New("no run open; Setup must run first"))
	}

	// The period number only advances once the apparatus reports the switch,
	// so a rejected or interrupted switch retries the same period.
	c.pmu.Lock()
	next := c.period + 1
	c.pmu.Unlock()

	if err := app.SetPeriod(ctx, next); err != nil {
		return lifecycleErr(ctx, "set_period", err)
	}
	isPeriod := func(v any) bool {
		n, err := telemetry.AsInt64(v)
		return err == nil && n == int64(next)
	}
	if _, err := app.WaitFor(ctx, telemetry.PathPeriod, c.cfg.StateTimeout, isPeriod); err != nil {
		return lifecycleErr(ctx, "set_period", err)
	}
	c.pmu.Lock()
	c.period = next
	c.pmu.Unlock()
	c.cfg.Metrics.IncPeriodAdvanced()
	isZero := func(v any) bool {
		n, err := telemetry.AsInt64(v)
		return err == nil && n == 0
	}
	for _, path := range []string{telemetry.PathPeriodGoodFrames, telemetry.PathPeriodRawFrames} {
		if _, err := app.WaitFor(ctx, path, c.cfg.StateTimeout, isZero); err != nil {
			return lifecycleErr(ctx, "set_period", fmt.Errorf("period %d counters not cleared: %w", next, err))
		}
	}

	if err := app.ResumeRun(ctx); err != nil {
		return lifecycleErr(ctx, "resume_run", err)
	}
	if _, err := app.WaitForRunState(ctx, c.cfg.StateTimeout, countingStates...); err != nil {
		return lifecycleErr(ctx, "resume_run", err)
	}
	c.cfg.Logger.Debug("period started", map[string]any{"period": next})
	return nil
}

// StopCounting pauses the run. It is a no-op when no run is open.
func (c *PeriodPerPoint) StopCounting(ctx context.Context, app *apparatus.Apparatus) error {
	if !c.isOpen() {
		return nil
	}
	if err := app.PauseRun(ctx); err != nil {
		return lifecycleErr(ctx, "pause_run", err)
	}
	if _, err := app.WaitForRunState(ctx, c.cfg.StateTimeout, types.RunStatePaused); err != nil {
		return lifecycleErr(ctx, "pause_run", err)
	}
	return nil
}

// Teardown ends or aborts the run.
func (c *PeriodPerPoint) Teardown(ctx context.Context, app *apparatus.Apparatus) error {
	return c.end(ctx, app)
}

// ExtraReadables publishes the period each point counted into.
func (c *PeriodPerPoint) ExtraReadables(app *apparatus.Apparatus) []Readable {
	period := NewFuncReadable(types.Descriptor{
		Name:   "period_num",
		Source: telemetry.PathPeriod,
		Dtype:  types.DtypeInteger,
	}, app.Clock(), func() any {
		c.pmu.Lock()
		defer c.pmu.Unlock()
		return int64(c.period)
	})
	readables := []Readable{period}
	if c.cfg.SaveRun {
		readables = append(readables, c.runNumberReadable(app))
	}
	return readables
}

var (
	_ Controller     = (*RunPerPoint)(nil)
	_ Stager         = (*RunPerPoint)(nil)
	_ ExtraReadables = (*RunPerPoint)(nil)
	_ Controller     = (*RunPerScan)(nil)
	_ Stager         = (*RunPerScan)(nil)
	_ ExtraReadables = (*RunPerScan)(nil)
	_ Controller     = (*PeriodPerPoint)(nil)
	_ Stager         = (*PeriodPerPoint)(nil)
	_ ExtraReadables = (*PeriodPerPoint)(nil)
)
