package dae

import (
	"context"
	"fmt"

	"github.com/pithecene-io/tally/types"
)

// Trigger acquires one point.
//
// Execution flow:
//  1. Controller.StartCounting (TRIGGERED -> COUNTING)
//  2. Waiter.Wait (COUNTING -> SETTLING)
//  3. Controller.StopCounting (SETTLING -> REDUCING)
//  4. Snapshot the reducer's telemetry once, reduce, read extra readables
//  5. Cache the result set (DONE)
//
// A failure at any step moves to ERROR and returns the error without further
// steps. A cancelled trigger does not stop counting; the controller's
// Teardown closes whatever the point left open.
func (d *Dae) Trigger(ctx context.Context) error {
	if !d.busy.CompareAndSwap(false, true) {
		return ErrTriggerInProgress
	}
	defer d.busy.Store(false)

	d.mu.Lock()
	index := d.points
	d.points++
	d.result = nil
	d.mu.Unlock()

	d.setState(StateTriggered)
	d.config.Collector.IncPointTriggered()

	result, err := d.acquire(ctx, index)
	if err != nil {
		d.setState(StateError)
		kind := types.ErrorKind(err)
		d.config.Collector.IncPointFailed(kind)
		d.logger.Error("point failed", map[string]any{
			"point": index,
			"kind":  kind,
			"error": err.Error(),
		})
		return fmt.Errorf("point %d: %w", index, err)
	}

	d.mu.Lock()
	d.result = result
	d.mu.Unlock()

	d.setState(StateDone)
	d.config.Collector.IncPointCompleted()
	return nil
}

func (d *Dae) acquire(ctx context.Context, index int) (map[string]types.Reading, error) {
	app := d.config.Apparatus
	clk := app.Clock()
	start := clk.Now()

	if err := d.config.Controller.StartCounting(ctx, app); err != nil {
		return nil, fmt.Errorf("start counting: %w", err)
	}
	d.setState(StateCounting)

	if err := d.config.Waiter.Wait(ctx, app); err != nil {
		return nil, err
	}
	d.setState(StateSettling)

	if err := d.config.Controller.StopCounting(ctx, app); err != nil {
		return nil, fmt.Errorf("stop counting: %w", err)
	}
	d.setState(StateReducing)

	point, err := app.Snapshot(ctx, d.config.Reducer.Request())
	if err != nil {
		return nil, err
	}
	point.Index = index
	point.Elapsed = clk.Now().Sub(start)

	obs, err := d.config.Reducer.Reduce(point)
	if err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, types.NewInvalidPointError("reduce", "%v", err)
	}

	now := clk.Now()
	result := make(map[string]types.Reading, len(d.descriptors))
	result[d.config.ValueName] = types.Reading{Value: obs.Value, Timestamp: now}
	result[d.config.UncertaintyName] = types.Reading{Value: obs.Uncertainty, Timestamp: now}
	for k, v := range obs.Metadata {
		result[k] = types.Reading{Value: v, Timestamp: now}
	}
	for _, r := range d.extras {
		reading, err := r.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.Name(), err)
		}
		result[r.Name()] = reading
	}

	d.logger.Info("point complete", map[string]any{
		"point":       index,
		"value":       obs.Value,
		"uncertainty": obs.Uncertainty,
		"good_frames": point.GoodFrames,
		"elapsed":     point.Elapsed.String(),
	})
	return result, nil
}
