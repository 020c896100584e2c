// Package strategy defines the pluggable acquisition strategies composed by a
// DAE orchestrator.
//
// A point is acquired by three collaborating strategies:
//   - Controller decides when counting starts and stops
//   - Waiter decides when a point has counted enough
//   - Reducer turns the point's telemetry snapshot into an Observable
//
// Any strategy may additionally publish readables by implementing
// ExtraReadables; controllers may hook the scan boundary by implementing Stager.
package strategy

import (
	"context"
	"fmt"

	"github.com/pithecene-io/tally/apparatus"
	"github.com/pithecene-io/tally/types"
)

// Controller starts and stops counting around each point.
type Controller interface {
	// StartCounting brings the apparatus into a counting state.
	StartCounting(ctx context.Context, app *apparatus.Apparatus) error
	// StopCounting leaves the counting state. It must be a no-op when
	// the controller has nothing open.
	StopCounting(ctx context.Context, app *apparatus.Apparatus) error
}

// Stager is implemented by controllers with pre-scan and post-scan work.
type Stager interface {
	// Setup runs once before the first point.
	Setup(ctx context.Context, app *apparatus.Apparatus) error
	// Teardown runs once after the last point, including after a failed or
	// cancelled point. It must close anything Setup or a point left open.
	Teardown(ctx context.Context, app *apparatus.Apparatus) error
}

// Waiter blocks until the current point has counted enough.
type Waiter interface {
	Wait(ctx context.Context, app *apparatus.Apparatus) error
}

// Reducer turns one point snapshot into an Observable.
type Reducer interface {
	// Request declares the telemetry Reduce consumes.
	Request() types.SnapshotRequest
	// Reduce computes the observable. It must not retain or mutate point.
	Reduce(point *types.Point) (types.Observable, error)
	// Channels describes the Observable.Metadata entries Reduce emits.
	Channels() []types.Descriptor
}

// Readable is a named value published with each point.
type Readable interface {
	Name() string
	Describe() types.Descriptor
	Read(ctx context.Context) (types.Reading, error)
}

// ExtraReadables is implemented by strategies that publish readables of their own.
type ExtraReadables interface {
	ExtraReadables(app *apparatus.Apparatus) []Readable
}

// Kinded is implemented by strategies that report a stable kind name.
type Kinded interface {
	Kind() string
}

// KindOf returns the kind name of a strategy, falling back to its Go type.
func KindOf(s any) string {
	if k, ok := s.(Kinded); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", s)
}

// CheckStrategies verifies each argument implements its strategy interface.
// Used where strategies arrive untyped (e.g. from a registry).
func CheckStrategies(controller, waiter, reducer any) error {
	if _, ok := controller.(Controller); !ok {
		return types.NewConfigError("check_strategies", "controller %T does not implement Controller", controller)
	}
	if _, ok := waiter.(Waiter); !ok {
		return types.NewConfigError("check_strategies", "waiter %T does not implement Waiter", waiter)
	}
	if _, ok := reducer.(Reducer); !ok {
		return types.NewConfigError("check_strategies", "reducer %T does not implement Reducer", reducer)
	}
	return nil
}
