// Package dae composes one Controller, Waiter, and Reducer into a detector the
// scan engine triggers once per point.
//
// A trigger runs the acquisition state machine:
//
//	IDLE -> TRIGGERED -> COUNTING -> SETTLING -> REDUCING -> DONE
//
// Any failure moves to ERROR and is returned; nothing is retried. The result
// set of the last successful trigger is cached for Read.
package dae

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/tally/apparatus"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/strategy"
	"github.com/pithecene-io/tally/types"
)

// Default channel names of the reduced observable.
const (
	DefaultValueName       = "intensity"
	DefaultUncertaintyName = "intensity_stddev"
)

var (
	// ErrTriggerInProgress is returned when Trigger is called while another
	// trigger on the same Dae has not returned.
	ErrTriggerInProgress = errors.New("trigger already in progress")
	// ErrNoResult is returned by Read before a trigger has succeeded.
	ErrNoResult = errors.New("no acquisition result")
)

// State is the acquisition state of a Dae.
type State int32

// Acquisition states.
const (
	StateIdle State = iota
	StateTriggered
	StateCounting
	StateSettling
	StateReducing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTriggered:
		return "triggered"
	case StateCounting:
		return "counting"
	case StateSettling:
		return "settling"
	case StateReducing:
		return "reducing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures a Dae. The strategy composition is fixed at New.
type Config struct {
	// Name identifies the detector in logs (default: "dae").
	Name string
	// Apparatus is the DAE the strategies act on (required).
	Apparatus *apparatus.Apparatus
	// Controller starts and stops counting (required).
	Controller strategy.Controller
	// Waiter decides when a point is done (required).
	Waiter strategy.Waiter
	// Reducer computes the observable (required).
	Reducer strategy.Reducer
	// ValueName is the channel name of the observable value (default: intensity).
	ValueName string
	// UncertaintyName is the channel name of its uncertainty (default: intensity_stddev).
	UncertaintyName string
	// Logger is optional.
	Logger *log.Logger
	// Collector is the metrics collector. If nil, no metrics are recorded.
	Collector *metrics.Collector
}

// Dae is the acquisition orchestrator.
// Independent Dae values share nothing; a single Dae runs one trigger at a time.
type Dae struct {
	config      Config
	logger      *log.Logger
	extras      []strategy.Readable
	descriptors map[string]types.Descriptor

	state atomic.Int32
	busy  atomic.Bool

	mu     sync.Mutex
	points int
	result map[string]types.Reading
}

// New validates the composition and creates a Dae.
// Readables contributed by strategies implementing strategy.ExtraReadables are
// discovered here; a channel name published twice is a configuration error.
func New(cfg Config) (*Dae, error) {
	switch {
	case cfg.Apparatus == nil:
		return nil, types.NewConfigError("new_dae", "apparatus is required")
	case cfg.Controller == nil:
		return nil, types.NewConfigError("new_dae", "controller is required")
	case cfg.Waiter == nil:
		return nil, types.NewConfigError("new_dae", "waiter is required")
	case cfg.Reducer == nil:
		return nil, types.NewConfigError("new_dae", "reducer is required")
	}
	if cfg.Name == "" {
		cfg.Name = "dae"
	}
	if cfg.ValueName == "" {
		cfg.ValueName = DefaultValueName
	}
	if cfg.UncertaintyName == "" {
		cfg.UncertaintyName = DefaultUncertaintyName
	}

	d := &Dae{
		config:      cfg,
		logger:      cfg.Logger.Named(cfg.Name),
		descriptors: make(map[string]types.Descriptor),
	}

	owners := make(map[string]string)
	add := func(desc types.Descriptor, owner string) error {
		if prev, ok := owners[desc.Name]; ok {
			return types.NewConfigError("new_dae", "channel %q published by both %s and %s", desc.Name, prev, owner)
		}
		owners[desc.Name] = owner
		d.descriptors[desc.Name] = desc
		return nil
	}

	reducerKind := strategy.KindOf(cfg.Reducer)
	observable := []types.Descriptor{
		{Name: cfg.ValueName, Source: "reducer", Dtype: types.DtypeNumber, Precision: types.Precision(4)},
		{Name: cfg.UncertaintyName, Source: "reducer", Dtype: types.DtypeNumber, Precision: types.Precision(4)},
	}
	for _, desc := range append(observable, cfg.Reducer.Channels()...) {
		if err := add(desc, "reducer "+reducerKind); err != nil {
			return nil, err
		}
	}

	for _, s := range []any{cfg.Controller, cfg.Waiter, cfg.Reducer} {
		er, ok := s.(strategy.ExtraReadables)
		if !ok {
			continue
		}
		for _, r := range er.ExtraReadables(cfg.Apparatus) {
			if err := add(r.Describe(), strategy.KindOf(s)); err != nil {
				return nil, err
			}
			d.extras = append(d.extras, r)
		}
	}

	return d, nil
}

// State returns the current acquisition state.
func (d *Dae) State() State {
	return State(d.state.Load())
}

func (d *Dae) setState(s State) {
	d.state.Store(int32(s))
}

// Describe returns the descriptor of every published channel, keyed by name.
func (d *Dae) Describe() map[string]types.Descriptor {
	return maps.Clone(d.descriptors)
}

// Channels returns the published channel names, sorted.
func (d *Dae) Channels() []string {
	return slices.Sorted(maps.Keys(d.descriptors))
}

// Stage runs the controller's pre-scan hook, if it has one.
func (d *Dae) Stage(ctx context.Context) error {
	s, ok := d.config.Controller.(strategy.Stager)
	if !ok {
		return nil
	}
	if err := s.Setup(ctx, d.config.Apparatus); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	return nil
}

// Unstage runs the controller's post-scan hook, if it has one.
func (d *Dae) Unstage(ctx context.Context) error {
	s, ok := d.config.Controller.(strategy.Stager)
	if !ok {
		return nil
	}
	if err := s.Teardown(ctx, d.config.Apparatus); err != nil {
		return fmt.Errorf("unstage: %w", err)
	}
	return nil
}

// Read returns the result set of the last successful trigger.
func (d *Dae) Read(_ context.Context) (map[string]types.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.result == nil {
		return nil, ErrNoResult
	}
	return maps.Clone(d.result), nil
}
