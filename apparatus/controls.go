package apparatus

import (
	"context"

	"github.com/pithecene-io/tally/telemetry"
)

// BeginRunExFlags are the option bits of an extended begin.
type BeginRunExFlags int64

// Extended begin options.
const (
	BeginPaused  BeginRunExFlags = BeginRunExFlags(telemetry.BeginRunExPaused)
	BeginDelayed BeginRunExFlags = BeginRunExFlags(telemetry.BeginRunExDelayed)
)

// BeginRun starts a new run in the counting state.
func (a *Apparatus) BeginRun(ctx context.Context) error {
	return a.port.Trigger(ctx, telemetry.PathBeginRun)
}

// BeginRunEx starts a new run with option flags.
func (a *Apparatus) BeginRunEx(ctx context.Context, flags BeginRunExFlags) error {
	return a.port.Write(ctx, telemetry.PathBeginRunEx, int64(flags), true)
}

// EndRun ends and saves the open run.
func (a *Apparatus) EndRun(ctx context.Context) error {
	return a.port.Trigger(ctx, telemetry.PathEndRun)
}

// AbortRun ends the open run, discarding its data.
func (a *Apparatus) AbortRun(ctx context.Context) error {
	return a.port.Trigger(ctx, telemetry.PathAbortRun)
}

// PauseRun stops counting without closing the run.
func (a *Apparatus) PauseRun(ctx context.Context) error {
	return a.port.Trigger(ctx, telemetry.PathPauseRun)
}

// ResumeRun resumes counting in a paused run.
func (a *Apparatus) ResumeRun(ctx context.Context) error {
	return a.port.Trigger(ctx, telemetry.PathResumeRun)
}
