// Package types defines core domain types for the tally acquisition engine.
//
//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// RunState is the run state reported by the apparatus.
// The apparatus owns transitions; the engine only observes and commands.
type RunState string

// Run states as reported on the RUNSTATE signal.
const (
	// RunStateIdle is reported by the apparatus as SETUP: no run is open.
	RunStateIdle       RunState = "SETUP"
	RunStateRunning    RunState = "RUNNING"
	RunStatePaused     RunState = "PAUSED"
	RunStateAborting   RunState = "ABORTING"
	RunStateEnding     RunState = "ENDING"
	RunStateWaiting    RunState = "WAITING"
	RunStateVetoing    RunState = "VETOING"
	RunStateBeginning  RunState = "BEGINNING"
	RunStatePausing    RunState = "PAUSING"
	RunStateResuming   RunState = "RESUMING"
	RunStateSaving     RunState = "SAVING"
	RunStateStoring    RunState = "STORING"
	RunStateUpdating   RunState = "UPDATING"
	RunStateChanging   RunState = "CHANGING"
	RunStateProcessing RunState = "PROCESSING"
)

var knownRunStates = map[RunState]bool{
	RunStateIdle:       true,
	RunStateRunning:    true,
	RunStatePaused:     true,
	RunStateAborting:   true,
	RunStateEnding:     true,
	RunStateWaiting:    true,
	RunStateVetoing:    true,
	RunStateBeginning:  true,
	RunStatePausing:    true,
	RunStateResuming:   true,
	RunStateSaving:     true,
	RunStateStoring:    true,
	RunStateUpdating:   true,
	RunStateChanging:   true,
	RunStateProcessing: true,
}

// ParseRunState validates a raw RUNSTATE value.
func ParseRunState(s string) (RunState, error) {
	rs := RunState(s)
	if !knownRunStates[rs] {
		return "", fmt.Errorf("unknown run state %q", s)
	}
	return rs, nil
}

// IsIdle reports whether no run is open.
func (r RunState) IsIdle() bool {
	return r == RunStateIdle
}

// IsCounting reports whether the apparatus is accumulating data.
// Waiting and vetoing are counting states whose frames are currently vetoed.
func (r RunState) IsCounting() bool {
	return r == RunStateRunning || r == RunStateWaiting || r == RunStateVetoing
}

// IsOpen reports whether a run is open, counting or not.
func (r RunState) IsOpen() bool {
	return r.IsCounting() || r == RunStatePaused
}

func (r RunState) String() string {
	return string(r)
}
