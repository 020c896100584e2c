package scan

import (
	"fmt"

	"github.com/pithecene-io/tally/types"
)

// Status is the terminal status of a scan.
type Status string

// Scan statuses.
const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Outcome classifies how a scan ended.
type Outcome struct {
	Status Status `json:"status" yaml:"status"`
	// Kind is the error classification of a failed or canceled scan
	// (see types.ErrorKind). Empty on success.
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message string `json:"message" yaml:"message"`
	// Err is the error that ended the scan, if any.
	Err error `json:"-" yaml:"-"`
}

// DetermineOutcome classifies the error that ended a scan. ctxErr is the
// scan context's own error: only a cancelled or expired scan is reported as
// canceled. Deadlines internal to an operation (a state wait timing out)
// keep their error kind.
//
// Mapping:
//   - nil: success
//   - scan context done: canceled
//   - anything else: failed, with the error kind
func DetermineOutcome(err, ctxErr error, completed, points int) *Outcome {
	switch {
	case err == nil:
		return &Outcome{
			Status:  StatusSuccess,
			Message: fmt.Sprintf("%d of %d points acquired", completed, points),
		}
	case ctxErr != nil:
		return &Outcome{
			Status:  StatusCanceled,
			Kind:    types.ErrorKind(ctxErr),
			Message: fmt.Sprintf("canceled after %d of %d points: %v", completed, points, err),
			Err:     err,
		}
	default:
		return &Outcome{
			Status:  StatusFailed,
			Kind:    types.ErrorKind(err),
			Message: fmt.Sprintf("failed after %d of %d points: %v", completed, points, err),
			Err:     err,
		}
	}
}
