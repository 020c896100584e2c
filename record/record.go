// Package record persists acquired points to a Lode dataset.
//
// Records are JSONL, Hive-partitioned by instrument, day, and scan_id. Each
// point is one record; a scan closes with one summary record.
package record

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/tally/types"
)

// DefaultDataset is the Lode dataset ID points are written to.
const DefaultDataset = "tally"

// DeriveDay computes the partition day from the scan start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds recorder partition configuration. All fields are required.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Instrument is the partition key for the instrument name.
	Instrument string
	// Day is the partition key derived from scan start (YYYY-MM-DD UTC).
	Day string
	// ScanID is the partition key for the scan identifier.
	ScanID string
}

// Validate checks that every partition key is present.
func (c Config) Validate() error {
	switch {
	case c.Dataset == "":
		return errors.New("dataset is required")
	case c.Instrument == "":
		return errors.New("instrument is required")
	case c.Day == "":
		return errors.New("day is required")
	case c.ScanID == "":
		return errors.New("scan_id is required")
	}
	return nil
}

// Summary is the closing record of a scan.
type Summary struct {
	Plan      string
	Points    int
	Completed int
	Outcome   string
	Message   string
	StartedAt time.Time
	EndedAt   time.Time
}

// Recorder persists points of one scan.
type Recorder interface {
	// WritePoint writes the readings of one point.
	WritePoint(ctx context.Context, index int, readings map[string]types.Reading) error

	// WriteSummary writes the scan summary. Called once, after the last point.
	WriteSummary(ctx context.Context, summary Summary) error

	// Close releases recorder resources.
	Close() error
}

// StubRecorder keeps writes in memory without persisting.
type StubRecorder struct {
	Points    []StubPoint
	Summaries []Summary
	Closed    bool
	// Err, if set, is returned from every write.
	Err error
}

// StubPoint is a recorded point write.
type StubPoint struct {
	Index    int
	Readings map[string]types.Reading
}

// NewStubRecorder creates a new stub recorder.
func NewStubRecorder() *StubRecorder {
	return &StubRecorder{}
}

// WritePoint implements Recorder.
func (r *StubRecorder) WritePoint(_ context.Context, index int, readings map[string]types.Reading) error {
	if r.Err != nil {
		return r.Err
	}
	r.Points = append(r.Points, StubPoint{Index: index, Readings: readings})
	return nil
}

// WriteSummary implements Recorder.
func (r *StubRecorder) WriteSummary(_ context.Context, summary Summary) error {
	if r.Err != nil {
		return r.Err
	}
	r.Summaries = append(r.Summaries, summary)
	return nil
}

// Close implements Recorder.
func (r *StubRecorder) Close() error {
	r.Closed = true
	return nil
}

var _ Recorder = (*StubRecorder)(nil)
