package record

import (
	"context"

	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/types"
)

// InstrumentedRecorder wraps a Recorder and counts write outcomes on the
// metrics collector.
type InstrumentedRecorder struct {
	inner     Recorder
	collector *metrics.Collector
}

// NewInstrumentedRecorder wraps a recorder with metrics instrumentation.
func NewInstrumentedRecorder(inner Recorder, collector *metrics.Collector) *InstrumentedRecorder {
	return &InstrumentedRecorder{inner: inner, collector: collector}
}

// WritePoint delegates to the inner recorder and records success or failure.
func (r *InstrumentedRecorder) WritePoint(ctx context.Context, index int, readings map[string]types.Reading) error {
	return r.count(r.inner.WritePoint(ctx, index, readings))
}

// WriteSummary delegates to the inner recorder and records success or failure.
func (r *InstrumentedRecorder) WriteSummary(ctx context.Context, summary Summary) error {
	return r.count(r.inner.WriteSummary(ctx, summary))
}

func (r *InstrumentedRecorder) count(err error) error {
	if err != nil {
		r.collector.IncRecordWriteFailure()
	} else {
		r.collector.IncRecordWriteSuccess()
	}
	return err
}

// Close delegates to the inner recorder.
func (r *InstrumentedRecorder) Close() error {
	return r.inner.Close()
}

var _ Recorder = (*InstrumentedRecorder)(nil)
