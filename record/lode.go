package record

import (
	"context"
	"fmt"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/tally/types"
)

// partitionKeys is the Hive layout of the point dataset.
var partitionKeys = []string{"instrument", "day", "scan_id"}

// NewDataset creates the point Dataset over factory.
// The write and read paths share it so codec and layout stay compatible.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// LodeRecorder is a Lode-backed Recorder.
type LodeRecorder struct {
	dataset lode.Dataset
	config  Config

	mu sync.Mutex
}

// NewLodeRecorder creates a recorder with filesystem storage under root.
func NewLodeRecorder(cfg Config, root string) (*LodeRecorder, error) {
	return NewLodeRecorderWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeRecorderWithFactory creates a recorder with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeRecorderWithFactory(cfg Config, factory lode.StoreFactory) (*LodeRecorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("recorder config: %w", err)
	}
	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeRecorder{dataset: ds, config: cfg}, nil
}

// WritePoint implements Recorder.
func (r *LodeRecorder) WritePoint(ctx context.Context, index int, readings map[string]types.Reading) error {
	return r.write(ctx, toPointRecordMap(index, readings, r.config))
}

// WriteSummary implements Recorder.
func (r *LodeRecorder) WriteSummary(ctx context.Context, summary Summary) error {
	return r.write(ctx, toSummaryRecordMap(summary, r.config))
}

func (r *LodeRecorder) write(ctx context.Context, record map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, fmt.Sprintf("%s/scan_id=%s", r.config.Dataset, r.config.ScanID))
	}
	return nil
}

// Close releases recorder resources.
func (r *LodeRecorder) Close() error {
	// Dataset needs no explicit close in the current Lode API.
	return nil
}

var _ Recorder = (*LodeRecorder)(nil)
