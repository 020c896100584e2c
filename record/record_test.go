package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/tally/metrics"
	"github.com/pithecene-io/tally/types"
)

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(scanID string) Config {
	return Config{
		Dataset:    DefaultDataset,
		Instrument: "larmor",
		Day:        DeriveDay(ts),
		ScanID:     scanID,
	}
}

// sharedFactory returns a StoreFactory that always returns store, so write
// and read datasets share in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func readings(v float64) map[string]types.Reading {
	return map[string]types.Reading{
		"intensity":        {Value: v, Timestamp: ts},
		"intensity_stddev": {Value: 0.5, Timestamp: ts},
		"det_integrals":    {Value: []float64{1, 2}, Timestamp: ts.Add(time.Second)},
	}
}

func TestDeriveDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	if got := DeriveDay(time.Date(2026, 3, 2, 5, 0, 0, 0, loc)); got != "2026-03-01" {
		t.Errorf("DeriveDay = %q, want 2026-03-01", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := testConfig("s-1").Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg := testConfig("")
	if err := cfg.Validate(); err == nil {
		t.Error("missing scan_id should fail validation")
	}
	if _, err := NewLodeRecorderWithFactory(cfg, lode.NewMemoryFactory()); err == nil {
		t.Error("NewLodeRecorderWithFactory should reject invalid config")
	}
}

func TestLodeRecorder_WriteAndQuery(t *testing.T) {
	ctx := t.Context()
	factory := sharedFactory(lode.NewMemory())

	rec, err := NewLodeRecorderWithFactory(testConfig("scan-1"), factory)
	if err != nil {
		t.Fatalf("NewLodeRecorderWithFactory: %v", err)
	}
	for i := range 3 {
		if err := rec.WritePoint(ctx, i, readings(float64(i))); err != nil {
			t.Fatalf("WritePoint %d: %v", i, err)
		}
	}
	if err := rec.WriteSummary(ctx, Summary{Points: 3, Completed: 3, Outcome: "success", StartedAt: ts, EndedAt: ts.Add(time.Minute)}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	// A second scan in the same dataset must not leak into the first.
	other, _ := NewLodeRecorderWithFactory(testConfig("scan-10"), factory)
	if err := other.WritePoint(ctx, 0, readings(99)); err != nil {
		t.Fatalf("WritePoint other: %v", err)
	}

	ds, err := NewDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	got, err := QueryScan(ctx, ds, "scan-1")
	if err != nil {
		t.Fatalf("QueryScan: %v", err)
	}
	if len(got.Points) != 3 {
		t.Fatalf("points = %d, want 3", len(got.Points))
	}
	for i, p := range got.Points {
		if recordIndex(p) != i {
			t.Errorf("point %d index = %v", i, p["index"])
		}
		vals, ok := p["readings"].(map[string]any)
		if !ok {
			t.Fatalf("readings type = %T", p["readings"])
		}
		if vals["intensity"] != float64(i) {
			t.Errorf("point %d intensity = %v, want %d", i, vals["intensity"], i)
		}
		if p["instrument"] != "larmor" || p["schema_version"] != types.RecordSchemaVersion {
			t.Errorf("point %d partition fields = %v/%v", i, p["instrument"], p["schema_version"])
		}
		if p["ts"] != ts.Add(time.Second).Format(time.RFC3339Nano) {
			t.Errorf("point %d ts = %v, want latest reading timestamp", i, p["ts"])
		}
	}
	if got.Summary == nil || got.Summary["outcome"] != "success" {
		t.Errorf("summary = %v", got.Summary)
	}
}

func TestQueryScan_NotFound(t *testing.T) {
	ds, err := NewDataset(DefaultDataset, lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	if _, err := QueryScan(t.Context(), ds, "missing"); err == nil {
		t.Fatal("QueryScan on empty dataset should fail")
	}
}

func TestLodeRecorder_FS(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewLodeRecorder(testConfig("scan-fs"), dir)
	if err != nil {
		t.Fatalf("NewLodeRecorder: %v", err)
	}
	if err := rec.WritePoint(t.Context(), 0, readings(1)); err != nil {
		t.Fatalf("WritePoint: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		t.Errorf("expected files under %s, got %v (err %v)", dir, entries, err)
	}
}

type failingRecorder struct{ StubRecorder }

func (f *failingRecorder) WritePoint(context.Context, int, map[string]types.Reading) error {
	return errors.New("disk full")
}

func TestInstrumentedRecorder_CountsOutcomes(t *testing.T) {
	ctx := t.Context()
	m := metrics.NewCollector(metrics.Dimensions{})

	ok := NewInstrumentedRecorder(NewStubRecorder(), m)
	_ = ok.WritePoint(ctx, 0, readings(1))
	_ = ok.WriteSummary(ctx, Summary{})

	bad := NewInstrumentedRecorder(&failingRecorder{}, m)
	if err := bad.WritePoint(ctx, 0, readings(1)); err == nil {
		t.Fatal("expected write failure")
	}

	s := m.Snapshot()
	if s.RecordWriteSuccess != 2 || s.RecordWriteFailure != 1 {
		t.Errorf("success/failure = %d/%d, want 2/1", s.RecordWriteSuccess, s.RecordWriteFailure)
	}
}

func TestStubRecorder(t *testing.T) {
	r := NewStubRecorder()
	_ = r.WritePoint(t.Context(), 4, readings(2))
	_ = r.Close()
	if len(r.Points) != 1 || r.Points[0].Index != 4 || !r.Closed {
		t.Errorf("stub state = %+v", r)
	}
	r.Err = errors.New("boom")
	if err := r.WriteSummary(t.Context(), Summary{}); err == nil {
		t.Error("stub should return configured error")
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct{ in, bucket, prefix string }{
		{"bucket", "bucket", ""},
		{"bucket/a/b", "bucket", "a/b"},
	}
	for _, tt := range tests {
		b, p := ParseS3Path(tt.in)
		if b != tt.bucket || p != tt.prefix {
			t.Errorf("ParseS3Path(%q) = %q, %q", tt.in, b, p)
		}
	}
	cfg := S3Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty bucket should fail validation")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "slow" }
func (timeoutErr) Timeout() bool { return true }

func TestWrapWriteError_Classifies(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{errors.New("open x: permission denied"), ErrPermissionDenied},
		{errors.New("write: no space left on device"), ErrDiskFull},
		{errors.New("NoSuchKey: gone"), ErrNotFound},
		{errors.New("SlowDown: please reduce rate"), ErrThrottled},
		{errors.New("dial tcp 10.0.0.1:443: connect: connection refused"), ErrNetwork},
		{fmt.Errorf("put: %w", timeoutErr{}), ErrTimeout},
		{errors.New("something odd"), ErrStorage},
	}
	for _, tt := range tests {
		err := WrapWriteError(tt.err, "tally/scan_id=x")
		if !errors.Is(err, tt.want) {
			t.Errorf("WrapWriteError(%q) = %v, want kind %v", tt.err, err, tt.want)
		}
		if !errors.Is(err, tt.err) {
			t.Errorf("WrapWriteError(%q) lost the cause", tt.err)
		}
	}
	if WrapWriteError(nil, "p") != nil {
		t.Error("nil error should stay nil")
	}
}
