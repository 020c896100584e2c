package record

import (
	"maps"
	"slices"
	"time"

	"github.com/pithecene-io/tally/types"
)

// RecordKind discriminator values.
const (
	RecordKindPoint   = "point"
	RecordKindSummary = "summary"
)

// toPointRecordMap converts one point's readings to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toPointRecordMap(index int, readings map[string]types.Reading, cfg Config) map[string]any {
	values := make(map[string]any, len(readings))
	var ts time.Time
	for _, name := range slices.Sorted(maps.Keys(readings)) {
		r := readings[name]
		values[name] = r.Value
		if r.Timestamp.After(ts) {
			ts = r.Timestamp
		}
	}
	return map[string]any{
		"record_kind":    RecordKindPoint,
		"schema_version": types.RecordSchemaVersion,
		"index":          index,
		"ts":             ts.UTC().Format(time.RFC3339Nano),
		"readings":       values,
		"instrument":     cfg.Instrument,
		"day":            cfg.Day,
		"scan_id":        cfg.ScanID,
	}
}

func toSummaryRecordMap(s Summary, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind":    RecordKindSummary,
		"schema_version": types.RecordSchemaVersion,
		"points":         s.Points,
		"completed":      s.Completed,
		"outcome":        s.Outcome,
		"started_at":     s.StartedAt.UTC().Format(time.RFC3339Nano),
		"ended_at":       s.EndedAt.UTC().Format(time.RFC3339Nano),
		"instrument":     cfg.Instrument,
		"day":            cfg.Day,
		"scan_id":        cfg.ScanID,
	}
	if s.Plan != "" {
		m["plan"] = s.Plan
	}
	if s.Message != "" {
		m["message"] = s.Message
	}
	return m
}
