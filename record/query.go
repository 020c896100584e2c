package record

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrScanNotFound is returned when no records of a scan exist in the dataset.
var ErrScanNotFound = errors.New("scan not found")

// ScanRecords are the stored records of one scan.
type ScanRecords struct {
	// Points are ordered by index. A rewritten index keeps the latest record.
	Points []map[string]any `json:"points" yaml:"points"`
	// Summary is nil if the scan never wrote one.
	Summary map[string]any `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// QueryScan reads every record of scanID from ds.
func QueryScan(ctx context.Context, ds lode.Dataset, scanID string) (*ScanRecords, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	points := make(map[int]map[string]any)
	out := &ScanRecords{}
	found := false
	for _, snap := range snapshots {
		if !snapshotHasPartition(snap, "scan_id", scanID) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			rec, ok := item.(map[string]any)
			if !ok || rec["scan_id"] != scanID {
				continue
			}
			found = true
			switch rec["record_kind"] {
			case RecordKindPoint:
				points[recordIndex(rec)] = rec
			case RecordKindSummary:
				out.Summary = rec
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}

	for _, rec := range points {
		out.Points = append(out.Points, rec)
	}
	slices.SortFunc(out.Points, func(a, b map[string]any) int {
		return cmp.Compare(recordIndex(a), recordIndex(b))
	})
	return out, nil
}

// recordIndex reads the point index; JSON decoding yields float64.
func recordIndex(rec map[string]any) int {
	switch n := rec["index"].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return -1
	}
}

// snapshotHasPartition reports whether any file of snap lies in the exact
// key=value Hive partition. Matching whole path segments avoids scan-1
// matching scan-10.
func snapshotHasPartition(snap *lode.DatasetSnapshot, key, value string) bool {
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		if slices.Contains(strings.Split(f.Path, "/"), segment) {
			return true
		}
	}
	return false
}
