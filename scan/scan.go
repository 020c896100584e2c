// Package scan runs a fixed-length acquisition scan against one detector:
// stage, trigger and read each point, record it, and always unstage.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/tally/clock"
	"github.com/pithecene-io/tally/log"
	"github.com/pithecene-io/tally/record"
	"github.com/pithecene-io/tally/types"
)

// cleanupTimeout bounds Unstage and the summary write after the scan ends.
const cleanupTimeout = 30 * time.Second

// Detector is the acquisition surface the runner drives.
// *dae.Dae satisfies it.
type Detector interface {
	Stage(ctx context.Context) error
	Unstage(ctx context.Context) error
	Trigger(ctx context.Context) error
	Read(ctx context.Context) (map[string]types.Reading, error)
}

// Config configures a scan.
type Config struct {
	// ScanID identifies the scan. Generated if empty.
	ScanID string
	// Instrument names the instrument, for logs and records.
	Instrument string
	// Plan is an optional free-form plan label.
	Plan string
	// Points is the number of points to acquire (required, > 0).
	Points int
	// Detector is the detector to acquire with (required).
	Detector Detector
	// Recorder persists each point. Optional.
	Recorder record.Recorder
	// BeforePoint runs before each trigger, for example to move a sample.
	// Optional; an error ends the scan.
	BeforePoint func(ctx context.Context, index int) error
	// Clock stamps the result (default: real time).
	Clock clock.Clock
	// Logger is optional. If nil, one is built from the scan context.
	Logger *log.Logger
}

// PointResult is the readings of one acquired point.
type PointResult struct {
	Index    int                      `json:"index" yaml:"index"`
	Readings map[string]types.Reading `json:"readings" yaml:"readings"`
}

// Result is the result of a scan.
type Result struct {
	ScanID     string        `json:"scan_id" yaml:"scan_id"`
	Instrument string        `json:"instrument" yaml:"instrument"`
	Plan       string        `json:"plan,omitempty" yaml:"plan,omitempty"`
	Points     []PointResult `json:"points" yaml:"points"`
	Requested  int           `json:"requested" yaml:"requested"`
	Outcome    *Outcome      `json:"outcome" yaml:"outcome"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Completed returns the number of points acquired.
func (r *Result) Completed() int {
	return len(r.Points)
}

// Runner runs one scan.
type Runner struct {
	config    Config
	logger    *log.Logger
	startTime time.Time
}

// NewRunner validates cfg and creates a runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Detector == nil {
		return nil, types.NewConfigError("new_scan", "detector is required")
	}
	if cfg.Points <= 0 {
		return nil, types.NewConfigError("new_scan", "points must be > 0, got %d", cfg.Points)
	}
	if cfg.ScanID == "" {
		cfg.ScanID = uuid.NewString()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(log.ScanContext{
			ScanID:     cfg.ScanID,
			Instrument: cfg.Instrument,
			Plan:       cfg.Plan,
		})
	}
	return &Runner{config: cfg, logger: logger.Named("scan")}, nil
}

// ScanID returns the scan identifier.
func (r *Runner) ScanID() string {
	return r.config.ScanID
}

// Execute runs the scan end-to-end and always returns a result; failures are
// classified in Result.Outcome.
//
// Execution flow:
//  1. Stage the detector
//  2. For each point: BeforePoint, Trigger, Read, record
//  3. Unstage (always, detached from cancellation)
//  4. Write the summary record and close the recorder
//  5. Determine outcome
func (r *Runner) Execute(ctx context.Context) *Result {
	r.startTime = r.config.Clock.Now()
	r.logger.Info("starting scan", map[string]any{"points": r.config.Points})

	var points []PointResult
	err := r.config.Detector.Stage(ctx)
	if err == nil {
		points, err = r.acquire(ctx)
	} else {
		err = fmt.Errorf("stage: %w", err)
	}
	ctxErr := ctx.Err()

	// Unstage runs whether or not Stage succeeded: a partial stage may have
	// opened a run.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if uerr := r.config.Detector.Unstage(cleanupCtx); uerr != nil {
		r.logger.Error("unstage failed", map[string]any{"error": uerr.Error()})
		err = errors.Join(err, fmt.Errorf("unstage: %w", uerr))
	}

	outcome := DetermineOutcome(err, ctxErr, len(points), r.config.Points)
	result := r.buildResult(outcome, points)
	r.finishRecording(cleanupCtx, result)

	fields := map[string]any{
		"status":    string(outcome.Status),
		"completed": len(points),
		"duration":  result.Duration.String(),
	}
	if outcome.Kind != "" {
		fields["kind"] = outcome.Kind
	}
	if outcome.Status == StatusSuccess {
		r.logger.Info("scan complete", fields)
	} else {
		fields["error"] = outcome.Message
		r.logger.Error("scan ended early", fields)
	}
	return result
}

func (r *Runner) acquire(ctx context.Context) ([]PointResult, error) {
	points := make([]PointResult, 0, r.config.Points)
	for i := range r.config.Points {
		if err := ctx.Err(); err != nil {
			return points, err
		}
		if r.config.BeforePoint != nil {
			if err := r.config.BeforePoint(ctx, i); err != nil {
				return points, fmt.Errorf("before point %d: %w", i, err)
			}
		}
		if err := r.config.Detector.Trigger(ctx); err != nil {
			return points, err
		}
		readings, err := r.config.Detector.Read(ctx)
		if err != nil {
			return points, fmt.Errorf("read point %d: %w", i, err)
		}
		if r.config.Recorder != nil {
			if err := r.config.Recorder.WritePoint(ctx, i, readings); err != nil {
				return points, fmt.Errorf("record point %d: %w", i, err)
			}
		}
		points = append(points, PointResult{Index: i, Readings: readings})
	}
	return points, nil
}

// finishRecording writes the summary (best effort) and closes the recorder.
func (r *Runner) finishRecording(ctx context.Context, result *Result) {
	rec := r.config.Recorder
	if rec == nil {
		return
	}
	summary := record.Summary{
		Plan:      r.config.Plan,
		Points:    r.config.Points,
		Completed: result.Completed(),
		Outcome:   string(result.Outcome.Status),
		StartedAt: result.StartedAt,
		EndedAt:   result.StartedAt.Add(result.Duration),
	}
	if result.Outcome.Status != StatusSuccess {
		summary.Message = result.Outcome.Message
	}
	if err := rec.WriteSummary(ctx, summary); err != nil {
		r.logger.Warn("summary write failed (best effort)", map[string]any{"error": err.Error()})
	}
	if err := rec.Close(); err != nil {
		r.logger.Warn("recorder close failed", map[string]any{"error": err.Error()})
	}
}

func (r *Runner) buildResult(outcome *Outcome, points []PointResult) *Result {
	return &Result{
		ScanID:     r.config.ScanID,
		Instrument: r.config.Instrument,
		Plan:       r.config.Plan,
		Points:     points,
		Requested:  r.config.Points,
		Outcome:    outcome,
		StartedAt:  r.startTime,
		Duration:   r.config.Clock.Now().Sub(r.startTime),
	}
}
