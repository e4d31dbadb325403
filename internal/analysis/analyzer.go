// Package analysis runs the complete per-segment pipeline over a recording,
// persists the result and serves the labelling and scatter views built on it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/chrissnell/signallab/internal/baseline"
	"github.com/chrissnell/signallab/internal/higuchi"
	"github.com/chrissnell/signallab/internal/labels"
	"github.com/chrissnell/signallab/internal/log"
	"github.com/chrissnell/signallab/internal/metrics"
	"github.com/chrissnell/signallab/internal/scatter"
	"github.com/chrissnell/signallab/internal/stats"
	"github.com/chrissnell/signallab/internal/storage"
	"github.com/chrissnell/signallab/pkg/recording"
)

var (
	// ErrInvalidRecording wraps every input validation failure
	ErrInvalidRecording = errors.New("invalid recording")

	// ErrNoStore is returned by run operations when the Analyzer has no store
	ErrNoStore = errors.New("no result store configured")
)

// Summary describes an analysis at a glance
type Summary struct {
	NumSegments      int     `json:"num_segments" msgpack:"num_segments"`
	LockIndex        int     `json:"lock_index" msgpack:"lock_index"`
	RejectedSegments int     `json:"rejected_segments" msgpack:"rejected_segments"`
	DurationSeconds  float64 `json:"duration_seconds" msgpack:"duration_seconds"`
}

// Result is the output of one analysis
type Result struct {
	ID          uuid.UUID            `json:"id" msgpack:"id"`
	Name        string               `json:"name" msgpack:"name"`
	CreatedAt   time.Time            `json:"created_at" msgpack:"created_at"`
	Combined    *stats.CombinedStats `json:"combined" msgpack:"combined"`
	Higuchi     []higuchi.Row        `json:"higuchi" msgpack:"higuchi"`
	HiguchiMean []float64            `json:"higuchi_mean" msgpack:"higuchi_mean"`
	Labels      []int                `json:"labels" msgpack:"labels"`
	Summary     Summary              `json:"summary" msgpack:"summary"`
}

// Analyzer runs analyses and manages their stored results
type Analyzer struct {
	params    Params
	store     storage.Store
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	pool      *ants.Pool
	estimator *higuchi.Estimator
	locks     runLocks
}

// NewAnalyzer creates an Analyzer. store and m may be nil; without a store
// results are returned but not persisted.
func NewAnalyzer(p Params, store storage.Store, m *metrics.Metrics, logger *zap.SugaredLogger) (*Analyzer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GetSugaredLogger()
	}

	a := &Analyzer{
		params:  p,
		store:   store,
		metrics: m,
		logger:  logger,
	}

	if p.Higuchi.Workers > 1 {
		pool, err := ants.NewPool(p.Higuchi.Workers)
		if err != nil {
			return nil, fmt.Errorf("failed to create worker pool: %w", err)
		}
		a.pool = pool
	}
	a.estimator = higuchi.NewEstimator(p.Higuchi, a.pool)

	return a, nil
}

// Params returns the analyzer's parameters
func (a *Analyzer) Params() Params {
	return a.params
}

// HasStore reports whether results are persisted
func (a *Analyzer) HasStore() bool {
	return a.store != nil
}

// Close releases the worker pool. The store is owned by the caller.
func (a *Analyzer) Close() {
	if a.pool != nil {
		a.pool.Release()
	}
}

// Analyze runs the full pipeline over rec and persists the result when a
// store is configured.
func (a *Analyzer) Analyze(ctx context.Context, rec *recording.Recording) (result *Result, err error) {
	start := time.Now()
	defer func() {
		if a.metrics == nil {
			return
		}
		if err != nil {
			a.metrics.RecordAnalysis(err, 0, 0, false)
			return
		}
		a.metrics.RecordAnalysis(nil, result.Summary.NumSegments, result.Summary.RejectedSegments, result.Summary.LockIndex >= 0)
		a.metrics.ObservePhase("total", time.Since(start).Seconds())
	}()

	if err := validate(rec); err != nil {
		return nil, err
	}

	combined, trace, err := a.runStats(ctx, rec)
	if err != nil {
		return nil, err
	}
	rows, err := a.runHiguchi(ctx, rec)
	if err != nil {
		return nil, err
	}

	n := combined.Len()
	set := labels.NewSet(n)
	if rec.Labels != nil {
		set = labels.FromInts(rec.Labels)
		if err := set.Validate(n); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRecording, err)
		}
	}

	means := make([]float64, len(rows))
	for i, row := range rows {
		means[i] = row.Mean()
	}

	result = &Result{
		Name:        rec.Name,
		CreatedAt:   time.Now().UTC(),
		Combined:    combined,
		Higuchi:     rows,
		HiguchiMean: means,
		Labels:      set.Ints(),
		Summary: Summary{
			NumSegments:      n,
			LockIndex:        trace.LockIndex,
			RejectedSegments: trace.Rejected(),
			DurationSeconds:  duration(rec.Times),
		},
	}

	if a.store != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.persist(ctx, result, rec.Len()); err != nil {
			return nil, err
		}
	}

	a.logger.Infow("analysis complete",
		"name", result.Name,
		"id", result.ID,
		"samples", rec.Len(),
		"segments", n,
		"lock_index", trace.LockIndex,
		"rejected", result.Summary.RejectedSegments,
		"elapsed", time.Since(start))

	return result, nil
}

// Stats runs only the segment statistics and the baseline estimator
func (a *Analyzer) Stats(ctx context.Context, rec *recording.Recording) (*stats.CombinedStats, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}
	combined, _, err := a.runStats(ctx, rec)
	return combined, err
}

// Higuchi runs only the fractal feature estimator
func (a *Analyzer) Higuchi(ctx context.Context, rec *recording.Recording) ([]higuchi.Row, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}
	return a.runHiguchi(ctx, rec)
}

func (a *Analyzer) runStats(ctx context.Context, rec *recording.Recording) (*stats.CombinedStats, *baseline.Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	combined, trace, err := stats.AggregateTrace(rec.Signal, rec.Times, a.params.Stats)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidRecording, err)
	}
	a.observe("stats", start)

	return combined, trace, nil
}

func (a *Analyzer) runHiguchi(ctx context.Context, rec *recording.Recording) ([]higuchi.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := a.estimator.Compute(rec.Signal, rec.Times)
	if err != nil {
		return nil, fmt.Errorf("higuchi: %w", err)
	}
	a.observe("higuchi", start)

	return rows, nil
}

func (a *Analyzer) persist(ctx context.Context, result *Result, samples int) error {
	start := time.Now()

	result.ID = uuid.New()
	payload, err := storage.EncodePayload(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	run := &storage.Run{
		ID:          result.ID,
		Name:        result.Name,
		CreatedAt:   result.CreatedAt,
		SampleCount: samples,
		NumSegments: result.Summary.NumSegments,
		Payload:     payload,
		Labels:      result.Labels,
	}
	if err := a.store.SaveRun(ctx, run); err != nil {
		return err
	}
	a.observe("persist", start)
	a.refreshRunCount(ctx)

	return nil
}

// GetRun loads a stored result with its current labels
func (a *Analyzer) GetRun(ctx context.Context, id uuid.UUID) (*Result, error) {
	if a.store == nil {
		return nil, ErrNoStore
	}

	run, err := a.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := storage.DecodePayload(run.Payload, &result); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	result.ID = run.ID
	result.Labels = run.Labels
	if result.Labels == nil {
		result.Labels = labels.NewSet(result.Summary.NumSegments).Ints()
	}

	return &result, nil
}

// ListRuns returns stored run metadata, newest first
func (a *Analyzer) ListRuns(ctx context.Context, limit int) ([]*storage.Run, error) {
	if a.store == nil {
		return nil, ErrNoStore
	}
	return a.store.ListRuns(ctx, limit)
}

// DeleteRun removes a stored run
func (a *Analyzer) DeleteRun(ctx context.Context, id uuid.UUID) error {
	if a.store == nil {
		return ErrNoStore
	}
	if err := a.store.DeleteRun(ctx, id); err != nil {
		return err
	}
	a.refreshRunCount(ctx)
	return nil
}

// Relabel assigns state to every segment of run id starting within
// [tMin, tMax] and stores the new labels. It returns the updated labels and
// how many of them changed.
func (a *Analyzer) Relabel(ctx context.Context, id uuid.UUID, tMin, tMax float64, state labels.State) (labels.Set, int, error) {
	unlock := a.locks.lock(id)
	defer unlock()

	result, err := a.GetRun(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	set := labels.FromInts(result.Labels)
	changed, err := set.AssignRange(result.Combined.SegmentTimes, tMin, tMax, state)
	if err != nil {
		return nil, 0, err
	}

	if changed > 0 {
		if err := a.store.UpdateLabels(ctx, id, set.Ints()); err != nil {
			return nil, 0, err
		}
	}

	a.logger.Debugw("relabelled run", "id", id, "state", state.String(), "changed", changed)
	return set, changed, nil
}

// Scatter builds a scatter view of a stored run
func (a *Analyzer) Scatter(ctx context.Context, id uuid.UUID, kind scatter.Kind) (*scatter.Plot, error) {
	result, err := a.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildScatter(result, kind)
}

// BuildScatter builds a scatter view of a result held in memory
func BuildScatter(result *Result, kind scatter.Kind) (*scatter.Plot, error) {
	return scatter.Build(kind, result.Combined, result.Higuchi, labels.FromInts(result.Labels))
}

func (a *Analyzer) refreshRunCount(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	n, err := a.store.CountRuns(ctx)
	if err != nil {
		a.logger.Warnf("unable to count stored runs: %v", err)
		return
	}
	a.metrics.SetRunsStored(n)
}

func (a *Analyzer) observe(phase string, start time.Time) {
	if a.metrics != nil {
		a.metrics.ObservePhase(phase, time.Since(start).Seconds())
	}
}

func validate(rec *recording.Recording) error {
	if rec == nil {
		return fmt.Errorf("%w: no recording", ErrInvalidRecording)
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecording, err)
	}
	return nil
}

func duration(times []float64) float64 {
	if len(times) < 2 {
		return 0
	}
	return times[len(times)-1] - times[0]
}
