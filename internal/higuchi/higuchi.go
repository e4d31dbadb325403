// Package higuchi computes a multi-scale curve-length feature (Higuchi
// fractal dimension) for every one-second segment of a signal, using a
// lookback window that ends at the segment's end, plus the log-log slope of
// the curve length against the scale.
package higuchi

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/chrissnell/signallab/internal/series"
	"github.com/panjf2000/ants/v2"
	"gonum.org/v1/gonum/stat"
)

// NumScales is the number of decimation scales k = 1..NumScales
const NumScales = 5

// ErrInvalidParams is returned for unusable window or floor settings.
var ErrInvalidParams = errors.New("invalid higuchi parameters")

// Params defines the lookback window and the log policy
type Params struct {
	// SamplesPerSegment is the number of samples in one segment (30 at 30 Hz)
	SamplesPerSegment int `json:"samples_per_segment" yaml:"samples_per_segment"`

	// LookbackSegments is the window length in segments, ending at the current segment's end
	LookbackSegments int `json:"lookback_segments" yaml:"lookback_segments"`

	// LogFloor is the smallest curve length fed to the logarithm. Scales with
	// zero length (a flat window) are floored here before the slope fit.
	LogFloor float64 `json:"log_floor" yaml:"log_floor"`

	// Workers > 1 computes segments concurrently on the estimator's pool
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultParams returns a 2-second lookback at 30 Hz
func DefaultParams() Params {
	return Params{
		SamplesPerSegment: series.DefaultSamplesPerSegment,
		LookbackSegments:  2,
		LogFloor:          1e-10,
		Workers:           1,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	if p.SamplesPerSegment <= 0 {
		return fmt.Errorf("%w: samples per segment must be positive, got %d", ErrInvalidParams, p.SamplesPerSegment)
	}
	if p.LookbackSegments < 1 {
		return fmt.Errorf("%w: lookback must span at least one segment, got %d", ErrInvalidParams, p.LookbackSegments)
	}
	if p.SamplesPerSegment*p.LookbackSegments <= NumScales {
		return fmt.Errorf("%w: window of %d samples is too short for %d scales",
			ErrInvalidParams, p.SamplesPerSegment*p.LookbackSegments, NumScales)
	}
	if !(p.LogFloor > 0) {
		return fmt.Errorf("%w: log floor must be positive, got %g", ErrInvalidParams, p.LogFloor)
	}
	return nil
}

// WindowSize is the lookback window length in samples
func (p Params) WindowSize() int {
	return p.SamplesPerSegment * p.LookbackSegments
}

// Row holds the curve length at each scale and the log-log slope for one segment
type Row struct {
	HFD   [NumScales]float64 `json:"hfd" msgpack:"hfd"`
	Slope float64            `json:"slope" msgpack:"slope"`
}

// Mean returns the mean curve length over all scales
func (r Row) Mean() float64 {
	return stat.Mean(r.HFD[:], nil)
}

// Values returns the row flattened as hfd(1..5) followed by the slope
func (r Row) Values() []float64 {
	values := make([]float64, 0, NumScales+1)
	values = append(values, r.HFD[:]...)
	return append(values, r.Slope)
}

// CurveLength returns the normalized curve length of window at scale k,
// averaged over the k offsets. The normalization uses the full window length
// N in the numerator: L(m,k) = len(m,k) * N / (floor((N-m)/k) * k).
func CurveLength(window []float64, k int) float64 {
	n := len(window)
	if k < 1 || n <= k {
		return 0
	}

	var total float64
	for m := 0; m < k; m++ {
		steps := (n - m) / k
		if steps == 0 {
			continue
		}

		var length float64
		for j := m + k; j < n; j += k {
			length += math.Abs(window[j] - window[j-k])
		}
		total += length * (float64(n) / float64(steps*k))
	}

	return total / float64(k)
}

// LogLogSlope fits ln(hfd(k)) against ln(k) by least squares and returns the
// slope. Every hfd(k) is floored at floor before the logarithm; a window where
// every scale is at or below the floor has slope 0.
func LogLogSlope(hfd [NumScales]float64, floor float64) float64 {
	degenerate := true
	xs := make([]float64, NumScales)
	ys := make([]float64, NumScales)

	for i, v := range hfd {
		if v > floor {
			degenerate = false
		}
		xs[i] = math.Log(float64(i + 1))
		ys[i] = math.Log(math.Max(v, floor))
	}
	if degenerate {
		return 0
	}

	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return beta
}

// ComputeWindow returns the feature row of one full lookback window
func ComputeWindow(window []float64, floor float64) Row {
	var row Row
	for k := 1; k <= NumScales; k++ {
		row.HFD[k-1] = CurveLength(window, k)
	}
	row.Slope = LogLogSlope(row.HFD, floor)
	return row
}

// Estimator computes feature rows for whole signals. It is safe for concurrent use.
type Estimator struct {
	params Params
	pool   *ants.Pool
}

// NewEstimator creates an Estimator. pool may be nil, in which case segments
// are always computed sequentially.
func NewEstimator(p Params, pool *ants.Pool) *Estimator {
	return &Estimator{params: p, pool: pool}
}

// Params returns the estimator's parameters
func (e *Estimator) Params() Params {
	return e.params
}

// Compute returns one row per segment. Row 0 is always zero. A segment whose
// lookback window is incomplete copies the previous row.
func (e *Estimator) Compute(signal, times []float64) ([]Row, error) {
	if err := series.CheckShape(signal, times); err != nil {
		return nil, err
	}
	if err := e.params.Validate(); err != nil {
		return nil, err
	}

	n := series.NumSegments(len(signal), e.params.SamplesPerSegment)
	rows := make([]Row, n)
	computed := make([]bool, n)

	if e.pool != nil && e.params.Workers > 1 && n > 2 {
		if err := e.computeParallel(signal, rows, computed); err != nil {
			return nil, err
		}
	} else {
		for i := 1; i < n; i++ {
			rows[i], computed[i] = e.segment(signal, i)
		}
	}

	// Forward-fill incomplete windows, left to right
	for i := 1; i < n; i++ {
		if !computed[i] {
			rows[i] = rows[i-1]
		}
	}

	return rows, nil
}

func (e *Estimator) computeParallel(signal []float64, rows []Row, computed []bool) error {
	var wg sync.WaitGroup

	for i := 1; i < len(rows); i++ {
		idx := i
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			rows[idx], computed[idx] = e.segment(signal, idx)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("failed to submit segment %d: %w", idx, err)
		}
	}

	wg.Wait()
	return nil
}

// segment computes segment i, reporting false when its window is incomplete
func (e *Estimator) segment(signal []float64, i int) (Row, bool) {
	size := e.params.SamplesPerSegment
	windowSize := e.params.WindowSize()

	end := (i + 1) * size
	start, end := series.Clip(end-windowSize, end, len(signal))
	currentStart, currentEnd := series.Clip(i*size, (i+1)*size, len(signal))

	if end-start != windowSize || currentEnd-currentStart != size {
		return Row{}, false
	}

	return ComputeWindow(signal[start:end], e.params.LogFloor), true
}
