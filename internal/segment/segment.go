// Package segment computes per-segment descriptive statistics over a
// fixed-rate signal cut into non-overlapping one-second windows.
package segment

import (
	"errors"
	"fmt"

	"github.com/chrissnell/signallab/internal/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidParams is returned for a non-positive segment size.
var ErrInvalidParams = errors.New("invalid segment parameters")

// Params defines how the signal is segmented
type Params struct {
	// SamplesPerSegment is the number of consecutive samples in one segment (30 at 30 Hz)
	SamplesPerSegment int `json:"samples_per_segment" yaml:"samples_per_segment"`
}

// DefaultParams returns one-second segments at the 30 Hz acquisition rate
func DefaultParams() Params {
	return Params{SamplesPerSegment: series.DefaultSamplesPerSegment}
}

// Validate checks that the parameters describe a usable segmentation
func (p Params) Validate() error {
	if p.SamplesPerSegment <= 0 {
		return fmt.Errorf("%w: samples per segment must be positive, got %d", ErrInvalidParams, p.SamplesPerSegment)
	}
	return nil
}

// StatRow holds the descriptive statistics of one segment
type StatRow struct {
	Max    float64 `json:"max" msgpack:"max"`
	Min    float64 `json:"min" msgpack:"min"`
	Mean   float64 `json:"mean" msgpack:"mean"`
	Range  float64 `json:"range" msgpack:"range"`
	StdDev float64 `json:"std" msgpack:"std"`
}

// Describe computes the statistics of a single non-empty window.
// StdDev is the population standard deviation.
func Describe(window []float64) StatRow {
	mean, std := stat.PopMeanStdDev(window, nil)
	max := floats.Max(window)
	min := floats.Min(window)

	return StatRow{
		Max:    max,
		Min:    min,
		Mean:   mean,
		Range:  max - min,
		StdDev: std,
	}
}

// Compute splits signal into segments and describes each one. segmentTimes[i]
// is the timestamp of the first sample of segment i. A signal shorter than one
// segment yields empty results, not an error.
func Compute(signal, times []float64, p Params) ([]StatRow, []float64, error) {
	if err := series.CheckShape(signal, times); err != nil {
		return nil, nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	size := p.SamplesPerSegment
	n := series.NumSegments(len(signal), size)

	rows := make([]StatRow, n)
	segmentTimes := make([]float64, n)

	for i := 0; i < n; i++ {
		rows[i] = Describe(series.Segment(signal, i, size))
		segmentTimes[i] = times[i*size]
	}

	return rows, segmentTimes, nil
}
