// Package stats combines segment statistics and the running baseline into
// the single structure consumed by plotting and annotation.
package stats

import (
	"errors"
	"fmt"

	"github.com/chrissnell/signallab/internal/baseline"
	"github.com/chrissnell/signallab/internal/segment"
	"github.com/chrissnell/signallab/internal/series"
)

// ErrSegmentSizeMismatch is returned when the two components would cut the signal differently.
var ErrSegmentSizeMismatch = errors.New("segment and baseline use different segment sizes")

// Params bundles the parameters of both components
type Params struct {
	Segment  segment.Params  `json:"segment" yaml:"segment"`
	Baseline baseline.Params `json:"baseline" yaml:"baseline"`
}

// DefaultParams returns the defaults of both components
func DefaultParams() Params {
	return Params{
		Segment:  segment.DefaultParams(),
		Baseline: baseline.DefaultParams(),
	}
}

// Validate checks both parameter sets and that they agree on segmentation
func (p Params) Validate() error {
	if err := p.Segment.Validate(); err != nil {
		return err
	}
	if p.Segment.SamplesPerSegment != p.Baseline.SamplesPerSegment {
		return fmt.Errorf("%w: %d vs %d", ErrSegmentSizeMismatch,
			p.Segment.SamplesPerSegment, p.Baseline.SamplesPerSegment)
	}
	return nil
}

// CombinedStats is the per-segment view handed to downstream consumers
type CombinedStats struct {
	BaselineValue  []float64         `json:"baseline_value" msgpack:"baseline_value"`
	BaselineSpread []float64         `json:"baseline_spread" msgpack:"baseline_spread"`
	Segments       []segment.StatRow `json:"segments" msgpack:"segments"`
	SegmentTimes   []float64         `json:"segment_times" msgpack:"segment_times"`
}

// Len returns the number of segments
func (c *CombinedStats) Len() int {
	return len(c.Segments)
}

// BaselineDiff returns |segment mean - baseline value| for every segment
func (c *CombinedStats) BaselineDiff() []float64 {
	diffs := make([]float64, len(c.Segments))
	for i, row := range c.Segments {
		d := row.Mean - c.BaselineValue[i]
		if d < 0 {
			d = -d
		}
		diffs[i] = d
	}
	return diffs
}

// Aggregate runs segment statistics and the baseline estimator once each over
// the same arrays and repackages their output.
func Aggregate(signal, times []float64, p Params) (*CombinedStats, error) {
	combined, _, err := AggregateTrace(signal, times, p)
	return combined, err
}

// AggregateTrace is Aggregate that also returns the baseline estimator's trace
func AggregateTrace(signal, times []float64, p Params) (*CombinedStats, *baseline.Trace, error) {
	if err := series.CheckShape(signal, times); err != nil {
		return nil, nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	rows, segmentTimes, err := segment.Compute(signal, times, p.Segment)
	if err != nil {
		return nil, nil, fmt.Errorf("segment statistics: %w", err)
	}

	trace := baseline.Run(signal, p.Baseline)

	combined := &CombinedStats{
		BaselineValue:  make([]float64, len(trace.Rows)),
		BaselineSpread: make([]float64, len(trace.Rows)),
		Segments:       rows,
		SegmentTimes:   segmentTimes,
	}
	for i, row := range trace.Rows {
		combined.BaselineValue[i] = row.Value
		combined.BaselineSpread[i] = row.Spread
	}

	return combined, trace, nil
}
