package analysis

import (
	"fmt"

	"github.com/chrissnell/signallab/internal/baseline"
	"github.com/chrissnell/signallab/internal/higuchi"
	"github.com/chrissnell/signallab/internal/segment"
	"github.com/chrissnell/signallab/internal/stats"
	"github.com/chrissnell/signallab/pkg/config"
)

// Params holds the parameters of every component run by an Analyzer
type Params struct {
	Stats   stats.Params   `json:"stats"`
	Higuchi higuchi.Params `json:"higuchi"`
}

// DefaultParams returns the 30 Hz defaults of every component
func DefaultParams() Params {
	return Params{
		Stats:   stats.DefaultParams(),
		Higuchi: higuchi.DefaultParams(),
	}
}

// ParamsFromConfig maps the analysis section of the configuration onto component parameters
func ParamsFromConfig(c config.AnalysisConfig) Params {
	size := c.SamplesPerSegment
	return Params{
		Stats: stats.Params{
			Segment: segment.Params{SamplesPerSegment: size},
			Baseline: baseline.Params{
				SamplesPerSegment: size,
				SeedValue:         c.Baseline.SeedValue,
				SeedSpread:        c.Baseline.SeedSpread,
				LockMaxRange:      c.Baseline.LockMaxRange,
				LockMaxMeanDelta:  c.Baseline.LockMaxMeanDelta,
				RejectDelta:       c.Baseline.RejectDelta,
				MaxStep:           c.Baseline.MaxStep,
				Alpha:             c.Baseline.Alpha,
			},
		},
		Higuchi: higuchi.Params{
			SamplesPerSegment: size,
			LookbackSegments:  c.LookbackSegments,
			LogFloor:          c.LogFloor,
			Workers:           c.Workers,
		},
	}
}

// Validate checks every component and that all of them cut the signal the same way
func (p Params) Validate() error {
	if err := p.Stats.Validate(); err != nil {
		return err
	}
	if err := p.Higuchi.Validate(); err != nil {
		return err
	}
	if p.Higuchi.SamplesPerSegment != p.Stats.Segment.SamplesPerSegment {
		return fmt.Errorf("%w: higuchi uses %d samples per segment, stats %d",
			stats.ErrSegmentSizeMismatch, p.Higuchi.SamplesPerSegment, p.Stats.Segment.SamplesPerSegment)
	}
	return nil
}
