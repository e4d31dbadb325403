// Package baseline tracks a robust running estimate of the signal's resting
// (blood) level. The estimate is seeded with a fixed guess, locks onto the
// first quiet, consistent segment and then follows slow drift with a clamped
// step while rejecting transient artifacts.
package baseline

import (
	"math"

	"github.com/chrissnell/signallab/internal/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Params defines the seed and the hysteresis thresholds of the estimator
type Params struct {
	// SamplesPerSegment is the number of samples in one segment (30 at 30 Hz)
	SamplesPerSegment int `json:"samples_per_segment" yaml:"samples_per_segment"`

	// SeedValue and SeedSpread are the estimate before any segment qualifies
	SeedValue  float64 `json:"seed_value" yaml:"seed_value"`
	SeedSpread float64 `json:"seed_spread" yaml:"seed_spread"`

	// LockMaxRange is the widest segment range accepted as a first lock
	LockMaxRange float64 `json:"lock_max_range" yaml:"lock_max_range"`

	// LockMaxMeanDelta is the largest mean change from the previous segment accepted as a first lock
	LockMaxMeanDelta float64 `json:"lock_max_mean_delta" yaml:"lock_max_mean_delta"`

	// RejectDelta discards a segment whose mean is farther than this from the estimate
	RejectDelta float64 `json:"reject_delta" yaml:"reject_delta"`

	// MaxStep caps |segment mean - estimate| before blending
	MaxStep float64 `json:"max_step" yaml:"max_step"`

	// Alpha is the blending weight given to the new observation
	Alpha float64 `json:"alpha" yaml:"alpha"`
}

// DefaultParams returns the thresholds used for 30 Hz reflectometry traces
func DefaultParams() Params {
	return Params{
		SamplesPerSegment: series.DefaultSamplesPerSegment,
		SeedValue:         700.0,
		SeedSpread:        40.0,
		LockMaxRange:      40,
		LockMaxMeanDelta:  40,
		RejectDelta:       60,
		MaxStep:           10,
		Alpha:             0.1,
	}
}

// Row is the snapshot of the estimate after a segment has been processed
type Row struct {
	Value  float64 `json:"value" msgpack:"value"`
	Spread float64 `json:"spread" msgpack:"spread"`
	Locked bool    `json:"locked" msgpack:"locked"`
}

// Outcome records what a segment did to the estimate
type Outcome int

const (
	// OutcomeSeed marks segment 0, which always holds the seed
	OutcomeSeed Outcome = iota
	// OutcomeCarried means the estimator was still seeking and the segment did not qualify
	OutcomeCarried
	// OutcomeLocked means the segment was the first to qualify
	OutcomeLocked
	// OutcomeTracked means the estimate moved toward the segment
	OutcomeTracked
	// OutcomeRejected means the segment was too far from the estimate and was ignored
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSeed:
		return "seed"
	case OutcomeCarried:
		return "carried"
	case OutcomeLocked:
		return "locked"
	case OutcomeTracked:
		return "tracked"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

// Observation is what the estimator sees of one segment
type Observation struct {
	Index    int
	Mean     float64
	Range    float64
	PrevMean float64
}

// State is the evolving estimate. The zero value is not useful; start from Seed.
type State struct {
	Value  float64
	Spread float64
	Locked bool
}

// Seed returns the initial seeking state
func Seed(p Params) State {
	return State{Value: p.SeedValue, Spread: p.SeedSpread}
}

// Row returns the snapshot of s
func (s State) Row() Row {
	return Row{Value: s.Value, Spread: s.Spread, Locked: s.Locked}
}

// Step advances the estimate by one segment. A locked state never unlocks.
func (s State) Step(obs Observation, p Params) (State, Outcome) {
	if !s.Locked {
		if obs.Range <= p.LockMaxRange && obs.Index > 1 && math.Abs(obs.Mean-obs.PrevMean) <= p.LockMaxMeanDelta {
			return State{
				Value:  blend(s.Value, obs.Mean, p.Alpha),
				Spread: blend(s.Spread, obs.Range, p.Alpha),
				Locked: true,
			}, OutcomeLocked
		}
		return s, OutcomeCarried
	}

	diff := obs.Mean - s.Value
	if math.Abs(diff) > p.RejectDelta {
		return s, OutcomeRejected
	}

	// Limit movement to +/- MaxStep, preserving direction
	if diff > p.MaxStep {
		diff = p.MaxStep
	} else if diff < -p.MaxStep {
		diff = -p.MaxStep
	}

	return State{
		Value:  blend(s.Value, s.Value+diff, p.Alpha),
		Spread: blend(s.Spread, obs.Range, p.Alpha),
		Locked: true,
	}, OutcomeTracked
}

func blend(prev, next, alpha float64) float64 {
	return prev*(1-alpha) + next*alpha
}

// Trace is the full record of one estimator run
type Trace struct {
	Rows     []Row
	Outcomes []Outcome

	// LockIndex is the segment that first qualified, or -1
	LockIndex int
}

// Rejected returns the number of segments discarded while tracking
func (t *Trace) Rejected() int {
	count := 0
	for _, o := range t.Outcomes {
		if o == OutcomeRejected {
			count++
		}
	}
	return count
}

// Run scans the signal segment by segment, threading a fresh State through
// every step. Rows[0] always holds the seed.
func Run(signal []float64, p Params) *Trace {
	size := p.SamplesPerSegment
	n := series.NumSegments(len(signal), size)

	trace := &Trace{
		Rows:      make([]Row, n),
		Outcomes:  make([]Outcome, n),
		LockIndex: -1,
	}
	if n == 0 {
		return trace
	}

	state := Seed(p)
	trace.Rows[0] = state.Row()
	trace.Outcomes[0] = OutcomeSeed

	prevMean := stat.Mean(series.Segment(signal, 0, size), nil)
	for i := 1; i < n; i++ {
		current := series.Segment(signal, i, size)
		obs := Observation{
			Index:    i,
			Mean:     stat.Mean(current, nil),
			Range:    floats.Max(current) - floats.Min(current),
			PrevMean: prevMean,
		}

		var outcome Outcome
		state, outcome = state.Step(obs, p)
		if outcome == OutcomeLocked {
			trace.LockIndex = i
		}

		trace.Rows[i] = state.Row()
		trace.Outcomes[i] = outcome
		prevMean = obs.Mean
	}

	return trace
}

// Compute returns the per-segment baseline rows of signal
func Compute(signal []float64, p Params) []Row {
	return Run(signal, p).Rows
}
