// Package simulate generates synthetic reflectometry recordings with known
// per-segment labels for exercising the analysis pipeline.
package simulate

import (
	"errors"
	"math/rand"

	"github.com/chrissnell/signallab/internal/labels"
	"github.com/chrissnell/signallab/internal/series"
	"github.com/chrissnell/signallab/pkg/recording"
)

// Options shapes the generated trace
type Options struct {
	Name              string
	Seconds           float64
	Rate              float64
	SamplesPerSegment int

	// Baseline is the blood plateau level; Drift moves it per second
	Baseline float64
	Drift    float64
	Noise    float64

	// WallEvents short, large excursions of WallAmplitude
	WallEvents    int
	WallAmplitude float64

	// ClotEvents three-segment ramps up to ClotOffset above the plateau
	ClotEvents int
	ClotOffset float64

	// SettleSegments at the start are labelled Unknown
	SettleSegments int

	Seed int64
}

// DefaultOptions returns two minutes of 30 Hz signal with a few artifacts
func DefaultOptions() Options {
	return Options{
		Name:              "simulated",
		Seconds:           120,
		Rate:              30,
		SamplesPerSegment: series.DefaultSamplesPerSegment,
		Baseline:          700,
		Drift:             0.05,
		Noise:             4,
		WallEvents:        4,
		WallAmplitude:     160,
		ClotEvents:        2,
		ClotOffset:        90,
		SettleSegments:    2,
		Seed:              1,
	}
}

const clotSegments = 3

// Generate builds a recording whose length is a whole number of segments
func Generate(opts Options) (*recording.Recording, error) {
	if opts.Rate <= 0 || opts.Seconds <= 0 || opts.SamplesPerSegment <= 0 {
		return nil, errors.New("rate, duration and segment size must be positive")
	}

	size := opts.SamplesPerSegment
	numSegments := int(opts.Seconds*opts.Rate) / size
	if numSegments == 0 {
		return nil, errors.New("duration shorter than one segment")
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	set := labels.NewSet(numSegments)
	for i := range set {
		if i >= opts.SettleSegments {
			set[i] = labels.Blood1
		}
	}

	// Events never overlap and never touch the settling segments
	taken := make([]bool, numSegments)
	place := func(length int) int {
		first := opts.SettleSegments + 1
		span := numSegments - first - length + 1
		if span <= 0 {
			return -1
		}
		for attempt := 0; attempt < 32; attempt++ {
			start := first + rng.Intn(span)
			free := true
			for j := start - 1; j <= start+length && j < numSegments; j++ {
				if j >= 0 && taken[j] {
					free = false
					break
				}
			}
			if free {
				for j := start; j < start+length; j++ {
					taken[j] = true
				}
				return start
			}
		}
		return -1
	}

	offset := make([]float64, numSegments)
	jitter := make([]float64, numSegments)
	for e := 0; e < opts.WallEvents; e++ {
		length := 1 + rng.Intn(2)
		start := place(length)
		if start < 0 {
			break
		}
		for j := start; j < start+length; j++ {
			set[j] = labels.Wall
			offset[j] = opts.WallAmplitude
			jitter[j] = opts.WallAmplitude / 4
		}
	}
	for e := 0; e < opts.ClotEvents; e++ {
		start := place(clotSegments)
		if start < 0 {
			break
		}
		for j := 0; j < clotSegments; j++ {
			set[start+j] = labels.Clot
			offset[start+j] = opts.ClotOffset * float64(j+1) / clotSegments
		}
	}

	n := numSegments * size
	rec := &recording.Recording{
		Name:   opts.Name,
		Signal: make([]float64, n),
		Times:  make([]float64, n),
		Labels: set.Ints(),
	}
	for i := 0; i < n; i++ {
		t := float64(i) / opts.Rate
		seg := i / size
		rec.Times[i] = t
		rec.Signal[i] = opts.Baseline + opts.Drift*t + offset[seg] +
			rng.NormFloat64()*(opts.Noise+jitter[seg])
	}

	return rec, nil
}
