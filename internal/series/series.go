// Package series defines the input contract shared by the segment estimators:
// a fixed-rate amplitude signal paired 1:1 with its timestamps, cut into
// fixed-size non-overlapping segments.
package series

import (
	"errors"
	"fmt"
)

// DefaultSamplesPerSegment is one second of signal at the 30 Hz acquisition rate.
const DefaultSamplesPerSegment = 30

// ErrShapeMismatch is returned when the signal and time arrays differ in length.
var ErrShapeMismatch = errors.New("signal and times have different lengths")

// CheckShape verifies that every sample has exactly one timestamp.
func CheckShape(signal, times []float64) error {
	if len(signal) != len(times) {
		return fmt.Errorf("%w: %d samples, %d timestamps", ErrShapeMismatch, len(signal), len(times))
	}
	return nil
}

// NumSegments returns how many full segments fit into n samples.
// Trailing samples that do not fill a segment are dropped.
func NumSegments(n, samplesPerSegment int) int {
	if samplesPerSegment <= 0 || n < 0 {
		return 0
	}
	return n / samplesPerSegment
}

// Segment returns the raw samples of segment i. The caller guarantees i < NumSegments.
func Segment(signal []float64, i, samplesPerSegment int) []float64 {
	start := i * samplesPerSegment
	return signal[start : start+samplesPerSegment]
}

// Clip returns the half-open range [start, end) clipped to [0, n).
func Clip(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	return start, end
}
