package stats

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/chrissnell/signallab/internal/baseline"
	"github.com/chrissnell/signallab/internal/segment"
	"github.com/chrissnell/signallab/internal/series"
)

func timeline(n int) []float64 {
	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i) / 30.0
	}
	return times
}

func TestAggregateFlatSignal(t *testing.T) {
	signal := make([]float64, 90)
	for i := range signal {
		signal[i] = 700
	}
	times := timeline(90)

	combined, err := Aggregate(signal, times, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if combined.Len() != 3 || len(combined.BaselineValue) != 3 || len(combined.BaselineSpread) != 3 || len(combined.SegmentTimes) != 3 {
		t.Fatalf("expected 3 segments in every series, got %+v", combined)
	}

	expectedSpread := []float64{40, 40, 36}
	for i := range expectedSpread {
		if combined.BaselineValue[i] != 700 {
			t.Errorf("segment %d: expected baseline 700, got %.4f", i, combined.BaselineValue[i])
		}
		if math.Abs(combined.BaselineSpread[i]-expectedSpread[i]) > 1e-9 {
			t.Errorf("segment %d: expected spread %.1f, got %.4f", i, expectedSpread[i], combined.BaselineSpread[i])
		}
		if combined.SegmentTimes[i] != times[i*30] {
			t.Errorf("segment %d: expected time %.4f, got %.4f", i, times[i*30], combined.SegmentTimes[i])
		}
	}
}

func TestAggregateMatchesComponents(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	signal := make([]float64, 30*25+4)
	for i := range signal {
		signal[i] = 700 + rng.NormFloat64()*12
	}
	times := timeline(len(signal))

	combined, trace, err := AggregateTrace(signal, times, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, segTimes, _ := segment.Compute(signal, times, segment.DefaultParams())
	baseRows := baseline.Compute(signal, baseline.DefaultParams())

	for i := range rows {
		if combined.Segments[i] != rows[i] || combined.SegmentTimes[i] != segTimes[i] {
			t.Errorf("segment %d: repackaged statistics differ", i)
		}
		if combined.BaselineValue[i] != baseRows[i].Value || combined.BaselineSpread[i] != baseRows[i].Spread {
			t.Errorf("segment %d: repackaged baseline differs", i)
		}
	}
	if len(trace.Rows) != combined.Len() {
		t.Errorf("trace has %d rows, expected %d", len(trace.Rows), combined.Len())
	}
}

func TestAggregateErrors(t *testing.T) {
	if _, err := Aggregate(make([]float64, 30), make([]float64, 31), DefaultParams()); !errors.Is(err, series.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}

	p := DefaultParams()
	p.Baseline.SamplesPerSegment = 15
	if _, err := Aggregate(make([]float64, 30), make([]float64, 30), p); !errors.Is(err, ErrSegmentSizeMismatch) {
		t.Errorf("expected ErrSegmentSizeMismatch, got %v", err)
	}
}

func TestAggregateShortSignal(t *testing.T) {
	combined, err := Aggregate(make([]float64, 10), make([]float64, 10), DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if combined.Len() != 0 || len(combined.BaselineValue) != 0 {
		t.Errorf("expected empty result, got %+v", combined)
	}
}

func TestBaselineDiff(t *testing.T) {
	combined := &CombinedStats{
		BaselineValue: []float64{700, 700},
		Segments:      []segment.StatRow{{Mean: 690}, {Mean: 725}},
	}
	diffs := combined.BaselineDiff()
	if diffs[0] != 10 || diffs[1] != 25 {
		t.Errorf("expected [10 25], got %v", diffs)
	}
}
