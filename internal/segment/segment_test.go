package segment

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/chrissnell/signallab/internal/series"
)

func timeline(n int) []float64 {
	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i) / 30.0
	}
	return times
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		window   []float64
		expected StatRow
	}{
		{
			name:     "constant window",
			window:   []float64{700, 700, 700, 700},
			expected: StatRow{Max: 700, Min: 700, Mean: 700, Range: 0, StdDev: 0},
		},
		{
			name:     "population standard deviation",
			window:   []float64{2, 4, 4, 4, 5, 5, 7, 9},
			expected: StatRow{Max: 9, Min: 2, Mean: 5, Range: 7, StdDev: 2},
		},
		{
			name:     "negative values",
			window:   []float64{-10, 10},
			expected: StatRow{Max: 10, Min: -10, Mean: 0, Range: 20, StdDev: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.window)
			checks := []struct {
				field     string
				got, want float64
			}{
				{"max", got.Max, tt.expected.Max},
				{"min", got.Min, tt.expected.Min},
				{"mean", got.Mean, tt.expected.Mean},
				{"range", got.Range, tt.expected.Range},
				{"std", got.StdDev, tt.expected.StdDev},
			}
			for _, c := range checks {
				if math.Abs(c.got-c.want) > 1e-9 {
					t.Errorf("%s: expected %.6f, got %.6f", c.field, c.want, c.got)
				}
			}
		})
	}
}

func TestComputeFlatSignal(t *testing.T) {
	signal := make([]float64, 90)
	for i := range signal {
		signal[i] = 700
	}
	times := timeline(90)

	rows, segTimes, err := Compute(signal, times, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 || len(segTimes) != 3 {
		t.Fatalf("expected 3 segments, got %d rows and %d times", len(rows), len(segTimes))
	}

	want := StatRow{Max: 700, Min: 700, Mean: 700, Range: 0, StdDev: 0}
	for i, row := range rows {
		if row != want {
			t.Errorf("segment %d: expected %+v, got %+v", i, want, row)
		}
		if segTimes[i] != times[i*30] {
			t.Errorf("segment %d: expected time %.4f, got %.4f", i, times[i*30], segTimes[i])
		}
	}
}

func TestComputeSegmentCount(t *testing.T) {
	tests := []struct {
		samples  int
		expected int
	}{
		{0, 0},
		{29, 0},
		{30, 1},
		{59, 1},
		{61, 2},
		{300, 10},
	}

	for _, tt := range tests {
		rows, segTimes, err := Compute(make([]float64, tt.samples), timeline(tt.samples), DefaultParams())
		if err != nil {
			t.Fatalf("%d samples: unexpected error: %v", tt.samples, err)
		}
		if len(rows) != tt.expected || len(segTimes) != tt.expected {
			t.Errorf("%d samples: expected %d segments, got %d rows and %d times",
				tt.samples, tt.expected, len(rows), len(segTimes))
		}
	}
}

func TestComputeShapeMismatch(t *testing.T) {
	_, _, err := Compute(make([]float64, 60), make([]float64, 59), DefaultParams())
	if !errors.Is(err, series.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestComputeInvalidParams(t *testing.T) {
	_, _, err := Compute(make([]float64, 60), make([]float64, 60), Params{SamplesPerSegment: 0})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestComputeOrderingInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	signal := make([]float64, 30*40+17)
	for i := range signal {
		signal[i] = float64(600 + rng.Intn(200))
	}

	rows, _, err := Compute(signal, timeline(len(signal)), DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 40 {
		t.Fatalf("expected 40 segments, got %d", len(rows))
	}

	for i, row := range rows {
		if row.Min > row.Mean || row.Mean > row.Max {
			t.Errorf("segment %d: expected min <= mean <= max, got %+v", i, row)
		}
		if row.Range < 0 || row.Range != row.Max-row.Min {
			t.Errorf("segment %d: expected range = max - min >= 0, got %+v", i, row)
		}
		if row.StdDev < 0 {
			t.Errorf("segment %d: negative std %.4f", i, row.StdDev)
		}
	}
}

func TestComputeIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	signal := make([]float64, 300)
	for i := range signal {
		signal[i] = rng.NormFloat64()*25 + 700
	}
	times := timeline(len(signal))

	first, firstTimes, _ := Compute(signal, times, DefaultParams())
	second, secondTimes, _ := Compute(signal, times, DefaultParams())

	for i := range first {
		if first[i] != second[i] || firstTimes[i] != secondTimes[i] {
			t.Fatalf("segment %d differs between calls: %+v vs %+v", i, first[i], second[i])
		}
	}
}
