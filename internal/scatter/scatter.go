// Package scatter prepares per-label point groups for the scatter views:
// Higuchi mean against log-log slope, and segment range against distance
// from the running baseline.
package scatter

import (
	"errors"
	"fmt"

	"github.com/chrissnell/signallab/internal/higuchi"
	"github.com/chrissnell/signallab/internal/labels"
	"github.com/chrissnell/signallab/internal/stats"
)

// ErrUnknownKind is returned by Build for an unrecognized view name
var ErrUnknownKind = errors.New("unknown scatter kind")

// Kind names a scatter view
type Kind string

const (
	KindHiguchi       Kind = "higuchi"
	KindRangeBaseline Kind = "range-baseline"
)

// Group holds the points of one label state
type Group struct {
	State string    `json:"state" msgpack:"state"`
	Color string    `json:"color" msgpack:"color"`
	X     []float64 `json:"x" msgpack:"x"`
	Y     []float64 `json:"y" msgpack:"y"`
}

// Plot is a complete scatter view with one group per known state
type Plot struct {
	Kind   Kind    `json:"kind" msgpack:"kind"`
	XLabel string  `json:"x_label" msgpack:"x_label"`
	YLabel string  `json:"y_label" msgpack:"y_label"`
	Groups []Group `json:"groups" msgpack:"groups"`
}

// HiguchiMeanVsSlope groups (mean curve length, slope) points by label
func HiguchiMeanVsSlope(rows []higuchi.Row, set labels.Set) (*Plot, error) {
	if err := set.Validate(len(rows)); err != nil {
		return nil, err
	}

	xs := make([]float64, len(rows))
	ys := make([]float64, len(rows))
	for i, row := range rows {
		xs[i] = row.Mean()
		ys[i] = row.Slope
	}

	return group(KindHiguchi, "Higuchi Mean", "Higuchi Slope", xs, ys, set), nil
}

// RangeVsBaselineDiff groups (segment range, |mean - baseline|) points by label
func RangeVsBaselineDiff(combined *stats.CombinedStats, set labels.Set) (*Plot, error) {
	if err := set.Validate(combined.Len()); err != nil {
		return nil, err
	}

	xs := make([]float64, combined.Len())
	for i, row := range combined.Segments {
		xs[i] = row.Range
	}

	return group(KindRangeBaseline, "Range", "Blood Reference Difference", xs, combined.BaselineDiff(), set), nil
}

// Build dispatches on kind
func Build(kind Kind, combined *stats.CombinedStats, rows []higuchi.Row, set labels.Set) (*Plot, error) {
	switch kind {
	case KindHiguchi:
		return HiguchiMeanVsSlope(rows, set)
	case KindRangeBaseline:
		return RangeVsBaselineDiff(combined, set)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func group(kind Kind, xLabel, yLabel string, xs, ys []float64, set labels.Set) *Plot {
	plot := &Plot{
		Kind:   kind,
		XLabel: xLabel,
		YLabel: yLabel,
		Groups: make([]Group, len(labels.States)),
	}

	for i, s := range labels.States {
		plot.Groups[i] = Group{State: s.String(), Color: s.Color(), X: []float64{}, Y: []float64{}}
	}
	for i, s := range set {
		g := &plot.Groups[s]
		g.X = append(g.X, xs[i])
		g.Y = append(g.Y, ys[i])
	}

	return plot
}
