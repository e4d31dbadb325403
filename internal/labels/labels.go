// Package labels holds the per-segment annotation states used to tag a
// recording by hand, and the range relabeling operation behind them.
package labels

import (
	"errors"
	"fmt"
)

var (
	// ErrLabelLength is returned when a label set does not cover every segment
	ErrLabelLength = errors.New("label count does not match segment count")

	// ErrUnknownState is returned for a label outside the known states
	ErrUnknownState = errors.New("unknown label state")
)

// State is the annotation of one segment
type State uint8

const (
	Unknown State = iota
	Blood1
	Blood2
	Wall
	Clot
	Step
)

// States lists every known state in display order
var States = []State{Unknown, Blood1, Blood2, Wall, Clot, Step}

type stateInfo struct {
	name       string
	color      string
	labelColor string
}

var info = map[State]stateInfo{
	Unknown: {"Unknown", "gray", "white"},
	Blood1:  {"Blood1", "green", "white"},
	Blood2:  {"Blood2", "cyan", "black"},
	Wall:    {"Wall", "blue", "white"},
	Clot:    {"Clot", "orange", "black"},
	Step:    {"Step", "black", "white"},
}

// Valid reports whether s is a known state
func (s State) Valid() bool {
	_, ok := info[s]
	return ok
}

func (s State) String() string {
	if i, ok := info[s]; ok {
		return i.name
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Color returns the plot color of s
func (s State) Color() string {
	return info[s].color
}

// LabelColor returns the text color drawn on top of Color
func (s State) LabelColor() string {
	return info[s].labelColor
}

// Parse accepts a state name (case-sensitive) or its numeric value
func Parse(name string) (State, error) {
	for _, s := range States {
		if s.String() == name {
			return s, nil
		}
	}
	var n uint8
	if _, err := fmt.Sscanf(name, "%d", &n); err == nil && State(n).Valid() {
		return State(n), nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// Set is one label per segment
type Set []State

// NewSet returns numSegments Unknown labels
func NewSet(numSegments int) Set {
	return make(Set, numSegments)
}

// FromInts converts a plain integer label array. Values outside the uint8
// range map to an invalid state and are caught by Validate.
func FromInts(raw []int) Set {
	set := make(Set, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			v = 255
		}
		set[i] = State(v)
	}
	return set
}

// Ints returns the set as a plain integer array. Encoders treat a []uint8 as
// binary, so labels cross the wire as integers.
func (s Set) Ints() []int {
	raw := make([]int, len(s))
	for i, v := range s {
		raw[i] = int(v)
	}
	return raw
}

// Validate checks that the set covers numSegments segments with known states
func (s Set) Validate(numSegments int) error {
	if len(s) != numSegments {
		return fmt.Errorf("%w: %d labels, %d segments", ErrLabelLength, len(s), numSegments)
	}
	for i, v := range s {
		if !v.Valid() {
			return fmt.Errorf("%w: segment %d has state %d", ErrUnknownState, i, uint8(v))
		}
	}
	return nil
}

// AssignRange relabels every segment whose start time lies in the closed
// range between tMin and tMax, in either order. It returns how many labels
// actually changed.
func (s Set) AssignRange(segmentTimes []float64, tMin, tMax float64, state State) (int, error) {
	if !state.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownState, uint8(state))
	}
	if len(segmentTimes) != len(s) {
		return 0, fmt.Errorf("%w: %d labels, %d segment times", ErrLabelLength, len(s), len(segmentTimes))
	}
	if tMin > tMax {
		tMin, tMax = tMax, tMin
	}

	changed := 0
	for i, t := range segmentTimes {
		if t >= tMin && t <= tMax && s[i] != state {
			s[i] = state
			changed++
		}
	}
	return changed, nil
}

// Counts returns how many segments carry each state
func (s Set) Counts() map[State]int {
	counts := make(map[State]int, len(States))
	for _, v := range s {
		counts[v]++
	}
	return counts
}
