package labels

import (
	"errors"
	"testing"
)

func TestStateNames(t *testing.T) {
	tests := []struct {
		state State
		name  string
		color string
	}{
		{Unknown, "Unknown", "gray"},
		{Blood1, "Blood1", "green"},
		{Blood2, "Blood2", "cyan"},
		{Wall, "Wall", "blue"},
		{Clot, "Clot", "orange"},
		{Step, "Step", "black"},
	}

	for _, tt := range tests {
		if tt.state.String() != tt.name || tt.state.Color() != tt.color {
			t.Errorf("state %d: expected %s/%s, got %s/%s", tt.state, tt.name, tt.color, tt.state.String(), tt.state.Color())
		}
	}

	if State(6).Valid() || State(6).String() != "State(6)" {
		t.Errorf("state 6 should be invalid")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    State
		wantErr bool
	}{
		{"Wall", Wall, false},
		{"3", Wall, false},
		{"0", Unknown, false},
		{"wall", Unknown, true},
		{"9", Unknown, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownState) {
				t.Errorf("Parse(%q): expected ErrUnknownState, got %v", tt.input, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Parse(%q) = %v, %v; expected %v", tt.input, got, err, tt.want)
		}
	}
}

func TestAssignRange(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4, 5}

	tests := []struct {
		name     string
		tMin     float64
		tMax     float64
		state    State
		expected Set
		changed  int
	}{
		{"inclusive bounds", 1, 3, Clot, Set{Unknown, Clot, Clot, Clot, Unknown, Unknown}, 3},
		{"reversed drag", 4.5, 2.5, Wall, Set{Unknown, Unknown, Unknown, Wall, Wall, Unknown}, 2},
		{"range between segment starts", 1.2, 1.8, Blood1, NewSet(6), 0},
		{"whole recording", -10, 10, Step, Set{Step, Step, Step, Step, Step, Step}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewSet(6)
			changed, err := set.AssignRange(times, tt.tMin, tt.tMax, tt.state)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if changed != tt.changed {
				t.Errorf("expected %d changes, got %d", tt.changed, changed)
			}
			for i := range set {
				if set[i] != tt.expected[i] {
					t.Errorf("segment %d: expected %v, got %v", i, tt.expected[i], set[i])
				}
			}
		})
	}
}

func TestAssignRangeNoOpOnSameState(t *testing.T) {
	set := Set{Wall, Wall, Unknown}
	changed, err := set.AssignRange([]float64{0, 1, 2}, 0, 2, Wall)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed != 1 {
		t.Errorf("expected 1 change, got %d", changed)
	}
}

func TestAssignRangeErrors(t *testing.T) {
	set := NewSet(3)
	if _, err := set.AssignRange([]float64{0, 1}, 0, 1, Wall); !errors.Is(err, ErrLabelLength) {
		t.Errorf("expected ErrLabelLength, got %v", err)
	}
	if _, err := set.AssignRange([]float64{0, 1, 2}, 0, 1, State(42)); !errors.Is(err, ErrUnknownState) {
		t.Errorf("expected ErrUnknownState, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := (Set{Unknown, Wall}).Validate(2); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (Set{Unknown}).Validate(2); !errors.Is(err, ErrLabelLength) {
		t.Errorf("expected ErrLabelLength, got %v", err)
	}
	if err := (Set{Unknown, State(7)}).Validate(2); !errors.Is(err, ErrUnknownState) {
		t.Errorf("expected ErrUnknownState, got %v", err)
	}
}

func TestBytesRoundTripAndCounts(t *testing.T) {
	set := Set{Blood1, Blood1, Clot}
	back := FromInts(set.Ints())
	for i := range set {
		if back[i] != set[i] {
			t.Fatalf("segment %d: expected %v, got %v", i, set[i], back[i])
		}
	}

	if FromInts([]int{-1})[0].Valid() || FromInts([]int{300})[0].Valid() {
		t.Errorf("out-of-range ints must map to an invalid state")
	}

	counts := set.Counts()
	if counts[Blood1] != 2 || counts[Clot] != 1 || counts[Wall] != 0 {
		t.Errorf("unexpected counts %v", counts)
	}
}
