package recording

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func sample() *Recording {
	return &Recording{
		Name:   "trace-01",
		Signal: []float64{700, 701.5, 699.25},
		Times:  []float64{0, 1.0 / 30, 2.0 / 30},
		Labels: []int{3},
	}
}

func TestReadWriteMsgpack(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec, err := Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Name != "trace-01" || rec.Len() != 3 || rec.Signal[1] != 701.5 || rec.Labels[0] != 3 {
		t.Errorf("unexpected recording %+v", rec)
	}
}

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		signal  []float64
		wantErr bool
	}{
		{
			name:   "time first",
			input:  "time,signal\n0,700\n0.0333,702\n",
			signal: []float64{700, 702},
		},
		{
			name:   "signal first with extra column and spaces",
			input:  "magR, time_S, note\n710, 0, a\n 711, 0.1, b\n",
			signal: []float64{710, 711},
		},
		{
			name:    "missing signal column",
			input:   "time,value\n0,1\n",
			wantErr: true,
		},
		{
			name:    "bad number",
			input:   "time,signal\n0,abc\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ReadCSV(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(rec.Signal) != len(tt.signal) || len(rec.Times) != len(tt.signal) {
				t.Fatalf("expected %d samples, got %d/%d", len(tt.signal), len(rec.Signal), len(rec.Times))
			}
			for i := range tt.signal {
				if rec.Signal[i] != tt.signal[i] {
					t.Errorf("sample %d: expected %v, got %v", i, tt.signal[i], rec.Signal[i])
				}
			}
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	original := sample()
	for i := range original.Signal {
		if rec.Signal[i] != original.Signal[i] || rec.Times[i] != original.Times[i] {
			t.Errorf("sample %d differs after round trip", i)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := sample().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	short := sample()
	short.Times = short.Times[:2]
	if err := short.Validate(); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}

	backwards := sample()
	backwards.Times[2] = 0
	if err := backwards.Validate(); !errors.Is(err, ErrNonMonotonic) {
		t.Errorf("expected ErrNonMonotonic, got %v", err)
	}
}

func TestOpenSave(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"trace.slr", "trace.csv"} {
		path := filepath.Join(dir, name)
		if err := Save(path, sample()); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		rec, err := Open(path)
		if err != nil {
			t.Fatalf("%s: open: %v", name, err)
		}
		if rec.Len() != 3 {
			t.Errorf("%s: expected 3 samples, got %d", name, rec.Len())
		}
		if rec.Name == "" {
			t.Errorf("%s: expected a name", name)
		}
	}

	if err := Save(filepath.Join(dir, "trace.h5"), sample()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := Open(filepath.Join(dir, "missing.slr")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}
