// Package recording reads and writes signal recordings: an amplitude series,
// its timestamps, and an optional per-segment label array. Recordings are
// stored either as MessagePack containers (.slr) or as CSV (time,signal).
package recording

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/signallab/internal/series"
)

var (
	// ErrShapeMismatch is returned when signal and times differ in length
	ErrShapeMismatch = series.ErrShapeMismatch

	// ErrNonMonotonic is returned when timestamps decrease
	ErrNonMonotonic = errors.New("timestamps are not monotonically non-decreasing")

	// ErrUnsupportedFormat is returned for an unknown file extension
	ErrUnsupportedFormat = errors.New("unsupported recording format")
)

// Recording is one acquired trace
type Recording struct {
	Name   string    `json:"name" msgpack:"name"`
	Signal []float64 `json:"signal" msgpack:"signal"`
	Times  []float64 `json:"times" msgpack:"times"`
	Labels []int     `json:"labels,omitempty" msgpack:"labels,omitempty"`
}

// Len returns the number of samples
func (r *Recording) Len() int {
	return len(r.Signal)
}

// Validate checks the shape and time ordering of the recording
func (r *Recording) Validate() error {
	if len(r.Signal) != len(r.Times) {
		return fmt.Errorf("%w: %d samples, %d timestamps", ErrShapeMismatch, len(r.Signal), len(r.Times))
	}
	for i := 1; i < len(r.Times); i++ {
		if r.Times[i] < r.Times[i-1] {
			return fmt.Errorf("%w: t[%d]=%g < t[%d]=%g", ErrNonMonotonic, i, r.Times[i], i-1, r.Times[i-1])
		}
	}
	return nil
}

// Read decodes a MessagePack recording
func Read(r io.Reader) (*Recording, error) {
	var rec Recording
	if err := msgpack.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}
	return &rec, nil
}

// Write encodes rec as MessagePack
func Write(w io.Writer, rec *Recording) error {
	if err := msgpack.NewEncoder(w).Encode(rec); err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	return nil
}

// ReadCSV parses a CSV with a header row naming a "time" and a "signal"
// column, in any order. Other columns are ignored.
func ReadCSV(r io.Reader) (*Recording, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	timeCol, signalCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "time", "time_s":
			timeCol = i
		case "signal", "magr":
			signalCol = i
		}
	}
	if timeCol < 0 || signalCol < 0 {
		return nil, fmt.Errorf("CSV header must name time and signal columns, got %v", header)
	}

	rec := &Recording{}
	line := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		t, err := strconv.ParseFloat(strings.TrimSpace(fields[timeCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid time %q: %w", line, fields[timeCol], err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[signalCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid signal %q: %w", line, fields[signalCol], err)
		}

		rec.Times = append(rec.Times, t)
		rec.Signal = append(rec.Signal, v)
	}

	return rec, nil
}

// WriteCSV writes rec as time,signal rows
func WriteCSV(w io.Writer, rec *Recording) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"time", "signal"}); err != nil {
		return err
	}

	for i := range rec.Signal {
		row := []string{
			strconv.FormatFloat(rec.Times[i], 'f', -1, 64),
			strconv.FormatFloat(rec.Signal[i], 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// Open reads a recording from path, choosing the format by extension.
// A recording without a name is named after its file.
func Open(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rec *Recording
	switch strings.ToLower(filepath.Ext(path)) {
	case ".slr", ".msgpack":
		rec, err = Read(f)
	case ".csv":
		rec, err = ReadCSV(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if rec.Name == "" {
		rec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return rec, nil
}

// Save writes rec to path, choosing the format by extension
func Save(path string, rec *Recording) (err error) {
	var write func(io.Writer, *Recording) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".slr", ".msgpack":
		write = Write
	case ".csv":
		write = WriteCSV
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return write(f, rec)
}
