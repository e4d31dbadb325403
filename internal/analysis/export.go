package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/chrissnell/signallab/internal/higuchi"
	"github.com/chrissnell/signallab/internal/labels"
)

var segmentsHeader = []string{
	"segment", "time", "max", "min", "mean", "range", "std",
	"baseline", "baseline_spread",
	"hfd1", "hfd2", "hfd3", "hfd4", "hfd5", "slope", "hfd_mean",
	"label",
}

// WriteSegmentsCSV writes one row per segment combining every feature of result
func WriteSegmentsCSV(w io.Writer, result *Result) error {
	if result == nil || result.Combined == nil {
		return errors.New("no result to export")
	}

	n := result.Combined.Len()
	if len(result.Higuchi) != n {
		return fmt.Errorf("result has %d higuchi rows for %d segments", len(result.Higuchi), n)
	}
	set := labels.FromInts(result.Labels)
	if err := set.Validate(n); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(segmentsHeader); err != nil {
		return err
	}

	c := result.Combined
	for i := 0; i < n; i++ {
		seg := c.Segments[i]
		row := []string{
			strconv.Itoa(i),
			formatFloat(c.SegmentTimes[i]),
			formatFloat(seg.Max),
			formatFloat(seg.Min),
			formatFloat(seg.Mean),
			formatFloat(seg.Range),
			formatFloat(seg.StdDev),
			formatFloat(c.BaselineValue[i]),
			formatFloat(c.BaselineSpread[i]),
		}
		for k := 0; k < higuchi.NumScales; k++ {
			row = append(row, formatFloat(result.Higuchi[i].HFD[k]))
		}
		row = append(row,
			formatFloat(result.Higuchi[i].Slope),
			formatFloat(result.Higuchi[i].Mean()),
			set[i].String(),
		)

		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
