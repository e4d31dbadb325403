// Package main runs a one-shot analysis of a recording file and writes the
// result as JSON, MessagePack or a per-segment CSV.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/signallab/internal/analysis"
	"github.com/chrissnell/signallab/internal/log"
	"github.com/chrissnell/signallab/internal/scatter"
	"github.com/chrissnell/signallab/pkg/config"
	"github.com/chrissnell/signallab/pkg/recording"
)

func main() {
	var (
		input   = flag.String("input", "", "Recording to analyze (.slr, .msgpack or .csv)")
		format  = flag.String("format", "json", "Output format: json, msgpack or csv")
		output  = flag.String("output", "", "Output file (default stdout)")
		workers = flag.Int("workers", 0, "Higuchi worker goroutines (0 keeps the configured value)")
		cfgFile = flag.String("config", "", "Optional YAML configuration supplying analysis parameters")
		view    = flag.String("scatter", "", "Write a scatter view (higuchi or range-baseline) instead of the full result")
		debug   = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "-input is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := log.Init(log.Options{Debug: *debug}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *input, *format, *output, *cfgFile, *view, *workers); err != nil {
		log.Errorf("analysis failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, input, format, output, cfgFile, view string, workers int) (err error) {
	cfg := config.Default()
	if cfgFile != "" {
		if cfg, err = config.NewYAMLProvider(cfgFile).LoadConfig(); err != nil {
			return err
		}
	}
	if workers > 0 {
		cfg.Analysis.Workers = workers
	}

	rec, err := recording.Open(input)
	if err != nil {
		return err
	}

	analyzer, err := analysis.NewAnalyzer(analysis.ParamsFromConfig(cfg.Analysis), nil, nil, log.GetSugaredLogger())
	if err != nil {
		return err
	}
	defer analyzer.Close()

	result, err := analyzer.Analyze(ctx, rec)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if output != "" {
		f, ferr := os.Create(output)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		out = f
	}

	var data interface{} = result
	if view != "" {
		plot, err := analysis.BuildScatter(result, scatter.Kind(view))
		if err != nil {
			return err
		}
		data = plot
	}

	return write(out, format, data, result)
}

func write(out io.Writer, format string, data interface{}, result *analysis.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "msgpack":
		enc := msgpack.NewEncoder(out)
		enc.SetCustomStructTag("json")
		return enc.Encode(data)
	case "csv":
		if _, ok := data.(*analysis.Result); !ok {
			return fmt.Errorf("csv output is only available for the full result")
		}
		return analysis.WriteSegmentsCSV(out, result)
	}
	return fmt.Errorf("unsupported output format %q", format)
}
