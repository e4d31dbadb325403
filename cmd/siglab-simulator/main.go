// Package main writes a synthetic recording with ground-truth segment labels.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/signallab/internal/labels"
	"github.com/chrissnell/signallab/internal/log"
	"github.com/chrissnell/signallab/internal/simulate"
	"github.com/chrissnell/signallab/pkg/recording"
)

func main() {
	opts := simulate.DefaultOptions()

	output := flag.String("output", "simulated.slr", "Output path; the extension selects .slr/.msgpack or .csv")
	flag.StringVar(&opts.Name, "name", opts.Name, "Recording name")
	flag.Float64Var(&opts.Seconds, "seconds", opts.Seconds, "Duration in seconds")
	flag.Float64Var(&opts.Rate, "rate", opts.Rate, "Samples per second")
	flag.IntVar(&opts.SamplesPerSegment, "segment", opts.SamplesPerSegment, "Samples per segment")
	flag.Float64Var(&opts.Baseline, "baseline", opts.Baseline, "Blood plateau level")
	flag.Float64Var(&opts.Drift, "drift", opts.Drift, "Plateau drift per second")
	flag.Float64Var(&opts.Noise, "noise", opts.Noise, "Gaussian noise standard deviation")
	flag.IntVar(&opts.WallEvents, "walls", opts.WallEvents, "Number of wall contact events")
	flag.Float64Var(&opts.WallAmplitude, "wall-amplitude", opts.WallAmplitude, "Wall contact excursion")
	flag.IntVar(&opts.ClotEvents, "clots", opts.ClotEvents, "Number of clot ramps")
	flag.Float64Var(&opts.ClotOffset, "clot-offset", opts.ClotOffset, "Clot ramp height")
	flag.Int64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(log.Options{Debug: *debug}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	rec, err := simulate.Generate(opts)
	if err != nil {
		log.Fatalf("unable to generate recording: %v", err)
	}

	if err := recording.Save(*output, rec); err != nil {
		log.Fatalf("unable to write %s: %v", *output, err)
	}

	counts := labels.FromInts(rec.Labels).Counts()
	log.Infow("wrote simulated recording",
		"path", *output,
		"samples", rec.Len(),
		"segments", len(rec.Labels),
		"walls", counts[labels.Wall],
		"clots", counts[labels.Clot])
}
