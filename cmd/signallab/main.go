package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/signallab/internal/app"
	"github.com/chrissnell/signallab/internal/constants"
	"github.com/chrissnell/signallab/internal/log"
	"github.com/chrissnell/signallab/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "", "Path to the YAML configuration file. When empty, defaults and SIGNALLAB_* environment variables are used")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("signallab %s\n", constants.Version)
		os.Exit(0)
	}

	provider := configProvider(*cfgFile)

	// Load configuration
	cfg, err := provider.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading configuration. Did you pass the -config flag? Run with -h for help: %v\n", err)
		os.Exit(1)
	}

	// Set up logging
	if err := log.Init(log.Options{
		Debug:      *debug || cfg.Log.Debug,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Create and run the application
	application := app.New(provider, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}

func configProvider(cfgFile string) config.ConfigProvider {
	if cfgFile == "" {
		return config.NewEnvProvider()
	}
	filename, _ := filepath.Abs(cfgFile)
	return config.NewYAMLProvider(filename)
}
