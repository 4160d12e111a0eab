package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/engine/search"
	"github.com/flatscout/flatscout/internal/logging"
	"github.com/flatscout/flatscout/internal/tui"
	"github.com/flatscout/flatscout/internal/tui/views"
)

func runTUI(args []string) error {
	var cfgPath, logPath string
	var verbose bool

	fs := flag.NewFlagSet("flatscout", flag.ExitOnError)
	fs.StringVar(&cfgPath, "config", "", "Path to config file (optional)")
	fs.StringVar(&logPath, "log", "flatscout-tui.log", "Session log file")
	fs.BoolVar(&verbose, "verbose", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Log to a file so zap output never tears the rendered screen.
	logger, err := logging.NewFile(logPath, verbose)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	application, err := buildApp(cfgPath, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cache.NewJanitor(application.store, time.Hour, logger).Run(ctx)

	fmt.Fprintf(os.Stderr, "Log: %s\n", logPath)

	return tui.Run(views.LiveDeps{
		Engine:     application.engine,
		Exclusions: application.exclusions,
		Options: func() (search.Options, error) {
			return application.searchOptions()
		},
		Prepare: application.applyTransitToggle,
	})
}
