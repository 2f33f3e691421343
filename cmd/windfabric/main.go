package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/windmobile/windfabric/internal/app"
	"github.com/windmobile/windfabric/internal/config"
	"github.com/windmobile/windfabric/internal/log"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("windfabric %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Load configuration from the environment
	cfg, err := config.Load()
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	if cfg.SentryURL != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryURL,
			Environment: cfg.Environment,
		})
		if err != nil {
			log.Errorf("Failed to initialize sentry: %v", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Create and run the application
	application := app.New(cfg)
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}
