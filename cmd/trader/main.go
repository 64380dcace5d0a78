package main

import (
	"flag"
	"fmt"
	"os"

	"auto_trader/internal/bootstrap"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/trader.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("trader version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	app.Logger.Info("Starting trader",
		"version", version,
		"venue", app.Cfg.App.Venue,
		"quote_asset", app.Cfg.App.QuoteAsset,
		"testnet", app.Cfg.App.Testnet,
	)

	console := NewConsole(app, os.Stdin, os.Stdout)
	if err := app.Run(console); err != nil {
		os.Exit(1)
	}
}
