// featurepipe - batch feature pipeline for card-fraud scoring
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/avolkov/featurepipe/internal/config"
	"github.com/avolkov/featurepipe/internal/logging"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:          "featurepipe",
		Short:        "Compute windowed transaction features and publish per-account snapshots",
		Version:      Version,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newVerifyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by all subcommands.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("featurepipe starting",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
	)
	return cfg, logger, nil
}
