package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memtest-go/internal/config"
	logger "memtest-go/internal/logging"
)

var (
	projectRoot string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "memtest",
	Short: "Symbol sequence memory test",
	Long: `memtest runs a web-based memory test: participants memorize sequences of
symbols, reproduce them from a grid and answer a short questionnaire.

Results are stored in the configured database and can be exported as xlsx or CSV.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root containing config/config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(serveCmd, migrateCmd, exportCmd, hashPasswordCmd)
}

// bootstrap loads the configuration and builds the logger for a command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, _, err := config.Load(projectRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	log, err := logger.Init(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
