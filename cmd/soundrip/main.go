package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jchantrell/soundrip/internal/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	cfgFile string

	outputDir  string
	dbPath     string
	workers    int
	logLevel   string
	logFormat  string
	noProgress bool
	noCatalog  bool
)

var rootCmd = &cobra.Command{
	Use:   "soundrip",
	Short: "Sound payload extraction tool for game packages",
	Long: `soundrip pulls playable audio out of game package files.

Every package's sound-wave export is inspected, the stored payload is
reassembled (streamed chunks, cooked formats or raw data) and written next to
the package or into an output directory, tagged with its format. Outcomes are
recorded in a SQLite catalog that can be queried afterwards.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("output") {
			cfg.OutputDir = outputDir
		}
		if cmd.Flags().Changed("database") {
			cfg.Database = dbPath
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = workers
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if cmd.Flags().Changed("no-catalog") {
			cfg.Catalog = !noCatalog
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		var handler slog.Handler
		if cfg.LogFormat == config.LogFormatJSON {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: cfg.SlogLevel(),
			})
		}

		logger := slog.New(handler)
		slog.SetDefault(logger)

		slog.Debug("Configuration",
			"output_dir", cfg.OutputDir,
			"database", cfg.Database,
			"catalog", cfg.Catalog,
			"workers", cfg.Workers,
			"overwrite", cfg.Overwrite,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

// progressEnabled reports whether commands should draw progress bars
func progressEnabled() bool {
	return !(noProgress || cfg.LogFormat == config.LogFormatJSON || cfg.LogLevel == config.LogLevelDebug)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is soundrip.yaml in home or pwd)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory (default is next to each package)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "", "catalog database file path")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "number of packages processed concurrently")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
	rootCmd.PersistentFlags().BoolVar(&noCatalog, "no-catalog", false, "do not record outcomes in the catalog")
}
