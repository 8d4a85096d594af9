package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/jchantrell/soundrip/internal/database"
	"github.com/jchantrell/soundrip/internal/export"
	"github.com/jchantrell/soundrip/internal/pipeline"
	"github.com/jchantrell/soundrip/internal/source"
	"github.com/jchantrell/soundrip/internal/utils"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	overwrite bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [paths...]",
	Short: "Extract sound payloads from package files",
	Long: `Extract reads every given package file, and every .uasset file below the
given directories, and writes the sound payload of each to disk.

Sibling .ubulk files are loaded automatically. Outputs that already hold the
same bytes are skipped; outputs with different content are left alone unless
--overwrite is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if cmd.Flags().Changed("overwrite") {
			cfg.Overwrite = overwrite
		}

		fsys := afero.NewOsFs()

		paths, err := source.Resolve(fsys, args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			slog.Info("No packages found", "inputs", args)
			return nil
		}

		slog.Info("Starting extract...", "packages", len(paths), "workers", cfg.Workers)

		var recorder pipeline.Recorder
		if cfg.Catalog {
			catalog, closeCatalog, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog()
			recorder = catalog
		}

		writer := export.NewWriter(fsys, cfg.OutputDir, cfg.Overwrite)
		runner := pipeline.NewRunner(fsys, writer, recorder, pipeline.Options{
			Workers:  cfg.Workers,
			Progress: progressEnabled(),
		})

		_, stats, runErr := runner.Run(ctx, paths)
		printStats(stats)

		if runErr != nil {
			return runErr
		}
		if stats.Failed > 0 {
			return fmt.Errorf("%d of %d packages failed", stats.Failed, stats.Inputs)
		}
		return nil
	},
}

func openCatalog(ctx context.Context) (*database.Catalog, func(), error) {
	db, err := database.NewDatabase(database.DefaultDatabaseOptions(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("opening catalog: %w", err)
	}

	catalog := database.NewCatalog(db)
	if err := catalog.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("preparing catalog: %w", err)
	}

	return catalog, func() {
		if err := db.Close(); err != nil {
			slog.Warn("Failed to close catalog", "error", err)
		}
	}, nil
}

func printStats(stats pipeline.ExtractionStats) {
	fmt.Printf("Packages: %s\n", utils.Number(int64(stats.Inputs)))
	fmt.Printf("Extracted: %s\n", utils.Number(int64(stats.Extracted)))
	fmt.Printf("Unchanged: %s\n", utils.Number(int64(stats.Skipped)))
	fmt.Printf("Without sound wave: %s\n", utils.Number(int64(stats.NoSoundWave)))
	fmt.Printf("Failed: %s\n", utils.Number(int64(stats.Failed)))
	fmt.Printf("Written: %s\n", utils.Bytes(stats.BytesWritten))
	fmt.Printf("Duration: %s\n", utils.Duration(stats.Duration()))
	fmt.Printf("Rate: %s packages/sec\n", utils.Rate(stats.Rate()))
	if cfg.Catalog {
		fmt.Println("Try running: soundrip query --recent 10")
	}
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace outputs whose content differs")
}
