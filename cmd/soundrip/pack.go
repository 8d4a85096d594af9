package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jchantrell/soundrip/internal/export"
	"github.com/jchantrell/soundrip/internal/manifest"
	"github.com/jchantrell/soundrip/internal/source"
	"github.com/jchantrell/soundrip/internal/utils"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	packOut string
)

var packCmd = &cobra.Command{
	Use:   "pack <manifest.yaml>",
	Short: "Build a package file from a YAML manifest",
	Long: `Pack assembles a package holding one sound wave, described by a YAML
manifest, and writes it as a .uasset file (plus a .ubulk file when payloads are
placed in a separate file). The result can be fed back to extract.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("overwrite") {
			cfg.Overwrite = overwrite
		}

		fsys := afero.NewOsFs()

		m, err := manifest.Load(fsys, args[0])
		if err != nil {
			return err
		}

		data, bulk, err := m.Build()
		if err != nil {
			return fmt.Errorf("building package %s: %w", m.Name, err)
		}

		out := packOut
		if out == "" {
			dir := cfg.OutputDir
			if dir == "" {
				dir = filepath.Dir(args[0])
			}
			out = filepath.Join(dir, m.Name+source.PackageExtension)
		}
		if !strings.EqualFold(filepath.Ext(out), source.PackageExtension) {
			return fmt.Errorf("output %s must have the %s extension", out, source.PackageExtension)
		}

		if err := writeOutput(fsys, out, data); err != nil {
			return err
		}
		if bulk != nil {
			if err := writeOutput(fsys, source.BulkPath(out), bulk); err != nil {
				return err
			}
		}

		slog.Info("Packed sound wave",
			"manifest", args[0],
			"output", out,
			"size", utils.Bytes(int64(len(data))),
			"bulk_size", utils.Bytes(int64(len(bulk))))
		return nil
	},
}

// writeOutput refuses to replace a file with different content unless
// overwriting is enabled.
func writeOutput(fsys afero.Fs, path string, data []byte) error {
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if exists && !cfg.Overwrite {
		same, err := export.Equal(fsys, path, data)
		if err != nil {
			return fmt.Errorf("checking %s: %w", path, err)
		}
		if same {
			slog.Debug("Output unchanged", "path", path)
			return nil
		}
		return fmt.Errorf("%w: %s", export.ErrExists, path)
	}
	return export.WriteFileAtomic(fsys, path, data)
}

func init() {
	rootCmd.AddCommand(packCmd)
	packCmd.Flags().StringVar(&packOut, "out", "", "output .uasset path (default is <name>.uasset next to the manifest)")
	packCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing outputs")
}
