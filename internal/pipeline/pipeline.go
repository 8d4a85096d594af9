// Package pipeline runs extraction over a set of package files: each file is
// opened, its sound wave extracted and written, and the outcome recorded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jchantrell/soundrip/internal/asset"
	"github.com/jchantrell/soundrip/internal/database"
	"github.com/jchantrell/soundrip/internal/export"
	"github.com/jchantrell/soundrip/internal/sound"
	"github.com/jchantrell/soundrip/internal/utils"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
)

// Recorder stores extraction outcomes
type Recorder interface {
	RecordBatch(ctx context.Context, entries []database.Entry) error
}

// Outcome is the result of processing one package file
type Outcome struct {
	Source  string
	Export  string
	Status  string
	Format  string
	Written export.Written
	Err     error
	At      time.Time
}

// Entry converts the outcome into a catalog row
func (o Outcome) Entry() database.Entry {
	e := database.Entry{
		Source:      o.Source,
		Export:      o.Export,
		Status:      o.Status,
		Format:      o.Format,
		ExtractedAt: o.At,
	}
	if o.Status == database.StatusExtracted || o.Status == database.StatusSkipped {
		e.Size = o.Written.Size
		e.Digest = o.Written.Digest
		e.Output = o.Written.Path
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

// ExtractionStats summarizes a run
type ExtractionStats struct {
	StartTime    time.Time
	EndTime      time.Time
	Inputs       int
	Extracted    int
	Skipped      int
	NoSoundWave  int
	Failed       int
	BytesWritten int64
}

// Duration returns the wall time of the run
func (s ExtractionStats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Rate returns processed inputs per second
func (s ExtractionStats) Rate() float64 {
	seconds := s.Duration().Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(s.Inputs) / seconds
}

// Options configures a Runner
type Options struct {
	// Workers is the number of packages processed concurrently
	Workers int

	// Progress draws a progress bar when stderr is a terminal
	Progress bool
}

// Runner extracts sound payloads from package files
type Runner struct {
	fs       afero.Fs
	writer   *export.Writer
	recorder Recorder
	options  Options
}

// NewRunner creates a runner. recorder may be nil to skip cataloging.
func NewRunner(fs afero.Fs, writer *export.Writer, recorder Recorder, options Options) *Runner {
	if options.Workers < 1 {
		options.Workers = 1
	}
	return &Runner{
		fs:       fs,
		writer:   writer,
		recorder: recorder,
		options:  options,
	}
}

// Run processes every path and returns the outcomes in input order.
// Failures of individual packages are reported through the outcomes and
// stats; the error covers cancellation and cataloging.
func (r *Runner) Run(ctx context.Context, paths []string) ([]Outcome, ExtractionStats, error) {
	stats := ExtractionStats{
		StartTime: time.Now(),
		Inputs:    len(paths),
	}

	progress := utils.NewProgress(len(paths), r.options.Progress)
	outcomes := make([]Outcome, len(paths))

	p := pool.New().WithMaxGoroutines(r.options.Workers).WithContext(ctx)
	for i, path := range paths {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.Process(path)
			progress.Increment(filepath.Base(path))
			return nil
		})
	}
	waitErr := p.Wait()

	progress.Finish()

	// Outcomes of packages never started stay zero and are dropped
	done := outcomes[:0]
	for _, o := range outcomes {
		if o.Source != "" {
			done = append(done, o)
		}
	}
	outcomes = done

	for _, o := range outcomes {
		switch o.Status {
		case database.StatusExtracted:
			stats.Extracted++
			stats.BytesWritten += o.Written.Size
		case database.StatusSkipped:
			stats.Skipped++
		case database.StatusNoSoundWave:
			stats.NoSoundWave++
		default:
			stats.Failed++
		}
	}
	stats.EndTime = time.Now()

	if r.recorder != nil && len(outcomes) > 0 {
		entries := make([]database.Entry, len(outcomes))
		for i, o := range outcomes {
			entries[i] = o.Entry()
		}
		// The catalog is written even when the run was canceled
		if err := r.recorder.RecordBatch(context.WithoutCancel(ctx), entries); err != nil {
			return outcomes, stats, fmt.Errorf("recording outcomes: %w", err)
		}
	}

	if waitErr != nil {
		slog.Warn("Extraction canceled", "processed", len(outcomes), "inputs", len(paths))
		return outcomes, stats, fmt.Errorf("extraction canceled: %w", waitErr)
	}

	return outcomes, stats, nil
}

// Process extracts the sound wave of a single package file
func (r *Runner) Process(path string) Outcome {
	o := Outcome{Source: path, At: time.Now()}

	pkg, err := asset.Open(r.fs, path)
	if err != nil {
		slog.Error("Failed to open package", "path", path, "error", err)
		o.Status = database.StatusFailed
		o.Err = err
		return o
	}

	rec, ok := pkg.SoundWave()
	if !ok {
		slog.Debug("Package has no sound wave", "path", path, "exports", len(pkg.Exports()))
		o.Status = database.StatusNoSoundWave
		return o
	}
	o.Export = rec.Name

	res, err := sound.Extract(rec)
	if err != nil {
		var extractionErr *sound.ExtractionError
		if errors.As(err, &extractionErr) {
			slog.Error("No payload to extract", "path", path, "export", rec.Name, "shape", rec.Shape(), "kind", extractionErr.Kind)
		} else {
			slog.Error("Failed to extract payload", "path", path, "export", rec.Name, "error", err)
		}
		o.Status = database.StatusFailed
		o.Err = err
		return o
	}
	o.Format = res.Format

	written, err := r.writer.Write(path, res)
	if err != nil {
		slog.Error("Failed to write payload", "path", path, "output", written.Path, "error", err)
		o.Status = database.StatusFailed
		o.Err = err
		return o
	}
	o.Written = written

	if written.Skipped {
		o.Status = database.StatusSkipped
	} else {
		o.Status = database.StatusExtracted
	}
	slog.Debug("Processed package", "path", path, "status", o.Status, "format", res.Format, "size", written.Size)

	return o
}
