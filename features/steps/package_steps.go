//go:build integration

package steps

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/jchantrell/soundrip/internal/asset"
	"github.com/jchantrell/soundrip/internal/export"
	"github.com/jchantrell/soundrip/internal/pipeline"
	"github.com/jchantrell/soundrip/internal/sound"
	"github.com/jchantrell/soundrip/internal/source"
	"github.com/spf13/afero"

	"github.com/cucumber/godog"
)

// packageContext holds test state for package scenarios
type packageContext struct {
	fs           afero.Fs
	manifestPath string
	stats        pipeline.ExtractionStats
	err          error
}

// SharedPackageContext is reset before each scenario via Before hook
var SharedPackageContext *packageContext

func getPackageContext() *packageContext {
	return SharedPackageContext
}

func InitializePackageScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		SharedPackageContext = &packageContext{
			fs: afero.NewMemMapFs(),
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		SharedPackageContext = nil
		return c, nil
	})

	ctx.Step(`^a package "([^"]*)" holding a streaming sound wave with format "([^"]*)" and payload "([^"]*)" stored "([^"]*)" with "([^"]*)"$`, aPackageHoldingAStreamingSoundWave)
	ctx.Step(`^a package "([^"]*)" holding a cooked sound wave with format "([^"]*)" and payload "([^"]*)" stored "([^"]*)" with "([^"]*)"$`, aPackageHoldingACookedSoundWave)
	ctx.Step(`^a package "([^"]*)" without a sound wave$`, aPackageWithoutASoundWave)
	ctx.Step(`^a file "([^"]*)" containing "([^"]*)"$`, aFileContaining)
	ctx.Step(`^I run extraction on "([^"]*)" into "([^"]*)"$`, iRunExtractionOnInto)
	ctx.Step(`^the run reports (\d+) extracted, (\d+) unchanged, (\d+) without sound wave and (\d+) failed$`, theRunReports)
	ctx.Step(`^"([^"]*)" contains "([^"]*)"$`, fileContains)
}

func writePackage(path string, options asset.BuildOptions, rec *sound.Record) error {
	p := getPackageContext()

	b := asset.NewBuilder(options)
	if rec == nil {
		b.AddExport("Texture2D", "Icon", []byte{0})
	} else if err := b.AddSoundWave(*rec); err != nil {
		return err
	}

	data, bulk, err := b.Build()
	if err != nil {
		return err
	}
	if err := afero.WriteFile(p.fs, path, data, 0644); err != nil {
		return err
	}
	if bulk != nil {
		return afero.WriteFile(p.fs, source.BulkPath(path), bulk, 0644)
	}
	return nil
}

func buildOptions(placement, compression string) (asset.BuildOptions, error) {
	pl, err := asset.ParsePlacement(placement)
	if err != nil {
		return asset.BuildOptions{}, err
	}
	co, err := asset.ParseCompression(compression)
	if err != nil {
		return asset.BuildOptions{}, err
	}
	return asset.BuildOptions{Placement: pl, Compression: co}, nil
}

func aPackageHoldingAStreamingSoundWave(path, format, payload, placement, compression string) error {
	data, err := hex.DecodeString(payload)
	if err != nil {
		return err
	}
	options, err := buildOptions(placement, compression)
	if err != nil {
		return err
	}

	// Pad the chunk past its declared size
	rec := sound.Record{Name: "Wave", Storage: sound.Streaming{
		Format: format,
		Chunks: []sound.Chunk{{Size: len(data), Data: append(data, 0, 0, 0)}},
	}}
	return writePackage(path, options, &rec)
}

func aPackageHoldingACookedSoundWave(path, format, payload, placement, compression string) error {
	data, err := hex.DecodeString(payload)
	if err != nil {
		return err
	}
	options, err := buildOptions(placement, compression)
	if err != nil {
		return err
	}
	options.Cooked = true

	rec := sound.Record{Name: "Wave", Storage: sound.Cooked{
		Formats: []sound.FormatData{{Name: format, Data: data}},
	}}
	return writePackage(path, options, &rec)
}

func aPackageWithoutASoundWave(path string) error {
	return writePackage(path, asset.BuildOptions{}, nil)
}

func aFileContaining(path, content string) error {
	p := getPackageContext()
	data, err := hex.DecodeString(content)
	if err != nil {
		return err
	}
	return afero.WriteFile(p.fs, path, data, 0644)
}

func iRunExtractionOnInto(input, outputDir string) error {
	p := getPackageContext()

	paths, err := source.Resolve(p.fs, []string{input})
	if err != nil {
		return fmt.Errorf("resolving inputs: %w", err)
	}

	runner := pipeline.NewRunner(p.fs, export.NewWriter(p.fs, outputDir, false), nil, pipeline.Options{Workers: 2})
	_, p.stats, p.err = runner.Run(context.Background(), paths)
	if p.err != nil {
		return fmt.Errorf("unexpected error: %v", p.err)
	}
	return nil
}

func theRunReports(extracted, unchanged, noSoundWave, failed int) error {
	p := getPackageContext()
	s := p.stats
	if s.Extracted != extracted || s.Skipped != unchanged || s.NoSoundWave != noSoundWave || s.Failed != failed {
		return fmt.Errorf("expected %d/%d/%d/%d, got extracted=%d unchanged=%d no_sound_wave=%d failed=%d",
			extracted, unchanged, noSoundWave, failed,
			s.Extracted, s.Skipped, s.NoSoundWave, s.Failed)
	}
	return nil
}

func fileContains(path, content string) error {
	p := getPackageContext()
	want, err := hex.DecodeString(content)
	if err != nil {
		return err
	}
	got, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("expected %s to contain %s, got %x", path, content, got)
	}
	return nil
}
