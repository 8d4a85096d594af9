//go:build integration

package steps

import (
	"fmt"

	"github.com/jchantrell/soundrip/internal/export"
	"github.com/jchantrell/soundrip/internal/manifest"
	"github.com/jchantrell/soundrip/internal/source"
	"github.com/spf13/afero"

	"github.com/cucumber/godog"
)

func InitializePackScenario(ctx *godog.ScenarioContext) {
	ctx.Step(`^a manifest "([^"]*)" with placement "([^"]*)" and compression "([^"]*)" for chunk data "([^"]*)"$`, aManifestFor)
	ctx.Step(`^I pack the manifest to "([^"]*)"$`, iPackTheManifestTo)
}

func aManifestFor(path, placement, compression, data string) error {
	p := getPackageContext()

	content := fmt.Sprintf(`placement: %s
compression: %s
sound_wave:
  name: Cheer
  streaming: true
  format: OGG
  chunks:
    - hex: "%s"
      padding: 4
`, placement, compression, data)

	p.manifestPath = path
	return afero.WriteFile(p.fs, path, []byte(content), 0644)
}

func iPackTheManifestTo(out string) error {
	p := getPackageContext()

	m, err := manifest.Load(p.fs, p.manifestPath)
	if err != nil {
		return err
	}
	data, bulk, err := m.Build()
	if err != nil {
		return fmt.Errorf("building package: %w", err)
	}

	if err := export.WriteFileAtomic(p.fs, out, data); err != nil {
		return err
	}
	if bulk != nil {
		return export.WriteFileAtomic(p.fs, source.BulkPath(out), bulk)
	}
	return nil
}
