//go:build integration

package steps

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/jchantrell/soundrip/internal/sound"

	"github.com/cucumber/godog"
)

// recordContext holds test state for record scenarios
type recordContext struct {
	record sound.Record
	result sound.Result
	err    error
}

// SharedRecordContext is reset before each scenario via Before hook
var SharedRecordContext *recordContext

func getRecordContext() *recordContext {
	return SharedRecordContext
}

func InitializeRecordScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		SharedRecordContext = &recordContext{}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		SharedRecordContext = nil
		return c, nil
	})

	ctx.Step(`^a streaming sound wave "([^"]*)" with format "([^"]*)" and chunks:$`, aStreamingSoundWaveWithChunks)
	ctx.Step(`^a streaming sound wave "([^"]*)" with format "([^"]*)" and no chunks$`, aStreamingSoundWaveWithNoChunks)
	ctx.Step(`^a streaming sound wave "([^"]*)" without format$`, aStreamingSoundWaveWithoutFormat)
	ctx.Step(`^a cooked sound wave "([^"]*)" with formats:$`, aCookedSoundWaveWithFormats)
	ctx.Step(`^a cooked sound wave "([^"]*)" without formats$`, aCookedSoundWaveWithoutFormats)
	ctx.Step(`^an uncooked sound wave "([^"]*)" with raw data "([^"]*)"$`, anUncookedSoundWaveWithRawData)
	ctx.Step(`^an uncooked sound wave "([^"]*)" without raw data$`, anUncookedSoundWaveWithoutRawData)
	ctx.Step(`^I extract the payload$`, iExtractThePayload)
	ctx.Step(`^the payload is "([^"]*)"$`, thePayloadIs)
	ctx.Step(`^the format is "([^"]*)"$`, theFormatIs)
	ctx.Step(`^the extraction fails with "([^"]*)"$`, theExtractionFailsWith)
}

func aStreamingSoundWaveWithChunks(name, format string, table *godog.Table) error {
	r := getRecordContext()

	var chunks []sound.Chunk
	for i, row := range table.Rows {
		if i == 0 {
			continue // header
		}
		size, err := strconv.Atoi(row.Cells[0].Value)
		if err != nil {
			return fmt.Errorf("row %d size: %w", i, err)
		}
		data, err := hex.DecodeString(row.Cells[1].Value)
		if err != nil {
			return fmt.Errorf("row %d data: %w", i, err)
		}
		chunks = append(chunks, sound.Chunk{Size: size, Data: data})
	}

	r.record = sound.Record{Name: name, Storage: sound.Streaming{Format: format, Chunks: chunks}}
	return nil
}

func aStreamingSoundWaveWithNoChunks(name, format string) error {
	r := getRecordContext()
	r.record = sound.Record{Name: name, Storage: sound.Streaming{Format: format}}
	return nil
}

func aStreamingSoundWaveWithoutFormat(name string) error {
	r := getRecordContext()
	r.record = sound.Record{Name: name, Storage: sound.Streaming{
		Chunks: []sound.Chunk{{Size: 1, Data: []byte{1}}},
	}}
	return nil
}

func aCookedSoundWaveWithFormats(name string, table *godog.Table) error {
	r := getRecordContext()

	var formats []sound.FormatData
	for i, row := range table.Rows {
		if i == 0 {
			continue // header
		}
		data, err := hex.DecodeString(row.Cells[1].Value)
		if err != nil {
			return fmt.Errorf("row %d data: %w", i, err)
		}
		formats = append(formats, sound.FormatData{Name: row.Cells[0].Value, Data: data})
	}

	r.record = sound.Record{Name: name, Storage: sound.Cooked{Formats: formats}}
	return nil
}

func aCookedSoundWaveWithoutFormats(name string) error {
	r := getRecordContext()
	r.record = sound.Record{Name: name, Storage: sound.Cooked{}}
	return nil
}

func anUncookedSoundWaveWithRawData(name, raw string) error {
	r := getRecordContext()
	data, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("raw data: %w", err)
	}
	r.record = sound.Record{Name: name, Storage: sound.Uncooked{RawData: data}}
	return nil
}

func anUncookedSoundWaveWithoutRawData(name string) error {
	r := getRecordContext()
	r.record = sound.Record{Name: name, Storage: sound.Uncooked{}}
	return nil
}

func iExtractThePayload() error {
	r := getRecordContext()
	r.result, r.err = sound.Extract(r.record)
	return nil
}

func thePayloadIs(want string) error {
	r := getRecordContext()
	if r.err != nil {
		return fmt.Errorf("unexpected error: %v", r.err)
	}
	data, err := hex.DecodeString(want)
	if err != nil {
		return err
	}
	if !bytes.Equal(r.result.Payload, data) {
		return fmt.Errorf("expected payload %s, got %x", want, r.result.Payload)
	}
	return nil
}

func theFormatIs(want string) error {
	r := getRecordContext()
	if r.result.Format != want {
		return fmt.Errorf("expected format %q, got %q", want, r.result.Format)
	}
	return nil
}

func theExtractionFailsWith(kind string) error {
	r := getRecordContext()
	if r.err == nil {
		return fmt.Errorf("expected extraction to fail with %s, got payload %x", kind, r.result.Payload)
	}

	var extractionErr *sound.ExtractionError
	if !errors.As(r.err, &extractionErr) {
		return fmt.Errorf("expected an extraction error, got %v", r.err)
	}
	if extractionErr.Kind.String() != kind {
		return fmt.Errorf("expected failure kind %s, got %s", kind, extractionErr.Kind)
	}
	if extractionErr.Name != r.record.Name {
		return fmt.Errorf("expected error to name %q, got %q", r.record.Name, extractionErr.Name)
	}
	return nil
}
