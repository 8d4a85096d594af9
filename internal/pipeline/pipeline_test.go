package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/jchantrell/soundrip/internal/asset"
	"github.com/jchantrell/soundrip/internal/database"
	"github.com/jchantrell/soundrip/internal/export"
	"github.com/jchantrell/soundrip/internal/sound"
	"github.com/spf13/afero"
)

type memoryRecorder struct {
	entries []database.Entry
	err     error
}

func (m *memoryRecorder) RecordBatch(_ context.Context, entries []database.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func writePackage(t *testing.T, fsys afero.Fs, path string, build func(b *asset.Builder)) {
	t.Helper()
	b := asset.NewBuilder(asset.BuildOptions{})
	build(b)
	data, _, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func addWave(t *testing.T, rec sound.Record) func(b *asset.Builder) {
	return func(b *asset.Builder) {
		if err := b.AddSoundWave(rec); err != nil {
			t.Fatalf("AddSoundWave failed: %v", err)
		}
	}
}

func setupGame(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()

	writePackage(t, fsys, "/game/Cheer.uasset", addWave(t, sound.Record{
		Name: "Cheer",
		Storage: sound.Streaming{Format: "OGG", Chunks: []sound.Chunk{
			{Size: 2, Data: []byte{1, 2, 0}},
			{Size: 1, Data: []byte{3}},
		}},
	}))
	writePackage(t, fsys, "/game/Bell.uasset", addWave(t, sound.Record{
		Name:    "Bell",
		Storage: sound.Cooked{Formats: []sound.FormatData{{Name: "WEM", Data: []byte{9}}}},
	}))
	writePackage(t, fsys, "/game/Broken.uasset", addWave(t, sound.Record{
		Name:    "Broken",
		Storage: sound.Streaming{Format: "OGG"},
	}))
	writePackage(t, fsys, "/game/Icon.uasset", func(b *asset.Builder) {
		b.AddExport("Texture2D", "Icon", []byte{0})
	})
	if err := afero.WriteFile(fsys, "/game/Garbage.uasset", []byte("not a package"), 0644); err != nil {
		t.Fatal(err)
	}

	return fsys
}

func TestRun(t *testing.T) {
	fsys := setupGame(t)
	recorder := &memoryRecorder{}
	runner := NewRunner(fsys, export.NewWriter(fsys, "/out", false), recorder, Options{Workers: 3})

	paths := []string{
		"/game/Bell.uasset",
		"/game/Broken.uasset",
		"/game/Cheer.uasset",
		"/game/Garbage.uasset",
		"/game/Icon.uasset",
	}
	outcomes, stats, err := runner.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantStatus := []string{
		database.StatusExtracted,
		database.StatusFailed,
		database.StatusExtracted,
		database.StatusFailed,
		database.StatusNoSoundWave,
	}
	if len(outcomes) != len(paths) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(paths))
	}
	for i, o := range outcomes {
		if o.Source != paths[i] {
			t.Errorf("outcome %d source = %s, want %s", i, o.Source, paths[i])
		}
		if o.Status != wantStatus[i] {
			t.Errorf("%s: status = %s, want %s (err=%v)", o.Source, o.Status, wantStatus[i], o.Err)
		}
	}

	if !errors.Is(outcomes[1].Err, sound.ErrNoStreamedPayload) {
		t.Errorf("broken package error = %v, want ErrNoStreamedPayload", outcomes[1].Err)
	}
	if !errors.Is(outcomes[3].Err, asset.ErrInvalidPackage) {
		t.Errorf("garbage package error = %v, want ErrInvalidPackage", outcomes[3].Err)
	}

	if stats.Inputs != 5 || stats.Extracted != 2 || stats.Failed != 2 || stats.NoSoundWave != 1 || stats.Skipped != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.BytesWritten != 4 {
		t.Errorf("bytes written = %d, want 4", stats.BytesWritten)
	}

	cheer, err := afero.ReadFile(fsys, "/out/Cheer.ogg")
	if err != nil {
		t.Fatalf("reading Cheer output: %v", err)
	}
	if string(cheer) != "\x01\x02\x03" {
		t.Errorf("Cheer output = %v, want [1 2 3]", cheer)
	}
	if ok, _ := afero.Exists(fsys, "/out/Bell.wem"); !ok {
		t.Error("Bell output missing")
	}

	if len(recorder.entries) != 5 {
		t.Fatalf("recorded %d entries, want 5", len(recorder.entries))
	}
	bell := recorder.entries[0]
	if bell.Output != "/out/Bell.wem" || bell.Format != "WEM" || bell.Size != 1 || bell.Digest == "" {
		t.Errorf("bell entry = %+v", bell)
	}
	if recorder.entries[1].Error == "" || recorder.entries[1].Output != "" {
		t.Errorf("broken entry = %+v", recorder.entries[1])
	}

	// A second run finds identical outputs
	_, again, err := runner.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if again.Skipped != 2 || again.Extracted != 0 {
		t.Errorf("second run stats = %+v, want 2 skipped", again)
	}
}

func TestRunWithoutRecorder(t *testing.T) {
	fsys := setupGame(t)
	runner := NewRunner(fsys, export.NewWriter(fsys, "", false), nil, Options{})

	outcomes, stats, err := runner.Run(context.Background(), []string{"/game/Cheer.uasset"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Extracted != 1 || outcomes[0].Written.Path != "/game/Cheer.ogg" {
		t.Errorf("outcome = %+v", outcomes[0])
	}
}

func TestRunRecorderError(t *testing.T) {
	fsys := setupGame(t)
	recorder := &memoryRecorder{err: errors.New("disk full")}
	runner := NewRunner(fsys, export.NewWriter(fsys, "/out", false), recorder, Options{Workers: 1})

	if _, _, err := runner.Run(context.Background(), []string{"/game/Cheer.uasset"}); err == nil {
		t.Error("Run should surface recorder errors")
	}
}

func TestRunCanceled(t *testing.T) {
	fsys := setupGame(t)
	recorder := &memoryRecorder{}
	runner := NewRunner(fsys, export.NewWriter(fsys, "/out", false), recorder, Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, _, err := runner.Run(ctx, []string{"/game/Cheer.uasset", "/game/Bell.uasset"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if len(outcomes) != 0 || len(recorder.entries) != 0 {
		t.Errorf("canceled run processed %d packages", len(outcomes))
	}
}

func TestRunConflictingOutput(t *testing.T) {
	fsys := setupGame(t)
	if err := afero.WriteFile(fsys, "/out/Cheer.ogg", []byte("someone else's file"), 0644); err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(fsys, export.NewWriter(fsys, "/out", false), nil, Options{Workers: 1})

	outcomes, stats, err := runner.Run(context.Background(), []string{"/game/Cheer.uasset"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Failed != 1 || !errors.Is(outcomes[0].Err, export.ErrExists) {
		t.Errorf("outcome = %+v", outcomes[0])
	}
}

func TestStatsRate(t *testing.T) {
	var stats ExtractionStats
	if stats.Rate() != 0 {
		t.Errorf("zero-duration rate = %v, want 0", stats.Rate())
	}
}
