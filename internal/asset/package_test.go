package asset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/jchantrell/soundrip/internal/sound"
	"github.com/spf13/afero"
)

func testRecords() []sound.Record {
	compressible := bytes.Repeat([]byte("OggS"), 512)
	return []sound.Record{
		{
			Name: "Emote_Music_Streamed",
			Storage: sound.Streaming{
				Format: "OPUS",
				Chunks: []sound.Chunk{
					{Size: 3, Data: []byte{1, 2, 3, 9, 9}},
					{Size: 0, Data: []byte{}},
					{Size: 2048, Data: compressible},
				},
			},
		},
		{
			Name: "Emote_Music_Cooked",
			Storage: sound.Cooked{Formats: []sound.FormatData{
				{Name: "wem", Data: []byte{7, 8}},
				{Name: "OGG", Data: compressible},
			}},
		},
		{
			Name:    "Emote_Music_Uncooked",
			Storage: sound.Uncooked{RawData: compressible},
		},
		{
			Name:    "Emote_Music_Empty",
			Storage: sound.Uncooked{RawData: []byte{}},
		},
		{
			Name:    "Placeholder_Uncooked",
			Storage: sound.Uncooked{},
		},
		{
			Name:    "Placeholder_Streamed",
			Storage: sound.Streaming{},
		},
		{
			Name:    "Placeholder_Cooked",
			Storage: sound.Cooked{Formats: []sound.FormatData{}},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	placements := []Placement{PlacementInline, PlacementEndOfFile, PlacementSeparate}
	compressions := []Compression{CompressionNone, CompressionZLIB, CompressionLZ4}

	for _, placement := range placements {
		for _, compression := range compressions {
			for _, size64 := range []bool{false, true} {
				name := placement.String() + "/" + compression.String()
				if size64 {
					name += "/64"
				}
				t.Run(name, func(t *testing.T) {
					for _, rec := range testRecords() {
						b := NewBuilder(BuildOptions{
							Placement:   placement,
							Compression: compression,
							Size64:      size64,
						})
						if err := b.AddSoundWave(rec); err != nil {
							t.Fatalf("AddSoundWave(%s) failed: %v", rec.Name, err)
						}
						data, bulk, err := b.Build()
						if err != nil {
							t.Fatalf("Build failed: %v", err)
						}
						if placement == PlacementSeparate && bulk == nil {
							t.Fatal("separate placement produced no bulk file")
						}
						if placement != PlacementSeparate && bulk != nil {
							t.Fatalf("%s placement produced a bulk file", placement)
						}

						pkg, err := Parse("Emote", data, bulk)
						if err != nil {
							t.Fatalf("Parse(%s) failed: %v", rec.Name, err)
						}

						got, ok := pkg.SoundWave()
						if !ok {
							t.Fatalf("%s: no sound wave export", rec.Name)
						}
						assertRecordEqual(t, got, rec)
					}
				})
			}
		}
	}
}

// assertRecordEqual compares records treating nil and empty chunk/format
// data as equal, while keeping the absent/present distinction of the
// optional fields.
func assertRecordEqual(t *testing.T, got, want sound.Record) {
	t.Helper()

	if got.Name != want.Name {
		t.Errorf("name = %q, want %q", got.Name, want.Name)
	}
	if got.Shape() != want.Shape() {
		t.Fatalf("%s: shape = %s, want %s", want.Name, got.Shape(), want.Shape())
	}

	switch w := want.Storage.(type) {
	case sound.Streaming:
		g := got.Storage.(sound.Streaming)
		if g.Format != w.Format {
			t.Errorf("%s: format = %q, want %q", want.Name, g.Format, w.Format)
		}
		if (g.Chunks == nil) != (w.Chunks == nil) || len(g.Chunks) != len(w.Chunks) {
			t.Fatalf("%s: chunks = %v, want %v", want.Name, g.Chunks, w.Chunks)
		}
		for i := range w.Chunks {
			if g.Chunks[i].Size != w.Chunks[i].Size || !bytes.Equal(g.Chunks[i].Data, w.Chunks[i].Data) {
				t.Errorf("%s: chunk %d differs", want.Name, i)
			}
		}
	case sound.Cooked:
		g := got.Storage.(sound.Cooked)
		if len(g.Formats) != len(w.Formats) {
			t.Fatalf("%s: %d formats, want %d", want.Name, len(g.Formats), len(w.Formats))
		}
		for i := range w.Formats {
			if g.Formats[i].Name != w.Formats[i].Name || !bytes.Equal(g.Formats[i].Data, w.Formats[i].Data) {
				t.Errorf("%s: format %d differs", want.Name, i)
			}
		}
	case sound.Uncooked:
		g := got.Storage.(sound.Uncooked)
		if (g.RawData == nil) != (w.RawData == nil) {
			t.Fatalf("%s: raw data presence = %v, want %v", want.Name, g.RawData != nil, w.RawData != nil)
		}
		if !bytes.Equal(g.RawData, w.RawData) {
			t.Errorf("%s: raw data differs", want.Name)
		}
	}
}

func TestParseExtractsFirstSoundWave(t *testing.T) {
	b := NewBuilder(BuildOptions{Cooked: true})
	b.AddExport("Texture2D", "Icon", []byte{1, 2, 3, 4})
	if err := b.AddSoundWave(sound.Record{
		Name:    "First",
		Storage: sound.Cooked{Formats: []sound.FormatData{{Name: "wem", Data: []byte{7, 8}}}},
	}); err != nil {
		t.Fatalf("AddSoundWave failed: %v", err)
	}
	if err := b.AddSoundWave(sound.Record{
		Name:    "Second",
		Storage: sound.Uncooked{RawData: []byte{1}},
	}); err != nil {
		t.Fatalf("AddSoundWave failed: %v", err)
	}

	data, _, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	pkg, err := Parse("Mixed", data, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !pkg.Summary().Cooked() {
		t.Error("summary should report a cooked package")
	}
	if pkg.Name() != "Mixed" {
		t.Errorf("name = %q, want %q", pkg.Name(), "Mixed")
	}

	exports := pkg.Exports()
	if len(exports) != 3 {
		t.Fatalf("got %d exports, want 3", len(exports))
	}
	if exports[0].ClassName != "Texture2D" {
		t.Errorf("export 0 class = %q, want Texture2D", exports[0].ClassName)
	}
	if _, ok := exports[0].Sound(); ok {
		t.Error("texture export should not decode as a sound")
	}

	rec, ok := pkg.SoundWave()
	if !ok {
		t.Fatal("no sound wave found")
	}
	if rec.Name != "First" {
		t.Errorf("sound wave = %q, want First", rec.Name)
	}

	res, err := sound.Extract(rec)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !bytes.Equal(res.Payload, []byte{7, 8}) || res.Format != "wem" {
		t.Errorf("result = %v/%q, want [7 8]/wem", res.Payload, res.Format)
	}
}

func TestParseNoSoundWave(t *testing.T) {
	b := NewBuilder(BuildOptions{})
	b.AddExport("DataTable", "Table", nil)
	data, _, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	pkg, err := Parse("Table", data, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, ok := pkg.SoundWave(); ok {
		t.Error("package without sound exports reported a sound wave")
	}
}

func TestParseUnicodeNames(t *testing.T) {
	b := NewBuilder(BuildOptions{})
	if err := b.AddSoundWave(sound.Record{
		Name:    "Musique_Été",
		Storage: sound.Uncooked{RawData: []byte{1}},
	}); err != nil {
		t.Fatalf("AddSoundWave failed: %v", err)
	}
	data, _, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	pkg, err := Parse("Unicode", data, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []string{SoundWaveClass, "Musique_Été"}
	if !reflect.DeepEqual(pkg.Names(), want) {
		t.Errorf("names = %q", pkg.Names())
	}
	rec, _ := pkg.SoundWave()
	if rec.Name != "Musique_Été" {
		t.Errorf("record name = %q, want %q", rec.Name, "Musique_Été")
	}
}

func buildSingle(t *testing.T, options BuildOptions, rec sound.Record) ([]byte, []byte) {
	t.Helper()
	b := NewBuilder(options)
	if err := b.AddSoundWave(rec); err != nil {
		t.Fatalf("AddSoundWave failed: %v", err)
	}
	data, bulk, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return data, bulk
}

func TestParseErrors(t *testing.T) {
	rec := sound.Record{Name: "Wave", Storage: sound.Uncooked{RawData: []byte("payload")}}
	valid, _ := buildSingle(t, BuildOptions{}, rec)

	badMagic := bytes.Clone(valid)
	badMagic[0] ^= 0xff

	badVersion := bytes.Clone(valid)
	badVersion[4] = 9

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrInvalidPackage},
		{"short header", valid[:10], ErrInvalidPackage},
		{"bad magic", badMagic, ErrInvalidPackage},
		{"bad version", badVersion, ErrInvalidPackage},
		{"truncated body", valid[:len(valid)-3], ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("Broken", tt.data, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseExportSpan(t *testing.T) {
	rec := sound.Record{Name: "Wave", Storage: sound.Uncooked{RawData: []byte("payload")}}
	valid, _ := buildSingle(t, BuildOptions{}, rec)
	exportOffset := int(binary.LittleEndian.Uint32(valid[24:28]))

	tests := []struct {
		name   string
		size   uint64
		offset uint64
	}{
		{"past end", 8, uint64(len(valid))},
		{"size past end", uint64(len(valid)), 8},
		{"sum wraps negative", 1 << 62, 1 << 62},
		{"near max offset", 4, math.MaxInt64 - 2},
		{"negative size", math.MaxUint64, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Clone(valid)
			binary.LittleEndian.PutUint64(data[exportOffset+8:], tt.size)
			binary.LittleEndian.PutUint64(data[exportOffset+16:], tt.offset)

			if _, err := Parse("Broken", data, nil); !errors.Is(err, ErrTruncated) {
				t.Errorf("Parse error = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestParseMissingSeparateBulk(t *testing.T) {
	rec := sound.Record{Name: "Wave", Storage: sound.Uncooked{RawData: []byte("payload")}}
	data, bulk := buildSingle(t, BuildOptions{Placement: PlacementSeparate}, rec)

	if _, err := Parse("Wave", data, nil); !errors.Is(err, ErrBulkData) {
		t.Errorf("Parse without bulk file error = %v, want ErrBulkData", err)
	}
	if _, err := Parse("Wave", data, bulk[:len(bulk)-1]); !errors.Is(err, ErrTruncated) {
		t.Errorf("Parse with short bulk file error = %v, want ErrTruncated", err)
	}
}

func TestOpen(t *testing.T) {
	fsys := afero.NewMemMapFs()
	rec := sound.Record{
		Name: "Cheer",
		Storage: sound.Streaming{Format: "OGG", Chunks: []sound.Chunk{
			{Size: 2, Data: []byte{1, 2, 0}},
		}},
	}
	data, bulk := buildSingle(t, BuildOptions{Placement: PlacementSeparate}, rec)

	if err := afero.WriteFile(fsys, "/game/Cheer.uasset", data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "/game/Cheer.ubulk", bulk, 0644); err != nil {
		t.Fatal(err)
	}

	pkg, err := Open(fsys, "/game/Cheer.uasset")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if pkg.Name() != "Cheer" {
		t.Errorf("name = %q, want Cheer", pkg.Name())
	}

	got, ok := pkg.SoundWave()
	if !ok {
		t.Fatal("no sound wave found")
	}
	assertRecordEqual(t, got, rec)

	if _, err := Open(fsys, "/game/Missing.uasset"); err == nil {
		t.Error("Open of a missing file should fail")
	}
}
