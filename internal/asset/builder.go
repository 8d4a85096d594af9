package asset

import (
	"fmt"
	"strings"

	"github.com/jchantrell/soundrip/internal/sound"
)

// Placement selects where the builder stores bulk payloads.
type Placement int

const (
	PlacementInline Placement = iota
	PlacementEndOfFile
	PlacementSeparate
)

// String returns the manifest name of the placement.
func (p Placement) String() string {
	switch p {
	case PlacementInline:
		return "inline"
	case PlacementEndOfFile:
		return "end"
	case PlacementSeparate:
		return "separate"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParsePlacement parses a placement from its manifest name. An empty name
// selects inline storage.
func ParsePlacement(name string) (Placement, error) {
	switch strings.ToLower(name) {
	case "", "inline":
		return PlacementInline, nil
	case "end":
		return PlacementEndOfFile, nil
	case "separate":
		return PlacementSeparate, nil
	default:
		return 0, fmt.Errorf("unknown bulk placement: %q", name)
	}
}

// Compression selects how the builder encodes bulk payloads. Oodle
// payloads can be read but not written.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZLIB
	CompressionLZ4
)

// String returns the manifest name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZLIB:
		return "zlib"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// ParseCompression parses a compression from its manifest name. An empty
// name selects no compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "zlib":
		return CompressionZLIB, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown bulk compression: %q", name)
	}
}

// BuildOptions configures a Builder.
type BuildOptions struct {
	Placement   Placement
	Compression Compression

	// Size64 writes 64-bit bulk sizes
	Size64 bool

	// Cooked sets PackageFlagFilterEditorOnly in the summary
	Cooked bool
}

// Builder serializes exports into a package.
type Builder struct {
	options   BuildOptions
	names     []string
	nameIndex map[string]int32
	exports   []builtExport
	bulk      *bulkEncoder
}

type builtExport struct {
	class  int32
	object int32
	body   []byte
}

// NewBuilder creates an empty package builder.
func NewBuilder(options BuildOptions) *Builder {
	return &Builder{
		options:   options,
		nameIndex: make(map[string]int32),
		bulk: &bulkEncoder{
			placement:   options.Placement,
			compression: options.Compression,
			size64:      options.Size64,
		},
	}
}

func (b *Builder) name(s string) int32 {
	if idx, ok := b.nameIndex[s]; ok {
		return idx
	}
	idx := int32(len(b.names))
	b.names = append(b.names, s)
	b.nameIndex[s] = idx
	return idx
}

// AddSoundWave appends a SoundWave export serialized from rec.
func (b *Builder) AddSoundWave(rec sound.Record) error {
	if rec.Name == "" {
		return fmt.Errorf("sound wave export needs a name")
	}

	var w archiveWriter
	switch s := rec.Storage.(type) {
	case sound.Streaming:
		w.bool(true)
		w.bool(true)
		if s.Format == "" {
			w.int32(-1)
		} else {
			w.int32(b.name(s.Format))
		}
		if s.Chunks == nil {
			w.int32(-1)
			break
		}
		w.int32(int32(len(s.Chunks)))
		for i, chunk := range s.Chunks {
			w.int32(int32(chunk.Size))
			if err := b.bulk.write(&w, chunk.Data); err != nil {
				return fmt.Errorf("writing chunk %d: %w", i, err)
			}
		}

	case sound.Cooked:
		w.bool(true)
		w.bool(false)
		w.int32(int32(len(s.Formats)))
		for _, format := range s.Formats {
			w.int32(b.name(format.Name))
			if err := b.bulk.write(&w, format.Data); err != nil {
				return fmt.Errorf("writing format %s: %w", format.Name, err)
			}
		}

	case sound.Uncooked:
		w.bool(false)
		w.bool(false)
		w.bool(s.RawData != nil)
		if s.RawData != nil {
			if err := b.bulk.write(&w, s.RawData); err != nil {
				return fmt.Errorf("writing raw data: %w", err)
			}
		}

	default:
		return fmt.Errorf("sound wave %s has no storage", rec.Name)
	}

	b.exports = append(b.exports, builtExport{
		class:  b.name(SoundWaveClass),
		object: b.name(rec.Name),
		body:   w.Bytes(),
	})
	return nil
}

// AddExport appends an export of any class with a pre-serialized body.
func (b *Builder) AddExport(className, objectName string, body []byte) {
	b.exports = append(b.exports, builtExport{
		class:  b.name(className),
		object: b.name(objectName),
		body:   body,
	})
}

// Build lays out the package. It returns the package bytes and the
// separate bulk file contents, which is nil unless payloads were placed in
// a separate file.
func (b *Builder) Build() ([]byte, []byte, error) {
	if len(b.exports) == 0 {
		return nil, nil, fmt.Errorf("package has no exports")
	}

	var nameMap archiveWriter
	for _, name := range b.names {
		nameMap.fstring(name)
	}

	nameOffset := int64(summarySize)
	exportOffset := nameOffset + int64(nameMap.Len())
	bodyOffset := exportOffset + int64(len(b.exports))*exportEntrySize

	var exportMap archiveWriter
	offset := bodyOffset
	for _, export := range b.exports {
		exportMap.int32(export.class)
		exportMap.int32(export.object)
		exportMap.int64(int64(len(export.body)))
		exportMap.int64(offset)
		offset += int64(len(export.body))
	}
	bulkStart := offset

	var flags uint32
	if b.options.Cooked {
		flags |= PackageFlagFilterEditorOnly
	}

	var out archiveWriter
	out.uint32(PackageMagic)
	out.int32(FileVersion)
	out.uint32(flags)
	out.int32(int32(len(b.names)))
	out.int32(int32(nameOffset))
	out.int32(int32(len(b.exports)))
	out.int32(int32(exportOffset))
	out.int64(bulkStart)
	out.buf.Write(nameMap.Bytes())
	out.buf.Write(exportMap.Bytes())
	for _, export := range b.exports {
		out.buf.Write(export.body)
	}
	out.buf.Write(b.bulk.tail.Bytes())

	var separate []byte
	if b.bulk.separate.Len() > 0 || b.options.Placement == PlacementSeparate {
		separate = b.bulk.separate.Bytes()
		if separate == nil {
			separate = []byte{}
		}
	}

	return out.Bytes(), separate, nil
}
