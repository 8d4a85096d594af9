// Package asset reads and writes sound packages: a compact Unreal-style
// container with a name map, an export map and bulk payloads that may live
// inline, at the end of the package or in a sibling .ubulk file.
package asset

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jchantrell/soundrip/internal/sound"
	"github.com/spf13/afero"
)

const (
	// PackageMagic opens every package file
	PackageMagic uint32 = 0x9E2A83C1

	// FileVersion is the only package layout this reader understands
	FileVersion int32 = 1

	// PackageFlagFilterEditorOnly marks a cooked package
	PackageFlagFilterEditorOnly uint32 = 0x80000000

	// SoundWaveClass is the export class carrying sound data
	SoundWaveClass = "SoundWave"

	// BulkExtension is the extension of the sibling bulk payload file
	BulkExtension = ".ubulk"

	summarySize     = 36
	exportEntrySize = 24
)

var (
	ErrInvalidPackage = errors.New("invalid package")
	ErrTruncated      = errors.New("truncated package data")
	ErrBulkData       = errors.New("invalid bulk data")
)

// Summary is the fixed-size package header.
type Summary struct {
	Magic               uint32
	FileVersion         int32
	PackageFlags        uint32
	NameCount           int32
	NameOffset          int32
	ExportCount         int32
	ExportOffset        int32
	BulkDataStartOffset int64
}

// Cooked reports whether the package was cooked for a target platform.
func (s Summary) Cooked() bool {
	return s.PackageFlags&PackageFlagFilterEditorOnly != 0
}

// Export is one entry of the export map. Sound-wave exports carry their
// decoded record; other classes are kept as opaque entries.
type Export struct {
	ClassName    string
	ObjectName   string
	SerialSize   int64
	SerialOffset int64

	record *sound.Record
}

// Sound returns the decoded sound-wave record of the export, if any.
func (e Export) Sound() (sound.Record, bool) {
	if e.record == nil {
		return sound.Record{}, false
	}
	return *e.record, true
}

// Package is a parsed sound package.
type Package struct {
	name    string
	summary Summary
	names   []string
	exports []Export
}

// Name returns the package name, the file name without its extension.
func (p *Package) Name() string {
	return p.name
}

// Summary returns the package header.
func (p *Package) Summary() Summary {
	return p.summary
}

// Names returns the package name map.
func (p *Package) Names() []string {
	return p.names
}

// Exports returns the export map in serialized order.
func (p *Package) Exports() []Export {
	return p.exports
}

// SoundWave returns the first sound-wave export of the package.
func (p *Package) SoundWave() (sound.Record, bool) {
	for _, export := range p.exports {
		if rec, ok := export.Sound(); ok {
			return rec, true
		}
	}
	return sound.Record{}, false
}

// Open reads a package file, and its sibling .ubulk file when present.
func Open(fsys afero.Fs, path string) (*Package, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading package %s: %w", path, err)
	}

	bulkPath := strings.TrimSuffix(path, filepath.Ext(path)) + BulkExtension
	var bulk []byte
	exists, err := afero.Exists(fsys, bulkPath)
	if err != nil {
		return nil, fmt.Errorf("checking bulk file %s: %w", bulkPath, err)
	}
	if exists {
		bulk, err = afero.ReadFile(fsys, bulkPath)
		if err != nil {
			return nil, fmt.Errorf("reading bulk file %s: %w", bulkPath, err)
		}
		slog.Debug("Loaded bulk file", "path", bulkPath, "size", len(bulk))
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pkg, err := Parse(name, data, bulk)
	if err != nil {
		return nil, fmt.Errorf("parsing package %s: %w", path, err)
	}
	return pkg, nil
}

// Parse decodes a package from memory. bulk holds the sibling .ubulk file
// and may be nil.
func Parse(name string, data, bulk []byte) (*Package, error) {
	summary, err := readSummary(data)
	if err != nil {
		return nil, err
	}

	names, err := readNameMap(data, summary)
	if err != nil {
		return nil, fmt.Errorf("reading name map: %w", err)
	}

	pkg := &Package{
		name:    name,
		summary: summary,
		names:   names,
	}

	entries, err := readExportMap(data, summary, names)
	if err != nil {
		return nil, fmt.Errorf("reading export map: %w", err)
	}

	src := bulkSource{
		file:      data,
		fileStart: summary.BulkDataStartOffset,
		separate:  bulk,
	}

	for i := range entries {
		export := &entries[i]
		if export.ClassName != SoundWaveClass {
			slog.Debug("Skipping export", "package", name, "class", export.ClassName, "object", export.ObjectName)
			continue
		}

		rec, err := readSoundWave(data, *export, names, src)
		if err != nil {
			return nil, fmt.Errorf("reading sound wave %s: %w", export.ObjectName, err)
		}
		export.record = &rec
	}
	pkg.exports = entries

	return pkg, nil
}

func readSummary(data []byte) (Summary, error) {
	if len(data) < summarySize {
		return Summary{}, fmt.Errorf("%w: %d bytes is smaller than the %d byte header", ErrInvalidPackage, len(data), summarySize)
	}

	r := newArchiveReader(data, 0)
	var s Summary
	// The length check above guarantees these reads succeed.
	s.Magic, _ = r.uint32()
	s.FileVersion, _ = r.int32()
	s.PackageFlags, _ = r.uint32()
	s.NameCount, _ = r.int32()
	s.NameOffset, _ = r.int32()
	s.ExportCount, _ = r.int32()
	s.ExportOffset, _ = r.int32()
	s.BulkDataStartOffset, _ = r.int64()

	if s.Magic != PackageMagic {
		return Summary{}, fmt.Errorf("%w: magic 0x%08X != 0x%08X", ErrInvalidPackage, s.Magic, PackageMagic)
	}
	if s.FileVersion != FileVersion {
		return Summary{}, fmt.Errorf("%w: unsupported file version %d", ErrInvalidPackage, s.FileVersion)
	}
	if s.NameCount < 0 || s.ExportCount < 0 {
		return Summary{}, fmt.Errorf("%w: negative table size (names=%d, exports=%d)", ErrInvalidPackage, s.NameCount, s.ExportCount)
	}
	if s.BulkDataStartOffset < 0 {
		return Summary{}, fmt.Errorf("%w: negative bulk data offset %d", ErrInvalidPackage, s.BulkDataStartOffset)
	}
	if s.BulkDataStartOffset > int64(len(data)) {
		return Summary{}, fmt.Errorf("%w: bulk data starts at %d, past %d bytes", ErrTruncated, s.BulkDataStartOffset, len(data))
	}

	return s, nil
}

func readNameMap(data []byte, s Summary) ([]string, error) {
	r := newArchiveReader(data, int(s.NameOffset))
	names := make([]string, 0, min(int(s.NameCount), len(data)/4))
	for i := 0; i < int(s.NameCount); i++ {
		name, err := r.fstring()
		if err != nil {
			return nil, fmt.Errorf("name %d: %w", i, err)
		}
		names = append(names, name)
	}
	return names, nil
}

func readExportMap(data []byte, s Summary, names []string) ([]Export, error) {
	r := newArchiveReader(data, int(s.ExportOffset))
	if err := r.need(int(s.ExportCount) * exportEntrySize); err != nil {
		return nil, err
	}

	exports := make([]Export, s.ExportCount)
	for i := range exports {
		classIndex, _ := r.int32()
		objectIndex, _ := r.int32()
		serialSize, _ := r.int64()
		serialOffset, _ := r.int64()

		className, err := lookupName(names, classIndex)
		if err != nil {
			return nil, fmt.Errorf("export %d class: %w", i, err)
		}
		objectName, err := lookupName(names, objectIndex)
		if err != nil {
			return nil, fmt.Errorf("export %d object: %w", i, err)
		}

		end := int64(len(data))
		if serialOffset < 0 || serialSize < 0 || serialOffset > end || serialSize > end-serialOffset {
			return nil, fmt.Errorf("%w: export %d holds %d bytes at offset %d outside %d bytes",
				ErrTruncated, i, serialSize, serialOffset, len(data))
		}

		exports[i] = Export{
			ClassName:    className,
			ObjectName:   objectName,
			SerialSize:   serialSize,
			SerialOffset: serialOffset,
		}
	}

	return exports, nil
}

func lookupName(names []string, index int32) (string, error) {
	if index < 0 || int(index) >= len(names) {
		return "", fmt.Errorf("%w: name index %d outside name map of %d", ErrInvalidPackage, index, len(names))
	}
	return names[index], nil
}
