package export

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jchantrell/soundrip/internal/sound"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// ErrExists is returned when the target file already holds different content
// and overwriting is disabled.
var ErrExists = errors.New("output file already exists with different content")

// Written describes the outcome of a single Write.
type Written struct {
	Path    string
	Digest  string
	Size    int64
	Skipped bool
}

// Writer places extracted payloads on disk
type Writer struct {
	fs        afero.Fs
	outputDir string
	overwrite bool
}

// NewWriter creates a payload writer. An empty outputDir writes next to the
// source package.
func NewWriter(fs afero.Fs, outputDir string, overwrite bool) *Writer {
	return &Writer{
		fs:        fs,
		outputDir: outputDir,
		overwrite: overwrite,
	}
}

// Target returns the output path for a source package and format tag
func (w *Writer) Target(source, format string) string {
	dir := w.outputDir
	if dir == "" {
		dir = filepath.Dir(source)
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(dir, sanitizePath(base)+"."+Extension(format))
}

// Write stores the payload of res for the given source package.
// A target that already holds the same bytes is left alone and reported
// as skipped.
func (w *Writer) Write(source string, res sound.Result) (Written, error) {
	path := w.Target(source, res.Format)
	digest := Digest(res.Payload)
	written := Written{
		Path:   path,
		Digest: digest,
		Size:   int64(len(res.Payload)),
	}

	existing, err := afero.ReadFile(w.fs, path)
	switch {
	case err == nil:
		if Digest(existing) == digest {
			slog.Debug("Output unchanged", "path", path, "digest", digest)
			written.Skipped = true
			return written, nil
		}
		if !w.overwrite {
			return written, fmt.Errorf("%w: %s", ErrExists, path)
		}
	case !errors.Is(err, os.ErrNotExist):
		return written, fmt.Errorf("checking existing output %s: %w", path, err)
	}

	if err := WriteFileAtomic(w.fs, path, res.Payload); err != nil {
		return written, err
	}

	slog.Debug("Wrote payload", "path", path, "format", res.Format, "size", written.Size)
	return written, nil
}

// WriteFileAtomic writes data to a temporary file in the target directory
// and renames it into place.
func WriteFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("writing file %s: %w", path, err)
	}

	if err := fs.Rename(tmpName, path); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("renaming %s to %s: %w", tmpName, path, err)
	}
	return nil
}

// Extension converts a format tag into a file extension: lower-cased, with
// anything outside [a-z0-9_-] dropped. Tags with nothing left map to "bin".
func Extension(format string) string {
	var b strings.Builder
	for _, char := range strings.ToLower(format) {
		if (char >= 'a' && char <= 'z') ||
			(char >= '0' && char <= '9') ||
			char == '_' || char == '-' {
			b.WriteRune(char)
		}
	}
	if b.Len() == 0 {
		return "bin"
	}
	return b.String()
}

// Digest returns the hex BLAKE3-256 digest of data
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether the file at path holds exactly data
func Equal(fs afero.Fs, path string, data []byte) (bool, error) {
	existing, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(existing, data), nil
}

// sanitizePath sanitizes a package name for use as a filename
// Replaces path separators with @ symbols
func sanitizePath(path string) string {
	path = strings.ReplaceAll(path, "/", "@")
	return strings.ReplaceAll(path, "\\", "@")
}
