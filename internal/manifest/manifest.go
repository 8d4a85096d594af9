// Package manifest loads the YAML manifests consumed by `soundrip pack`.
//
// A manifest describes one sound wave and how its package is laid out:
//
//	name: Emote_Cheer
//	placement: separate     # inline | end | separate
//	compression: zlib       # none | zlib | lz4
//	cooked: true
//	sound_wave:
//	  name: Emote_Cheer
//	  streaming: true
//	  cooked: true
//	  format: OGG
//	  chunks:
//	    - file: cheer.ogg
//	      padding: 128
//	exports:
//	  - class: Texture2D
//	    name: Emote_Cheer_Icon
//	    hex: "00010203"
//
// Payload file paths are resolved relative to the manifest.
package manifest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jchantrell/soundrip/internal/asset"
	"github.com/jchantrell/soundrip/internal/sound"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest is the decoded YAML document.
type Manifest struct {
	Name        string    `yaml:"name"`
	Placement   string    `yaml:"placement"`
	Compression string    `yaml:"compression"`
	Size64      bool      `yaml:"size64"`
	Cooked      bool      `yaml:"cooked"`
	SoundWave   SoundWave `yaml:"sound_wave"`
	Exports     []Export  `yaml:"exports"`

	dir string
	fs  afero.Fs
}

// SoundWave describes the sound-wave export. Which of the payload fields
// are used follows the streaming and cooked flags.
type SoundWave struct {
	Name      string   `yaml:"name"`
	Streaming bool     `yaml:"streaming"`
	Cooked    bool     `yaml:"cooked"`
	Format    string   `yaml:"format"`
	Chunks    []Chunk  `yaml:"chunks"`
	Formats   []Format `yaml:"formats"`
	RawData   *Payload `yaml:"raw_data"`
}

// Payload is a byte source: a file relative to the manifest or inline hex.
type Payload struct {
	File string `yaml:"file"`
	Hex  string `yaml:"hex"`
}

// Chunk is one streamed chunk. Size defaults to the payload length;
// Padding appends zero bytes beyond the declared size.
type Chunk struct {
	Payload `yaml:",inline"`
	Size    *int `yaml:"size"`
	Padding int  `yaml:"padding"`
}

// Format is one cooked format entry.
type Format struct {
	Payload `yaml:",inline"`
	Name    string `yaml:"name"`
}

// Export is an opaque export of any other class.
type Export struct {
	Payload `yaml:",inline"`
	Class   string `yaml:"class"`
	Name    string `yaml:"name"`
}

// Load reads and decodes a manifest.
func Load(fsys afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	m.dir = filepath.Dir(path)
	m.fs = fsys
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if m.SoundWave.Name == "" {
		m.SoundWave.Name = m.Name
	}

	return &m, nil
}

// Options returns the package build options named by the manifest.
func (m *Manifest) Options() (asset.BuildOptions, error) {
	placement, err := asset.ParsePlacement(m.Placement)
	if err != nil {
		return asset.BuildOptions{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	compression, err := asset.ParseCompression(m.Compression)
	if err != nil {
		return asset.BuildOptions{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	return asset.BuildOptions{
		Placement:   placement,
		Compression: compression,
		Size64:      m.Size64,
		Cooked:      m.Cooked,
	}, nil
}

// Record converts the sound-wave section into a record, loading every
// referenced payload.
func (m *Manifest) Record() (sound.Record, error) {
	sw := m.SoundWave
	var fields sound.StorageFields

	switch {
	case sw.Streaming:
		fields.Format = sw.Format
		if sw.Chunks != nil {
			fields.Chunks = make([]sound.Chunk, 0, len(sw.Chunks))
		}
		for i, c := range sw.Chunks {
			data, err := m.load(c.Payload)
			if err != nil {
				return sound.Record{}, fmt.Errorf("chunk %d: %w", i, err)
			}
			if c.Padding < 0 {
				return sound.Record{}, fmt.Errorf("%w: chunk %d has negative padding %d", ErrInvalidManifest, i, c.Padding)
			}

			size := len(data)
			if c.Size != nil {
				size = *c.Size
			}
			if c.Padding > 0 {
				data = append(data, make([]byte, c.Padding)...)
			}
			fields.Chunks = append(fields.Chunks, sound.Chunk{Size: size, Data: data})
		}

	case sw.Cooked:
		fields.Formats = make([]sound.FormatData, 0, len(sw.Formats))
		for _, f := range sw.Formats {
			if f.Name == "" {
				return sound.Record{}, fmt.Errorf("%w: cooked format without a name", ErrInvalidManifest)
			}
			data, err := m.load(f.Payload)
			if err != nil {
				return sound.Record{}, fmt.Errorf("format %s: %w", f.Name, err)
			}
			fields.Formats = append(fields.Formats, sound.FormatData{Name: f.Name, Data: data})
		}

	default:
		if sw.RawData != nil {
			data, err := m.load(*sw.RawData)
			if err != nil {
				return sound.Record{}, fmt.Errorf("raw data: %w", err)
			}
			fields.RawData = data
		}
	}

	return sound.Record{
		Name:    sw.Name,
		Storage: sound.NewStorage(sw.Streaming, sw.Cooked, fields),
	}, nil
}

// Build assembles the package described by the manifest. The second
// result holds the .ubulk contents and is nil unless payloads are placed
// in a separate file.
func (m *Manifest) Build() ([]byte, []byte, error) {
	options, err := m.Options()
	if err != nil {
		return nil, nil, err
	}
	rec, err := m.Record()
	if err != nil {
		return nil, nil, err
	}

	b := asset.NewBuilder(options)
	for _, e := range m.Exports {
		if e.Class == "" || e.Name == "" {
			return nil, nil, fmt.Errorf("%w: export needs a class and a name", ErrInvalidManifest)
		}
		body, err := m.load(e.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("export %s: %w", e.Name, err)
		}
		b.AddExport(e.Class, e.Name, body)
	}
	if err := b.AddSoundWave(rec); err != nil {
		return nil, nil, fmt.Errorf("adding sound wave: %w", err)
	}

	return b.Build()
}

func (m *Manifest) load(p Payload) ([]byte, error) {
	switch {
	case p.File != "" && p.Hex != "":
		return nil, fmt.Errorf("%w: payload sets both file and hex", ErrInvalidManifest)
	case p.File != "":
		path := p.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.dir, path)
		}
		data, err := afero.ReadFile(m.fs, path)
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		return data, nil
	default:
		data, err := hex.DecodeString(strings.Join(strings.Fields(p.Hex), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding hex payload: %v", ErrInvalidManifest, err)
		}
		return data, nil
	}
}
