package asset

import (
	"fmt"
	"log/slog"

	"github.com/jchantrell/soundrip/internal/sound"
)

// readSoundWave decodes a SoundWave export body into a record. The storage
// variant is chosen here, once, from the serialized flags.
func readSoundWave(data []byte, export Export, names []string, src bulkSource) (sound.Record, error) {
	body := data[export.SerialOffset : export.SerialOffset+export.SerialSize]
	r := newArchiveReader(body, 0)

	cooked, err := r.bool()
	if err != nil {
		return sound.Record{}, fmt.Errorf("reading cooked flag: %w", err)
	}
	streaming, err := r.bool()
	if err != nil {
		return sound.Record{}, fmt.Errorf("reading streaming flag: %w", err)
	}

	var fields sound.StorageFields
	switch {
	case streaming:
		fields.Format, fields.Chunks, err = readStreamedChunks(r, names, src)
	case cooked:
		fields.Formats, err = readCompressedFormats(r, names, src)
	default:
		fields.RawData, err = readRawData(r, src)
	}
	if err != nil {
		return sound.Record{}, err
	}

	if r.pos != len(body) {
		slog.Warn("Sound wave not read completely",
			"export", export.ObjectName,
			"remaining_bytes", len(body)-r.pos)
	}

	return sound.Record{
		Name:    export.ObjectName,
		Storage: sound.NewStorage(streaming, cooked, fields),
	}, nil
}

func readStreamedChunks(r *archiveReader, names []string, src bulkSource) (string, []sound.Chunk, error) {
	formatIndex, err := r.int32()
	if err != nil {
		return "", nil, fmt.Errorf("reading streamed format: %w", err)
	}

	var format string
	if formatIndex >= 0 {
		if format, err = lookupName(names, formatIndex); err != nil {
			return "", nil, fmt.Errorf("streamed format: %w", err)
		}
	}

	count, err := r.int32()
	if err != nil {
		return "", nil, fmt.Errorf("reading chunk count: %w", err)
	}
	if count < 0 {
		return format, nil, nil
	}

	chunks := make([]sound.Chunk, 0, min(int(count), len(r.data)/4))
	for i := 0; i < int(count); i++ {
		size, err := r.int32()
		if err != nil {
			return "", nil, fmt.Errorf("chunk %d size: %w", i, err)
		}
		payload, err := readBulkData(r, src)
		if err != nil {
			return "", nil, fmt.Errorf("chunk %d data: %w", i, err)
		}
		chunks = append(chunks, sound.Chunk{Size: int(size), Data: payload})
	}

	return format, chunks, nil
}

func readCompressedFormats(r *archiveReader, names []string, src bulkSource) ([]sound.FormatData, error) {
	count, err := r.int32()
	if err != nil {
		return nil, fmt.Errorf("reading format count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative format count %d", ErrInvalidPackage, count)
	}

	formats := make([]sound.FormatData, 0, min(int(count), len(r.data)/4))
	for i := 0; i < int(count); i++ {
		nameIndex, err := r.int32()
		if err != nil {
			return nil, fmt.Errorf("format %d name: %w", i, err)
		}
		name, err := lookupName(names, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("format %d name: %w", i, err)
		}
		payload, err := readBulkData(r, src)
		if err != nil {
			return nil, fmt.Errorf("format %s data: %w", name, err)
		}
		formats = append(formats, sound.FormatData{Name: name, Data: payload})
	}

	return formats, nil
}

func readRawData(r *archiveReader, src bulkSource) ([]byte, error) {
	present, err := r.bool()
	if err != nil {
		return nil, fmt.Errorf("reading raw data flag: %w", err)
	}
	if !present {
		return nil, nil
	}

	payload, err := readBulkData(r, src)
	if err != nil {
		return nil, fmt.Errorf("raw data: %w", err)
	}
	return payload, nil
}
