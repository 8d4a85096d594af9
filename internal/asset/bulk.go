package asset

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// BulkFlags describe where a bulk payload lives and how it is encoded.
type BulkFlags uint32

const (
	BulkPayloadAtEndOfFile    BulkFlags = 0x0001
	BulkCompressedZLIB        BulkFlags = 0x0002
	BulkUnused                BulkFlags = 0x0020
	BulkForceInline           BulkFlags = 0x0040
	BulkPayloadInSeparateFile BulkFlags = 0x0100
	BulkSize64Bit             BulkFlags = 0x2000
	BulkCompressedLZ4         BulkFlags = 0x4000
	BulkCompressedOodle       BulkFlags = 0x8000

	bulkCompressionMask = BulkCompressedZLIB | BulkCompressedLZ4 | BulkCompressedOodle
)

// maxBulkSize caps the decompressed size of a single payload.
const maxBulkSize = 1 << 30

// Has reports whether all bits of flag are set.
func (f BulkFlags) Has(flag BulkFlags) bool {
	return f&flag == flag
}

// BulkHeader is the serialized description of a bulk payload.
type BulkHeader struct {
	Flags        BulkFlags
	ElementCount int64
	SizeOnDisk   int64
	OffsetInFile int64
}

// inline reports whether the payload bytes follow the header directly.
func (h BulkHeader) inline() bool {
	if h.Flags.Has(BulkForceInline) {
		return true
	}
	return !h.Flags.Has(BulkPayloadAtEndOfFile) && !h.Flags.Has(BulkPayloadInSeparateFile)
}

// bulkSource gives access to payloads stored outside the export body.
type bulkSource struct {
	file      []byte
	fileStart int64
	separate  []byte
}

func readBulkHeader(r *archiveReader) (BulkHeader, error) {
	flags, err := r.uint32()
	if err != nil {
		return BulkHeader{}, err
	}

	h := BulkHeader{Flags: BulkFlags(flags)}
	if h.Flags.Has(BulkSize64Bit) {
		if h.ElementCount, err = r.int64(); err != nil {
			return BulkHeader{}, err
		}
		if h.SizeOnDisk, err = r.int64(); err != nil {
			return BulkHeader{}, err
		}
	} else {
		count, err := r.int32()
		if err != nil {
			return BulkHeader{}, err
		}
		size, err := r.int32()
		if err != nil {
			return BulkHeader{}, err
		}
		h.ElementCount = int64(count)
		h.SizeOnDisk = int64(size)
	}

	if h.OffsetInFile, err = r.int64(); err != nil {
		return BulkHeader{}, err
	}

	return h, nil
}

// readBulkData reads a bulk header and resolves it to the decoded payload.
// An unused payload resolves to an empty, non-nil slice.
func readBulkData(r *archiveReader, src bulkSource) ([]byte, error) {
	h, err := readBulkHeader(r)
	if err != nil {
		return nil, err
	}

	if h.Flags.Has(BulkUnused) {
		return []byte{}, nil
	}

	if h.ElementCount < 0 || h.SizeOnDisk < 0 {
		return nil, fmt.Errorf("%w: negative size (elements=%d, on disk=%d)", ErrBulkData, h.ElementCount, h.SizeOnDisk)
	}
	if h.ElementCount > maxBulkSize || h.SizeOnDisk > maxBulkSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds limit", ErrBulkData, max(h.ElementCount, h.SizeOnDisk))
	}

	var stored []byte
	switch {
	case h.inline():
		if stored, err = r.bytes(int(h.SizeOnDisk)); err != nil {
			return nil, fmt.Errorf("reading inline bulk data: %w", err)
		}
	case h.Flags.Has(BulkPayloadInSeparateFile):
		if src.separate == nil {
			return nil, fmt.Errorf("%w: payload stored in a separate bulk file that was not provided", ErrBulkData)
		}
		if stored, err = slice(src.separate, h.OffsetInFile, h.SizeOnDisk); err != nil {
			return nil, fmt.Errorf("reading separate bulk data: %w", err)
		}
	default:
		if stored, err = slice(src.file, src.fileStart+h.OffsetInFile, h.SizeOnDisk); err != nil {
			return nil, fmt.Errorf("reading end-of-file bulk data: %w", err)
		}
	}

	return decodeBulk(h, stored)
}

func slice(data []byte, offset, size int64) ([]byte, error) {
	end := int64(len(data))
	if offset < 0 || size < 0 || offset > end || size > end-offset {
		return nil, fmt.Errorf("%w: %d bytes at offset %d outside %d bytes", ErrTruncated, size, offset, len(data))
	}
	return data[offset : offset+size], nil
}

// decodeBulk decompresses stored bytes into a freshly allocated payload.
func decodeBulk(h BulkHeader, stored []byte) ([]byte, error) {
	compression := h.Flags & bulkCompressionMask
	switch compression {
	case 0:
		if h.ElementCount != h.SizeOnDisk {
			return nil, fmt.Errorf("%w: uncompressed payload declares %d elements but stores %d bytes", ErrBulkData, h.ElementCount, h.SizeOnDisk)
		}
		return bytes.Clone(stored), nil

	case BulkCompressedZLIB:
		return decompressZLIB(stored, int(h.ElementCount))

	case BulkCompressedLZ4:
		return decompressLZ4(stored, int(h.ElementCount))

	case BulkCompressedOodle:
		return decompressOodle(stored, int(h.ElementCount))

	default:
		return nil, fmt.Errorf("%w: conflicting compression flags 0x%x", ErrBulkData, uint32(compression))
	}
}

func decompressZLIB(stored []byte, size int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib header: %v", ErrBulkData, err)
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: zlib decompress: %v", ErrBulkData, err)
	}

	// The stream must end exactly at the declared size.
	var extra [1]byte
	if n, _ := zr.Read(extra[:]); n != 0 {
		return nil, fmt.Errorf("%w: zlib stream longer than %d bytes", ErrBulkData, size)
	}

	return out, nil
}

func decompressLZ4(stored []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(stored, out)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4 decompress: %v", ErrBulkData, err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: lz4 decompress: got %d bytes, expected %d", ErrBulkData, n, size)
	}
	return out, nil
}

func decompressOodle(stored []byte, size int) ([]byte, error) {
	blocks, err := openOodleBlocks(bytes.NewReader(stored), int64(len(stored)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBulkData, err)
	}
	if blocks.Size() != int64(size) {
		return nil, fmt.Errorf("%w: oodle container holds %d bytes, expected %d", ErrBulkData, blocks.Size(), size)
	}

	out, err := blocks.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBulkData, err)
	}
	return out, nil
}

// bulkEncoder serializes payloads the way readBulkData expects them.
type bulkEncoder struct {
	placement   Placement
	compression Compression
	size64      bool

	// tail collects end-of-file payloads, separate collects .ubulk payloads
	tail     bytes.Buffer
	separate bytes.Buffer
}

func (e *bulkEncoder) write(w *archiveWriter, data []byte) error {
	stored, flags, err := e.encode(data)
	if err != nil {
		return err
	}

	var offset int64
	switch e.placement {
	case PlacementEndOfFile:
		flags |= BulkPayloadAtEndOfFile
		offset = int64(e.tail.Len())
		e.tail.Write(stored)
	case PlacementSeparate:
		flags |= BulkPayloadInSeparateFile
		offset = int64(e.separate.Len())
		e.separate.Write(stored)
	}

	if e.size64 {
		flags |= BulkSize64Bit
	}

	w.uint32(uint32(flags))
	if e.size64 {
		w.int64(int64(len(data)))
		w.int64(int64(len(stored)))
	} else {
		w.int32(int32(len(data)))
		w.int32(int32(len(stored)))
	}
	w.int64(offset)

	if e.placement == PlacementInline {
		w.buf.Write(stored)
	}
	return nil
}

func (e *bulkEncoder) encode(data []byte) ([]byte, BulkFlags, error) {
	switch e.compression {
	case CompressionZLIB:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, 0, fmt.Errorf("zlib compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, 0, fmt.Errorf("zlib compress: %w", err)
		}
		return buf.Bytes(), BulkCompressedZLIB, nil

	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		// Incompressible input is stored as is.
		if n == 0 || n >= len(data) {
			return data, 0, nil
		}
		return dst[:n], BulkCompressedLZ4, nil

	default:
		return data, 0, nil
	}
}
