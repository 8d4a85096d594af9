package asset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestBulkEncoderFlags(t *testing.T) {
	compressible := bytes.Repeat([]byte{0x4f, 0x67, 0x67, 0x53}, 1024)

	tests := []struct {
		name        string
		compression Compression
		data        []byte
		want        BulkFlags
	}{
		{"none", CompressionNone, compressible, 0},
		{"zlib", CompressionZLIB, compressible, BulkCompressedZLIB},
		{"lz4", CompressionLZ4, compressible, BulkCompressedLZ4},
		{"lz4 incompressible", CompressionLZ4, []byte{1, 2, 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &bulkEncoder{compression: tt.compression}
			stored, flags, err := enc.encode(tt.data)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if flags != tt.want {
				t.Errorf("flags = 0x%x, want 0x%x", uint32(flags), uint32(tt.want))
			}

			decoded, err := decodeBulk(BulkHeader{
				Flags:        flags,
				ElementCount: int64(len(tt.data)),
				SizeOnDisk:   int64(len(stored)),
			}, stored)
			if err != nil {
				t.Fatalf("decodeBulk failed: %v", err)
			}
			if !bytes.Equal(decoded, tt.data) {
				t.Error("decoded payload differs from input")
			}
		})
	}
}

func TestDecodeBulkErrors(t *testing.T) {
	enc := &bulkEncoder{compression: CompressionZLIB}
	zlibData, _, err := enc.encode([]byte("streamed audio payload"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	tests := []struct {
		name   string
		header BulkHeader
		stored []byte
	}{
		{
			name:   "size mismatch",
			header: BulkHeader{ElementCount: 4, SizeOnDisk: 3},
			stored: []byte{1, 2, 3},
		},
		{
			name:   "conflicting compression",
			header: BulkHeader{Flags: BulkCompressedZLIB | BulkCompressedLZ4, ElementCount: 1, SizeOnDisk: 1},
			stored: []byte{1},
		},
		{
			name:   "zlib garbage",
			header: BulkHeader{Flags: BulkCompressedZLIB, ElementCount: 8, SizeOnDisk: 4},
			stored: []byte{0xde, 0xad, 0xbe, 0xef},
		},
		{
			name:   "zlib longer than declared",
			header: BulkHeader{Flags: BulkCompressedZLIB, ElementCount: 4, SizeOnDisk: int64(len(zlibData))},
			stored: zlibData,
		},
		{
			name:   "zlib shorter than declared",
			header: BulkHeader{Flags: BulkCompressedZLIB, ElementCount: 1000, SizeOnDisk: int64(len(zlibData))},
			stored: zlibData,
		},
		{
			name:   "oodle without container",
			header: BulkHeader{Flags: BulkCompressedOodle, ElementCount: 8, SizeOnDisk: 4},
			stored: []byte{1, 2, 3, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeBulk(tt.header, tt.stored)
			if !errors.Is(err, ErrBulkData) {
				t.Errorf("decodeBulk error = %v, want ErrBulkData", err)
			}
		})
	}
}

func TestReadBulkDataUnused(t *testing.T) {
	var w archiveWriter
	w.uint32(uint32(BulkUnused))
	w.int32(0)
	w.int32(0)
	w.int64(0)

	data, err := readBulkData(newArchiveReader(w.Bytes(), 0), bulkSource{})
	if err != nil {
		t.Fatalf("readBulkData failed: %v", err)
	}
	if data == nil || len(data) != 0 {
		t.Errorf("unused payload = %v, want empty non-nil slice", data)
	}
}

func TestReadBulkDataLimits(t *testing.T) {
	var w archiveWriter
	w.uint32(uint32(BulkSize64Bit))
	w.int64(maxBulkSize + 1)
	w.int64(maxBulkSize + 1)
	w.int64(0)

	_, err := readBulkData(newArchiveReader(w.Bytes(), 0), bulkSource{})
	if !errors.Is(err, ErrBulkData) {
		t.Errorf("oversized payload error = %v, want ErrBulkData", err)
	}
}

func TestReadBulkDataOutOfRange(t *testing.T) {
	file := make([]byte, 16)

	tests := []struct {
		name   string
		flags  BulkFlags
		offset int64
		src    bulkSource
	}{
		{"end of file past data", BulkPayloadAtEndOfFile, 14, bulkSource{file: file}},
		{"end of file near max offset", BulkPayloadAtEndOfFile, math.MaxInt64 - 2, bulkSource{file: file}},
		{"end of file offset wraps with start", BulkPayloadAtEndOfFile, math.MaxInt64 - 2, bulkSource{file: file, fileStart: 8}},
		{"separate near max offset", BulkPayloadInSeparateFile, math.MaxInt64 - 2, bulkSource{separate: file}},
		{"separate negative offset", BulkPayloadInSeparateFile, -1, bulkSource{separate: file}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w archiveWriter
			w.uint32(uint32(tt.flags))
			w.int32(4)
			w.int32(4)
			w.int64(tt.offset)

			_, err := readBulkData(newArchiveReader(w.Bytes(), 0), tt.src)
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("readBulkData error = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	data := []byte{1, 2, 3, 4}

	got, err := slice(data, 1, 3)
	if err != nil || !bytes.Equal(got, []byte{2, 3, 4}) {
		t.Errorf("slice(1, 3) = %v, %v", got, err)
	}
	if got, err := slice(data, 4, 0); err != nil || len(got) != 0 {
		t.Errorf("empty slice at end = %v, %v", got, err)
	}
	for _, tt := range [][2]int64{{5, 0}, {1, 4}, {0, -1}, {math.MaxInt64, math.MaxInt64}, {1 << 62, 1 << 62}} {
		if _, err := slice(data, tt[0], tt[1]); !errors.Is(err, ErrTruncated) {
			t.Errorf("slice(%d, %d) error = %v, want ErrTruncated", tt[0], tt[1], err)
		}
	}
}

// oodleContainer builds a container head and block table without valid
// Oodle data, which is enough to exercise the layout checks.
func oodleContainer(size int64, granularity uint32, blockSizes []uint32) []byte {
	head := oodleHead{
		UncompressedSize:             uint32(size),
		UncompressedSize2:            size,
		BlockCount:                   uint32(len(blockSizes)),
		UncompressedBlockGranularity: granularity,
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &head)
	binary.Write(&buf, binary.LittleEndian, blockSizes)
	for _, sz := range blockSizes {
		buf.Write(make([]byte, sz))
	}
	return buf.Bytes()
}

func TestOpenOodleBlocks(t *testing.T) {
	data := oodleContainer(600, 256, []uint32{10, 20, 30})
	blocks, err := openOodleBlocks(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("openOodleBlocks failed: %v", err)
	}
	if blocks.Size() != 600 {
		t.Errorf("size = %d, want 600", blocks.Size())
	}
	if len(blocks.blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks.blocks))
	}

	headSize := int64(binary.Size(oodleHead{}))
	wantOffset := headSize + 3*4
	for i, blk := range blocks.blocks {
		if blk.offset != wantOffset {
			t.Errorf("block %d offset = %d, want %d", i, blk.offset, wantOffset)
		}
		wantOffset += blk.length
	}

	if _, err := blocks.ReadAt(make([]byte, 10), 595); err == nil {
		t.Error("ReadAt past the payload should fail")
	}
}

func TestOodleBlockBuffersFollowSmallPayload(t *testing.T) {
	// A single block covers the payload; its compressed size may only
	// exceed the payload by the fixed margin.
	data := oodleContainer(8, 1<<20, []uint32{200})
	blocks, err := openOodleBlocks(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("openOodleBlocks failed: %v", err)
	}
	if _, err := blocks.Read(); err == nil {
		t.Error("Read of an oversized block should fail")
	}
}

func TestOpenOodleBlocksErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short head", []byte{1, 2, 3}},
		{"zero granularity", oodleContainer(10, 0, []uint32{4})},
		{"block count mismatch", oodleContainer(600, 256, []uint32{4})},
		{"blocks past end", oodleContainer(10, 256, []uint32{4})[:binary.Size(oodleHead{})+4+2]},
		{"granularity over limit", oodleContainer(1, math.MaxUint32, []uint32{4})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := openOodleBlocks(bytes.NewReader(tt.data), int64(len(tt.data))); err == nil {
				t.Error("openOodleBlocks should fail")
			}
		})
	}
}
