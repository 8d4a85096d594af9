package asset

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/oriath-net/gooz"
)

// oodleBlocks is an Oodle-compressed payload split into fixed-size blocks.
// The container starts with oodleHead, followed by one uint32 compressed
// size per block, followed by the compressed blocks back to back.
type oodleBlocks struct {
	data        io.ReaderAt
	size        int64
	granularity int64 // uncompressed size of every block but the last
	blocks      []oodleBlock
}

// compressed block location relative to oodleBlocks.data
type oodleBlock struct {
	offset int64
	length int64
}

type oodleHead struct {
	UncompressedSize             uint32
	TotalPayloadSize             uint32
	HeadPayloadSize              uint32
	FirstFileEncode              uint32
	_                            uint32
	UncompressedSize2            int64
	TotalPayloadSize2            int64
	BlockCount                   uint32
	UncompressedBlockGranularity uint32
	_                            [4]uint32
}

func openOodleBlocks(r io.ReaderAt, length int64) (*oodleBlocks, error) {
	rs := io.NewSectionReader(r, 0, length)

	var head oodleHead
	if err := binary.Read(rs, binary.LittleEndian, &head); err != nil {
		return nil, fmt.Errorf("reading oodle container head: %w", err)
	}

	headSize := int64(binary.Size(head))
	if int64(head.BlockCount)*4 > length-headSize {
		return nil, fmt.Errorf("oodle container declares %d blocks but holds %d bytes", head.BlockCount, length)
	}

	blockSizes := make([]uint32, head.BlockCount)
	if err := binary.Read(rs, binary.LittleEndian, &blockSizes); err != nil {
		return nil, fmt.Errorf("reading oodle block sizes (BlockCount=%d): %w", head.BlockCount, err)
	}

	blocks := make([]oodleBlock, head.BlockCount)
	p := headSize + int64(binary.Size(blockSizes))
	for i := range blockSizes {
		sz := int64(blockSizes[i])
		blocks[i] = oodleBlock{offset: p, length: sz}
		p += sz
	}
	if p > length {
		return nil, fmt.Errorf("oodle blocks end at %d, past container end %d", p, length)
	}

	b := oodleBlocks{
		data:        r,
		size:        head.UncompressedSize2,
		granularity: int64(head.UncompressedBlockGranularity),
		blocks:      blocks,
	}

	if b.size < 0 {
		return nil, fmt.Errorf("oodle container declares negative size %d", b.size)
	}
	if b.granularity == 0 {
		return nil, fmt.Errorf("oodle block granularity is 0")
	}
	if b.granularity > maxBulkSize {
		return nil, fmt.Errorf("oodle block granularity %d exceeds limit", b.granularity)
	}

	expectedBlocks := b.size / b.granularity
	if b.size%b.granularity > 0 {
		expectedBlocks++
	}

	if int(expectedBlocks) != len(blocks) {
		return nil, fmt.Errorf(
			"got %d blocks of size %d for %d bytes data",
			len(blocks),
			b.granularity,
			b.size,
		)
	}

	return &b, nil
}

// Size returns the uncompressed size of the payload.
func (b *oodleBlocks) Size() int64 {
	return b.size
}

// ReadAt decompresses the blocks covering [off, off+len(p)).
func (b *oodleBlocks) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > b.size {
		return 0, fmt.Errorf("read [%d, %d) outside %d byte payload", off, off+int64(len(p)), b.size)
	}

	// No block decompresses to more than the whole payload
	blockSize := min(b.granularity, b.size)
	ibuf := make([]byte, blockSize+64)
	obuf := make([]byte, blockSize)

	n := 0
	for n < len(p) {
		blkID := int(off / b.granularity)
		blkOff := int(off % b.granularity)
		blk := &b.blocks[blkID]

		rawSize := int(b.granularity)
		if blkID == len(b.blocks)-1 {
			rawSize = int(b.size - int64(blkID)*b.granularity)
		}

		if blk.length > int64(len(ibuf)) {
			return n, fmt.Errorf("oodle block %d is %d bytes, larger than granularity allows", blkID, blk.length)
		}
		compressed := ibuf[:blk.length]
		if read, err := b.data.ReadAt(compressed, blk.offset); read != len(compressed) {
			return n, fmt.Errorf("reading oodle block %d: %w", blkID, err)
		}

		if _, err := gooz.Decompress(compressed, obuf[:rawSize]); err != nil {
			return n, fmt.Errorf("oodle block %d decompression failed: %w", blkID, err)
		}

		copied := copy(p[n:], obuf[blkOff:rawSize])
		n += copied
		off += int64(copied)
	}

	return n, nil
}

// Read returns the whole payload decompressed.
func (b *oodleBlocks) Read() ([]byte, error) {
	data := make([]byte, b.size)
	if _, err := b.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("reading oodle payload: %w", err)
	}
	return data, nil
}
