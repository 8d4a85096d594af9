package asset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// archiveReader is a little-endian cursor over an in-memory package.
type archiveReader struct {
	data []byte
	pos  int
}

func newArchiveReader(data []byte, pos int) *archiveReader {
	return &archiveReader{data: data, pos: pos}
}

func (r *archiveReader) need(n int) error {
	if n < 0 || r.pos < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.pos, len(r.data)-r.pos)
	}
	return nil
}

func (r *archiveReader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *archiveReader) int32() (int32, error) {
	v, err := r.uint32()
	return int32(v), err
}

func (r *archiveReader) int64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return int64(v), nil
}

func (r *archiveReader) bool() (bool, error) {
	v, err := r.uint32()
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, fmt.Errorf("invalid bool value %d at offset %d", v, r.pos-4)
	}
	return v == 1, nil
}

// bytes returns the next n bytes without copying.
func (r *archiveReader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// fstring reads a length-prefixed string. A positive length counts ASCII
// bytes, a negative one counts UTF-16LE code units; both include the
// terminating NUL.
func (r *archiveReader) fstring() (string, error) {
	length, err := r.int32()
	if err != nil {
		return "", err
	}

	switch {
	case length == 0:
		return "", nil
	case length > 0:
		raw, err := r.bytes(int(length))
		if err != nil {
			return "", err
		}
		return string(bytes.TrimRight(raw, "\x00")), nil
	default:
		units := -int(length)
		raw, err := r.bytes(units * 2)
		if err != nil {
			return "", err
		}
		codeUnits := make([]uint16, 0, units)
		for i := 0; i < len(raw); i += 2 {
			codeUnit := binary.LittleEndian.Uint16(raw[i:])
			if codeUnit == 0 {
				break
			}
			codeUnits = append(codeUnits, codeUnit)
		}
		return string(utf16.Decode(codeUnits)), nil
	}
}

// archiveWriter is the append-only counterpart of archiveReader.
type archiveWriter struct {
	buf bytes.Buffer
}

func (w *archiveWriter) uint32(v uint32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *archiveWriter) int32(v int32) {
	w.uint32(uint32(v))
}

func (w *archiveWriter) int64(v int64) {
	w.buf.Write(binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

func (w *archiveWriter) bool(v bool) {
	if v {
		w.uint32(1)
	} else {
		w.uint32(0)
	}
}

func (w *archiveWriter) fstring(s string) {
	if s == "" {
		w.int32(0)
		return
	}

	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}

	if ascii {
		w.int32(int32(len(s) + 1))
		w.buf.WriteString(s)
		w.buf.WriteByte(0)
		return
	}

	units := utf16.Encode([]rune(s))
	w.int32(-int32(len(units) + 1))
	for _, u := range units {
		w.buf.Write(binary.LittleEndian.AppendUint16(nil, u))
	}
	w.buf.Write([]byte{0, 0})
}

func (w *archiveWriter) Len() int {
	return w.buf.Len()
}

func (w *archiveWriter) Bytes() []byte {
	return w.buf.Bytes()
}
