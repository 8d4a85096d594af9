package sound

import (
	"bytes"
	"fmt"
)

// UncookedFormat is the container tag for uncooked sound waves. Legacy
// editor payloads are always Ogg regardless of other metadata.
const UncookedFormat = "ogg"

// Result is a reconstructed payload and the format tag describing it.
type Result struct {
	Payload []byte
	Format  string
}

// Extract reconstructs the playable payload of a record.
//
// Streamed records concatenate the declared prefix of every chunk, cooked
// records return their first compressed format verbatim, and uncooked
// records return the raw payload tagged "ogg". A record whose shape has no
// usable data yields an *ExtractionError. The record is never modified and
// the returned payload never aliases it.
func Extract(rec Record) (Result, error) {
	switch s := rec.Storage.(type) {
	case Streaming:
		return extractStreamed(rec.Name, s)
	case Cooked:
		return extractCooked(rec.Name, s)
	case Uncooked:
		return extractUncooked(rec.Name, s)
	default:
		return extractUncooked(rec.Name, Uncooked{})
	}
}

func extractStreamed(name string, s Streaming) (Result, error) {
	if len(s.Chunks) == 0 || s.Format == "" {
		return Result{}, &ExtractionError{Kind: NoStreamedPayload, Name: name}
	}

	total := 0
	for i, chunk := range s.Chunks {
		if chunk.Size < 0 || chunk.Size > len(chunk.Data) {
			return Result{}, fmt.Errorf("reconstructing %s: %w", name, &ChunkError{
				Index:    i,
				Declared: chunk.Size,
				Buffered: len(chunk.Data),
			})
		}
		total += chunk.Size
	}

	payload := make([]byte, total)
	offset := 0
	for _, chunk := range s.Chunks {
		offset += copy(payload[offset:], chunk.Data[:chunk.Size])
	}

	return Result{Payload: payload, Format: s.Format}, nil
}

func extractCooked(name string, s Cooked) (Result, error) {
	if len(s.Formats) == 0 {
		return Result{}, &ExtractionError{Kind: NoCookedPayload, Name: name}
	}

	// First entry wins; alternatives are not inspected.
	first := s.Formats[0]
	return Result{Payload: clone(first.Data), Format: first.Name}, nil
}

func extractUncooked(name string, s Uncooked) (Result, error) {
	if s.RawData == nil {
		return Result{}, &ExtractionError{Kind: NoUncookedPayload, Name: name}
	}
	return Result{Payload: clone(s.RawData), Format: UncookedFormat}, nil
}

// clone copies b, keeping an empty payload non-nil.
func clone(b []byte) []byte {
	if len(b) == 0 {
		return []byte{}
	}
	return bytes.Clone(b)
}
