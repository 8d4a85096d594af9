// Package sound holds the in-memory model of a sound-wave export and the
// logic that turns it into a single playable payload.
package sound

// Record is an immutable view over a parsed sound-wave export.
// Exactly one storage shape is meaningful at a time; it is fixed when the
// record is built and never re-derived from flags afterwards.
type Record struct {
	// Name is the export's object name, used for diagnostics and output naming
	Name string

	// Storage is one of Streaming, Cooked or Uncooked
	Storage Storage
}

// Storage is the closed set of payload representations a sound wave can carry.
type Storage interface {
	storage()
}

// Streaming holds a sound wave whose audio is split into streamed chunks.
type Streaming struct {
	// Format is the declared container tag, empty when absent
	Format string

	// Chunks in stream order, nil when absent
	Chunks []Chunk
}

// Cooked holds pre-cooked, platform or codec specific encodings.
type Cooked struct {
	// Formats in the order they were serialized
	Formats []FormatData
}

// Uncooked holds a single raw editor payload.
type Uncooked struct {
	// RawData is nil when the export carries no raw payload
	RawData []byte
}

func (Streaming) storage() {}
func (Cooked) storage()    {}
func (Uncooked) storage()  {}

// FormatData is one compressed encoding of a cooked sound.
type FormatData struct {
	Name string
	Data []byte
}

// Chunk is one streamed chunk. Data may be longer than Size because of
// alignment padding; only Data[:Size] is audio.
type Chunk struct {
	Size int
	Data []byte
}

// StorageFields carries every field a reader may have deserialized before
// the storage shape is chosen.
type StorageFields struct {
	Format  string
	Chunks  []Chunk
	Formats []FormatData
	RawData []byte
}

// NewStorage picks the storage variant from the streaming and cooked flags.
// Streaming wins over cooked, matching how the flags are serialized.
func NewStorage(isStreaming, isCooked bool, fields StorageFields) Storage {
	switch {
	case isStreaming:
		return Streaming{Format: fields.Format, Chunks: fields.Chunks}
	case isCooked:
		return Cooked{Formats: fields.Formats}
	default:
		return Uncooked{RawData: fields.RawData}
	}
}

// IsStreaming reports whether the record stores its audio as streamed chunks.
func (r Record) IsStreaming() bool {
	_, ok := r.Storage.(Streaming)
	return ok
}

// IsCooked reports whether the record stores pre-cooked formats. A streaming
// record reports false here even if the package marked it cooked, since its
// compressed formats are never consulted.
func (r Record) IsCooked() bool {
	_, ok := r.Storage.(Cooked)
	return ok
}

// Shape returns a short name for the storage variant.
func (r Record) Shape() string {
	switch r.Storage.(type) {
	case Streaming:
		return "streaming"
	case Cooked:
		return "cooked"
	default:
		return "uncooked"
	}
}
