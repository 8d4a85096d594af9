package sound

import "fmt"

// FailureKind identifies which storage shape lacked a usable payload.
type FailureKind int

const (
	NoStreamedPayload FailureKind = iota + 1
	NoCookedPayload
	NoUncookedPayload
)

// String returns the snake_case name stored in the catalog.
func (k FailureKind) String() string {
	switch k {
	case NoStreamedPayload:
		return "no_streamed_payload"
	case NoCookedPayload:
		return "no_cooked_payload"
	case NoUncookedPayload:
		return "no_uncooked_payload"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ExtractionError reports a record that carries no usable audio for its
// storage shape. It is an expected outcome, e.g. for placeholder assets.
type ExtractionError struct {
	Kind FailureKind
	Name string
}

func (e *ExtractionError) Error() string {
	var msg string
	switch e.Kind {
	case NoStreamedPayload:
		msg = "no sound data in streamed sound wave"
	case NoCookedPayload:
		msg = "no sound data in cooked sound wave"
	case NoUncookedPayload:
		msg = "no sound data in uncooked sound wave"
	default:
		msg = "no sound data in sound wave"
	}
	if e.Name != "" {
		return fmt.Sprintf("%s: %s", e.Name, msg)
	}
	return msg
}

// Is matches any ExtractionError of the same kind, so callers can compare
// against the Err* values regardless of the record name.
func (e *ExtractionError) Is(target error) bool {
	t, ok := target.(*ExtractionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNoStreamedPayload = &ExtractionError{Kind: NoStreamedPayload}
	ErrNoCookedPayload   = &ExtractionError{Kind: NoCookedPayload}
	ErrNoUncookedPayload = &ExtractionError{Kind: NoUncookedPayload}
)

// ChunkError reports a streamed chunk whose declared size does not fit its
// buffer. This is a malformed record, not a missing payload.
type ChunkError struct {
	Index    int
	Declared int
	Buffered int
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("streamed chunk %d declares %d bytes but holds %d", e.Index, e.Declared, e.Buffered)
}
