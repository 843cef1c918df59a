package wire

import "fmt"

// DecodeError reports a malformed payload for a known schema. The message is
// dropped; the stream carries on.
type DecodeError struct {
	Schema string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Schema, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Chunked transfer stages, reported in ProtocolError.
const (
	StageLengthHeader = "length header"
	StageChunkHeader  = "chunk-size header"
	StageChunk        = "chunk"
	StageReassembly   = "reassembly"
)

// ProtocolError reports a chunked transfer that violated the framing rules.
// The whole in-flight transfer is dropped.
type ProtocolError struct {
	Stage  string
	Reason string
	Got    int
	Want   int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("chunked transfer %s: %s (got %d, want %d)", e.Stage, e.Reason, e.Got, e.Want)
}
