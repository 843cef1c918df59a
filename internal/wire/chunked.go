package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderSize is the size of both chunked transfer headers.
	HeaderSize = 4

	// DefaultMaxTransferBytes caps the declared total length of a transfer.
	DefaultMaxTransferBytes = 32 << 20

	// MaxDatagramSize is the largest UDP payload.
	MaxDatagramSize = 65535
)

// DatagramReader yields one datagram per call. ReadDatagram blocks until a
// datagram arrives or the source is closed.
type DatagramReader interface {
	ReadDatagram(p []byte) (int, error)
}

// ChunkedTransferReader reassembles chunked transfers from a datagram source.
//
// A transfer is a datagram holding the little-endian uint32 total length, a
// datagram holding the little-endian uint32 chunk size, then
// ceil(total/chunkSize) payload datagrams in order. The reader assumes the
// transport neither drops nor reorders; a violation yields a *ProtocolError
// and the in-flight transfer is abandoned. There is no resynchronisation: the
// next ReadTransfer treats the next datagram as a length header.
type ChunkedTransferReader struct {
	src      DatagramReader
	maxTotal int
	scratch  []byte
}

// NewChunkedTransferReader returns a reader over src. maxTotal <= 0 selects
// DefaultMaxTransferBytes.
func NewChunkedTransferReader(src DatagramReader, maxTotal int) *ChunkedTransferReader {
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTransferBytes
	}
	return &ChunkedTransferReader{
		src:      src,
		maxTotal: maxTotal,
		scratch:  make([]byte, MaxDatagramSize),
	}
}

// ReadTransfer blocks until one complete transfer has been received and
// returns its payload. Errors from the datagram source are returned as-is;
// framing violations are *ProtocolError.
func (r *ChunkedTransferReader) ReadTransfer() ([]byte, error) {
	declared, err := r.readHeader(StageLengthHeader)
	if err != nil {
		return nil, err
	}
	// Compare before converting: a high-bit length is negative as a 32-bit int.
	if uint64(declared) > uint64(r.maxTotal) {
		return nil, &ProtocolError{Stage: StageLengthHeader, Reason: "declared length exceeds limit", Got: saturate(declared), Want: r.maxTotal}
	}
	total := int(declared)

	declaredChunk, err := r.readHeader(StageChunkHeader)
	if err != nil {
		return nil, err
	}
	if declaredChunk == 0 {
		return nil, &ProtocolError{Stage: StageChunkHeader, Reason: "zero chunk size", Got: 0, Want: 1}
	}
	// A chunk size beyond the total means a single chunk.
	chunkSize := int(min(uint64(declaredChunk), uint64(max(total, 1))))

	buf := make([]byte, total)
	count := total / chunkSize
	if total%chunkSize != 0 {
		count++
	}
	filled := 0
	for i := 0; i < count; i++ {
		n, err := r.src.ReadDatagram(r.scratch)
		if err != nil {
			return nil, err
		}
		offset := i * chunkSize
		if n > chunkSize {
			return nil, &ProtocolError{Stage: StageChunk, Reason: fmt.Sprintf("chunk %d larger than chunk size", i), Got: n, Want: chunkSize}
		}
		if offset+n > total {
			return nil, &ProtocolError{Stage: StageChunk, Reason: fmt.Sprintf("chunk %d overruns transfer", i), Got: offset + n, Want: total}
		}
		copy(buf[offset:], r.scratch[:n])
		filled += n
	}
	if filled != total {
		return nil, &ProtocolError{Stage: StageReassembly, Reason: "short transfer", Got: filled, Want: total}
	}
	return buf, nil
}

func (r *ChunkedTransferReader) readHeader(stage string) (uint32, error) {
	n, err := r.src.ReadDatagram(r.scratch)
	if err != nil {
		return 0, err
	}
	if n != HeaderSize {
		return 0, &ProtocolError{Stage: stage, Reason: "header size", Got: n, Want: HeaderSize}
	}
	return binary.LittleEndian.Uint32(r.scratch[:HeaderSize]), nil
}

func saturate(v uint32) int {
	return int(min(uint64(v), math.MaxInt32))
}

// WriteChunked sends payload over w as a chunked transfer, one Write per
// datagram.
func WriteChunked(w io.Writer, payload []byte, chunkSize int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write length header: %w", err)
	}
	binary.LittleEndian.PutUint32(header[:], uint32(chunkSize))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write chunk-size header: %w", err)
	}
	for off := 0; off < len(payload); off += chunkSize {
		end := min(off+chunkSize, len(payload))
		if _, err := w.Write(payload[off:end]); err != nil {
			return fmt.Errorf("write chunk at %d: %w", off, err)
		}
	}
	return nil
}

// ChunkCount returns the number of payload datagrams a transfer of total
// bytes uses.
func ChunkCount(total, chunkSize int) int {
	if chunkSize <= 0 {
		return 0
	}
	return (total + chunkSize - 1) / chunkSize
}
