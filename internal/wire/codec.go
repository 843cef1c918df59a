package wire

import (
	"bytes"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// minDocumentSize is the smallest valid BSON document: int32 length + 0x00.
const minDocumentSize = 5

var errShortDocument = errors.New("payload shorter than a BSON document")

// Decode parses data as a T and validates it. Any failure, including a panic
// inside the BSON reader, is returned as a *DecodeError.
func Decode[T any, P interface {
	*T
	Message
}](data []byte) (T, error) {
	var msg T
	schema := P(&msg).Schema()
	if err := unmarshal(data, &msg); err != nil {
		var zero T
		return zero, &DecodeError{Schema: schema, Err: err}
	}
	if err := P(&msg).Validate(); err != nil {
		var zero T
		return zero, &DecodeError{Schema: schema, Err: err}
	}
	return msg, nil
}

// Encode serializes msg as a BSON document.
func Encode(msg Message) ([]byte, error) {
	data, err := bson.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Schema(), err)
	}
	return data, nil
}

func unmarshal(data []byte, v any) (err error) {
	if len(data) < minDocumentSize {
		return errShortDocument
	}
	if err := bson.Raw(data).Validate(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bson reader panic: %v", r)
		}
	}()
	dec := bson.NewDecoder(bson.NewDocumentReader(bytes.NewReader(data)))
	// Senders write BSON doubles; the schemas are float32.
	dec.AllowTruncatingDoubles()
	return dec.Decode(v)
}
