package stream

import "github.com/banshee-data/vrlink/internal/wire"

// Handler turns one received payload into a task for the render thread. It
// runs on the listener goroutine and must not touch render state itself.
type Handler func(payload []byte) (task func(), err error)

// Decoded returns a Handler that decodes each payload as a T and, on success,
// schedules apply(msg) for the render thread.
func Decoded[T any, P interface {
	*T
	wire.Message
}](apply func(T)) Handler {
	return func(payload []byte) (func(), error) {
		msg, err := wire.Decode[T, P](payload)
		if err != nil {
			return nil, err
		}
		return func() { apply(msg) }, nil
	}
}
