package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyBound is returned by Bind on a listener that is past Unbound.
	ErrAlreadyBound = errors.New("stream: listener already bound")
	// ErrNotBound is returned by Serve before a successful Bind.
	ErrNotBound = errors.New("stream: listener not bound")
)

// TransportError is a socket-level fault on one stream. Receive errors are
// logged and the loop continues; a bind failure is returned from Bind.
type TransportError struct {
	Stream string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: %s: %v", e.Stream, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
