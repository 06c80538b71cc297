package pointing

import "errors"

var (
	// ErrUnknownEvent is returned by Reduce for event types it does not handle.
	ErrUnknownEvent = errors.New("pointing: unknown event type")
	// ErrClosed is returned by Store operations after Close.
	ErrClosed = errors.New("pointing: store closed")
)

// ServerError is a failure reported by the server over the socket.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "pointing: server error"
	}
	return "pointing: server error: " + e.Message
}
