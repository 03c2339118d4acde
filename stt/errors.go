package stt

import (
	"errors"
	"fmt"
)

var (
	ErrClosed = errors.New("channel closed")
	ErrServer = errors.New("server error")
)

// TransportError is any failure of the link to the transcription
// service: dialing, sending, receiving, a server-reported error or a
// failed batch upload.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stt %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError wraps an Error event for callers that want an error value.
func ServerError(e Error) error {
	return &TransportError{
		Op:  "server",
		Err: fmt.Errorf("%w: %s", ErrServer, e.Message),
	}
}
