package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by host operations once Run has returned
	ErrClosed = errors.New("broker is closed")

	// ErrNoConnector is returned by operations that need an active connector
	ErrNoConnector = errors.New("no active connector")

	// ErrNoTarget is returned by Connect when neither a URI nor a session is given
	ErrNoTarget = errors.New("connect target has neither uri nor session")

	// ErrAlreadyRunning is returned by every call to Run after the first, including calls made after it returned
	ErrAlreadyRunning = errors.New("broker is already running")
)

// TransportError is a connector-level failure raised with an event.
// It ends the current session and is delivered to the FaultHandler.
type TransportError struct {
	Event string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on %s: %v", e.Event, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
