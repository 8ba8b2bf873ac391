package network

import (
	"errors"
	"fmt"
)

// Sentinel errors for the network package.
var (
	// ErrUnknownConnection is returned for a connection id with no session.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrConnectionClosed is returned when sending to a disconnected session.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrOutboxFull is returned when a session's outbox cannot take more messages.
	ErrOutboxFull = errors.New("connection outbox full")
)

// TransportError is a failure reported by the transport for one connection.
type TransportError struct {
	// Op is the operation that failed ("send", "disconnect", ...).
	Op string

	// Conn is the connection involved.
	Conn ConnectionID

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s conn %s: %v", e.Op, e.Conn, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
