package core

import (
	"errors"
	"fmt"
)

var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrUnknownRecipient = errors.New("unknown recipient")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrPersistence      = errors.New("persistence failed")

	// ErrTransport is the parent of every send-side failure.
	ErrTransport    = errors.New("transport error")
	ErrBackpressure = fmt.Errorf("%w: backpressure", ErrTransport)
	ErrConnClosed   = fmt.Errorf("%w: connection closed", ErrTransport)
)
