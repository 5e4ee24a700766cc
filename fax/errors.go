package fax

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is the root of all T.30 procedure failures: unexpected
	// frames or responses, exhausted retries, incompatible capabilities.
	ErrProtocol = errors.New("fax: protocol error")

	// ErrNoResponse reports that the remote station stopped answering: T1
	// expired or a command went unanswered after all retries.
	ErrNoResponse = fmt.Errorf("%w: no response from remote", ErrProtocol)

	// ErrTimeout reports that a Class 1 command or response was retried
	// until its tries ran out.
	ErrTimeout = fmt.Errorf("%w: retries exhausted", ErrNoResponse)

	// ErrRemoteDisconnect reports a DCN or hangup by the remote station
	// before the document was complete.
	ErrRemoteDisconnect = fmt.Errorf("%w: remote disconnected", ErrProtocol)

	// ErrLowestSpeed reports that training or page transfer failed even at
	// the slowest bit rate.
	ErrLowestSpeed = fmt.Errorf("%w: channel not usable at lowest speed", ErrProtocol)

	// ErrNoDirection reports that neither side has a document to send.
	ErrNoDirection = fmt.Errorf("%w: no document to send or poll", ErrProtocol)

	// ErrUnexpectedFrame reports a frame that doesn't fit the procedure.
	ErrUnexpectedFrame = fmt.Errorf("%w: unexpected frame", ErrProtocol)

	// ErrHangup reports a non-zero Class 2/2.0 hangup status.
	ErrHangup = fmt.Errorf("%w: modem hangup", ErrProtocol)

	// ErrModem reports a modem command that failed.
	ErrModem = fmt.Errorf("%w: modem command failed", ErrProtocol)

	// ErrBusy reports a busy called number.
	ErrBusy = errors.New("fax: line busy")

	// ErrNoDialtone reports a missing dial tone.
	ErrNoDialtone = errors.New("fax: no dial tone")
)

// HangupError carries the hangup status a Class 2/2.0 modem reported.
type HangupError struct {
	Code        int
	Description string
}

func (e *HangupError) Error() string {
	return fmt.Sprintf("%s: code %d: %s", ErrHangup, e.Code, e.Description)
}

func (e *HangupError) Unwrap() error {
	return ErrHangup
}
