package fax

import (
	"errors"

	"github.com/arloliu/go-fax/t30"
)

// Result is the single classification of a finished call.
type Result int

const (
	ResultSuccess Result = iota
	ResultBusy
	ResultProtocolError
	ResultNoResponse
	ResultDisconnected
)

var resultNames = [...]string{
	ResultSuccess:       "success",
	ResultBusy:          "busy",
	ResultProtocolError: "protocol error",
	ResultNoResponse:    "no response",
	ResultDisconnected:  "disconnected",
}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return "unknown"
	}

	return resultNames[r]
}

// Classify maps the error of a call to its Result. Transport failures,
// cancellation and anything unrecognized count as protocol errors.
func Classify(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrBusy):
		return ResultBusy
	case errors.Is(err, ErrNoResponse), errors.Is(err, ErrNoDialtone):
		return ResultNoResponse
	case errors.Is(err, ErrRemoteDisconnect):
		return ResultDisconnected
	}

	var he *HangupError
	if errors.As(err, &he) && noAnswerHangups[he.Code] {
		return ResultNoResponse
	}

	return ResultProtocolError
}

// noAnswerHangups are the hangup codes of a call nobody answered.
var noAnswerHangups = map[int]bool{4: true, 5: true, 11: true}

// Report describes a finished call.
type Report struct {
	Result Result
	Err    error
	// Pages is the number of pages sent and confirmed, or received and
	// accepted.
	Pages int
	// RemoteID is the identification the remote station sent (CSI, TSI or
	// CIG), if any.
	RemoteID string
	// Session is the last negotiated session capability.
	Session t30.Capability
}

func newReport(err error) *Report {
	return &Report{Result: Classify(err), Err: err}
}
