package fax

import (
	"fmt"
	"strconv"
	"strings"
)

// hangupCodes describes the T.32 hangup status codes the modem reports in
// +FHNG (Class 2, decimal) and +FHS (Class 2.0, hexadecimal).
var hangupCodes = map[int]string{
	0:   "normal end of connection",
	1:   "ring detect without successful handshake",
	2:   "call aborted from +FK or <CAN>",
	3:   "no loop current",
	4:   "ringback detected, no answer",
	5:   "ringback detected, answer without CED",
	10:  "unspecified phase A error",
	11:  "no answer (T1 timeout)",
	20:  "unspecified transmit phase B error",
	21:  "remote cannot receive or send",
	22:  "COMREC error in transmit phase B",
	23:  "COMREC invalid command received",
	24:  "RSPREC error",
	25:  "DCS sent three times without response",
	26:  "DIS/DTC received 3 times; DCS not recognized",
	27:  "failure to train at 2400 bps or +FMINSP value",
	40:  "unspecified transmit phase C error",
	43:  "send fax data underflow",
	50:  "unspecified transmit phase D error",
	51:  "RSPREC error",
	52:  "no response to MPS repeated 3 times",
	53:  "invalid response to MPS",
	54:  "no response to EOP repeated 3 times",
	55:  "invalid response to EOP",
	56:  "no response to EOM repeated 3 times",
	57:  "invalid response to EOM",
	58:  "unable to continue after PIN or PIP",
	70:  "unspecified receive phase B error",
	71:  "RSPREC error",
	72:  "COMREC error",
	73:  "T.30 T2 timeout, expected page not received",
	74:  "T.30 T1 timeout after EOM received",
	90:  "unspecified receive phase C error",
	91:  "missing EOL after 5 seconds",
	92:  "bad CRC or frame (ECM mode)",
	93:  "DCE to DTE buffer overflow",
	94:  "bad CRC or frame (ECM or BFT modes)",
	100: "unspecified receive phase D error",
	101: "RSPREC invalid response received",
	102: "COMREC invalid response received",
	103: "unable to continue after PIN or PIP",
}

// hangupRanges describes codes missing from hangupCodes by the call phase
// their range stands for.
var hangupRanges = []struct {
	lo, hi int
	desc   string
}{
	{0, 9, "call placement and termination"},
	{10, 19, "transmit phase A and miscellaneous errors"},
	{20, 39, "transmit phase B hangup"},
	{40, 49, "transmit phase C hangup"},
	{50, 69, "transmit phase D hangup"},
	{70, 89, "receive phase B hangup"},
	{90, 99, "receive phase C hangup"},
	{100, 119, "receive phase D hangup"},
	{120, 255, "reserved"},
}

// HangupDescription returns the meaning of a hangup status code.
func HangupDescription(code int) string {
	if desc, ok := hangupCodes[code]; ok {
		return desc
	}
	for _, r := range hangupRanges {
		if code >= r.lo && code <= r.hi {
			return r.desc
		}
	}

	return "unknown hangup code"
}

// ParseHangup parses the value of a +FHNG (base 10) or +FHS (base 16)
// report.
func ParseHangup(value string, base int) (int, error) {
	v := strings.TrimSpace(value)
	code, err := strconv.ParseInt(v, base, 0)
	if err != nil || code < 0 || code > 255 {
		return 0, fmt.Errorf("%w: bad hangup status %q", ErrProtocol, value)
	}

	return int(code), nil
}

// hangupError returns nil for a normal hangup and a *HangupError otherwise.
func hangupError(code int) error {
	if code == 0 {
		return nil
	}

	return &HangupError{Code: code, Description: HangupDescription(code)}
}
