package modem

import "strings"

// Code is the final result code of a command.
type Code int

const (
	// CodeTimeout means no final result code arrived in time.
	CodeTimeout Code = iota
	CodeOK
	CodeConnect
	CodeError
	CodeNoCarrier
	CodeBusy
	CodeNoDialtone
	CodeNoAnswer
	// CodeFCError is the Class 1 "+FCERROR": the carrier found doesn't
	// match the requested modulation.
	CodeFCError
)

var codeNames = [...]string{
	CodeTimeout:    "TIMEOUT",
	CodeOK:         "OK",
	CodeConnect:    "CONNECT",
	CodeError:      "ERROR",
	CodeNoCarrier:  "NO CARRIER",
	CodeBusy:       "BUSY",
	CodeNoDialtone: "NO DIALTONE",
	CodeNoAnswer:   "NO ANSWER",
	CodeFCError:    "+FCERROR",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return "UNKNOWN"
	}

	return codeNames[c]
}

// finalCodes is checked in order; the first prefix that matches wins.
var finalCodes = []struct {
	prefix string
	code   Code
}{
	{"OK", CodeOK},
	{"CONNECT", CodeConnect},
	{"ERROR", CodeError},
	{"NO CARRIER", CodeNoCarrier},
	{"BUSY", CodeBusy},
	{"NO DIALTONE", CodeNoDialtone},
	{"NO DIAL TONE", CodeNoDialtone},
	{"NO ANSWER", CodeNoAnswer},
	{"+FCERROR", CodeFCError},
	{"+F4", CodeFCError},
}

// ParseFinal returns the result code of line and whether line is a final
// result code at all.
func ParseFinal(line string) (Code, bool) {
	for _, fc := range finalCodes {
		if line == fc.prefix || strings.HasPrefix(line, fc.prefix+" ") {
			return fc.code, true
		}
	}

	return CodeTimeout, false
}

// Response is the outcome of one command.
type Response struct {
	Code Code
	// Final is the result code line as received, e.g. "CONNECT 9600".
	Final string
	// Lines holds the information lines received before the result code.
	Lines []string
}

// OK reports whether the command ended with OK.
func (r *Response) OK() bool {
	return r.Code == CodeOK
}

// Find returns the value of the first information line starting with
// prefix, e.g. Find("+FHNG:") on "+FHNG: 0" yields "0".
func (r *Response) Find(prefix string) (string, bool) {
	for _, l := range r.Lines {
		if strings.HasPrefix(l, prefix) {
			return strings.TrimSpace(l[len(prefix):]), true
		}
	}

	return "", false
}

func (r *Response) String() string {
	if r.Final == "" {
		return r.Code.String()
	}

	return r.Final
}
