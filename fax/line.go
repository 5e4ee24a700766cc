package fax

import (
	"context"
	"io"
	"time"

	"github.com/arloliu/go-fax/modem"
)

// Line is the modem as the fax drivers use it. *modem.Modem provides it
// through NewModemLine.
type Line interface {
	// Command sends "AT"+cmd and collects the response. A missing result
	// code is reported as modem.CodeTimeout, not as an error.
	Command(ctx context.Context, cmd string, timeout time.Duration) (*modem.Response, error)
	// Wait collects response lines until a final result code.
	Wait(ctx context.Context, timeout time.Duration) (*modem.Response, error)
	// ReadLine returns the next response line, failing with modem.ErrTimeout.
	ReadLine(ctx context.Context, timeout time.Duration) (string, error)
	// DataWriter starts a data phase; Close sends the end-of-data marker.
	DataWriter(reverse bool) io.WriteCloser
	// DataReader reads a data phase up to its end marker (io.EOF).
	DataReader(ctx context.Context, reverse bool) io.Reader
	// WriteRaw writes bytes without escaping.
	WriteRaw(p []byte) error
	// Pause waits for d.
	Pause(ctx context.Context, d time.Duration) error
	// Drain discards input until the line is silent for quiet.
	Drain(ctx context.Context, quiet time.Duration) (int, error)
}

var _ Line = modemLine{}

type modemLine struct {
	*modem.Modem
}

// NewModemLine adapts m to Line.
func NewModemLine(m *modem.Modem) Line {
	return modemLine{Modem: m}
}

func (l modemLine) DataWriter(reverse bool) io.WriteCloser {
	return l.Modem.DataWriter(reverse)
}

func (l modemLine) DataReader(ctx context.Context, reverse bool) io.Reader {
	return l.Modem.DataReader(ctx, reverse)
}
