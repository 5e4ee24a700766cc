package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/arloliu/go-fax/internal/pool"
	"github.com/arloliu/go-fax/logger"
)

var (
	// ErrUnexpectedResponse reports a result code the caller didn't expect.
	ErrUnexpectedResponse = errors.New("modem: unexpected response")
	// ErrTimeout reports that a line or data byte didn't arrive in time.
	ErrTimeout = errors.New("modem: timeout")
)

// Port is the device a Modem talks to.
type Port interface {
	io.ReadWriter
	SetReadDeadline(t time.Time) error
}

// Modem runs AT command transactions over a Port.
type Modem struct {
	port   Port
	reader *bufio.Reader
	cfg    *Config
	logger logger.Logger

	// partial holds the bytes of a response line cut short by a timeout.
	partial []byte
}

// New returns a Modem on port.
func New(port Port, opts ...Option) (*Modem, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Modem{
		port:   port,
		reader: bufio.NewReader(port),
		cfg:    cfg,
		logger: cfg.GetLogger().With("component", "modem"),
	}, nil
}

// Config returns the modem configuration.
func (m *Modem) Config() *Config {
	return m.cfg
}

// Deciseconds converts a timeout in tenths of a second, the unit fax
// modem documentation uses, into a Duration.
func Deciseconds(n int) time.Duration {
	return time.Duration(n) * 100 * time.Millisecond
}

// isTimeout reports whether err is a read deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }

	return errors.As(err, &te) && te.Timeout()
}

// --- Low-level I/O helpers ---

// writeAll writes all bytes in data to the port.
func (m *Modem) writeAll(data []byte) error {
	for written := 0; written < len(data); {
		n, err := m.port.Write(data[written:])
		written += n

		if err != nil {
			return fmt.Errorf("modem: write: %w", err)
		}
	}

	return nil
}

// WriteRaw writes p to the modem unchanged.
func (m *Modem) WriteRaw(p []byte) error {
	return m.writeAll(p)
}

// readByte reads one byte, waiting until deadline at the latest. Waits are
// split into poll intervals so that cancellation of ctx is noticed.
func (m *Modem) readByte(ctx context.Context, deadline time.Time) (byte, error) {
	if m.reader.Buffered() > 0 {
		return m.reader.ReadByte()
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		now := time.Now()
		if !now.Before(deadline) {
			return 0, ErrTimeout
		}
		until := min(deadline.Sub(now), m.cfg.pollInterval)
		if err := m.port.SetReadDeadline(now.Add(until)); err != nil {
			return 0, fmt.Errorf("modem: set deadline: %w", err)
		}

		b, err := m.reader.ReadByte()
		if err == nil {
			return b, nil
		}
		if !isTimeout(err) {
			return 0, fmt.Errorf("modem: read: %w", err)
		}
	}
}

// ReadLine returns the next non-empty response line. It returns ErrTimeout
// when no complete line arrives within timeout; the bytes read so far are
// kept for the next call.
func (m *Modem) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		b, err := m.readByte(ctx, deadline)
		if err != nil {
			return "", err
		}

		if b == '\r' || b == '\n' {
			if len(m.partial) == 0 {
				continue
			}
			line := strings.TrimSpace(string(m.partial))
			m.partial = m.partial[:0]
			if line == "" {
				continue
			}
			m.logger.Debug("modem response", "line", line)

			return line, nil
		}
		if len(m.partial) < m.cfg.maxLineLen {
			m.partial = append(m.partial, b)
		}
	}
}

// Wait collects response lines until a final result code. A timeout is not
// an error: the response then has CodeTimeout.
func (m *Modem) Wait(ctx context.Context, timeout time.Duration) (*Response, error) {
	resp := &Response{}
	deadline := time.Now().Add(timeout)

	for {
		line, err := m.ReadLine(ctx, time.Until(deadline))
		if errors.Is(err, ErrTimeout) {
			resp.Code = CodeTimeout
			m.logger.Debug("modem response timeout", "timeout", timeout)

			return resp, nil
		}
		if err != nil {
			return nil, err
		}

		if code, ok := ParseFinal(line); ok {
			resp.Code = code
			resp.Final = line

			return resp, nil
		}
		if strings.HasPrefix(line, "AT") {
			// command echo
			continue
		}
		resp.Lines = append(resp.Lines, line)
	}
}

// Command sends "AT"+cmd and waits up to timeout for the final result code.
// Only transport failures and cancellation are errors; the caller acts on
// the result code, including CodeTimeout.
func (m *Modem) Command(ctx context.Context, cmd string, timeout time.Duration) (*Response, error) {
	if err := pool.Sleep(ctx, m.cfg.commandPause); err != nil {
		return nil, err
	}

	m.logger.Debug("modem command", "cmd", "AT"+cmd)
	if err := m.writeAll([]byte("AT" + cmd + "\r")); err != nil {
		return nil, err
	}

	resp, err := m.Wait(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("AT%s: %w", cmd, err)
	}

	return resp, nil
}

// Checked sends cmd like Command and fails with ErrUnexpectedResponse unless
// the result code is one of want (OK when want is empty).
func (m *Modem) Checked(ctx context.Context, cmd string, timeout time.Duration, want ...Code) (*Response, error) {
	resp, err := m.Command(ctx, cmd, timeout)
	if err != nil {
		return nil, err
	}

	if len(want) == 0 {
		want = []Code{CodeOK}
	}
	for _, c := range want {
		if resp.Code == c {
			return resp, nil
		}
	}

	return resp, fmt.Errorf("%w: AT%s answered %s", ErrUnexpectedResponse, cmd, resp)
}

// Pause waits for d or until ctx is done.
func (m *Modem) Pause(ctx context.Context, d time.Duration) error {
	return pool.Sleep(ctx, d)
}

// Drain discards input until the line stays silent for quiet, and returns
// the number of bytes dropped.
func (m *Modem) Drain(ctx context.Context, quiet time.Duration) (int, error) {
	m.partial = m.partial[:0]
	n := 0
	for {
		if _, err := m.readByte(ctx, time.Now().Add(quiet)); err != nil {
			if errors.Is(err, ErrTimeout) {
				return n, nil
			}

			return n, err
		}
		n++
	}
}
