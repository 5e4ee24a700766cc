package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/imroc/biu"

	"github.com/arloliu/go-fax/internal/pool"
	"github.com/arloliu/go-fax/internal/util"
)

// Data stream control characters.
const (
	DLE byte = 0x10
	ETX byte = 0x03
	SUB byte = 0x1A
	DC2 byte = 0x12
	CAN byte = 0x18
)

// DataWriter sends a data stream after CONNECT. DLE bytes are doubled and
// Close terminates the stream with DLE ETX.
type DataWriter struct {
	m       *Modem
	reverse bool
	n       int64
	closed  bool
}

// DataWriter returns a writer for the data phase; reverse flips the bit
// order of every byte before escaping.
func (m *Modem) DataWriter(reverse bool) *DataWriter {
	return &DataWriter{m: m, reverse: reverse}
}

func (w *DataWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("modem: write after data end")
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	for _, b := range p {
		if w.reverse {
			b = util.ReverseBits(b)
		}
		*buf = append(*buf, b)
		if b == DLE {
			*buf = append(*buf, DLE)
		}
	}
	if err := w.m.writeAll(*buf); err != nil {
		return 0, err
	}
	w.n += int64(len(p))

	return len(p), nil
}

// Written returns the number of payload bytes written.
func (w *DataWriter) Written() int64 {
	return w.n
}

// Close sends DLE ETX. It doesn't close the port.
func (w *DataWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.m.logger.Debug("data end", "bytes", w.n)

	return w.m.writeAll([]byte{DLE, ETX})
}

// DataReader receives a data stream after CONNECT. DLE escapes are removed
// and DLE ETX ends the stream with io.EOF.
type DataReader struct {
	m       *Modem
	ctx     context.Context
	reverse bool
	n       int64
	eof     bool

	// pending holds the second DLE of a DLE SUB sequence.
	pending []byte
}

// DataReader returns a reader for the data phase; reverse flips the bit
// order of every byte after unescaping. Each Read waits at most the data
// timeout for the first byte.
func (m *Modem) DataReader(ctx context.Context, reverse bool) *DataReader {
	return &DataReader{m: m, ctx: ctx, reverse: reverse}
}

// Received returns the number of payload bytes read.
func (r *DataReader) Received() int64 {
	return r.n
}

func (r *DataReader) emit(p []byte, i int, b byte) int {
	if r.reverse {
		b = util.ReverseBits(b)
	}
	p[i] = b

	return i + 1
}

func (r *DataReader) Read(p []byte) (int, error) {
	if r.eof {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	i := 0
	for len(r.pending) > 0 && i < len(p) {
		i = r.emit(p, i, r.pending[0])
		r.pending = r.pending[1:]
	}

	deadline := time.Now().Add(r.m.cfg.dataTimeout)
	for i < len(p) {
		if i > 0 && r.m.reader.Buffered() == 0 {
			break
		}

		b, err := r.m.readByte(r.ctx, deadline)
		if err != nil {
			r.n += int64(i)
			if errors.Is(err, ErrTimeout) {
				err = fmt.Errorf("%w: no data for %v", ErrTimeout, r.m.cfg.dataTimeout)
			}

			return i, err
		}
		if b != DLE {
			i = r.emit(p, i, b)
			continue
		}

		b, err = r.m.readByte(r.ctx, deadline)
		if err != nil {
			r.n += int64(i)
			return i, err
		}
		switch b {
		case DLE:
			i = r.emit(p, i, DLE)
		case ETX:
			r.eof = true
			r.n += int64(i)
			r.m.logger.Debug("data end received", "bytes", r.n)
			if i == 0 {
				return 0, io.EOF
			}

			return i, nil
		case SUB:
			i = r.emit(p, i, DLE)
			r.pending = append(r.pending, DLE)
			if i < len(p) {
				i = r.emit(p, i, DLE)
				r.pending = r.pending[:0]
			}
		default:
			r.m.logger.Debug("ignoring DLE sequence", "code", fmt.Sprintf("0x%02X", b))
		}
	}

	r.n += int64(i)
	if r.m.cfg.traceData {
		r.m.logger.Debug("data received", "bits", biu.BytesToBinaryString(p[:i]))
	}

	return i, nil
}
