package fax

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-fax/logger"
	"github.com/arloliu/go-fax/modem"
	"github.com/arloliu/go-fax/page"
	"github.com/arloliu/go-fax/t30"
	"github.com/arloliu/go-fax/t4"
)

// testOptions returns short timers, no page header and a silent logger,
// followed by opts.
func testOptions(opts ...Option) []Option {
	return append([]Option{
		WithT1Timeout(MinT1Timeout),
		WithT2Timeout(MinT2Timeout),
		WithT4Timeout(MinT4Timeout),
		WithHeader(""),
		WithLogger(logger.NewSlogWriter(io.Discard, logger.DebugLevel, false)),
	}, opts...)
}

// newTestConfig creates a Config with short timers suitable for tests.
func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	cfg, err := NewConfig(testOptions(opts...)...)
	if err != nil {
		t.Fatalf("newTestConfig: %v", err)
	}

	return cfg
}

// newTestMachine creates a class1Machine with the default local
// capabilities and page retries.
func newTestMachine(hasDocument bool) *class1Machine {
	return newClass1Machine(logger.NewSlogWriter(io.Discard, logger.DebugLevel, false),
		DefaultCapability, DefaultPageRetries, hasDocument)
}

func frameOf(ft t30.FrameType) Event {
	return Event{Kind: EventFrame, Frame: &t30.Frame{Type: ft, Final: true}}
}

// disFrame returns a DIS announcing c and receive capability.
func disFrame(t *testing.T, c t30.Capability) *t30.Frame {
	t.Helper()

	fif, err := t30.ToFrame(c, true)
	require.NoError(t, err)

	return &t30.Frame{Type: t30.DIS, Final: true, FIF: fif}
}

// testPage returns a bitmap with a recognizable pattern: a diagonal band
// and a solid block.
func testPage(width, height, vr int) *page.Bitmap {
	b := page.NewBitmap(width, height, vr)
	for y := range height {
		for x := y % width; x < min(width, y%width+40); x++ {
			b.Set(x, y)
		}
		if y%7 < 3 {
			for x := 100; x < 300; x++ {
				b.Set(x, y)
			}
		}
	}

	return b
}

// encodePage encodes doc's current page as the data a remote station sends.
func encodePage(t *testing.T, doc page.Source, session t30.Capability) []byte {
	t.Helper()

	var buf bytes.Buffer
	xfer := NewPageTransfer(newTestConfig(t))
	local := session
	_, err := xfer.SendPage(&buf, doc, local, session, nil)
	require.NoError(t, err)

	return buf.Bytes()
}

// decodePage decodes page data into a bitmap.
func decodePage(t *testing.T, data []byte, session t30.Capability) (*page.Bitmap, PageResult) {
	t.Helper()

	sink := page.NewMemorySink()
	xfer := NewPageTransfer(newTestConfig(t))
	res, err := xfer.ReceivePage(bytes.NewReader(data), sink, 0, session)
	require.NoError(t, err)
	if len(sink.Pages()) == 0 {
		return nil, res
	}

	return sink.Pages()[0], res
}

// --- scripted line ---

// scriptLine is a Line answering commands from per-command queues. Commands
// without a queued response answer OK.
type scriptLine struct {
	commands  []string
	responses map[string][]*modem.Response
	waits     []*modem.Response
	reads     [][]byte
	lines     []string
	written   [][]byte
	raw       [][]byte
	drains    int
}

func newScriptLine() *scriptLine {
	return &scriptLine{responses: map[string][]*modem.Response{}}
}

func resp(code modem.Code, lines ...string) *modem.Response {
	return &modem.Response{Code: code, Final: code.String(), Lines: lines}
}

func (l *scriptLine) on(cmd string, r ...*modem.Response) *scriptLine {
	l.responses[cmd] = append(l.responses[cmd], r...)
	return l
}

func (l *scriptLine) Command(_ context.Context, cmd string, _ time.Duration) (*modem.Response, error) {
	l.commands = append(l.commands, cmd)
	q := l.responses[cmd]
	if len(q) == 0 {
		return resp(modem.CodeOK), nil
	}
	l.responses[cmd] = q[1:]

	return q[0], nil
}

func (l *scriptLine) Wait(context.Context, time.Duration) (*modem.Response, error) {
	if len(l.waits) == 0 {
		return resp(modem.CodeTimeout), nil
	}
	r := l.waits[0]
	l.waits = l.waits[1:]

	return r, nil
}

func (l *scriptLine) ReadLine(context.Context, time.Duration) (string, error) {
	if len(l.lines) == 0 {
		return "", modem.ErrTimeout
	}
	line := l.lines[0]
	l.lines = l.lines[1:]

	return line, nil
}

// DataWriter and DataReader stand for the modem after bit order
// correction: data passes as the codec produces and consumes it.
func (l *scriptLine) DataWriter(bool) io.WriteCloser {
	return &captureWriter{done: func(p []byte) { l.written = append(l.written, p) }}
}

func (l *scriptLine) DataReader(context.Context, bool) io.Reader {
	if len(l.reads) == 0 {
		return bytes.NewReader(nil)
	}
	data := l.reads[0]
	l.reads = l.reads[1:]

	return bytes.NewReader(data)
}

func (l *scriptLine) WriteRaw(p []byte) error {
	l.raw = append(l.raw, bytes.Clone(p))
	return nil
}

func (l *scriptLine) Pause(context.Context, time.Duration) error {
	return nil
}

func (l *scriptLine) Drain(context.Context, time.Duration) (int, error) {
	l.drains++
	return 0, nil
}

// captureWriter collects a data phase and hands it over on Close.
type captureWriter struct {
	buf  bytes.Buffer
	done func([]byte)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *captureWriter) Close() error {
	w.done(w.buf.Bytes())
	return nil
}

// --- simulated Class 1 remote station ---

// remoteStation plays the far end of a Class 1 call behind a fake modem.
// Frames the driver sends are passed to react, which queues the remote's
// answers.
type remoteStation struct {
	t        *testing.T
	caller   bool // the driver's role
	mode     string
	commands []string
	waits    []*modem.Response

	// rx are frames for the driver, frm data streams for +FRM.
	rx  []*t30.Frame
	frm [][]byte

	sent     []*t30.Frame
	tcfs     int
	pages    [][]byte
	afterDCS bool

	react  func(r *remoteStation, f *t30.Frame)
	onPage func(r *remoteStation, data []byte)
	onTCF  func(r *remoteStation)
}

func newRemoteStation(t *testing.T, caller bool) *remoteStation {
	r := &remoteStation{t: t, caller: caller, mode: "fth"}
	if caller {
		r.mode = "frh"
	}
	r.onTCF = func(r *remoteStation) { r.send(t30.CFR) }

	return r
}

// send queues frame types; the last one is final.
func (r *remoteStation) send(types ...t30.FrameType) {
	for i, ft := range types {
		r.rx = append(r.rx, &t30.Frame{Type: ft, Final: i == len(types)-1})
	}
}

func (r *remoteStation) sentTypes() []t30.FrameType {
	out := make([]t30.FrameType, 0, len(r.sent))
	for _, f := range r.sent {
		out = append(out, f.Type)
	}

	return out
}

func (r *remoteStation) Command(_ context.Context, cmd string, _ time.Duration) (*modem.Response, error) {
	r.commands = append(r.commands, cmd)
	switch {
	case cmd == "A" || strings.HasPrefix(cmd, "D"):
		// the call is up, frames follow
	case cmd == "+FTH=3":
		r.mode = "fth"
	case cmd == "+FRH=3":
		if len(r.rx) == 0 {
			return resp(modem.CodeTimeout), nil
		}
		r.mode = "frh"
	case strings.HasPrefix(cmd, "+FTM="):
		r.mode = "ftm"
	case strings.HasPrefix(cmd, "+FRM="):
		if len(r.frm) == 0 {
			return resp(modem.CodeNoCarrier), nil
		}
		r.mode = "frm"
	default:
		return resp(modem.CodeOK), nil
	}

	return resp(modem.CodeConnect), nil
}

func (r *remoteStation) Wait(context.Context, time.Duration) (*modem.Response, error) {
	if len(r.waits) == 0 {
		return resp(modem.CodeTimeout), nil
	}
	w := r.waits[0]
	r.waits = r.waits[1:]

	return w, nil
}

func (r *remoteStation) ReadLine(context.Context, time.Duration) (string, error) {
	return "", modem.ErrTimeout
}

func (r *remoteStation) DataWriter(bool) io.WriteCloser {
	return &captureWriter{done: r.dataSent}
}

func (r *remoteStation) dataSent(p []byte) {
	switch r.mode {
	case "fth":
		f, err := t30.ParseFrame(p)
		require.NoError(r.t, err)
		r.sent = append(r.sent, f)
		if f.Final {
			r.waits = append(r.waits, resp(modem.CodeOK))
		} else {
			r.waits = append(r.waits, resp(modem.CodeConnect))
		}
		r.afterDCS = f.Type == t30.DCS
		if r.react != nil {
			r.react(r, f)
		}
	case "ftm":
		r.waits = append(r.waits, resp(modem.CodeOK))
		if r.afterDCS {
			r.afterDCS = false
			r.tcfs++
			if r.onTCF != nil {
				r.onTCF(r)
			}

			return
		}
		r.pages = append(r.pages, bytes.Clone(p))
		if r.onPage != nil {
			r.onPage(r, p)
		}
	default:
		r.t.Fatalf("data written in mode %q", r.mode)
	}
}

func (r *remoteStation) DataReader(context.Context, bool) io.Reader {
	switch r.mode {
	case "frh":
		if len(r.rx) == 0 {
			r.waits = append(r.waits, resp(modem.CodeNoCarrier))
			return bytes.NewReader(nil)
		}
		f := r.rx[0]
		r.rx = r.rx[1:]
		b, err := f.Pack(!r.caller)
		require.NoError(r.t, err)
		r.waits = append(r.waits, resp(modem.CodeOK))

		return bytes.NewReader(b)
	case "frm":
		data := r.frm[0]
		r.frm = r.frm[1:]
		r.waits = append(r.waits, resp(modem.CodeNoCarrier))

		return bytes.NewReader(data)
	default:
		r.t.Fatalf("data read in mode %q", r.mode)
		return nil
	}
}

func (r *remoteStation) WriteRaw([]byte) error {
	return nil
}

func (r *remoteStation) Pause(context.Context, time.Duration) error {
	return nil
}

func (r *remoteStation) Drain(context.Context, time.Duration) (int, error) {
	return 0, nil
}

// newTestCall returns a call over line with the given role.
func newTestCall(t *testing.T, line Line, caller bool, opts ...Option) *call {
	t.Helper()

	cfg := newTestConfig(t, opts...)

	return &call{
		line:    line,
		cfg:     cfg,
		logger:  cfg.GetLogger(),
		metrics: newSessionMetrics(),
		xfer:    NewPageTransfer(cfg),
		caller:  caller,
		started: time.Now(),
	}
}

// linesSource is a one-page source of blank lines with the given widths.
type linesSource struct {
	widths []int
	next   int
}

func (s *linesSource) Open() (page.Info, error) {
	s.next = 0
	return page.Info{Width: 1728, Height: len(s.widths)}, nil
}

func (s *linesSource) NextLine(line *t4.Line) (int, error) {
	if s.next >= len(s.widths) {
		return 0, io.EOF
	}
	w := s.widths[s.next]
	s.next++

	line.Reset()
	if w > 0 {
		if err := line.Append(w); err != nil {
			return 0, err
		}
	}

	return w, nil
}

func (s *linesSource) Advance(next bool) bool {
	return !next
}

func (s *linesSource) Peek() (page.Info, bool) {
	return page.Info{}, false
}
