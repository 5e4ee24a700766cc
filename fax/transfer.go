package fax

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/arloliu/go-fax/logger"
	"github.com/arloliu/go-fax/page"
	"github.com/arloliu/go-fax/t30"
	"github.com/arloliu/go-fax/t4"
)

const (
	// MaxLoggedLineErrors caps the line errors logged per received page.
	MaxLoggedLineErrors = 10

	// rtcEOLs is the number of EOLs sent after the last line of a page.
	rtcEOLs = 6

	// A page without RTC still counts as complete when it has at least
	// softMinLines lines and fewer than half of them are bad.
	softMinLines = 10

	trainingSendTime = 1500 * time.Millisecond
	trainingMinZeros = 1 * time.Second
)

// PageStats describes a page sent.
type PageStats struct {
	// Lines is the number of scan lines sent, header lines included.
	Lines int
	// Bytes is the size of the encoded page.
	Bytes int64
}

// PageResult describes a received page.
type PageResult struct {
	// Lines is the number of scan lines written to the sink.
	Lines int
	// Errors is the number of lines that were undecodable or had the
	// wrong width.
	Errors int
	// RTC reports that the end-of-page marker was received.
	RTC bool
	// Complete reports that the page can be confirmed: RTC was received,
	// or enough good lines arrived before the data ended.
	Complete bool
	// Good reports a complete page with at most the tolerated number of
	// line errors. Only good pages are committed to the sink.
	Good bool
	// Fingerprint is a hash over the received scan lines.
	Fingerprint uint64
}

// PageTransfer moves T.4 page data between page sources/sinks and the
// modem's data streams.
type PageTransfer struct {
	logger        logger.Logger
	maxPageErrors int
	capture       io.Writer
}

// NewPageTransfer returns a PageTransfer using the logger, error threshold
// and capture writer of cfg.
func NewPageTransfer(cfg *Config) *PageTransfer {
	return &PageTransfer{
		logger:        cfg.GetLogger().With("component", "page"),
		maxPageErrors: cfg.MaxPageErrors(),
		capture:       cfg.Capture(),
	}
}

// lineEmitter encodes scan lines at the session format.
type lineEmitter struct {
	enc     *t4.Encoder
	w       *bufio.Writer
	buf     []byte
	runs    t4.Line
	width   int
	minBits int

	lines int
	bytes int64
}

func (e *lineEmitter) write() error {
	n, err := e.w.Write(e.buf)
	e.bytes += int64(n)
	e.buf = e.buf[:0]

	return err
}

// emit encodes one line, padding it with fill bits to the minimum scan
// time, followed by EOL.
func (e *lineEmitter) emit(runs []int) error {
	start := len(e.buf)*8 + e.enc.Pending()
	var err error
	e.buf, err = e.enc.Encode(e.buf, runs)
	if err != nil {
		return err
	}
	if bits := len(e.buf)*8 + e.enc.Pending() - start; bits < e.minBits {
		e.buf = e.enc.Fill(e.buf, e.minBits-bits)
	}
	e.buf = e.enc.EOL(e.buf)
	e.lines++

	return e.write()
}

func (e *lineEmitter) emitRow(row []byte) error {
	if err := page.RowToRuns(row, e.width, &e.runs); err != nil {
		return err
	}

	return e.emit(e.runs)
}

// readRow reads the next source line into row at the session width. It
// returns the source width of the line.
func readRow(src page.Source, runs *t4.Line, row []byte, width int) (int, error) {
	n, err := src.NextLine(runs)
	if err != nil {
		return 0, err
	}
	if err := page.RunsToRow(*runs, width, row); err != nil {
		return 0, err
	}

	return n, nil
}

// SendPage encodes the current page of src onto w.
//
// local is the capability of the page itself and session the negotiated
// one. Lines are cut or padded to the session width; a fine page sent at
// normal resolution has each pair of lines merged. The header band is
// drawn on lines added on top of the page. Every line is padded to the
// session's minimum scan time and the page ends with RTC.
func (pt *PageTransfer) SendPage(w io.Writer, src page.Source, local, session t30.Capability, header page.HeaderRenderer) (PageStats, error) {
	var stats PageStats

	info, err := src.Open()
	if err != nil {
		return stats, fmt.Errorf("fax: open page: %w", err)
	}
	if pt.capture != nil {
		w = io.MultiWriter(w, pt.capture)
	}

	width := t30.PageWidth(session[t30.WD])
	vr := session[t30.VR]
	decimate := local[t30.VR] == 1 && vr == 0
	scanMs := int(t30.ScanTime(vr, session[t30.ST]) / time.Millisecond)

	e := &lineEmitter{
		enc:     t4.NewEncoder(),
		w:       bufio.NewWriter(w),
		width:   width,
		minBits: t30.BitRate(session[t30.BR]) * scanMs / 1000,
	}
	pt.logger.Debug("sending page", "width", info.Width, "height", info.Height,
		"session", session.Describe(), "decimate", decimate, "min_bits", e.minBits)

	// leading EOL
	e.buf = e.enc.EOL(e.buf)

	row := make([]byte, page.RowBytes(width))
	if header != nil {
		for i := range header.Lines(vr) {
			clear(row)
			header.Render(vr, i, row, width)
			if err := e.emitRow(row); err != nil {
				return stats, err
			}
		}
	}

	pair := make([]byte, len(row))
	var runs t4.Line
	// source lines read so far; header lines don't count
	srcLines := 0
	last := false
	for !last {
		n, err := readRow(src, &runs, row, width)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("fax: read page line %d: %w", srcLines+1, err)
		}
		srcLines++
		if n == 0 {
			if srcLines > 1 {
				pt.logger.Debug("empty source line, assuming end of page", "line", srcLines)
				break
			}
			clear(row)
		}

		if decimate {
			n, err := readRow(src, &runs, pair, width)
			switch {
			case errors.Is(err, io.EOF) || (err == nil && n == 0):
				last = true
			case err != nil:
				return stats, fmt.Errorf("fax: read page line %d: %w", srcLines+1, err)
			default:
				srcLines++
				page.OrRows(row, pair)
			}
		}

		if err := e.emitRow(row); err != nil {
			return stats, err
		}
	}

	for range rtcEOLs {
		e.buf = e.enc.EOL(e.buf)
	}
	e.buf = e.enc.Flush(e.buf)
	if err := e.write(); err != nil {
		return stats, err
	}
	if err := e.w.Flush(); err != nil {
		return stats, err
	}

	stats.Lines, stats.Bytes = e.lines, e.bytes
	pt.logger.Debug("page sent", "lines", stats.Lines, "bytes", stats.Bytes)

	return stats, nil
}

// ReceivePage decodes one page from r into sink as page index.
//
// The page ends at RTC or when r is exhausted. Lines of the wrong width are
// cut or padded and counted as errors, as are undecodable lines. The page is
// committed to the sink only when it is good; see PageResult. An error is
// returned only when the sink fails.
func (pt *PageTransfer) ReceivePage(r io.Reader, sink page.Sink, index int, session t30.Capability) (PageResult, error) {
	var res PageResult

	if pt.capture != nil {
		r = io.TeeReader(r, pt.capture)
	}

	width := t30.PageWidth(session[t30.WD])
	if err := sink.BeginPage(index, page.Info{Width: width, VR: session[t30.VR]}); err != nil {
		return res, fmt.Errorf("fax: begin page %d: %w", index+1, err)
	}

	dec := t4.NewDecoder(r)
	hash := xxhash.New()
	row := make([]byte, page.RowBytes(width))
	var line, fixed t4.Line
	var scratch []byte

	for {
		n, err := dec.DecodeLine(&line)
		if n == 0 && dec.RTC() {
			res.RTC = true
			break
		}
		if dec.EOF() {
			if err != nil && !errors.Is(err, t4.ErrInvalidCode) && !errors.Is(err, t4.ErrRunsOverflow) {
				pt.logger.Warn("page data ended", "page", index+1, "line", res.Lines+1, "error", err)
			}

			break
		}
		if n == 0 {
			continue
		}

		out := line
		if err != nil || n != width {
			res.Errors++
			if res.Errors <= MaxLoggedLineErrors {
				if err == nil {
					err = fmt.Errorf("width %d, expected %d", n, width)
				}
				pt.logger.Debug("bad line", "page", index+1, "line", res.Lines+1, "error", err)
			}
			if rerr := page.RunsToRow(line, width, row); rerr != nil {
				clear(row)
			}
			if rerr := page.RowToRuns(row, width, &fixed); rerr != nil {
				return res, rerr
			}
			out = fixed
		}

		if err := sink.WriteLine(out, 1); err != nil {
			return res, fmt.Errorf("fax: write page %d line %d: %w", index+1, res.Lines+1, err)
		}
		res.Lines++

		scratch = scratch[:0]
		for _, run := range out {
			scratch = binary.AppendUvarint(scratch, uint64(run))
		}
		_, _ = hash.Write(scratch)
	}

	res.Fingerprint = hash.Sum64()
	switch {
	case res.RTC:
		res.Complete = true
	case res.Lines >= softMinLines && res.Errors*2 < res.Lines:
		res.Complete = true
		pt.logger.Warn("page without RTC accepted", "page", index+1, "lines", res.Lines, "errors", res.Errors)
	}
	res.Good = res.Complete && res.Errors <= pt.maxPageErrors

	if err := sink.EndPage(res.Good); err != nil {
		return res, fmt.Errorf("fax: end page %d: %w", index+1, err)
	}

	pt.logger.Info("page received", "page", index+1, "lines", res.Lines, "errors", res.Errors,
		"rtc", res.RTC, "good", res.Good, "fingerprint", fmt.Sprintf("%016x", res.Fingerprint))

	return res, nil
}

// SendTrainingCheck sends the TCF: zeros for 1.5 s at the session bit rate.
func (pt *PageTransfer) SendTrainingCheck(w io.Writer, session t30.Capability) error {
	n := t30.BitRate(session[t30.BR]) * int(trainingSendTime/time.Millisecond) / 8000
	zeros := make([]byte, 512)
	for n > 0 {
		k := min(n, len(zeros))
		if _, err := w.Write(zeros[:k]); err != nil {
			return fmt.Errorf("fax: send training check: %w", err)
		}
		n -= k
	}

	return nil
}

// ReceiveTrainingCheck reads a TCF up to its end and reports whether it
// contained an unbroken run of zero bytes lasting at least one second at
// the session bit rate.
func (pt *PageTransfer) ReceiveTrainingCheck(r io.Reader, session t30.Capability) (bool, error) {
	need := t30.BitRate(session[t30.BR]) * int(trainingMinZeros/time.Millisecond) / 8000

	buf := make([]byte, 512)
	run, longest, total := 0, 0, 0
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == 0 {
				run++
				longest = max(longest, run)
			} else {
				run = 0
			}
		}
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, fmt.Errorf("fax: receive training check: %w", err)
		}
	}

	ok := longest >= need
	pt.logger.Debug("training check", "bytes", total, "zeros", longest, "need", need, "ok", ok)

	return ok, nil
}
