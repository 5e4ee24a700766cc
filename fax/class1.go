package fax

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/imroc/biu"

	"github.com/arloliu/go-fax/modem"
	"github.com/arloliu/go-fax/page"
	"github.com/arloliu/go-fax/t30"
)

// modulations holds the Class 1 +FTM/+FRM code by BR value.
var modulations = [...]int{24, 48, 72, 96, 121, 145}

const (
	// silence is the +FTS argument in 10 ms units, sent before each
	// transmission: T.30 wants 75 ms between signals.
	silence = "+FTS=8"
	// maxFrameSeq bounds the frames of one received sequence.
	maxFrameSeq = 8
	// abortWait is how long an aborted +FRH may take to answer OK.
	abortWait = 1 * time.Second
	// frameSendTime bounds sending one V.21 frame at 300 bit/s.
	frameSendTime = 10 * time.Second
)

// errNoFrame reports that no usable frame arrived: timeout, lost carrier or
// a bad frame check sequence. The procedure retries it.
var errNoFrame = errors.New("fax: no frame received")

func modulation(br int) string {
	if br < 0 || br >= len(modulations) {
		br = 0
	}

	return strconv.Itoa(modulations[br])
}

// class1Driver runs the T.30 procedure on a Class 1 modem.
type class1Driver struct {
	*call
	m *class1Machine

	// pendingRx is set after dialing: the modem already receives the
	// remote's V.21 frames. pendingTx is set after answering: the modem is
	// ready to send frames.
	pendingRx bool
	pendingTx bool

	// t1 is the T1 deadline while the remote isn't identified yet.
	t1 time.Time
	// pageInfo is the format of the current source page.
	pageInfo page.Info
}

func newClass1Driver(c *call) *class1Driver {
	return &class1Driver{
		call:      c,
		pendingRx: c.caller,
		pendingTx: !c.caller,
	}
}

// run executes the procedure until hangup and returns its outcome.
func (d *class1Driver) run(ctx context.Context) error {
	local := d.cfg.LocalCapability()
	if d.src != nil {
		info, err := d.src.Open()
		if err != nil {
			return fmt.Errorf("fax: open first page: %w", err)
		}
		d.pageInfo = info
		local = d.localFor(info)
	}
	d.m = newClass1Machine(d.logger, local, d.cfg.PageRetries(), d.src != nil)
	defer d.collect()

	state, act := d.m.start(d.caller)
	for act.Kind != ActionHangup {
		d.logger.Debug("class 1 step", "state", state, "action", act.Kind)
		ev := d.perform(ctx, act)
		state, act = d.m.step(state, ev)
	}
	d.logger.Debug("class 1 done", "state", state, "error", act.Err)

	return act.Err
}

// collect copies the machine's results into the call and metrics.
func (d *class1Driver) collect() {
	m := d.m
	d.session = m.session
	if d.src != nil {
		d.pages = m.pagesSent
	} else {
		d.pages = m.pagesReceived
	}
	for range m.pageRetryCount {
		d.metrics.incPageRetryCount()
	}
	for range m.fallbacks {
		d.metrics.incFallbackCount()
	}
	for range m.trainFailures {
		d.metrics.incTrainingFailCount()
	}
}

func frameEvent(f *t30.Frame, err error) Event {
	switch {
	case errors.Is(err, errNoFrame):
		return Event{Kind: EventTimeout}
	case err != nil:
		return Event{Kind: EventError, Err: err}
	default:
		return Event{Kind: EventFrame, Frame: f}
	}
}

func sentEvent(err error) Event {
	if err != nil {
		return Event{Kind: EventError, Err: err}
	}

	return Event{Kind: EventSent}
}

// perform executes one action and reports its outcome.
func (d *class1Driver) perform(ctx context.Context, act Action) Event {
	if err := ctx.Err(); err != nil {
		return Event{Kind: EventError, Err: err}
	}
	if act.Kind != ActionWaitDIS && act.Kind != ActionAnnounce {
		d.t1 = time.Time{}
	}
	if act.NextPage {
		if err := d.nextPage(); err != nil {
			return Event{Kind: EventError, Err: err}
		}
	}

	switch act.Kind {
	case ActionNone:
		return Event{Kind: EventNone}
	case ActionWaitDIS:
		return d.waitDIS(ctx)
	case ActionSendDCS:
		return sentEvent(d.sendDCS(ctx))
	case ActionSendTraining:
		if err := d.sendTraining(ctx); err != nil {
			return Event{Kind: EventError, Err: err}
		}

		return frameEvent(d.receiveFrames(ctx, d.cfg.T4Timeout()))
	case ActionSendPage:
		ppm, err := d.sendPage(ctx)
		if err != nil {
			return Event{Kind: EventError, Err: err}
		}

		return Event{Kind: EventPageSent, PPM: ppm}
	case ActionSendPPM:
		if err := d.sendFrames(ctx, act.Frame); err != nil {
			return Event{Kind: EventError, Err: err}
		}

		return frameEvent(d.receiveFrames(ctx, d.cfg.T4Timeout()))
	case ActionAnnounce:
		return d.announce(ctx)
	case ActionWaitCommand:
		return frameEvent(d.receiveFrames(ctx, d.cfg.T2Timeout()))
	case ActionSendResponse:
		return sentEvent(d.sendFrames(ctx, act.Frame))
	case ActionReceiveTraining:
		ok, err := d.receiveTraining(ctx)
		if err != nil {
			return Event{Kind: EventError, Err: err}
		}

		return Event{Kind: EventTraining, OK: ok}
	case ActionReceivePage:
		res, err := d.receivePage(ctx)
		if err != nil {
			return Event{Kind: EventError, Err: err}
		}

		return Event{Kind: EventPage, Page: res}
	case ActionSendDCN:
		return sentEvent(d.sendFrames(ctx, &t30.Frame{Type: t30.DCN}))
	default:
		return Event{Kind: EventError, Err: fmt.Errorf("fax: unknown action %v", act.Kind)}
	}
}

func (d *class1Driver) nextPage() error {
	info, err := d.advance()
	if err != nil {
		return fmt.Errorf("fax: next page: %w", err)
	}
	d.pageInfo = info
	d.m.setLocal(d.localFor(info))

	return nil
}

// t1Remaining starts T1 on first use and returns the time left.
func (d *class1Driver) t1Remaining() time.Duration {
	if d.t1.IsZero() {
		d.t1 = time.Now().Add(d.cfg.T1Timeout())
	}

	return time.Until(d.t1)
}

func (d *class1Driver) waitDIS(ctx context.Context) Event {
	for {
		left := d.t1Remaining()
		if left <= 0 {
			return Event{Kind: EventT1}
		}

		f, err := d.receiveFrames(ctx, min(left, d.cfg.T2Timeout()))
		if errors.Is(err, errNoFrame) {
			continue
		}

		return frameEvent(f, err)
	}
}

// announce sends CSI/DIS, or CIG/DTC when polling, until a command arrives.
func (d *class1Driver) announce(ctx context.Context) Event {
	ident, caps := t30.CSI, t30.DIS
	if d.m.polling {
		ident, caps = t30.CIG, t30.DTC
	}
	fif, err := t30.ToFrame(d.cfg.LocalCapability(), true)
	if err != nil {
		d.logger.Error("local capabilities", "error", err)
	}
	if d.src != nil && caps == t30.DIS {
		t30.SetCanTransmit(fif)
	}

	frames := make([]*t30.Frame, 0, 2)
	if id := d.cfg.LocalID(); id != "" {
		frames = append(frames, t30.NewFrame(ident, t30.EncodeIdent(id)))
	}
	frames = append(frames, t30.NewFrame(caps, fif))

	for {
		if d.t1Remaining() <= 0 {
			return Event{Kind: EventT1}
		}
		if err := d.sendFrames(ctx, frames...); err != nil {
			return Event{Kind: EventError, Err: err}
		}

		f, err := d.receiveFrames(ctx, d.cfg.T4Timeout())
		if errors.Is(err, errNoFrame) {
			continue
		}

		return frameEvent(f, err)
	}
}

func (d *class1Driver) sendDCS(ctx context.Context) error {
	fif, err := t30.ToFrame(d.m.session, false)
	if err != nil {
		d.logger.Error("session capabilities", "error", err)
	}

	frames := make([]*t30.Frame, 0, 2)
	if id := d.cfg.LocalID(); id != "" {
		frames = append(frames, t30.NewFrame(t30.TSI, t30.EncodeIdent(id)))
	}
	frames = append(frames, t30.NewFrame(t30.DCS, fif))

	return d.sendFrames(ctx, frames...)
}

// startData switches to a high speed data phase with cmd (+FTM or +FRM).
// It reports false when the modem didn't connect.
func (d *class1Driver) startData(ctx context.Context, cmd string, timeout time.Duration) (bool, error) {
	resp, err := d.line.Command(ctx, cmd+"="+modulation(d.m.session[t30.BR]), timeout)
	if err != nil {
		return false, err
	}
	if resp.Code != modem.CodeConnect {
		d.logger.Debug("data phase not started", "cmd", cmd, "response", resp.String())
		return false, nil
	}

	return true, nil
}

func (d *class1Driver) sendTraining(ctx context.Context) error {
	if _, err := d.line.Command(ctx, silence, d.cfg.T4Timeout()); err != nil {
		return err
	}
	ok, err := d.startData(ctx, "+FTM", d.cfg.T4Timeout())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: +FTM for training", ErrModem)
	}

	w := d.line.DataWriter(false)
	if err := d.xfer.SendTrainingCheck(w, d.m.session); err != nil {
		return err
	}

	return d.endData(ctx, w, d.cfg.T2Timeout())
}

// endData terminates a transmitted data phase and waits for OK.
func (d *class1Driver) endData(ctx context.Context, w io.WriteCloser, timeout time.Duration) error {
	if err := w.Close(); err != nil {
		return err
	}
	resp, err := d.line.Wait(ctx, timeout)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: data end answered %s", ErrModem, resp)
	}

	return nil
}

func (d *class1Driver) sendPage(ctx context.Context) (t30.FrameType, error) {
	if err := d.line.Pause(ctx, 75*time.Millisecond); err != nil {
		return t30.FrameUnknown, err
	}
	ok, err := d.startData(ctx, "+FTM", d.cfg.T4Timeout())
	if err != nil {
		return t30.FrameUnknown, err
	}
	if !ok {
		return t30.FrameUnknown, fmt.Errorf("%w: +FTM for page", ErrModem)
	}

	w := d.line.DataWriter(d.cfg.ReverseBits())
	stats, err := d.xfer.SendPage(w, d.src, d.localFor(d.pageInfo), d.m.session, d.header())
	if err != nil {
		_ = w.Close()
		return t30.FrameUnknown, err
	}
	if err := d.endData(ctx, w, d.cfg.PageTimeout()); err != nil {
		return t30.FrameUnknown, err
	}

	ppm := d.nextPPM(d.pageInfo)
	d.logger.Info("page sent", "page", d.srcPage+1, "lines", stats.Lines, "bytes", stats.Bytes,
		"bps", t30.BitRate(d.m.session[t30.BR]), "ppm", ppm)
	d.metrics.incPageSendCount()

	return ppm, nil
}

func (d *class1Driver) receiveTraining(ctx context.Context) (bool, error) {
	ok, err := d.startData(ctx, "+FRM", d.cfg.T2Timeout())
	if err != nil || !ok {
		return false, err
	}

	good, err := d.xfer.ReceiveTrainingCheck(d.line.DataReader(ctx, false), d.m.session)
	if errors.Is(err, modem.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := d.line.Wait(ctx, d.cfg.T4Timeout()); err != nil {
		return false, err
	}

	return good, nil
}

func (d *class1Driver) receivePage(ctx context.Context) (PageResult, error) {
	ok, err := d.startData(ctx, "+FRM", d.cfg.T2Timeout())
	if err != nil || !ok {
		return PageResult{}, err
	}

	res, err := d.xfer.ReceivePage(d.line.DataReader(ctx, d.cfg.ReverseBits()), d.sink, d.m.pagesReceived, d.m.session)
	if err != nil {
		return res, err
	}
	if _, err := d.line.Wait(ctx, d.cfg.T4Timeout()); err != nil {
		return res, err
	}
	d.metrics.addLineErrorCount(res.Errors)
	if res.Good {
		d.metrics.incPageRecvCount()
	}

	return res, nil
}

func (d *class1Driver) logFrame(dir string, f *t30.Frame) {
	d.logger.Debug("frame "+dir, "frame", f.Type.String(), "final", f.Final,
		"fif", biu.BytesToBinaryString(f.FIF))
}

// sendFrames sends frames as one V.21 HDLC sequence; the last one carries
// the final bit.
func (d *class1Driver) sendFrames(ctx context.Context, frames ...*t30.Frame) error {
	if d.pendingTx {
		d.pendingTx = false
	} else {
		if _, err := d.line.Command(ctx, silence, d.cfg.T4Timeout()); err != nil {
			return err
		}
		resp, err := d.line.Command(ctx, "+FTH=3", d.cfg.T4Timeout())
		if err != nil {
			return err
		}
		if resp.Code != modem.CodeConnect {
			return fmt.Errorf("%w: +FTH=3 answered %s", ErrModem, resp)
		}
	}

	for i, f := range frames {
		f.Final = i == len(frames)-1
		b, err := f.Pack(d.caller)
		if err != nil {
			return err
		}

		w := d.line.DataWriter(false)
		if _, err := w.Write(b); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		d.logFrame("sent", f)
		d.metrics.incFrameCount(f.Type, true)

		resp, err := d.line.Wait(ctx, frameSendTime)
		if err != nil {
			return err
		}
		want := modem.CodeConnect
		if f.Final {
			want = modem.CodeOK
		}
		if resp.Code != want {
			return fmt.Errorf("%w: sending %s answered %s", ErrModem, f.Type, resp)
		}
	}

	return nil
}

// receiveFrame receives one frame, waiting up to timeout for its carrier.
func (d *class1Driver) receiveFrame(ctx context.Context, timeout time.Duration) (*t30.Frame, error) {
	if d.pendingRx {
		d.pendingRx = false
	} else {
		resp, err := d.line.Command(ctx, "+FRH=3", timeout)
		if err != nil {
			return nil, err
		}
		switch resp.Code {
		case modem.CodeConnect:
		case modem.CodeTimeout:
			// any character aborts the receive command
			if err := d.line.WriteRaw([]byte{modem.CAN}); err != nil {
				return nil, err
			}
			if _, err := d.line.Wait(ctx, abortWait); err != nil {
				return nil, err
			}

			return nil, errNoFrame
		default:
			d.logger.Debug("no frame", "response", resp.String())
			return nil, errNoFrame
		}
	}

	data, err := io.ReadAll(io.LimitReader(d.line.DataReader(ctx, false), t30.MaxFrameLen+1))
	if errors.Is(err, modem.ErrTimeout) {
		return nil, errNoFrame
	}
	if err != nil {
		return nil, err
	}

	resp, err := d.line.Wait(ctx, d.cfg.T4Timeout())
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		d.logger.Debug("bad frame", "response", resp.String(), "bytes", len(data))
		return nil, errNoFrame
	}

	f, err := t30.ParseFrame(data)
	if err != nil {
		d.logger.Debug("bad frame", "error", err)
		return nil, errNoFrame
	}
	d.logFrame("received", f)
	d.metrics.incFrameCount(f.Type, false)

	return f, nil
}

// receiveFrames receives a frame sequence and returns its final frame.
// Identification frames update the remote ID on the way.
func (d *class1Driver) receiveFrames(ctx context.Context, timeout time.Duration) (*t30.Frame, error) {
	for range maxFrameSeq {
		f, err := d.receiveFrame(ctx, timeout)
		if err != nil {
			return nil, err
		}
		if f.Type.HasIdent() {
			d.setRemoteID(f.FIF)
		}
		if f.Final {
			return f, nil
		}
		timeout = d.cfg.T4Timeout()
	}

	return nil, fmt.Errorf("%w: more than %d frames without final bit", ErrProtocol, maxFrameSeq)
}
