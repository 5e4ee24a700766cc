package fax

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-fax/page"
	"github.com/arloliu/go-fax/t30"
)

// answeringRemote returns a remote station that answers a calling driver
// with CSI and DIS announcing caps.
func answeringRemote(t *testing.T, caps t30.Capability) *remoteStation {
	t.Helper()

	r := newRemoteStation(t, true)
	r.rx = append(r.rx,
		&t30.Frame{Type: t30.CSI, FIF: t30.EncodeIdent("+1 555 0100")},
		disFrame(t, caps),
	)

	return r
}

func TestClass1Driver_SendOnePage(t *testing.T) {
	require := require.New(t)

	remote := answeringRemote(t, normal9600)
	remote.react = func(r *remoteStation, f *t30.Frame) {
		if f.Type == t30.EOP {
			r.send(t30.MCF)
		}
	}

	src := testPage(1728, 40, 0)
	c := newTestCall(t, remote, true, WithLocalID("+1 555 0199"))
	c.src = page.NewDocument(src)

	err := newClass1Driver(c).run(context.Background())
	require.NoError(err)

	require.Equal([]t30.FrameType{t30.TSI, t30.DCS, t30.EOP, t30.DCN}, remote.sentTypes())
	require.Equal("+1 555 0199", t30.DecodeIdent(remote.sent[0].FIF))
	require.Contains(remote.commands, "+FTM=96")
	require.Equal(1, remote.tcfs)
	require.Len(remote.pages, 1)

	got, res := decodePage(t, remote.pages[0], normal9600)
	require.True(res.Good)
	require.Equal(src.Pix, got.Pix)

	require.Equal(1, c.pages)
	require.Equal("+1 555 0100", c.remoteID)
	require.Equal(3, c.session[t30.BR])

	assert.Equal(t, uint64(1), c.metrics.FrameCount(t30.DCS, true))
	assert.Equal(t, uint64(1), c.metrics.FrameCount(t30.MCF, false))
	assert.Equal(t, uint64(1), c.metrics.PageSendCount.Load())
}

func TestClass1Driver_SendTwoPages(t *testing.T) {
	require := require.New(t)

	remote := answeringRemote(t, normal9600)
	remote.react = func(r *remoteStation, f *t30.Frame) {
		if f.Type.IsPostPage() {
			r.send(t30.MCF)
		}
	}

	doc := page.NewDocument(testPage(1728, 30, 0), testPage(1728, 60, 0))
	c := newTestCall(t, remote, true)
	c.src = doc

	require.NoError(newClass1Driver(c).run(context.Background()))
	require.Equal([]t30.FrameType{t30.DCS, t30.MPS, t30.EOP, t30.DCN}, remote.sentTypes())
	require.Len(remote.pages, 2)
	require.Equal(2, c.pages)

	got, _ := decodePage(t, remote.pages[1], normal9600)
	require.Equal(60, got.Height)
}

func TestClass1Driver_FallbackAfterRTN(t *testing.T) {
	require := require.New(t)

	remote := answeringRemote(t, normal9600)
	rtns := 0
	remote.react = func(r *remoteStation, f *t30.Frame) {
		if f.Type != t30.EOP {
			return
		}
		if rtns <= DefaultPageRetries {
			rtns++
			r.send(t30.RTN)

			return
		}
		r.send(t30.MCF)
	}

	c := newTestCall(t, remote, true)
	c.src = page.NewDocument(testPage(1728, 20, 0))

	require.NoError(newClass1Driver(c).run(context.Background()))
	require.Len(remote.pages, DefaultPageRetries+2)
	require.Contains(remote.commands, "+FTM=72")
	require.Equal(2, c.session[t30.BR])
	require.Equal(1, c.pages)

	require.Equal(uint64(DefaultPageRetries+1), c.metrics.PageRetryCount.Load())
	require.Equal(uint64(1), c.metrics.FallbackCount.Load())
}

func TestClass1Driver_TrainingFailureFallsBack(t *testing.T) {
	require := require.New(t)

	remote := answeringRemote(t, normal9600)
	remote.onTCF = func(r *remoteStation) {
		if r.tcfs == 1 {
			r.send(t30.FTT)
			return
		}
		r.send(t30.CFR)
	}
	remote.react = func(r *remoteStation, f *t30.Frame) {
		if f.Type == t30.EOP {
			r.send(t30.MCF)
		}
	}

	c := newTestCall(t, remote, true)
	c.src = page.NewDocument(testPage(1728, 20, 0))

	require.NoError(newClass1Driver(c).run(context.Background()))
	require.Equal(2, remote.tcfs)
	require.Equal([]t30.FrameType{t30.DCS, t30.DCS, t30.EOP, t30.DCN}, remote.sentTypes())

	dcs, err := t30.FromFrame(remote.sent[1].FIF, false)
	require.NoError(err)
	require.Equal(2, dcs[t30.BR])
	require.Equal(uint64(1), c.metrics.TrainingFailCount.Load())
}

func TestClass1Driver_NoDIS(t *testing.T) {
	remote := newRemoteStation(t, true)

	c := newTestCall(t, remote, true)
	c.src = page.NewDocument(testPage(1728, 20, 0))

	err := newClass1Driver(c).run(context.Background())
	require.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, []t30.FrameType{t30.DCN}, remote.sentTypes())
}

func TestClass1Driver_RemoteHangsUp(t *testing.T) {
	remote := answeringRemote(t, normal9600)
	remote.onTCF = func(r *remoteStation) { r.send(t30.DCN) }

	c := newTestCall(t, remote, true)
	c.src = page.NewDocument(testPage(1728, 20, 0))

	err := newClass1Driver(c).run(context.Background())
	require.ErrorIs(t, err, ErrRemoteDisconnect)
	assert.Equal(t, ResultDisconnected, Classify(err))
	assert.Equal(t, []t30.FrameType{t30.DCS}, remote.sentTypes())
}

func TestClass1Driver_ReceiveOnePage(t *testing.T) {
	require := require.New(t)

	src := testPage(1728, 30, 0)

	dcs, err := t30.ToFrame(normal9600, false)
	require.NoError(err)

	remote := newRemoteStation(t, false)
	remote.frm = [][]byte{trainingCheck(t, normal9600), encodePage(t, page.NewDocument(src), normal9600)}
	remote.react = func(r *remoteStation, f *t30.Frame) {
		switch f.Type {
		case t30.DIS:
			r.rx = append(r.rx,
				&t30.Frame{Type: t30.TSI, FIF: t30.EncodeIdent("+49 30 1234")},
				&t30.Frame{Type: t30.DCS, Final: true, FIF: dcs},
			)
		case t30.CFR:
			r.send(t30.EOP)
		case t30.MCF:
			r.send(t30.DCN)
		}
	}

	sink := page.NewMemorySink()
	c := newTestCall(t, remote, false)
	c.sink = sink

	require.NoError(newClass1Driver(c).run(context.Background()))
	require.Equal([]t30.FrameType{t30.DIS, t30.CFR, t30.MCF}, remote.sentTypes())
	require.Contains(remote.commands, "+FRM=96")

	require.Len(sink.Pages(), 1)
	require.Equal(src.Pix, sink.Pages()[0].Pix)
	require.Equal(1, c.pages)
	require.Equal("+49 30 1234", c.remoteID)
	require.Equal(uint64(1), c.metrics.PageRecvCount.Load())
	require.Equal(uint64(1), c.metrics.FrameCount(t30.DCS, false))
}

func TestClass1Driver_ReceiveBadTraining(t *testing.T) {
	require := require.New(t)

	dcs, err := t30.ToFrame(normal9600, false)
	require.NoError(err)

	noise := make([]byte, 1800)
	for i := range noise {
		noise[i] = 0x55
	}

	remote := newRemoteStation(t, false)
	remote.frm = [][]byte{noise}
	remote.react = func(r *remoteStation, f *t30.Frame) {
		switch f.Type {
		case t30.DIS:
			r.rx = append(r.rx, &t30.Frame{Type: t30.DCS, Final: true, FIF: dcs})
		case t30.FTT:
			r.send(t30.DCN)
		}
	}

	c := newTestCall(t, remote, false)
	c.sink = page.NewMemorySink()

	err = newClass1Driver(c).run(context.Background())
	require.ErrorIs(err, ErrRemoteDisconnect)
	require.Equal([]t30.FrameType{t30.DIS, t30.FTT}, remote.sentTypes())
	require.Equal(uint64(1), c.metrics.TrainingFailCount.Load())
}

func TestClass1Driver_Cancelled(t *testing.T) {
	remote := answeringRemote(t, normal9600)
	c := newTestCall(t, remote, true)
	c.src = page.NewDocument(testPage(1728, 20, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newClass1Driver(c).run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// trainingCheck returns a TCF as the sender produces it.
func trainingCheck(t *testing.T, session t30.Capability) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, NewPageTransfer(newTestConfig(t)).SendTrainingCheck(&buf, session))

	return buf.Bytes()
}

func TestModulation(t *testing.T) {
	assert.Equal(t, "24", modulation(0))
	assert.Equal(t, "96", modulation(3))
	assert.Equal(t, "145", modulation(5))
	assert.Equal(t, "24", modulation(9))
}
