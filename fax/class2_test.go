package fax

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-fax/modem"
	"github.com/arloliu/go-fax/page"
	"github.com/arloliu/go-fax/t30"
)

func TestClass2Driver_Send(t *testing.T) {
	require := require.New(t)

	line := newScriptLine().
		on("+FDT", resp(modem.CodeConnect, "+FDCS:0,3,0,2,0,0,0,0")).
		on("+FET=2", resp(modem.CodeOK, "+FPTS:1", "+FHNG:0"))
	line.waits = []*modem.Response{resp(modem.CodeOK)}

	src := testPage(1728, 40, 0)
	c := newTestCall(t, line, true, WithClass(Class2))
	c.src = page.NewDocument(src)

	dialed := resp(modem.CodeOK, "+FCON", `+FCSI: "+1 555 0100"`, "+FDIS:0,5,0,2,0,0,0,0")
	require.NoError(newClass2Driver(c).send(context.Background(), dialed))

	require.Equal([]string{"+FDIS=0,5,0,2,0,0,0,0", "+FDT", "+FET=2"}, line.commands)
	require.Len(line.written, 1)
	got, res := decodePage(t, line.written[0], normal9600)
	require.True(res.Good)
	require.Equal(src.Pix, got.Pix)

	require.Equal(1, c.pages)
	require.Equal("+1 555 0100", c.remoteID)
	require.Equal(normal9600, c.session)
	require.Equal(uint64(1), c.metrics.PageSendCount.Load())
}

func TestClass2Driver_SendTwoPages(t *testing.T) {
	require := require.New(t)

	line := newScriptLine().
		on("+FDT", resp(modem.CodeConnect, "+FDCS:0,3,0,2,0,0,0,0"), resp(modem.CodeConnect)).
		on("+FET=0", resp(modem.CodeOK, "+FPTS:1")).
		on("+FET=2", resp(modem.CodeOK, "+FPTS:1"))
	line.waits = []*modem.Response{resp(modem.CodeOK), resp(modem.CodeOK), resp(modem.CodeOK, "+FHNG:0")}

	c := newTestCall(t, line, true, WithClass(Class2))
	c.src = page.NewDocument(testPage(1728, 20, 0), testPage(1728, 30, 0))

	require.NoError(newClass2Driver(c).send(context.Background(), resp(modem.CodeOK, "+FCON")))
	require.Equal([]string{"+FDIS=0,5,0,2,0,0,0,0", "+FDT", "+FET=0", "+FDT", "+FET=2"}, line.commands)
	require.Len(line.written, 2)
	require.Equal(2, c.pages)
	require.Empty(line.waits, "hangup report collected")
}

func TestClass2Driver_SendRetriesRejectedPage(t *testing.T) {
	require := require.New(t)

	line := newScriptLine().
		on("+FDT", resp(modem.CodeConnect, "+FDCS:0,3,0,2,0,0,0,0"), resp(modem.CodeConnect)).
		on("+FET=2", resp(modem.CodeOK, "+FPTS:2"), resp(modem.CodeOK, "+FPTS:1", "+FHNG:0"))
	line.waits = []*modem.Response{resp(modem.CodeOK), resp(modem.CodeOK)}

	c := newTestCall(t, line, true, WithClass(Class2))
	c.src = page.NewDocument(testPage(1728, 20, 0))

	require.NoError(newClass2Driver(c).send(context.Background(), resp(modem.CodeOK, "+FCON")))
	require.Len(line.written, 2)
	require.Equal(line.written[0], line.written[1], "same page sent again")
	require.Equal(1, c.pages)
	require.Equal(uint64(1), c.metrics.PageRetryCount.Load())
}

func TestClass2Driver_SendGivesUp(t *testing.T) {
	line := newScriptLine()
	for range DefaultPageRetries + 1 {
		line.on("+FDT", resp(modem.CodeConnect))
		line.on("+FET=2", resp(modem.CodeOK, "+FPTS:2"))
		line.waits = append(line.waits, resp(modem.CodeOK))
	}

	c := newTestCall(t, line, true, WithClass(Class2))
	c.src = page.NewDocument(testPage(1728, 20, 0))

	err := newClass2Driver(c).send(context.Background(), resp(modem.CodeOK, "+FCON", "+FDCS:0,3,0,2,0,0,0,0"))
	require.ErrorIs(t, err, ErrLowestSpeed)
	assert.Zero(t, c.pages)
}

func TestClass2Driver_SendWithoutPageStatus(t *testing.T) {
	require := require.New(t)

	line := newScriptLine().
		on("+FDT", resp(modem.CodeConnect, "+FDCS:0,3,0,2,0,0,0,0"), resp(modem.CodeConnect))
	line.waits = []*modem.Response{resp(modem.CodeOK), resp(modem.CodeOK)}

	c := newTestCall(t, line, true, WithClass(Class2))
	c.src = page.NewDocument(testPage(1728, 20, 0), testPage(1728, 30, 0))

	require.NoError(newClass2Driver(c).send(context.Background(), resp(modem.CodeOK, "+FCON")))
	require.Equal([]string{"+FDIS=0,5,0,2,0,0,0,0", "+FDT", "+FET=0", "+FDT", "+FET=2"}, line.commands)
	require.Len(line.written, 2)
	require.Equal(2, c.pages)
	require.Zero(c.metrics.PageRetryCount.Load())
}

func TestClass2Driver_SendWithoutPageStatusHangup(t *testing.T) {
	line := newScriptLine().
		on("+FDT", resp(modem.CodeConnect, "+FDCS:0,3,0,2,0,0,0,0")).
		on("+FET=2", resp(modem.CodeOK, "+FHNG:54"))
	line.waits = []*modem.Response{resp(modem.CodeOK)}

	c := newTestCall(t, line, true, WithClass(Class2))
	c.src = page.NewDocument(testPage(1728, 20, 0))

	err := newClass2Driver(c).send(context.Background(), resp(modem.CodeOK, "+FCON"))
	var he *HangupError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 54, he.Code)
	assert.Zero(t, c.pages)
}

func TestClass2Driver_SendHangup(t *testing.T) {
	line := newScriptLine().on("+FDT", resp(modem.CodeError, "+FHNG:25"))

	c := newTestCall(t, line, true, WithClass(Class2))
	c.src = page.NewDocument(testPage(1728, 20, 0))

	err := newClass2Driver(c).send(context.Background(), resp(modem.CodeOK, "+FCON"))
	var he *HangupError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 25, he.Code)
	assert.Equal(t, "DCS sent three times without response", he.Description)
	assert.ErrorIs(t, err, ErrHangup)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestClass20Driver_HexHangup(t *testing.T) {
	line := newScriptLine().on("+FDT", resp(modem.CodeError, "+FHS:4A"))

	c := newTestCall(t, line, true, WithClass(Class20))
	c.src = page.NewDocument(testPage(1728, 20, 0))

	err := newClass2Driver(c).send(context.Background(), resp(modem.CodeOK, "+FCO"))
	var he *HangupError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 74, he.Code)
	assert.Equal(t, []string{"+FIS=0,5,0,2,0,0,0,0", "+FDT"}, line.commands)
}

func TestClass2Driver_Receive(t *testing.T) {
	require := require.New(t)

	src := testPage(1728, 30, 0)
	line := newScriptLine().
		on("+FDR", resp(modem.CodeConnect), resp(modem.CodeOK, "+FHNG:0"))
	line.reads = [][]byte{encodePage(t, page.NewDocument(src), normal9600)}
	line.waits = []*modem.Response{resp(modem.CodeOK, "+FPTS:1", "+FET:2")}

	sink := page.NewMemorySink()
	c := newTestCall(t, line, false, WithClass(Class2))
	c.sink = sink

	answered := resp(modem.CodeOK, "+FCON", `+FTSI:"+49 30 1234"`, "+FDCS:0,3,0,2,0,0,0,0")
	require.NoError(newClass2Driver(c).receive(context.Background(), answered))

	require.Equal([]string{"+FDR", "+FPTS=1", "+FDR"}, line.commands)
	require.Equal([][]byte{{modem.DC2}}, line.raw)
	require.Len(sink.Pages(), 1)
	require.Equal(src.Pix, sink.Pages()[0].Pix)
	require.Equal(1, c.pages)
	require.Equal("+49 30 1234", c.remoteID)
	require.Equal(uint64(1), c.metrics.PageRecvCount.Load())
}

func TestClass2Driver_ReceiveBadPage(t *testing.T) {
	require := require.New(t)

	// most of the page is lost, then the remote gives up
	data := encodePage(t, page.NewDocument(testPage(1728, 30, 0)), normal9600)
	line := newScriptLine().
		on("+FDR", resp(modem.CodeConnect), resp(modem.CodeError, "+FHNG:100"))
	line.reads = [][]byte{data[:len(data)/20]}
	line.waits = []*modem.Response{resp(modem.CodeOK, "+FPTS:1", "+FET:2")}

	sink := page.NewMemorySink()
	c := newTestCall(t, line, false, WithClass(Class2))
	c.sink = sink

	err := newClass2Driver(c).receive(context.Background(), resp(modem.CodeOK, "+FCON", "+FDCS:0,3,0,2,0,0,0,0"))
	var he *HangupError
	require.ErrorAs(err, &he)
	require.Equal(100, he.Code)
	require.Contains(line.commands, "+FPTS=2")
	require.Empty(sink.Pages())
	require.Zero(c.pages)
}

func TestClass2Commands_Init(t *testing.T) {
	cfg := newTestConfig(t, WithLocalID("+1 555 0199"), WithLocalCapability(normal9600))

	assert.Equal(t, []string{
		"+FCLASS=2", `+FLID="+1 555 0199"`, "+FDCC=0,3,0,2,0,0,0,0", "+FBOR=0", "+FCR=1",
	}, class2Cmds.initCommands(cfg))

	cfg = newTestConfig(t, WithReverseBits(false))
	assert.Equal(t, []string{
		"+FCLASS=2.0", "+FCC=1,5,0,2,0,0,0,0", "+FBO=1", "+FCR=1", "+FNR=1,1,1,0",
	}, class20Cmds.initCommands(cfg))
}

func TestClass2Commands_Connected(t *testing.T) {
	assert.True(t, class2Cmds.connected(resp(modem.CodeOK, "+FCON", "+FDIS:0,3,0,2,0,0,0,0")))
	assert.False(t, class2Cmds.connected(resp(modem.CodeOK)))
	assert.False(t, class2Cmds.connected(resp(modem.CodeNoCarrier, "+FCON")))
	assert.True(t, class20Cmds.connected(resp(modem.CodeConnect, "+FCO")))
}

func TestFetCode(t *testing.T) {
	assert.Equal(t, 0, fetCode(t30.MPS))
	assert.Equal(t, 1, fetCode(t30.EOM))
	assert.Equal(t, 2, fetCode(t30.EOP))
}

func TestHangupError_Unwrap(t *testing.T) {
	err := hangupError(52)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHangup))
	assert.Contains(t, err.Error(), "no response to MPS repeated 3 times")
	assert.NoError(t, hangupError(0))
}
