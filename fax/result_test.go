package fax

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arloliu/go-fax/page"
	"github.com/arloliu/go-fax/t30"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Result
	}{
		{nil, ResultSuccess},
		{ErrBusy, ResultBusy},
		{fmt.Errorf("dial: %w", ErrNoDialtone), ResultNoResponse},
		{ErrNoResponse, ResultNoResponse},
		{ErrTimeout, ResultNoResponse},
		{ErrRemoteDisconnect, ResultDisconnected},
		{ErrLowestSpeed, ResultProtocolError},
		{hangupError(11), ResultNoResponse},
		{hangupError(54), ResultProtocolError},
		{context.Canceled, ResultProtocolError},
		{errors.New("modem: read: EOF"), ResultProtocolError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "success", ResultSuccess.String())
	assert.Equal(t, "disconnected", ResultDisconnected.String())
	assert.Equal(t, "unknown", Result(42).String())
}

func TestExpandHeader(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	got := expandHeader(DefaultHeader, "+1 555 0199", 2, "3", now)
	assert.Equal(t, "2024-03-05 14:07 +1 555 0199   P. 2/3", got)
}

func TestCall_LocalFor(t *testing.T) {
	c := newTestCall(t, newScriptLine(), true)

	assert.Equal(t, t30.Capability{0, 5, 0, 2, 0, 0, 0, 0}, c.localFor(page.Info{Width: 1728, VR: 0}))
	assert.Equal(t, t30.Capability{1, 5, 0, 2, 0, 0, 0, 0}, c.localFor(page.Info{Width: 1728, VR: 1}))
	// wider pages keep the configured width limit
	assert.Equal(t, 0, c.localFor(page.Info{Width: 2048, VR: 1})[t30.WD])

	c = newTestCall(t, newScriptLine(), true, WithLocalCapability(t30.Capability{1, 5, 2, 2, 0, 0, 0, 0}))
	assert.Equal(t, 1, c.localFor(page.Info{Width: 2048, VR: 1})[t30.WD])
	assert.Equal(t, 0, c.localFor(page.Info{Width: 1000, VR: 1})[t30.WD])
}

func TestCall_NextPPM(t *testing.T) {
	normal := testPage(1728, 10, 0)
	fine := testPage(1728, 10, 1)

	c := newTestCall(t, newScriptLine(), true)
	c.src = page.NewDocument(normal, normal, fine)

	assert.Equal(t, t30.MPS, c.nextPPM(normal.Info()))
	_, err := c.advance()
	assert.NoError(t, err)
	assert.Equal(t, t30.EOM, c.nextPPM(normal.Info()))
	_, err = c.advance()
	assert.NoError(t, err)
	assert.Equal(t, t30.EOP, c.nextPPM(fine.Info()))
	assert.Equal(t, 2, c.srcPage)

	_, err = c.advance()
	assert.ErrorIs(t, err, page.ErrNoPage)
}

func TestCall_Header(t *testing.T) {
	c := newTestCall(t, newScriptLine(), true, WithHeader("{id} {page}/{pages}"), WithLocalID("123"))
	c.src = page.NewDocument(testPage(1728, 10, 0))
	assert.NotNil(t, c.header())

	c = newTestCall(t, newScriptLine(), true)
	c.src = page.NewDocument(testPage(1728, 10, 0))
	assert.Nil(t, c.header())
}
