package fax

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-fax/t30"
)

// SessionMetrics contains atomic metrics of a fax Session, accumulated over
// all its calls. They may be read from any goroutine.
type SessionMetrics struct {
	// CallCount indicates the number of calls started.
	CallCount atomic.Uint64
	// CallFailCount indicates the number of calls that ended with an error.
	CallFailCount atomic.Uint64

	// PageSendCount indicates the number of page transmissions.
	PageSendCount atomic.Uint64
	// PageRecvCount indicates the number of pages received and confirmed.
	PageRecvCount atomic.Uint64
	// PageRetryCount indicates the number of pages sent again after RTN/PIN.
	PageRetryCount atomic.Uint64
	// LineErrorCount indicates the number of bad scan lines received.
	LineErrorCount atomic.Uint64

	// FallbackCount indicates the number of bit rate fallbacks.
	FallbackCount atomic.Uint64
	// TrainingFailCount indicates the number of failed training checks.
	TrainingFailCount atomic.Uint64

	// frames counts Class 1 frames by direction and type, e.g. "tx DCS".
	frames *xsync.MapOf[string, *atomic.Uint64]
}

func newSessionMetrics() *SessionMetrics {
	return &SessionMetrics{frames: xsync.NewMapOf[string, *atomic.Uint64]()}
}

// FrameCount returns the number of frames of type ft sent (tx) or
// received.
func (m *SessionMetrics) FrameCount(ft t30.FrameType, tx bool) uint64 {
	c, ok := m.frames.Load(frameKey(ft, tx))
	if !ok {
		return 0
	}

	return c.Load()
}

// FrameCounts returns a snapshot of all frame counters keyed "tx DCS",
// "rx CFR" and so on.
func (m *SessionMetrics) FrameCounts() map[string]uint64 {
	out := make(map[string]uint64, m.frames.Size())
	m.frames.Range(func(key string, c *atomic.Uint64) bool {
		out[key] = c.Load()
		return true
	})

	return out
}

func frameKey(ft t30.FrameType, tx bool) string {
	if tx {
		return "tx " + ft.String()
	}

	return "rx " + ft.String()
}

func (m *SessionMetrics) incFrameCount(ft t30.FrameType, tx bool) {
	c, _ := m.frames.LoadOrCompute(frameKey(ft, tx), func() *atomic.Uint64 {
		return &atomic.Uint64{}
	})
	c.Add(1)
}

func (m *SessionMetrics) incCallCount() {
	m.CallCount.Add(1)
}

func (m *SessionMetrics) incCallFailCount() {
	m.CallFailCount.Add(1)
}

func (m *SessionMetrics) incPageSendCount() {
	m.PageSendCount.Add(1)
}

func (m *SessionMetrics) incPageRecvCount() {
	m.PageRecvCount.Add(1)
}

func (m *SessionMetrics) incPageRetryCount() {
	m.PageRetryCount.Add(1)
}

func (m *SessionMetrics) addLineErrorCount(n int) {
	if n > 0 {
		m.LineErrorCount.Add(uint64(n))
	}
}

func (m *SessionMetrics) incFallbackCount() {
	m.FallbackCount.Add(1)
}

func (m *SessionMetrics) incTrainingFailCount() {
	m.TrainingFailCount.Add(1)
}
