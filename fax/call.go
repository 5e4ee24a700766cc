package fax

import (
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-fax/logger"
	"github.com/arloliu/go-fax/page"
	"github.com/arloliu/go-fax/t30"
)

// call holds the state the class drivers share during one call.
type call struct {
	line    Line
	cfg     *Config
	logger  logger.Logger
	metrics *SessionMetrics
	xfer    *PageTransfer
	caller  bool
	started time.Time

	src  page.Source
	sink page.Sink
	// srcPage is the 0-based index of the current source page.
	srcPage int

	remoteID string
	session  t30.Capability
	pages    int
}

// pageCounter is implemented by sources that know their page count.
type pageCounter interface {
	Len() int
}

// localFor returns the local capabilities for sending a page of format
// info: the configured ones, limited to the page's resolution and width.
func (c *call) localFor(info page.Info) t30.Capability {
	local := c.cfg.LocalCapability()
	local[t30.VR] = min(local[t30.VR], info.VR)

	wd := 0
	for wd < t30.FieldMax(t30.WD) && t30.PageWidth(wd) < info.Width {
		wd++
	}
	local[t30.WD] = min(local[t30.WD], wd)

	return local
}

// nextPPM returns the post-page message for the current page: EOP after
// the last page, MPS before a page of the same format, EOM otherwise.
func (c *call) nextPPM(cur page.Info) t30.FrameType {
	next, ok := c.src.Peek()
	switch {
	case !ok:
		return t30.EOP
	case next.SameFormat(cur):
		return t30.MPS
	default:
		return t30.EOM
	}
}

// advance moves the source to the next page.
func (c *call) advance() (page.Info, error) {
	if !c.src.Advance(true) {
		return page.Info{}, page.ErrNoPage
	}
	c.srcPage++

	return c.src.Open()
}

// header returns the header band for the current source page, or nil when
// headers are disabled.
func (c *call) header() page.HeaderRenderer {
	tmpl := c.cfg.Header()
	if tmpl == "" {
		return nil
	}

	total := "?"
	if pc, ok := c.src.(pageCounter); ok {
		total = strconv.Itoa(pc.Len())
	}

	return page.NewTextHeader(expandHeader(tmpl, c.cfg.LocalID(), c.srcPage+1, total, c.started))
}

func expandHeader(tmpl, id string, pageNo int, total string, now time.Time) string {
	return strings.NewReplacer(
		"{page}", strconv.Itoa(pageNo),
		"{pages}", total,
		"{id}", id,
		"{date}", now.Format("2006-01-02 15:04"),
	).Replace(tmpl)
}

func (c *call) setRemoteID(fif []byte) {
	id := t30.DecodeIdent(fif)
	if id != c.remoteID {
		c.remoteID = id
		c.logger.Info("remote station", "id", id)
	}
}
