// Package page provides the page images a fax call transmits and receives.
//
// Pages travel through the fax driver one scan line at a time as T.4 run
// lengths. A Source hands out the lines of the document being sent, a Sink
// collects the lines of a document being received. The package also carries
// the bitmap helpers both sides need and a few file formats.
package page

import (
	"errors"

	"github.com/arloliu/go-fax/t4"
)

// Horizontal and vertical fax resolutions.
const (
	// DotsPerMM is the standard horizontal resolution, 8 pels/mm.
	DotsPerMM = 8.0
	// NormalLinesPerMM is the vertical resolution of VR=0.
	NormalLinesPerMM = 3.85
	// FineLinesPerMM is the vertical resolution of VR=1.
	FineLinesPerMM = 7.7

	// fineHeightThreshold separates normal from fine images when the file
	// format doesn't tell: an A4 page has about 1140 normal or 2290 fine lines.
	fineHeightThreshold = 1500
)

var (
	ErrNoPage        = errors.New("page: no current page")
	ErrPageNotOpen   = errors.New("page: page not begun")
	ErrUnknownFormat = errors.New("page: unknown image format")
	ErrBadImage      = errors.New("page: malformed image")
)

// Info is the declared format of a page.
type Info struct {
	// Width in pixels.
	Width int
	// Height in scan lines, 0 when unknown.
	Height int
	// VR is the vertical resolution: 0 = normal, 1 = fine.
	VR int
}

// SameFormat reports whether pages a and b can be sent without renegotiation.
func (a Info) SameFormat(b Info) bool {
	return a.Width == b.Width && a.VR == b.VR
}

// Source is a document to transmit.
type Source interface {
	// Open starts reading the current page from its first line.
	Open() (Info, error)
	// NextLine stores the runs of the next scan line in line and returns its
	// width in pixels. It returns io.EOF after the last line of the page.
	NextLine(line *t4.Line) (int, error)
	// Advance moves to the following page when next is true; otherwise the
	// current page stays current so it can be sent again. It reports whether
	// there is a current page.
	Advance(next bool) bool
	// Peek returns the format of the page after the current one.
	Peek() (Info, bool)
}

// Sink receives a document.
type Sink interface {
	// BeginPage starts page index (0-based).
	BeginPage(index int, info Info) error
	// WriteLine appends repeat copies of one scan line.
	WriteLine(runs t4.Line, repeat int) error
	// EndPage completes the page; a page that isn't committed is discarded.
	EndPage(commit bool) error
}

// HeaderRenderer draws the band of header lines sent on top of each page.
type HeaderRenderer interface {
	// Lines returns the height of the band in scan lines at resolution vr.
	Lines(vr int) int
	// Render draws scan line row of the band at resolution vr into dst, a
	// packed row of width pixels. It only sets bits.
	Render(vr, row int, dst []byte, width int)
}
