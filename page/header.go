package page

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// font5x7 holds glyph rows top to bottom, the five low bits of each row
// being the pixels left to right.
var font5x7 = map[rune][7]byte{
	' ': {},
	'0': {0x0E, 0x11, 0x13, 0x15, 0x19, 0x11, 0x0E},
	'1': {0x04, 0x0C, 0x04, 0x04, 0x04, 0x04, 0x0E},
	'2': {0x0E, 0x11, 0x01, 0x02, 0x04, 0x08, 0x1F},
	'3': {0x1F, 0x02, 0x04, 0x02, 0x01, 0x11, 0x0E},
	'4': {0x02, 0x06, 0x0A, 0x12, 0x1F, 0x02, 0x02},
	'5': {0x1F, 0x10, 0x1E, 0x01, 0x01, 0x11, 0x0E},
	'6': {0x06, 0x08, 0x10, 0x1E, 0x11, 0x11, 0x0E},
	'7': {0x1F, 0x01, 0x02, 0x04, 0x08, 0x08, 0x08},
	'8': {0x0E, 0x11, 0x11, 0x0E, 0x11, 0x11, 0x0E},
	'9': {0x0E, 0x11, 0x11, 0x0F, 0x01, 0x02, 0x0C},
	'A': {0x0E, 0x11, 0x11, 0x11, 0x1F, 0x11, 0x11},
	'B': {0x1E, 0x11, 0x11, 0x1E, 0x11, 0x11, 0x1E},
	'C': {0x0E, 0x11, 0x10, 0x10, 0x10, 0x11, 0x0E},
	'D': {0x1C, 0x12, 0x11, 0x11, 0x11, 0x12, 0x1C},
	'E': {0x1F, 0x10, 0x10, 0x1E, 0x10, 0x10, 0x1F},
	'F': {0x1F, 0x10, 0x10, 0x1E, 0x10, 0x10, 0x10},
	'G': {0x0E, 0x11, 0x10, 0x17, 0x11, 0x11, 0x0F},
	'H': {0x11, 0x11, 0x11, 0x1F, 0x11, 0x11, 0x11},
	'I': {0x0E, 0x04, 0x04, 0x04, 0x04, 0x04, 0x0E},
	'J': {0x07, 0x02, 0x02, 0x02, 0x02, 0x12, 0x0C},
	'K': {0x11, 0x12, 0x14, 0x18, 0x14, 0x12, 0x11},
	'L': {0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x1F},
	'M': {0x11, 0x1B, 0x15, 0x15, 0x11, 0x11, 0x11},
	'N': {0x11, 0x11, 0x19, 0x15, 0x13, 0x11, 0x11},
	'O': {0x0E, 0x11, 0x11, 0x11, 0x11, 0x11, 0x0E},
	'P': {0x1E, 0x11, 0x11, 0x1E, 0x10, 0x10, 0x10},
	'Q': {0x0E, 0x11, 0x11, 0x11, 0x15, 0x12, 0x0D},
	'R': {0x1E, 0x11, 0x11, 0x1E, 0x14, 0x12, 0x11},
	'S': {0x0F, 0x10, 0x10, 0x0E, 0x01, 0x01, 0x1E},
	'T': {0x1F, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04},
	'U': {0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x0E},
	'V': {0x11, 0x11, 0x11, 0x11, 0x11, 0x0A, 0x04},
	'W': {0x11, 0x11, 0x11, 0x15, 0x15, 0x15, 0x0A},
	'X': {0x11, 0x11, 0x0A, 0x04, 0x0A, 0x11, 0x11},
	'Y': {0x11, 0x11, 0x11, 0x0A, 0x04, 0x04, 0x04},
	'Z': {0x1F, 0x01, 0x02, 0x04, 0x08, 0x10, 0x1F},
	':': {0x00, 0x0C, 0x0C, 0x00, 0x0C, 0x0C, 0x00},
	'-': {0x00, 0x00, 0x00, 0x1F, 0x00, 0x00, 0x00},
	'/': {0x00, 0x01, 0x02, 0x04, 0x08, 0x10, 0x00},
	'+': {0x00, 0x04, 0x04, 0x1F, 0x04, 0x04, 0x00},
	'.': {0x00, 0x00, 0x00, 0x00, 0x00, 0x0C, 0x0C},
	',': {0x00, 0x00, 0x00, 0x00, 0x0C, 0x04, 0x08},
	'(': {0x02, 0x04, 0x08, 0x08, 0x08, 0x04, 0x02},
	')': {0x08, 0x04, 0x02, 0x02, 0x02, 0x04, 0x08},
	'#': {0x0A, 0x0A, 0x1F, 0x0A, 0x1F, 0x0A, 0x0A},
	'?': {0x0E, 0x11, 0x01, 0x02, 0x04, 0x00, 0x04},
}

const (
	glyphWidth  = 5
	glyphHeight = 7

	// each font pixel is drawn as scale x scale fax pixels at normal
	// resolution; fine resolution doubles the rows.
	headerScale   = 2
	headerAdvance = (glyphWidth + 1) * headerScale
	headerMargin  = 2 * headerAdvance
	// blank lines above and below the text at normal resolution.
	headerPad = 2
)

var foldText = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// TextHeader renders one line of text with a built-in 5x7 font.
type TextHeader struct {
	text []rune
}

var _ HeaderRenderer = (*TextHeader)(nil)

// NewTextHeader returns a renderer for text. Letters are upper-cased and
// stripped of accents; characters the font lacks print as '?'.
func NewTextHeader(text string) *TextHeader {
	folded, _, err := transform.String(foldText, text)
	if err != nil {
		folded = text
	}
	folded = strings.ToUpper(folded)

	h := &TextHeader{}
	for _, r := range folded {
		if _, ok := font5x7[r]; !ok {
			r = '?'
		}
		h.text = append(h.text, r)
	}

	return h
}

// Text returns the text as it is drawn.
func (h *TextHeader) Text() string {
	return string(h.text)
}

func (h *TextHeader) rowScale(vr int) int {
	if vr == 1 {
		return 2 * headerScale
	}

	return headerScale
}

func (h *TextHeader) Lines(vr int) int {
	s := h.rowScale(vr)
	return (glyphHeight + 2*headerPad) * s
}

func (h *TextHeader) Render(vr, row int, dst []byte, width int) {
	s := h.rowScale(vr)
	gy := row/s - headerPad
	if gy < 0 || gy >= glyphHeight {
		return
	}

	x := headerMargin
	for _, r := range h.text {
		if x+headerAdvance > width {
			return
		}
		bits := font5x7[r][gy]
		for gx := range glyphWidth {
			if bits&(0x10>>gx) != 0 {
				px := x + gx*headerScale
				setSpan(dst, px, px+headerScale)
			}
		}
		x += headerAdvance
	}
}
