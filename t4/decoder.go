package t4

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

type entryKind uint8

const (
	kindInvalid entryKind = iota
	kindTerm
	kindMakeup
	kindEOL
	kindSecondary
	kindFill
)

// entry is one slot of a decoding table: consume bits, then act on kind and
// continue with table next.
type entry struct {
	bits uint8
	kind entryKind
	run  uint16
	next uint8
}

// Decoding tables, each indexed by the next 9 bits of input. Code words that
// start with four zero bits are looked up in the secondary table of their
// color after those bits were consumed, which covers code words of up to 13
// bits.
const (
	whitePrimary = iota
	whiteSecondary
	blackPrimary
	blackSecondary

	numTables

	indexBits  = 9
	prefixBits = 4
)

var decodeTables [numTables][1 << indexBits]entry

func primaryOf(color int) uint8 {
	if color == white {
		return whitePrimary
	}

	return blackPrimary
}

func secondaryOf(color int) uint8 {
	return primaryOf(color) + 1
}

// setCode fills every slot of table t whose leading bits match c.
func setCode(t int, c code, e entry) {
	e.bits = c.n
	shift := indexBits - uint(c.n)
	base := int(c.bits) << shift
	for i := range 1 << shift {
		decodeTables[t][base+i] = e
	}
}

func addCode(color int, c code, kind entryKind, run int) {
	next := primaryOf(color)
	switch kind {
	case kindTerm:
		next = primaryOf(color ^ 1)
	case kindEOL:
		next = whitePrimary
	}
	e := entry{kind: kind, run: uint16(run), next: next}

	if c.n <= indexBits && (c.n < prefixBits || c.bits>>(c.n-prefixBits) != 0) {
		setCode(int(primaryOf(color)), c, e)
		return
	}
	setCode(int(secondaryOf(color)), code{bits: c.bits, n: c.n - prefixBits}, e)
}

func buildDecodeTables() {
	for t := range decodeTables {
		for i := range decodeTables[t] {
			decodeTables[t][i] = entry{bits: 1, kind: kindInvalid, next: whitePrimary}
		}
	}

	for color := range 2 {
		p, s := primaryOf(color), secondaryOf(color)
		for i := range 1 << (indexBits - prefixBits) {
			decodeTables[p][i] = entry{bits: prefixBits, kind: kindSecondary, next: s}
		}
		// more than seven zeros after the prefix can only be fill ahead of an EOL
		decodeTables[s][0] = entry{bits: 1, kind: kindFill, next: s}
		decodeTables[s][1] = entry{bits: 1, kind: kindFill, next: s}

		for run, c := range termCodes[color] {
			addCode(color, c, kindTerm, run)
		}
		for i, c := range makeupCodes[color] {
			addCode(color, c, kindMakeup, (i+1)*64)
		}
		for i, c := range extCodes {
			addCode(color, c, kindMakeup, maxColorMakeup+(i+1)*64)
		}
		addCode(color, eol, kindEOL, 0)
	}
}

// eolPad is fed to the decoder once the input is exhausted: fill bits and an
// EOL code word.
const eolPad = 0x0001

// Decoder turns a T.4 bit stream into scan lines.
type Decoder struct {
	r     io.ByteReader
	acc   uint64
	nbits uint

	eof       bool
	err       error
	zeroLines int
}

// NewDecoder returns a decoder reading from r. r is wrapped in a bufio.Reader
// unless it already implements io.ByteReader.
func NewDecoder(r io.Reader) *Decoder {
	d := &Decoder{}
	d.Reset(r)

	return d
}

// Reset discards all state and continues with r.
func (d *Decoder) Reset(r io.Reader) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	*d = Decoder{r: br}
}

// EOF reports whether the input ran out. Lines decoded after that point are
// synthesized and end the page.
func (d *Decoder) EOF() bool {
	return d.eof
}

// RTC reports whether RTCLines consecutive empty lines were decoded, marking
// the end of the page.
func (d *Decoder) RTC() bool {
	return d.zeroLines >= RTCLines
}

func (d *Decoder) fill() {
	for d.nbits < indexBits {
		if d.eof {
			d.acc = d.acc<<16 | eolPad
			d.nbits += 16
			continue
		}

		b, err := d.r.ReadByte()
		if err != nil {
			d.eof = true
			if !errors.Is(err, io.EOF) {
				d.err = err
			}
			continue
		}
		d.acc = d.acc<<8 | uint64(b)
		d.nbits += 8
	}
}

func (d *Decoder) peek() int {
	d.fill()
	return int(d.acc>>(d.nbits-indexBits)) & (1<<indexBits - 1)
}

func (d *Decoder) consume(n uint8) {
	d.nbits -= uint(n)
	d.acc &= 1<<d.nbits - 1
}

// DecodeLine decodes the runs up to the next EOL into line and returns the
// line width in pixels.
//
// An undefined code word makes the decoder skip one bit and restart with a
// white run; the line is still completed and ErrInvalidCode is returned with
// it. A line with more than MaxRuns runs is skipped up to its EOL and
// reported with ErrRunsOverflow. A read error other than io.EOF is returned
// once the input is exhausted.
func (d *Decoder) DecodeLine(line *Line) (int, error) {
	line.Reset()

	table := uint8(whitePrimary)
	pixels, makeup := 0, 0
	var lineErr error

	for {
		e := decodeTables[table][d.peek()]
		d.consume(e.bits)
		table = e.next

		switch e.kind {
		case kindSecondary, kindFill:
		case kindMakeup:
			makeup += int(e.run)
		case kindTerm:
			run := makeup + int(e.run)
			makeup = 0
			if lineErr == nil {
				if err := line.Append(run); err != nil {
					lineErr = err
				}
			}
			pixels += run
		case kindEOL:
			if pixels == 0 {
				d.zeroLines++
			} else {
				d.zeroLines = 0
			}
			if lineErr == nil && d.err != nil {
				lineErr = fmt.Errorf("t4: reading page data: %w", d.err)
			}

			return pixels, lineErr
		default:
			if lineErr == nil {
				lineErr = ErrInvalidCode
			}
			makeup = 0
		}
	}
}
