package t4

import "fmt"

// Encoder packs T.4 code words MSB first into bytes. Bits that don't fill a
// whole byte are kept between calls, so a scan line, its fill bits and its EOL
// can be produced by separate calls.
type Encoder struct {
	acc   uint32
	nbits uint
}

// NewEncoder returns an encoder with no pending bits.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Reset discards any pending bits.
func (e *Encoder) Reset() {
	e.acc, e.nbits = 0, 0
}

// Pending returns the number of bits waiting for a full byte.
func (e *Encoder) Pending() int {
	return int(e.nbits)
}

func (e *Encoder) put(dst []byte, c code) []byte {
	e.acc = e.acc<<c.n | uint32(c.bits)
	e.nbits += uint(c.n)
	for e.nbits >= 8 {
		e.nbits -= 8
		dst = append(dst, byte(e.acc>>e.nbits))
	}
	e.acc &= 1<<e.nbits - 1

	return dst
}

// Encode appends the code words for runs to dst. Runs alternate white and
// black starting with white. The EOL is not included.
func (e *Encoder) Encode(dst []byte, runs []int) ([]byte, error) {
	color := white
	for i, run := range runs {
		if run < 0 {
			return dst, fmt.Errorf("%w: run %d is %d", ErrNegativeRun, i, run)
		}

		for run > MaxMakeupRun+MaxTermRun {
			dst = e.put(dst, makeupCode(color, MaxMakeupRun))
			run -= MaxMakeupRun
		}
		if run > MaxTermRun {
			m := run &^ 63
			dst = e.put(dst, makeupCode(color, m))
			run -= m
		}
		dst = e.put(dst, termCodes[color][run])

		color ^= 1
	}

	return dst, nil
}

// EOL appends an end-of-line code word.
func (e *Encoder) EOL(dst []byte) []byte {
	return e.put(dst, eol)
}

// Fill appends n zero fill bits.
func (e *Encoder) Fill(dst []byte, n int) []byte {
	for ; n >= 8; n -= 8 {
		dst = e.put(dst, code{n: 8})
	}
	if n > 0 {
		dst = e.put(dst, code{n: uint8(n)})
	}

	return dst
}

// Flush appends the pending bits padded with zeros to a whole byte.
func (e *Encoder) Flush(dst []byte) []byte {
	if e.nbits > 0 {
		dst = e.put(dst, code{n: uint8(8 - e.nbits)})
	}

	return dst
}
