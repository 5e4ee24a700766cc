// Package t4 implements the ITU-T T.4 one-dimensional (Modified Huffman)
// coding of facsimile scan lines.
//
// A scan line is described by its run lengths, alternating white and black
// and always starting with white; a line that starts with a black pixel has a
// leading white run of 0.
package t4

import "errors"

// MaxRuns bounds the number of runs in one Line.
const MaxRuns = 2560

// RTCLines is the number of consecutive empty lines after which the decoder
// reports the end of a page.
const RTCLines = 5

var (
	// ErrRunsOverflow reports a line with more than MaxRuns runs.
	ErrRunsOverflow = errors.New("t4: too many runs in scan line")
	// ErrInvalidCode reports an undefined code word inside a scan line. The
	// decoder has resynchronized; the line content is unreliable.
	ErrInvalidCode = errors.New("t4: invalid code word")
	// ErrNegativeRun reports a negative run length handed to the encoder.
	ErrNegativeRun = errors.New("t4: negative run length")
)

// Line is the run-length description of one scan line.
type Line []int

// Append adds one run, failing with ErrRunsOverflow once the line holds
// MaxRuns runs.
func (l *Line) Append(run int) error {
	if len(*l) >= MaxRuns {
		return ErrRunsOverflow
	}
	*l = append(*l, run)

	return nil
}

// Reset empties the line keeping its storage.
func (l *Line) Reset() {
	*l = (*l)[:0]
}

// Width returns the number of pixels the line covers.
func (l Line) Width() int {
	w := 0
	for _, r := range l {
		w += r
	}

	return w
}
