package t4

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomRuns returns alternating runs that cover exactly width pixels.
func randomRuns(rng *rand.Rand, width int) []int {
	spans := []int{8, 64, 300, 3000}
	span := spans[rng.IntN(len(spans))]

	var runs []int
	for left := width; left > 0; {
		r := rng.IntN(min(left, span) + 1)
		runs = append(runs, r)
		left -= r
	}

	return runs
}

func encodeLines(t *testing.T, lines [][]int, rtc int) []byte {
	t.Helper()

	enc := NewEncoder()
	var buf []byte
	var err error
	for _, runs := range lines {
		buf, err = enc.Encode(buf, runs)
		require.NoError(t, err)
		buf = enc.EOL(buf)
	}
	for range rtc {
		buf = enc.EOL(buf)
	}

	return enc.Flush(buf)
}

func TestEncoder_KnownBits(t *testing.T) {
	enc := NewEncoder()

	buf, err := enc.Encode(nil, []int{1728})
	require.NoError(t, err)
	// 010011011 (makeup 1728) + 00110101 (white 0)
	assert.Equal(t, []byte{0x4D, 0x9A}, buf)
	assert.Equal(t, 1, enc.Pending())

	buf = enc.EOL(buf)
	buf = enc.Flush(buf)
	assert.Equal(t, []byte{0x4D, 0x9A, 0x80, 0x08}, buf)
	assert.Zero(t, enc.Pending())
}

func TestEncoder_FlushOnlyPartialByte(t *testing.T) {
	enc := NewEncoder()

	assert.Empty(t, enc.Flush(nil))

	buf, err := enc.Encode(nil, []int{2})
	require.NoError(t, err)
	assert.Empty(t, buf)
	assert.Equal(t, []byte{0x70}, enc.Flush(buf))
}

func TestEncoder_Fill(t *testing.T) {
	enc := NewEncoder()

	buf, err := enc.Encode(nil, []int{3}) // 1000
	require.NoError(t, err)
	buf = enc.Fill(buf, 12)
	assert.Equal(t, []byte{0x80, 0x00}, buf)
	assert.Zero(t, enc.Pending())
}

func TestEncoder_NegativeRun(t *testing.T) {
	_, err := NewEncoder().Encode(nil, []int{5, -1})
	assert.True(t, errors.Is(err, ErrNegativeRun))
}

func TestCodec_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	var lines [][]int
	for _, width := range []int{1728, 2048, 2432} {
		for range 50 {
			lines = append(lines, randomRuns(rng, width))
		}
	}
	lines = append(lines,
		[]int{1728},
		[]int{0, 1728},
		[]int{0, 2432, 0},
		[]int{63, 64, 65, 127, 128, 1409},
		[]int{2623, 0, 2624, 1, 6000},
	)

	dec := NewDecoder(bytes.NewReader(encodeLines(t, lines, 6)))
	var line Line
	for i, want := range lines {
		pixels, err := dec.DecodeLine(&line)
		require.NoError(t, err, "line %d", i)
		require.Equal(t, Line(want), line, "line %d", i)
		require.Equal(t, line.Width(), pixels)
		require.False(t, dec.RTC())
	}
	assert.False(t, dec.EOF())
}

func TestDecoder_RTCAfterFiveEmptyLines(t *testing.T) {
	data := encodeLines(t, [][]int{{100, 1628}}, 5)
	dec := NewDecoder(bytes.NewReader(data))

	var line Line
	_, err := dec.DecodeLine(&line)
	require.NoError(t, err)
	require.False(t, dec.RTC())

	for i := 1; i <= RTCLines; i++ {
		pixels, err := dec.DecodeLine(&line)
		require.NoError(t, err)
		assert.Zero(t, pixels)
		assert.Equal(t, i == RTCLines, dec.RTC(), "after %d empty lines", i)
	}
}

func TestDecoder_DataLineResetsEmptyCount(t *testing.T) {
	data := encodeLines(t, [][]int{{}, {}, {}, {}, {1728}, {}}, 0)
	dec := NewDecoder(bytes.NewReader(data))

	var line Line
	for range 6 {
		_, err := dec.DecodeLine(&line)
		require.NoError(t, err)
		assert.False(t, dec.RTC())
	}
}

func TestDecoder_EndOfInput(t *testing.T) {
	full := encodeLines(t, [][]int{{10, 1718}, {500, 500, 728}}, 0)
	cut := full[:len(full)-3]

	dec := NewDecoder(bytes.NewReader(cut))
	var line Line

	_, err := dec.DecodeLine(&line)
	require.NoError(t, err)
	assert.Equal(t, Line{10, 1718}, line)
	assert.False(t, dec.EOF())

	_, _ = dec.DecodeLine(&line)
	assert.True(t, dec.EOF())

	for range RTCLines {
		pixels, _ := dec.DecodeLine(&line)
		assert.Zero(t, pixels)
	}
	assert.True(t, dec.RTC())
}

type failingReader struct{ data []byte }

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]

	return n, nil
}

func TestDecoder_ReadError(t *testing.T) {
	data := encodeLines(t, [][]int{{1728}}, 0)
	dec := NewDecoder(&failingReader{data: data[:2]})

	var line Line
	_, err := dec.DecodeLine(&line)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, dec.EOF())
}

func TestDecoder_Overflow(t *testing.T) {
	long := make([]int, MaxRuns+1)
	for i := range long {
		long[i] = 1
	}
	next := []int{40, 1688}

	dec := NewDecoder(bytes.NewReader(encodeLines(t, [][]int{long, next}, 0)))
	var line Line

	pixels, err := dec.DecodeLine(&line)
	assert.True(t, errors.Is(err, ErrRunsOverflow))
	assert.Len(t, line, MaxRuns)
	assert.Equal(t, MaxRuns+1, pixels)

	_, err = dec.DecodeLine(&line)
	require.NoError(t, err)
	assert.Equal(t, Line(next), line)
}

func TestDecoder_InvalidCodeResyncsAtEOL(t *testing.T) {
	enc := NewEncoder()
	buf := enc.put(nil, code{bits: 0b000000001, n: 9})
	buf = enc.Fill(buf, 8)
	buf = enc.EOL(buf)
	buf, err := enc.Encode(buf, []int{7, 1721})
	require.NoError(t, err)
	buf = enc.EOL(buf)
	buf = enc.Flush(buf)

	dec := NewDecoder(bytes.NewReader(buf))
	var line Line

	_, err = dec.DecodeLine(&line)
	assert.True(t, errors.Is(err, ErrInvalidCode))

	_, err = dec.DecodeLine(&line)
	require.NoError(t, err)
	assert.Equal(t, Line{7, 1721}, line)
}

func TestLine_Append(t *testing.T) {
	var line Line
	for range MaxRuns {
		require.NoError(t, line.Append(1))
	}
	assert.ErrorIs(t, line.Append(1), ErrRunsOverflow)
	assert.Equal(t, MaxRuns, line.Width())

	line.Reset()
	assert.Empty(t, line)
}
