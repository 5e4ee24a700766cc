package page

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ReadPBM reads every image of a raw (P4) PBM stream. The vertical
// resolution is guessed from the image height.
func ReadPBM(r io.Reader) ([]*Bitmap, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	var pages []*Bitmap
	for {
		if _, err := br.Peek(1); errors.Is(err, io.EOF) && len(pages) > 0 {
			return pages, nil
		}

		b, err := readPBMImage(br)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", len(pages)+1, err)
		}
		pages = append(pages, b)

		skipSpace(br)
	}
}

func readPBMImage(br *bufio.Reader) (*Bitmap, error) {
	magic := make([]byte, 2)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, err
	}
	if string(magic) != "P4" {
		return nil, fmt.Errorf("%w: not a raw PBM", ErrUnknownFormat)
	}

	width, err := readPBMInt(br)
	if err != nil {
		return nil, err
	}
	height, err := readPBMInt(br)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 || width > 1<<15 || height > 1<<16 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrBadImage, width, height)
	}

	vr := 0
	if height > fineHeightThreshold {
		vr = 1
	}
	b := NewBitmap(width, height, vr)
	if _, err := io.ReadFull(br, b.Pix); err != nil {
		return nil, fmt.Errorf("%w: pixel data: %w", ErrBadImage, err)
	}

	return b, nil
}

// readPBMInt reads one header number and the single white space after it.
func readPBMInt(br *bufio.Reader) (int, error) {
	skipSpace(br)

	var digits []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: header: %w", ErrBadImage, err)
		}
		if c < '0' || c > '9' {
			break
		}
		digits = append(digits, c)
	}

	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, fmt.Errorf("%w: header: %w", ErrBadImage, err)
	}

	return n, nil
}

// skipSpace skips white space and '#' comments.
func skipSpace(br *bufio.Reader) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return
		}
		switch {
		case c == '#':
			if _, err := br.ReadString('\n'); err != nil {
				return
			}
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
		default:
			_ = br.UnreadByte()
			return
		}
	}
}

// WritePBM writes b as a raw PBM image.
func WritePBM(w io.Writer, b *Bitmap) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "P4\n%d %d\n", b.Width, b.Height)
	for y := range b.Height {
		if _, err := bw.Write(b.Row(y)); err != nil {
			return err
		}
	}

	return bw.Flush()
}
