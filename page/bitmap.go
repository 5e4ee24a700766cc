package page

import (
	"fmt"
	"image"
	"image/color"
	"math/bits"

	"github.com/arloliu/go-fax/t4"
)

// Bitmap is a bilevel image packed eight pixels per byte, most significant
// bit first, with 1 meaning black. This is the PBM raw layout.
type Bitmap struct {
	Width  int
	Height int
	VR     int
	Stride int
	Pix    []byte
}

// NewBitmap returns an all-white bitmap.
func NewBitmap(width, height, vr int) *Bitmap {
	stride := RowBytes(width)
	return &Bitmap{
		Width:  width,
		Height: height,
		VR:     vr,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// RowBytes returns the size of a packed row of width pixels.
func RowBytes(width int) int {
	return (width + 7) / 8
}

// Row returns the packed pixels of row y.
func (b *Bitmap) Row(y int) []byte {
	return b.Pix[y*b.Stride : (y+1)*b.Stride]
}

// AppendRow adds a row at the bottom of the image.
func (b *Bitmap) AppendRow(row []byte) {
	start := len(b.Pix)
	b.Pix = append(b.Pix, make([]byte, b.Stride)...)
	copy(b.Pix[start:], row)
	b.Height++
}

// Info returns the page format of the bitmap.
func (b *Bitmap) Info() Info {
	return Info{Width: b.Width, Height: b.Height, VR: b.VR}
}

// Set paints pixel (x, y) black.
func (b *Bitmap) Set(x, y int) {
	b.Pix[y*b.Stride+x/8] |= 0x80 >> (x % 8)
}

// At reports whether pixel (x, y) is black.
func (b *Bitmap) At(x, y int) bool {
	return b.Pix[y*b.Stride+x/8]&(0x80>>(x%8)) != 0
}

// BlackPixels counts the black pixels of the image.
func (b *Bitmap) BlackPixels() int {
	n := 0
	for _, v := range b.Pix {
		n += bits.OnesCount8(v)
	}

	return n
}

// Image converts the bitmap to a two-color paletted image, white at index 0.
func (b *Bitmap) Image() *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, b.Width, b.Height), color.Palette{color.White, color.Black})
	for y := range b.Height {
		row := b.Row(y)
		dst := img.Pix[y*img.Stride : y*img.Stride+b.Width]
		for x := range dst {
			if row[x/8]&(0x80>>(x%8)) != 0 {
				dst[x] = 1
			}
		}
	}

	return img
}

// FromImage thresholds img into a bitmap. Pixels darker than mid gray are
// black.
func FromImage(img image.Image, vr int) *Bitmap {
	bounds := img.Bounds()
	b := NewBitmap(bounds.Dx(), bounds.Dy(), vr)

	if gray, ok := img.(*image.Gray); ok {
		for y := range b.Height {
			src := gray.Pix[y*gray.Stride : y*gray.Stride+b.Width]
			for x, v := range src {
				if v < 128 {
					b.Set(x, y)
				}
			}
		}

		return b
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			lum := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if lum.Y < 128 {
				b.Set(x-bounds.Min.X, y-bounds.Min.Y)
			}
		}
	}

	return b
}

// RowToRuns converts the first width pixels of a packed row into alternating
// white/black runs starting with white.
func RowToRuns(row []byte, width int, line *t4.Line) error {
	line.Reset()

	black := false
	run := 0
	for x := range width {
		if (row[x/8]&(0x80>>(x%8)) != 0) != black {
			if err := line.Append(run); err != nil {
				return err
			}
			black = !black
			run = 0
		}
		run++
	}

	return line.Append(run)
}

// RunsToRow paints runs into row, which must hold width pixels. Pixels beyond
// the runs are white and runs beyond width are cut off.
func RunsToRow(runs []int, width int, row []byte) error {
	clear(row)

	x := 0
	for i, run := range runs {
		if run < 0 {
			return fmt.Errorf("%w: negative run %d at %d", ErrBadImage, run, i)
		}
		end := min(x+run, width)
		if i%2 == 1 {
			setSpan(row, x, end)
		}
		x = end
		if x >= width {
			break
		}
	}

	return nil
}

func setSpan(row []byte, from, to int) {
	for x := from; x < to; {
		if x%8 == 0 && to-x >= 8 {
			row[x/8] = 0xFF
			x += 8
			continue
		}
		row[x/8] |= 0x80 >> (x % 8)
		x++
	}
}

// OrRows ORs src into dst; the shorter length wins.
func OrRows(dst, src []byte) {
	for i := range min(len(dst), len(src)) {
		dst[i] |= src[i]
	}
}
