package page

import (
	"fmt"
	"io"

	"golang.org/x/image/tiff"
)

// ReadTIFF reads the first image of a TIFF file, including CCITT Group 3/4
// compressed fax TIFFs. The vertical resolution is guessed from the height.
func ReadTIFF(r io.Reader) (*Bitmap, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadImage, err)
	}

	vr := 0
	if img.Bounds().Dy() > fineHeightThreshold {
		vr = 1
	}

	return FromImage(img, vr), nil
}
