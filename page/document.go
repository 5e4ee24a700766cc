package page

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/arloliu/go-fax/t4"
)

// Document is an in-memory Source over a list of bitmaps.
type Document struct {
	pages []*Bitmap
	cur   int
	row   int
	open  bool
}

var _ Source = (*Document)(nil)

// NewDocument returns a document positioned on its first page.
func NewDocument(pages ...*Bitmap) *Document {
	return &Document{pages: pages}
}

// Len returns the number of pages.
func (d *Document) Len() int {
	return len(d.pages)
}

// Index returns the 0-based index of the current page.
func (d *Document) Index() int {
	return d.cur
}

// Page returns page i.
func (d *Document) Page(i int) *Bitmap {
	return d.pages[i]
}

func (d *Document) Open() (Info, error) {
	if d.cur >= len(d.pages) {
		return Info{}, ErrNoPage
	}
	d.row = 0
	d.open = true

	return d.pages[d.cur].Info(), nil
}

func (d *Document) NextLine(line *t4.Line) (int, error) {
	if !d.open {
		return 0, ErrNoPage
	}
	p := d.pages[d.cur]
	if d.row >= p.Height {
		return 0, io.EOF
	}

	row := p.Row(d.row)
	d.row++
	if err := RowToRuns(row, p.Width, line); err != nil {
		return 0, fmt.Errorf("page %d line %d: %w", d.cur+1, d.row, err)
	}

	return p.Width, nil
}

func (d *Document) Advance(next bool) bool {
	d.open = false
	if next && d.cur < len(d.pages) {
		d.cur++
	}

	return d.cur < len(d.pages)
}

func (d *Document) Peek() (Info, bool) {
	if d.cur+1 >= len(d.pages) {
		return Info{}, false
	}

	return d.pages[d.cur+1].Info(), true
}

// Load reads the pages of a PBM or TIFF stream, telling them apart by their
// magic number.
func Load(r io.Reader) ([]*Bitmap, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownFormat, err)
	}

	switch {
	case magic[0] == 'P' && magic[1] == '4':
		return ReadPBM(br)
	case bytes.Equal(magic, []byte("II*\x00")) || bytes.Equal(magic, []byte("MM\x00*")):
		b, err := ReadTIFF(br)
		if err != nil {
			return nil, err
		}

		return []*Bitmap{b}, nil
	default:
		return nil, fmt.Errorf("%w: magic % X", ErrUnknownFormat, magic)
	}
}

// LoadFiles builds a document from PBM and TIFF files, in order.
func LoadFiles(paths ...string) (*Document, error) {
	var pages []*Bitmap
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		bms, err := Load(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		pages = append(pages, bms...)
	}

	return NewDocument(pages...), nil
}
