package page

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arloliu/go-fax/t4"
)

// builder assembles the bitmap of the page being received.
type builder struct {
	cur   *Bitmap
	index int
	row   []byte
}

func (b *builder) begin(index int, info Info) error {
	if info.Width <= 0 {
		return fmt.Errorf("%w: width %d", ErrBadImage, info.Width)
	}
	b.cur = NewBitmap(info.Width, 0, info.VR)
	b.index = index
	b.row = make([]byte, b.cur.Stride)

	return nil
}

func (b *builder) writeLine(runs t4.Line, repeat int) error {
	if b.cur == nil {
		return ErrPageNotOpen
	}
	if err := RunsToRow(runs, b.cur.Width, b.row); err != nil {
		return err
	}
	for range repeat {
		b.cur.AppendRow(b.row)
	}

	return nil
}

// end hands out the finished page, or nil when it was discarded.
func (b *builder) end(commit bool) (*Bitmap, error) {
	if b.cur == nil {
		return nil, ErrPageNotOpen
	}
	p := b.cur
	b.cur = nil
	if !commit {
		return nil, nil
	}

	return p, nil
}

// MemorySink keeps the received pages in memory.
type MemorySink struct {
	b     builder
	pages []*Bitmap
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) BeginPage(index int, info Info) error {
	return s.b.begin(index, info)
}

func (s *MemorySink) WriteLine(runs t4.Line, repeat int) error {
	return s.b.writeLine(runs, repeat)
}

func (s *MemorySink) EndPage(commit bool) error {
	p, err := s.b.end(commit)
	if p != nil {
		s.pages = append(s.pages, p)
	}

	return err
}

// Pages returns the committed pages.
func (s *MemorySink) Pages() []*Bitmap {
	return s.pages
}

// PBMSink writes each committed page to its own PBM file named
// <prefix>.<NNN>.pbm in dir.
type PBMSink struct {
	b      builder
	dir    string
	prefix string
	files  []string
}

var _ Sink = (*PBMSink)(nil)

// NewPBMSink returns a sink writing into dir, which must exist.
func NewPBMSink(dir, prefix string) *PBMSink {
	return &PBMSink{dir: dir, prefix: prefix}
}

func (s *PBMSink) BeginPage(index int, info Info) error {
	return s.b.begin(index, info)
}

func (s *PBMSink) WriteLine(runs t4.Line, repeat int) error {
	return s.b.writeLine(runs, repeat)
}

func (s *PBMSink) EndPage(commit bool) error {
	index := s.b.index
	p, err := s.b.end(commit)
	if err != nil || p == nil {
		return err
	}

	name := filepath.Join(s.dir, fmt.Sprintf("%s.%03d.pbm", s.prefix, index+1))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := WritePBM(f, p); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.files = append(s.files, name)

	return nil
}

// Files returns the names of the files written so far.
func (s *PBMSink) Files() []string {
	return s.files
}
