package page

import (
	"bytes"
	"fmt"
	"image/png"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/arloliu/go-fax/t4"
)

// PDFSink collects the received pages into one PDF document, one image per
// page sized to the fax page dimensions.
type PDFSink struct {
	b     builder
	pdf   *fpdf.Fpdf
	pages int
}

var _ Sink = (*PDFSink)(nil)

// NewPDFSink returns an empty PDF sink.
func NewPDFSink() *PDFSink {
	pdf := fpdf.New("P", "mm", "", "")
	pdf.SetAutoPageBreak(false, 0)

	return &PDFSink{pdf: pdf}
}

func (s *PDFSink) BeginPage(index int, info Info) error {
	return s.b.begin(index, info)
}

func (s *PDFSink) WriteLine(runs t4.Line, repeat int) error {
	return s.b.writeLine(runs, repeat)
}

func (s *PDFSink) EndPage(commit bool) error {
	p, err := s.b.end(commit)
	if err != nil || p == nil {
		return err
	}
	if p.Height == 0 {
		return nil
	}

	linesPerMM := NormalLinesPerMM
	if p.VR == 1 {
		linesPerMM = FineLinesPerMM
	}
	widthMM := float64(p.Width) / DotsPerMM
	heightMM := float64(p.Height) / linesPerMM

	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image()); err != nil {
		return fmt.Errorf("encode page %d PNG: %w", s.pages+1, err)
	}

	name := fmt.Sprintf("page%d", s.pages)
	s.pdf.AddPageFormat("P", fpdf.SizeType{Wd: widthMM, Ht: heightMM})
	s.pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, &buf)
	s.pdf.ImageOptions(name, 0, 0, widthMM, heightMM, false, fpdf.ImageOptions{}, 0, "")
	s.pages++

	return s.pdf.Error()
}

// Pages returns the number of pages added so far.
func (s *PDFSink) Pages() int {
	return s.pages
}

// WriteTo writes the PDF document to w.
func (s *PDFSink) WriteTo(w io.Writer) (int64, error) {
	if s.pages == 0 {
		return 0, fmt.Errorf("%w: no pages to write", ErrNoPage)
	}

	cw := &countingWriter{w: w}
	if err := s.pdf.Output(cw); err != nil {
		return cw.n, fmt.Errorf("generate PDF: %w", err)
	}

	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}
