// Package deckpdf assembles captured slide frames into a landscape PDF document.
//
// Every page has the fixed 1920x1080 pt slide size. Frames are placed with a
// cover fit: the page is always filled and overflow falls outside the page box.
package deckpdf

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"
	"strings"

	_ "image/png"

	"github.com/goliatone/go-deck-export/deck"
	"github.com/signintech/gopdf"
)

// DefaultJPEGQuality matches the quality browsers use for 0.95 JPEG encoding.
const DefaultJPEGQuality = 95

// Encoding selects how frames are embedded.
type Encoding string

const (
	EncodingJPEG Encoding = "jpeg"
	EncodingPNG  Encoding = "png"
)

// Options configures an Assembler.
type Options struct {
	Encoding    Encoding
	JPEGQuality int
	PageWidth   float64
	PageHeight  float64
}

// Assembler implements deck.Assembler on gopdf.
type Assembler struct {
	opts  Options
	pdf   *gopdf.GoPdf
	pages int
}

var _ deck.Assembler = (*Assembler)(nil)

// NewAssembler creates an assembler with defaults applied.
func NewAssembler(opts Options) *Assembler {
	if opts.Encoding == "" {
		opts.Encoding = EncodingJPEG
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.PageWidth <= 0 || opts.PageHeight <= 0 {
		opts.PageWidth, opts.PageHeight = deck.PageWidth, deck.PageHeight
	}
	return &Assembler{opts: opts}
}

// Factory returns a deck.AssemblerFactory producing assemblers with opts.
func Factory(opts Options) deck.AssemblerFactory {
	return func() deck.Assembler {
		return NewAssembler(opts)
	}
}

// Begin opens the document with its first page.
func (a *Assembler) Begin() error {
	a.pdf = &gopdf.GoPdf{}
	a.pdf.Start(gopdf.Config{
		Unit:     gopdf.UnitPT,
		PageSize: gopdf.Rect{W: a.opts.PageWidth, H: a.opts.PageHeight},
	})
	a.pdf.AddPage()
	a.pages = 0
	return nil
}

// AddPage draws frame on a page. The first frame reuses the page opened by Begin.
func (a *Assembler) AddPage(frame deck.Frame, first bool) error {
	if a.pdf == nil {
		return deck.NewError(deck.KindInternal, "document not started", nil)
	}
	if frame.Empty() {
		return deck.ErrEmptyCapture
	}

	data, width, height, err := a.encode(frame)
	if err != nil {
		return err
	}
	holder, err := gopdf.ImageHolderByBytes(data)
	if err != nil {
		return err
	}

	if !first {
		a.pdf.AddPage()
	}
	place := deck.CoverFit(width, height, a.opts.PageWidth, a.opts.PageHeight)
	if err := a.pdf.ImageByHolder(holder, place.X, place.Y, &gopdf.Rect{W: place.Width, H: place.Height}); err != nil {
		return err
	}
	a.pages++
	return nil
}

// Finish serializes the document to w.
func (a *Assembler) Finish(w io.Writer) error {
	if a.pdf == nil {
		return deck.NewError(deck.KindInternal, "document not started", nil)
	}
	defer func() { a.pdf = nil }()
	_, err := a.pdf.WriteTo(w)
	return err
}

// Pages reports how many frames were drawn.
func (a *Assembler) Pages() int {
	return a.pages
}

// encode returns the image bytes to embed and their pixel size. The size is
// always read from the image itself; the frame's reported size is not trusted.
func (a *Assembler) encode(frame deck.Frame) ([]byte, int, int, error) {
	if a.opts.Encoding == EncodingPNG || isJPEGFormat(frame.Format) {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(frame.Data))
		if err != nil {
			return nil, 0, 0, err
		}
		return frame.Data, cfg.Width, cfg.Height, nil
	}

	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, 0, 0, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: a.opts.JPEGQuality}); err != nil {
		return nil, 0, 0, err
	}
	bounds := img.Bounds()
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

func isJPEGFormat(format string) bool {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return true
	}
	return false
}
