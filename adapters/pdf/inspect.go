package deckpdf

import (
	"io"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Info summarizes a produced document.
type Info struct {
	Pages int
}

// Inspect reads a PDF and reports its page count.
func Inspect(rs io.ReadSeeker) (Info, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := pdfapi.ReadContext(rs, conf)
	if err != nil {
		return Info{}, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return Info{}, err
	}
	return Info{Pages: ctx.PageCount}, nil
}
