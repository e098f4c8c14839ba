package deck

const (
	// PageWidth and PageHeight are the fixed 16:9 landscape page size in document units.
	PageWidth  = 1920.0
	PageHeight = 1080.0
)

// Placement is where a frame is drawn on a page. Offsets may be negative when the
// frame overflows the page on one axis.
type Placement struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// CoverFit scales a frame so it covers the whole page, centering it on the overflowing
// axis. It never letterboxes.
func CoverFit(frameWidth, frameHeight int, pageWidth, pageHeight float64) Placement {
	if frameWidth <= 0 || frameHeight <= 0 || pageWidth <= 0 || pageHeight <= 0 {
		return Placement{Width: pageWidth, Height: pageHeight}
	}

	frameRatio := float64(frameWidth) / float64(frameHeight)
	pageRatio := pageWidth / pageHeight

	switch {
	case frameRatio > pageRatio:
		width := pageHeight * frameRatio
		return Placement{
			X:      (pageWidth - width) / 2,
			Width:  width,
			Height: pageHeight,
		}
	case frameRatio < pageRatio:
		height := pageWidth / frameRatio
		return Placement{
			Y:      (pageHeight - height) / 2,
			Width:  pageWidth,
			Height: height,
		}
	default:
		return Placement{Width: pageWidth, Height: pageHeight}
	}
}
