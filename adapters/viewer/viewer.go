// Package viewer serves a built-in slide deck page for catalog presentations.
//
// The page follows the keyboard conventions the chromium surface drives
// (ArrowRight, ArrowLeft, Home) and marks its root with a spectacle-deck class,
// so exports can run without an external frontend.
package viewer

import (
	_ "embed"
	"fmt"
	"io"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-deck-export/deck"
)

//go:embed templates/deck.html
var deckTemplate string

// Theme controls deck colors.
type Theme struct {
	Background string `yaml:"background"`
	Foreground string `yaml:"foreground"`
}

// DefaultTheme is used when no colors are configured.
var DefaultTheme = Theme{Background: "#1f2933", Foreground: "#f5f7fa"}

// Renderer renders catalog presentations as HTML decks.
type Renderer struct {
	Theme        Theme
	TransitionMS int

	once sync.Once
	tpl  *pongo2.Template
	err  error
}

// Render writes the deck page for p.
func (r *Renderer) Render(w io.Writer, p deck.Presentation, print bool) error {
	tpl, err := r.template()
	if err != nil {
		return deck.NewError(deck.KindInternal, "viewer template is invalid", err)
	}
	theme := r.Theme
	if theme.Background == "" {
		theme.Background = DefaultTheme.Background
	}
	if theme.Foreground == "" {
		theme.Foreground = DefaultTheme.Foreground
	}
	transition := r.TransitionMS
	if transition <= 0 {
		transition = 250
	}

	return tpl.ExecuteWriter(pongo2.Context{
		"presentation":  p,
		"slides":        SlidesFor(p),
		"theme":         map[string]string{"background": theme.Background, "foreground": theme.Foreground},
		"transition_ms": transition,
		"print":         print,
	}, w)
}

func (r *Renderer) template() (*pongo2.Template, error) {
	r.once.Do(func() {
		r.tpl, r.err = pongo2.FromString(deckTemplate)
	})
	return r.tpl, r.err
}

// SlidesFor returns the slide content for p, generating placeholders when none is configured.
func SlidesFor(p deck.Presentation) []deck.SlideContent {
	if len(p.Slides) > 0 {
		return p.Slides
	}
	count := p.SlideCount
	if count <= 0 {
		count = 1
	}
	slides := make([]deck.SlideContent, 0, count)
	slides = append(slides, deck.SlideContent{Heading: p.Title, Body: p.Description})
	for i := 2; i <= count; i++ {
		slides = append(slides, deck.SlideContent{Heading: fmt.Sprintf("Slide %d", i)})
	}
	return slides
}

// Handler serves /view/:id pages from a catalog.
type Handler struct {
	Catalog  *deck.Catalog
	Renderer *Renderer
}

// RegisterRoutes registers the viewer route on r.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Get("/view/:id", h.View)
}

// View renders a presentation. print=true hides on-screen chrome.
func (h *Handler) View(c *fiber.Ctx) error {
	if h.Catalog == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "catalog not configured")
	}
	p, err := h.Catalog.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	renderer := h.Renderer
	if renderer == nil {
		renderer = &Renderer{}
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return renderer.Render(c.Response().BodyWriter(), p, c.QueryBool("print"))
}
