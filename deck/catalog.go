package deck

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Presentation describes a deck that can be exported.
type Presentation struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description"`
	SlideCount  int    `json:"slideCount" yaml:"slide_count"`
	URL         string `json:"url,omitempty" yaml:"url"`

	// Slides optionally carries content for the built-in viewer.
	Slides []SlideContent `json:"slides,omitempty" yaml:"slides"`
}

// SlideContent is the text of one slide rendered by the built-in viewer.
type SlideContent struct {
	Heading string `json:"heading" yaml:"heading"`
	Body    string `json:"body,omitempty" yaml:"body"`
}

// Catalog stores the presentations known to the service.
type Catalog struct {
	mu      sync.RWMutex
	baseURL string
	decks   map[string]Presentation
}

// NewCatalog creates an empty catalog. Presentations without a URL resolve to
// {baseURL}/view/{id}?print=true.
func NewCatalog(baseURL string) *Catalog {
	return &Catalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		decks:   make(map[string]Presentation),
	}
}

// Register adds a presentation.
func (c *Catalog) Register(p Presentation) error {
	if p.ID == "" {
		return NewError(KindInvalidInput, "presentation id is required", nil)
	}
	if p.SlideCount <= 0 {
		p.SlideCount = len(p.Slides)
	}
	if p.SlideCount <= 0 {
		return NewError(KindInvalidInput, fmt.Sprintf("presentation %q must have at least one slide", p.ID), nil)
	}
	if p.Title == "" {
		p.Title = p.ID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.decks[p.ID]; exists {
		return NewError(KindInvalidInput, fmt.Sprintf("presentation %q already registered", p.ID), nil)
	}
	if p.URL == "" {
		p.URL = c.viewerURL(p.ID)
	}
	c.decks[p.ID] = p
	return nil
}

// Get returns a presentation by id.
func (c *Catalog) Get(id string) (Presentation, error) {
	c.mu.RLock()
	p, ok := c.decks[id]
	c.mu.RUnlock()
	if !ok {
		return Presentation{}, NewError(KindNotFound, fmt.Sprintf("presentation %q not found", id), nil)
	}
	return p, nil
}

// List returns all presentations ordered by id.
func (c *Catalog) List() []Presentation {
	c.mu.RLock()
	out := make([]Presentation, 0, len(c.decks))
	for _, p := range c.decks {
		out = append(out, p)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) viewerURL(id string) string {
	return c.baseURL + "/view/" + url.PathEscape(id) + "?print=true"
}
