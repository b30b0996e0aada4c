// Package summarize reduces a raw page snapshot to the compact JSON view the
// instruction generator reads.
package summarize

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const (
	defaultMaxElements = 200
	defaultMaxText     = 120
	defaultMaxExcerpt  = 500
)

// Element is one interactive or landmark node on the page.
type Element struct {
	Tag         string   `json:"tag"`
	Role        string   `json:"role,omitempty"`
	Text        string   `json:"text,omitempty"`
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Type        string   `json:"type,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Label       string   `json:"label,omitempty"`
	AriaLabel   string   `json:"aria_label,omitempty"`
	TestID      string   `json:"test_id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Alt         string   `json:"alt,omitempty"`
	Href        string   `json:"href,omitempty"`
	Value       string   `json:"value,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// Summary is the compact page view.
type Summary struct {
	URL      string    `json:"url,omitempty"`
	Title    string    `json:"title,omitempty"`
	Excerpt  string    `json:"excerpt,omitempty"`
	Headings []string  `json:"headings,omitempty"`
	Elements []Element `json:"elements"`
}

// HTMLSummarizer extracts headings and interactive elements with goquery and
// the readable title and excerpt with go-readability. All extracted text is
// passed through a strict bluemonday policy.
type HTMLSummarizer struct {
	MaxElements int
	MaxText     int
	policy      *bluemonday.Policy
}

func New() *HTMLSummarizer {
	return &HTMLSummarizer{
		MaxElements: defaultMaxElements,
		MaxText:     defaultMaxText,
		policy:      bluemonday.StrictPolicy(),
	}
}

// Summarize returns the JSON summary of markup. pageURL may be empty.
func (h *HTMLSummarizer) Summarize(markup, pageURL string) (string, error) {
	s, err := h.Extract(markup, pageURL)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	return string(raw), nil
}

// Extract builds the Summary without encoding it.
func (h *HTMLSummarizer) Extract(markup, pageURL string) (*Summary, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, errors.New("empty html")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template, svg").Remove()

	s := &Summary{URL: pageURL, Elements: []Element{}}
	s.Title = h.clean(doc.Find("title").First().Text())

	base := &url.URL{}
	if u, err := url.Parse(pageURL); err == nil {
		base = u
	}
	if article, err := readability.FromReader(strings.NewReader(markup), base); err == nil {
		if s.Title == "" {
			s.Title = h.clean(article.Title)
		}
		s.Excerpt = truncate(h.clean(article.Excerpt), defaultMaxExcerpt)
	}

	doc.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		if text := h.clean(sel.Text()); text != "" {
			s.Headings = append(s.Headings, truncate(text, h.maxText()))
		}
	})

	labels := labelIndex(doc, h)
	doc.Find("a[href], button, input, select, textarea, [role], [onclick], [data-testid], [contenteditable=true]").
		EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if len(s.Elements) >= h.maxElements() {
				return false
			}
			if el, ok := h.element(sel, labels); ok {
				s.Elements = append(s.Elements, el)
			}
			return true
		})
	return s, nil
}

func (h *HTMLSummarizer) element(sel *goquery.Selection, labels map[string]string) (Element, bool) {
	tag := goquery.NodeName(sel)
	typ := strings.ToLower(attr(sel, "type"))
	if tag == "input" && typ == "hidden" {
		return Element{}, false
	}
	if _, hidden := sel.Attr("hidden"); hidden || attr(sel, "aria-hidden") == "true" {
		return Element{}, false
	}
	el := Element{
		Tag:         tag,
		Role:        attr(sel, "role"),
		Text:        truncate(h.clean(sel.Text()), h.maxText()),
		ID:          attr(sel, "id"),
		Name:        attr(sel, "name"),
		Type:        typ,
		Placeholder: h.clean(attr(sel, "placeholder")),
		AriaLabel:   h.clean(attr(sel, "aria-label")),
		TestID:      attr(sel, "data-testid"),
		Title:       h.clean(attr(sel, "title")),
		Alt:         h.clean(attr(sel, "alt")),
		Href:        attr(sel, "href"),
	}
	if el.ID != "" {
		el.Label = labels[el.ID]
	}
	if el.Label == "" {
		if parent := sel.ParentsFiltered("label").First(); parent.Length() > 0 {
			el.Label = truncate(h.clean(parent.Text()), h.maxText())
		}
	}
	switch tag {
	case "input":
		if typ == "button" || typ == "submit" || typ == "reset" {
			el.Value = h.clean(attr(sel, "value"))
		}
	case "select":
		sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
			if text := h.clean(opt.Text()); text != "" {
				el.Options = append(el.Options, text)
			}
		})
		el.Text = ""
	}
	return el, true
}

func labelIndex(doc *goquery.Document, h *HTMLSummarizer) map[string]string {
	out := make(map[string]string)
	doc.Find("label[for]").Each(func(_ int, sel *goquery.Selection) {
		if id := attr(sel, "for"); id != "" {
			out[id] = truncate(h.clean(sel.Text()), h.maxText())
		}
	})
	return out
}

// clean strips markup and collapses whitespace.
func (h *HTMLSummarizer) clean(s string) string {
	p := h.policy
	if p == nil {
		p = bluemonday.StrictPolicy()
	}
	return strings.Join(strings.Fields(html.UnescapeString(p.Sanitize(s))), " ")
}

func (h *HTMLSummarizer) maxElements() int {
	if h.MaxElements > 0 {
		return h.MaxElements
	}
	return defaultMaxElements
}

func (h *HTMLSummarizer) maxText() int {
	if h.MaxText > 0 {
		return h.MaxText
	}
	return defaultMaxText
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.Attr(name)
	return strings.TrimSpace(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
