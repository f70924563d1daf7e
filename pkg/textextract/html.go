package textextract

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLPage is the visible content of one HTML document.
type HTMLPage struct {
	Title string
	Text  string
	Links []string // absolute, de-duplicated, in document order
}

// Elements whose text is never visible content.
const invisibleSelector = "script, style, noscript, template, iframe, svg, head"

// Elements that start a new paragraph in the extracted text.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "table": true, "tr": true,
	"blockquote": true, "pre": true, "header": true, "footer": true, "nav": true,
	"br": true, "hr": true, "dd": true, "dt": true, "figcaption": true,
}

// ParseHTML strips markup and returns title, text and outbound links. Links
// are resolved against base, or against <base href> when present; with no base
// only absolute links are kept.
func ParseHTML(r io.Reader, base *url.URL) (*HTMLPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := url.Parse(strings.TrimSpace(href)); err == nil {
			if base != nil {
				b = base.ResolveReference(b)
			}
			if b.IsAbs() {
				base = b
			}
		}
	}

	links := collectLinks(doc, base)

	doc.Find(invisibleSelector).Remove()
	doc.Find("[hidden], [aria-hidden='true']").Remove()

	var w textWriter
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Each(func(_ int, s *goquery.Selection) {
		writeText(&w, s)
	})

	return &HTMLPage{
		Title: title,
		Text:  collapseBlankLines(w.b.String()),
		Links: links,
	}, nil
}

func collectLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if !u.IsAbs() {
			return
		}
		u.Fragment = ""
		abs := u.String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})
	return links
}

type textWriter struct {
	b    strings.Builder
	last byte
}

func (w *textWriter) write(s string) {
	if s == "" {
		return
	}
	w.b.WriteString(s)
	w.last = s[len(s)-1]
}

func writeText(w *textWriter, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			text := strings.Join(strings.Fields(c.Text()), " ")
			if text == "" {
				return
			}
			if w.last != 0 && w.last != '\n' && w.last != ' ' {
				w.write(" ")
			}
			w.write(text)
			return
		}
		block := blockTags[goquery.NodeName(c)]
		if block {
			w.write("\n\n")
		}
		writeText(w, c)
		if block {
			w.write("\n\n")
		}
	})
}

func collapseBlankLines(s string) string {
	parts := strings.Split(s, "\n")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
