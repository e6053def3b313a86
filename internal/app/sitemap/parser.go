package sitemap

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

var (
	ErrUnknownFormat = errors.New("not a sitemap or sitemap index")
	ErrInvalidEntry  = errors.New("invalid sitemap entry")
)

var changeFreqs = map[string]bool{
	"always":  true,
	"hourly":  true,
	"daily":   true,
	"weekly":  true,
	"monthly": true,
	"yearly":  true,
	"never":   true,
}

type Kind int

const (
	KindURLSet Kind = iota
	KindIndex
)

func (k Kind) String() string {
	if k == KindIndex {
		return "sitemapindex"
	}
	return "urlset"
}

// Entry is one <url> of a urlset.
type Entry struct {
	Loc        string
	LastMod    string
	ChangeFreq string
	Priority   string
}

func (e Entry) Validate() error {
	if e.Loc == "" {
		return fmt.Errorf("%w: missing <loc>", ErrInvalidEntry)
	}
	if e.ChangeFreq != "" && !changeFreqs[e.ChangeFreq] {
		return fmt.Errorf("%w: changefreq %q for %s", ErrInvalidEntry, e.ChangeFreq, e.Loc)
	}
	if e.Priority != "" {
		p, err := strconv.ParseFloat(e.Priority, 64)
		if err != nil || p < 0 || p > 1 {
			return fmt.Errorf("%w: priority %q for %s must be between 0.0 and 1.0", ErrInvalidEntry, e.Priority, e.Loc)
		}
	}
	return nil
}

// Document is a parsed sitemap file: entries for a urlset, child sitemap
// locations for an index.
type Document struct {
	Kind     Kind
	Entries  []Entry
	Sitemaps []string
}

// Parse reads a urlset or sitemapindex document. The root element decides the kind.
func Parse(body []byte) (*Document, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap xml: %w", err)
	}
	root := rootElement(doc)
	if root == nil {
		return nil, ErrUnknownFormat
	}

	switch root.Data {
	case "urlset":
		d := &Document{Kind: KindURLSet}
		for _, n := range root.SelectElements("url") {
			d.Entries = append(d.Entries, Entry{
				Loc:        childText(n, "loc"),
				LastMod:    childText(n, "lastmod"),
				ChangeFreq: childText(n, "changefreq"),
				Priority:   childText(n, "priority"),
			})
		}
		return d, nil
	case "sitemapindex":
		d := &Document{Kind: KindIndex}
		for _, n := range root.SelectElements("sitemap") {
			if loc := childText(n, "loc"); loc != "" {
				d.Sitemaps = append(d.Sitemaps, loc)
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: root element <%s>", ErrUnknownFormat, root.Data)
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

func childText(n *xmlquery.Node, name string) string {
	c := n.SelectElement(name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.InnerText())
}
