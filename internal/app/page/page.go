package page

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"crawlurl/internal/app/normalizer"
	"crawlurl/internal/usecase"
)

type page struct {
	doc    *goquery.Document
	logger *zap.Logger
}

func NewPage(raw io.Reader, logger *zap.Logger) (usecase.Page, error) {
	doc, err := goquery.NewDocumentFromReader(raw)
	if err != nil {
		logger.Error("new page error", zap.Error(err))
		return nil, err
	}
	logger.Debug("new page initialize")
	return &page{doc: doc, logger: logger}, nil
}

// NewPageFromBytes decodes body to UTF-8 using the declared or sniffed charset.
func NewPageFromBytes(body []byte, contentType string, logger *zap.Logger) (usecase.Page, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		logger.Debug("unknown charset, reading raw bytes", zap.String("content_type", contentType), zap.Error(err))
		r = bytes.NewReader(body)
	}
	return NewPage(r, logger)
}

func (p *page) GetTitle(ctx context.Context) string {
	select {
	case <-ctx.Done():
		p.logger.Debug("context done in get title")
		return ""
	default:
		title := strings.TrimSpace(p.doc.Find("title").First().Text())
		p.logger.Debug(fmt.Sprintf("get title return title: %s", title))
		return title
	}
}

// GetLinks returns the raw href of every anchor in document order.
func (p *page) GetLinks(ctx context.Context) []string {
	select {
	case <-ctx.Done():
		p.logger.Debug("context done in get links")
		return nil
	default:
		var urls []string
		p.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok {
				urls = append(urls, href)
			}
		})
		p.logger.Debug(fmt.Sprintf("found %d anchors", len(urls)))
		return urls
	}
}

// IsHTML reports whether a Content-Type header names an HTML document.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// ExtractLinks parses body and returns the canonical form of every anchor
// accepted by n, resolved against baseURL. Order follows the document and each
// link appears once. Empty and fragment-only hrefs are skipped. Unparsable
// input yields no links.
func ExtractLinks(ctx context.Context, body []byte, contentType, baseURL string, n *normalizer.Normalizer, logger *zap.Logger) []string {
	p, err := NewPageFromBytes(body, contentType, logger)
	if err != nil {
		return nil
	}
	if n == nil {
		n = normalizer.New("")
	}

	hrefs := p.GetLinks(ctx)
	links := make([]string, 0, len(hrefs))
	seen := make(map[string]struct{}, len(hrefs))
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		link, err := n.Normalize(href, baseURL)
		if err != nil {
			logger.Debug("link skipped", zap.String("href", href), zap.Error(err))
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	logger.Debug("page parsed",
		zap.String("url", baseURL),
		zap.String("title", p.GetTitle(ctx)),
		zap.Int("links", len(links)))
	return links
}
