package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crawlurl/internal/app/normalizer"
	"crawlurl/internal/app/robots"
	"crawlurl/internal/usecase"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4
	maxSitemapSize     = 50 * 1024 * 1024
)

// CommonLocations are probed in order when robots.txt lists no sitemap.
var CommonLocations = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemaps/sitemap.xml",
	"/xml-sitemaps/sitemap.xml",
}

var gzipMagic = []byte{0x1f, 0x8b}

type Option func(*Service)

func WithProgress(sink usecase.ProgressSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Service extracts URLs from sitemaps and sitemap indexes.
type Service struct {
	client      *http.Client
	userAgent   string
	logger      *zap.Logger
	sink        usecase.ProgressSink
	concurrency int
}

func NewService(client *http.Client, userAgent string, logger *zap.Logger, opts ...Option) *Service {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	s := &Service{
		client:      client,
		userAgent:   userAgent,
		logger:      logger,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessSitemapURL reads one sitemap or sitemap index, from http(s) or a
// local path, and returns the <loc> values starting with filter.
func (s *Service) ProcessSitemapURL(ctx context.Context, sitemapURL, filter string) usecase.CrawlResult {
	s.notify("Processing sitemap...", 0)
	doc, err := s.load(ctx, sitemapURL)
	if err != nil {
		return usecase.Failed(fmt.Sprintf("Error processing sitemap: %v", err), err)
	}
	if doc.Kind == KindIndex {
		return s.processIndex(ctx, doc.Sitemaps, filter)
	}
	urls, warnings := s.extract(doc.Entries, filter)
	return usecase.NewCrawlResult(true, urls, fmt.Sprintf("Extracted %d URLs from sitemap", len(urls)), warnings)
}

// ProcessBaseURL discovers the sitemaps of a site and merges their URLs.
func (s *Service) ProcessBaseURL(ctx context.Context, baseURL, filter string) usecase.CrawlResult {
	s.notify("Discovering sitemaps...", 0)
	sitemaps, err := s.Discover(ctx, baseURL)
	if err != nil {
		return usecase.Failed(fmt.Sprintf("Error processing base URL: %v", err), err)
	}
	if len(sitemaps) == 0 {
		return usecase.NewCrawlResult(false, nil, "No sitemaps found for this domain", nil)
	}

	urls := make([]string, 0)
	var warnings []string
	for i, sm := range sitemaps {
		if ctx.Err() != nil {
			break
		}
		s.notify(fmt.Sprintf("Processing sitemap %d/%d", i+1, len(sitemaps)), len(urls))
		res := s.ProcessSitemapURL(ctx, sm, filter)
		if !res.Success {
			warnings = append(warnings, res.Message)
			continue
		}
		urls = append(urls, res.URLs...)
		warnings = append(warnings, res.Errors...)
	}
	return usecase.NewCrawlResult(true, urls,
		fmt.Sprintf("Successfully extracted %d URLs from %d sitemaps", len(urls), len(sitemaps)), warnings)
}

// Discover returns the sitemaps listed in robots.txt, else the first common
// location that answers 200 to HEAD.
func (s *Service) Discover(ctx context.Context, baseURL string) ([]string, error) {
	origin, err := normalizer.Origin(baseURL)
	if err != nil {
		return nil, err
	}

	policy, err := robots.Fetch(ctx, s.client, origin, s.userAgent)
	if err != nil {
		s.logger.Debug("robots.txt unavailable for sitemap discovery", zap.String("origin", origin), zap.Error(err))
	} else if found := policy.Sitemaps(); len(found) > 0 {
		return found, nil
	}

	for _, loc := range CommonLocations {
		candidate := origin + loc
		if s.exists(ctx, candidate) {
			return []string{candidate}, nil
		}
	}
	return nil, nil
}

func (s *Service) processIndex(ctx context.Context, children []string, filter string) usecase.CrawlResult {
	type part struct {
		urls     []string
		warnings []string
	}
	parts := make([]part, len(children))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, child := range children {
		i, child := i, child
		g.Go(func() error {
			s.notify(fmt.Sprintf("Processing sitemap %d/%d", i+1, len(children)), 0)
			doc, err := s.load(gctx, child)
			if err != nil {
				parts[i].warnings = []string{fmt.Sprintf("Error processing sitemap %s: %v", child, err)}
				return nil
			}
			if doc.Kind == KindIndex {
				parts[i].warnings = []string{fmt.Sprintf("Error processing sitemap %s: nested sitemap index", child)}
				return nil
			}
			parts[i].urls, parts[i].warnings = s.extract(doc.Entries, filter)
			return nil
		})
	}
	_ = g.Wait()

	urls := make([]string, 0)
	var warnings []string
	for _, p := range parts {
		urls = append(urls, p.urls...)
		warnings = append(warnings, p.warnings...)
	}
	return usecase.NewCrawlResult(true, urls, fmt.Sprintf("Processed %d sitemaps from index", len(children)), warnings)
}

func (s *Service) extract(entries []Entry, filter string) ([]string, []string) {
	urls := make([]string, 0, len(entries))
	var warnings []string
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		if filter != "" && !strings.HasPrefix(e.Loc, filter) {
			continue
		}
		urls = append(urls, e.Loc)
	}
	return urls, warnings
}

func (s *Service) load(ctx context.Context, src string) (*Document, error) {
	body, err := s.read(ctx, src)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(src, ".gz") || bytes.HasPrefix(body, gzipMagic) {
		if plain, err := gunzip(body); err == nil {
			body = plain
		} else {
			// transport may already have decoded a .gz body
			s.logger.Debug("sitemap body not gzipped", zap.String("src", src), zap.Error(err))
		}
	}
	doc, err := Parse(body)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sitemap parsed", zap.String("src", src), zap.Stringer("kind", doc.Kind),
		zap.Int("entries", len(doc.Entries)), zap.Int("sitemaps", len(doc.Sitemaps)))
	return doc, nil
}

func (s *Service) read(ctx context.Context, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.ReadFile(src)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", src, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSitemapSize))
}

func (s *Service) exists(ctx context.Context, u string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", s.userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (s *Service) notify(message string, count int) {
	if s.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("progress sink panicked", zap.Any("panic", r))
		}
	}()
	s.sink.Notify(message, count)
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	plain, err := io.ReadAll(io.LimitReader(zr, maxSitemapSize))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return plain, nil
}
