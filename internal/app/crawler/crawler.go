package crawler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"crawlurl/internal/app/dedup"
	"crawlurl/internal/app/normalizer"
	"crawlurl/internal/app/page"
	"crawlurl/internal/app/ratelimit"
	"crawlurl/internal/app/requester"
	"crawlurl/internal/app/robots"
	"crawlurl/internal/usecase"
)

const (
	DefaultMaxURLs = 1000
	// MaxLinksPerPage caps how many of a page's links enter the frontier.
	MaxLinksPerPage = 50
	progressURLLen  = 50
)

type Option func(*crawler)

// WithRobots sets the client and agent used for robots.txt lookups.
func WithRobots(client *http.Client, userAgent string, timeout time.Duration) Option {
	return func(c *crawler) {
		c.client = client
		if userAgent != "" {
			c.userAgent = userAgent
		}
		c.robotsTimeout = timeout
	}
}

func WithDedupCapacity(n int) Option {
	return func(c *crawler) {
		c.dedupCapacity = n
	}
}

// WithRobotsChecker replaces the robots.txt checker built for each crawl.
func WithRobotsChecker(newChecker func() usecase.RobotsChecker) Option {
	return func(c *crawler) {
		c.newRobots = newChecker
	}
}

// WithRateLimiter replaces the per-origin limiter built for each crawl.
func WithRateLimiter(newLimiter func(delay time.Duration) usecase.RateLimiter) Option {
	return func(c *crawler) {
		c.newLimiter = newLimiter
	}
}

// WithDeduplicator replaces the deduplicator built for each crawl.
func WithDeduplicator(newDedup func() usecase.Deduplicator) Option {
	return func(c *crawler) {
		c.newDedup = newDedup
	}
}

type crawler struct {
	r             usecase.Requester
	logger        *zap.Logger
	client        *http.Client
	userAgent     string
	robotsTimeout time.Duration
	dedupCapacity int

	newRobots  func() usecase.RobotsChecker
	newLimiter func(delay time.Duration) usecase.RateLimiter
	newDedup   func() usecase.Deduplicator
}

func NewCrawler(r usecase.Requester, logger *zap.Logger, opts ...Option) *crawler {
	c := &crawler{
		r:             r,
		logger:        logger,
		userAgent:     requester.DefaultUserAgent,
		robotsTimeout: robots.DefaultTimeout,
		dedupCapacity: dedup.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newRobots == nil {
		c.newRobots = func() usecase.RobotsChecker {
			return robots.NewChecker(c.client, c.userAgent, c.robotsTimeout, c.logger)
		}
	}
	if c.newLimiter == nil {
		c.newLimiter = func(delay time.Duration) usecase.RateLimiter {
			return ratelimit.NewLimiter(delay, c.logger)
		}
	}
	if c.newDedup == nil {
		c.newDedup = func() usecase.Deduplicator {
			return dedup.New(c.dedupCapacity)
		}
	}
	logger.Debug("new crawler initialize")
	return c
}

// run is the state of a single Crawl call.
type run struct {
	job      usecase.CrawlJob
	sink     usecase.ProgressSink
	norm     *normalizer.Normalizer
	robots   usecase.RobotsChecker
	limiter  usecase.RateLimiter
	seen     usecase.Deduplicator
	visited  map[string]struct{}
	paced    map[string]struct{}
	frontier []usecase.FrontierEntry
	urls     []string
	warnings []string
}

// Crawl walks the site breadth-first from job.StartURL. Per-page failures,
// panics included, become warnings; only a failure of the loop itself
// yields success=false.
// Cancelling ctx stops the walk and returns what was collected so far.
func (c *crawler) Crawl(ctx context.Context, job usecase.CrawlJob, sink usecase.ProgressSink) (res usecase.CrawlResult) {
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("%v", r)
			c.logger.Error("crawl aborted", zap.String("start_url", job.StartURL), zap.Error(cause))
			res = usecase.Failed(fmt.Sprintf("Crawling failed: %v", cause), cause)
		}
	}()

	start, err := normalizer.Normalize(job.StartURL, "")
	if err != nil {
		return usecase.Failed(fmt.Sprintf("Crawling failed: %v", err), err)
	}
	if job.MaxURLs <= 0 {
		job.MaxURLs = DefaultMaxURLs
	}

	s := &run{
		job:      job,
		sink:     sink,
		norm:     normalizer.New(job.FilterPrefix),
		robots:   c.newRobots(),
		limiter:  c.newLimiter(job.Delay),
		seen:     c.newDedup(),
		visited:  make(map[string]struct{}),
		paced:    make(map[string]struct{}),
		frontier: []usecase.FrontierEntry{{URL: start, Depth: 0}},
		urls:     make([]string, 0),
	}
	c.logger.Info("crawl started", zap.String("url", start), zap.Int("max_depth", job.MaxDepth),
		zap.Duration("delay", job.Delay), zap.Int("max_urls", job.MaxURLs))

	for len(s.frontier) > 0 && len(s.urls) < job.MaxURLs {
		if ctx.Err() != nil {
			return c.cancelled(s)
		}
		entry := s.frontier[0]
		s.frontier = s.frontier[1:]

		if !c.safeStep(ctx, s, entry) {
			return c.cancelled(s)
		}
	}

	c.logger.Info("crawl finished", zap.Int("urls", len(s.urls)), zap.Int("warnings", len(s.warnings)))
	return usecase.NewCrawlResult(true, s.urls, fmt.Sprintf("Successfully crawled %d URLs", len(s.urls)), s.warnings)
}

// safeStep runs step and turns a panic while processing the page into a
// warning for that URL.
func (c *crawler) safeStep(ctx context.Context, s *run, entry usecase.FrontierEntry) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.warnings = append(s.warnings, fmt.Sprintf("Error crawling %s: %v", entry.URL, r))
			c.logger.Error("page processing panicked", zap.String("url", entry.URL), zap.Any("panic", r))
			ok = ctx.Err() == nil
		}
	}()
	return c.step(ctx, s, entry)
}

// step processes one frontier entry. It returns false once ctx is done.
func (c *crawler) step(ctx context.Context, s *run, entry usecase.FrontierEntry) bool {
	if _, ok := s.visited[entry.URL]; ok {
		return true
	}
	if entry.Depth > s.job.MaxDepth || s.seen.IsDuplicate(entry.URL) {
		return true
	}

	c.notify(s.sink, "Crawling: "+shorten(entry.URL, progressURLLen), len(s.urls))

	if !s.robots.CanFetch(ctx, entry.URL) {
		c.logger.Info("robots.txt disallows crawling", zap.String("url", entry.URL))
		return true
	}

	origin, err := normalizer.Origin(entry.URL)
	if err != nil {
		s.warnings = append(s.warnings, fmt.Sprintf("Error crawling %s: %v", entry.URL, err))
		return true
	}
	c.pace(ctx, s, origin)
	if err := s.limiter.Wait(ctx, origin); err != nil {
		c.logger.Debug("rate limiter wait interrupted", zap.Error(err))
		return false
	}

	resp, err := c.r.Fetch(ctx, entry.URL)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.warnings = append(s.warnings, fmt.Sprintf("Error crawling %s: %v", entry.URL, err))
		c.logger.Warn("error crawling page", zap.String("url", entry.URL), zap.Error(err))
		return true
	}
	s.visited[entry.URL] = struct{}{}

	var links []string
	if page.IsHTML(resp.ContentType) {
		links = page.ExtractLinks(ctx, resp.Body, resp.ContentType, entry.URL, s.norm, c.logger)
	}
	c.logger.Debug(fmt.Sprintf("page %s at depth %d yields %d links", entry.URL, entry.Depth, len(links)))

	record := links
	if room := s.job.MaxURLs - len(s.urls); len(record) > room {
		record = record[:room]
	}
	s.urls = append(s.urls, record...)

	if entry.Depth < s.job.MaxDepth {
		next := links
		if len(next) > MaxLinksPerPage {
			next = next[:MaxLinksPerPage]
		}
		for _, link := range next {
			if _, ok := s.visited[link]; ok {
				continue
			}
			s.frontier = append(s.frontier, usecase.FrontierEntry{URL: link, Depth: entry.Depth + 1})
		}
	}
	return true
}

// pace applies a robots Crawl-delay stricter than the job delay, once per origin.
func (c *crawler) pace(ctx context.Context, s *run, origin string) {
	if _, ok := s.paced[origin]; ok {
		return
	}
	s.paced[origin] = struct{}{}
	if d := s.robots.CrawlDelay(ctx, origin); d > s.job.Delay {
		s.limiter.SetDelay(origin, d)
		c.logger.Info("honoring robots.txt crawl-delay", zap.String("origin", origin), zap.Duration("delay", d))
	}
}

func (c *crawler) cancelled(s *run) usecase.CrawlResult {
	c.logger.Info("crawl cancelled", zap.Int("urls", len(s.urls)))
	return usecase.NewCrawlResult(true, s.urls, fmt.Sprintf("Crawl cancelled after collecting %d URLs", len(s.urls)), s.warnings)
}

// notify never lets a faulty sink abort the crawl.
func (c *crawler) notify(sink usecase.ProgressSink, message string, count int) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("progress sink panicked", zap.Any("panic", r))
		}
	}()
	sink.Notify(message, count)
}

func shorten(url string, n int) string {
	if len(url) <= n {
		return url
	}
	return url[:n-3] + "..."
}
