package usecase

import (
	"context"
	"time"
)

// CrawlJob is the immutable configuration of one crawl run.
type CrawlJob struct {
	StartURL     string
	MaxDepth     int
	Delay        time.Duration
	MaxURLs      int
	FilterPrefix string
}

// FrontierEntry is a queued (url, depth) pair.
type FrontierEntry struct {
	URL   string
	Depth int
}

// CrawlResult is the outcome of a crawl or a sitemap run.
// Count always equals len(URLs); build it with NewCrawlResult.
type CrawlResult struct {
	Success bool
	URLs    []string
	Count   int
	Message string
	Errors  []string
}

func NewCrawlResult(success bool, urls []string, message string, errs []string) CrawlResult {
	if urls == nil {
		urls = []string{}
	}
	if errs == nil {
		errs = []string{}
	}
	return CrawlResult{
		Success: success,
		URLs:    urls,
		Count:   len(urls),
		Message: message,
		Errors:  errs,
	}
}

// Failed builds the terminal result of a run aborted by cause.
func Failed(message string, cause error) CrawlResult {
	return NewCrawlResult(false, nil, message, []string{cause.Error()})
}

// Response is a fetched page body with its content type.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

type Requester interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

type Page interface {
	GetTitle(context.Context) string
	GetLinks(context.Context) []string
}

// ProgressSink receives fire-and-forget crawl progress.
type ProgressSink interface {
	Notify(message string, count int)
}

// ProgressFunc adapts a plain function to ProgressSink.
type ProgressFunc func(message string, count int)

func (f ProgressFunc) Notify(message string, count int) {
	f(message, count)
}

type RobotsChecker interface {
	CanFetch(ctx context.Context, url string) bool
	// CrawlDelay is the Crawl-delay the origin asks for, zero when none.
	CrawlDelay(ctx context.Context, origin string) time.Duration
}

type RateLimiter interface {
	Wait(ctx context.Context, origin string) error
	SetDelay(origin string, delay time.Duration)
}

type Deduplicator interface {
	IsDuplicate(url string) bool
}

type Crawler interface {
	Crawl(ctx context.Context, job CrawlJob, sink ProgressSink) CrawlResult
}

// SitemapService is the alternate discovery strategy used for sitemap references.
type SitemapService interface {
	ProcessSitemapURL(ctx context.Context, sitemapURL, filter string) CrawlResult
	ProcessBaseURL(ctx context.Context, baseURL, filter string) CrawlResult
}
