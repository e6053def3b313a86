package requester

import (
	"context"
	"crawlurl/internal/usecase"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultUserAgent   = "crawl-url/1.0 (Compatible Web Crawler)"
	DefaultTimeout     = 10 * time.Second
	DefaultAttempts    = 3
	DefaultBackoff     = 500 * time.Millisecond
	DefaultMaxBackoff  = 4 * time.Second
	DefaultMaxBodySize = 10 * 1024 * 1024
)

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// FetchError is a failed GET. It never aborts a crawl.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("GET %s: %v (after %d attempt(s))", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Temporary reports whether another attempt could succeed.
func (e *FetchError) Temporary() bool {
	if e.StatusCode != 0 {
		return retryableStatus[e.StatusCode]
	}
	return e.Err != nil && !errors.Is(e.Err, context.Canceled)
}

// Timeout reports whether the request ran out of time.
func (e *FetchError) Timeout() bool {
	var ne net.Error
	if errors.As(e.Err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}

type Option func(*requester)

func WithUserAgent(ua string) Option {
	return func(r *requester) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithRetry sets the total number of attempts and the first backoff delay.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(r *requester) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if backoff >= 0 {
			r.backoff = backoff
		}
	}
}

func WithMaxBodySize(n int64) Option {
	return func(r *requester) {
		if n > 0 {
			r.maxBodySize = n
		}
	}
}

type requester struct {
	timeout     time.Duration
	logger      *zap.Logger
	rt          http.RoundTripper
	client      *http.Client
	userAgent   string
	attempts    int
	backoff     time.Duration
	maxBackoff  time.Duration
	maxBodySize int64
}

func NewRequester(timeout time.Duration, logger *zap.Logger, rt http.RoundTripper, opts ...Option) *requester {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &requester{
		timeout:     timeout,
		logger:      logger,
		rt:          rt,
		userAgent:   DefaultUserAgent,
		attempts:    DefaultAttempts,
		backoff:     DefaultBackoff,
		maxBackoff:  DefaultMaxBackoff,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client = &http.Client{
		Timeout:   r.timeout,
		Transport: r.rt,
	}
	logger.Debug("new requester initialize")
	return r
}

// Client exposes the configured http.Client so robots and sitemap fetches share transport.
func (r *requester) Client() *http.Client {
	return r.client
}

func (r *requester) UserAgent() string {
	return r.userAgent
}

// Fetch GETs url, retrying 429/5xx statuses and transport errors with exponential backoff.
func (r *requester) Fetch(ctx context.Context, url string) (*usecase.Response, error) {
	delay := r.backoff
	var fe *FetchError
	for attempt := 1; attempt <= r.attempts; attempt++ {
		resp, err := r.get(ctx, url)
		if err == nil {
			return resp, nil
		}
		fe = err
		fe.Attempts = attempt
		if !fe.Temporary() || attempt == r.attempts || ctx.Err() != nil {
			break
		}
		r.logger.Debug("retrying request",
			zap.String("url", url), zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(fe))
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				fe.Err = ctx.Err()
				return nil, fe
			case <-timer.C:
			}
			delay *= 2
			if delay > r.maxBackoff {
				delay = r.maxBackoff
			}
		}
	}
	r.logger.Warn("fetch failed", zap.Error(fe))
	return nil, fe
}

func (r *requester) get(ctx context.Context, url string) (*usecase.Response, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.logger.Error(fmt.Sprintf("error by get new request, url: %s", url))
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("http.client error", zap.Error(err))
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodySize))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return &usecase.Response{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
