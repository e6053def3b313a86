package robots

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"crawlurl/internal/app/normalizer"
)

const DefaultTimeout = 5 * time.Second

// Checker answers robots.txt allow/deny questions. Each origin's robots.txt is
// fetched at most once; concurrent first queries share one fetch.
type Checker struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.RWMutex
	policies map[string]*Policy
	flight   singleflight.Group
}

func NewChecker(client *http.Client, userAgent string, timeout time.Duration, logger *zap.Logger) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
		logger:    logger,
		policies:  make(map[string]*Policy),
	}
}

// CanFetch checks rawURL against the checker's own user agent.
func (c *Checker) CanFetch(ctx context.Context, rawURL string) bool {
	return c.CanFetchAs(ctx, rawURL, c.userAgent)
}

// CanFetchAs checks rawURL for agent. Every failure resolves to allowed.
func (c *Checker) CanFetchAs(ctx context.Context, rawURL, agent string) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("robots evaluation panicked, allowing", zap.String("url", rawURL), zap.Any("panic", r))
			allowed = true
		}
	}()
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	origin, err := normalizer.Origin(rawURL)
	if err != nil {
		return true
	}
	return c.Policy(ctx, origin).Allowed(u.RequestURI(), agent)
}

// Policy returns the cached policy for origin, fetching it on first use.
func (c *Checker) Policy(ctx context.Context, origin string) *Policy {
	c.mu.RLock()
	p, ok := c.policies[origin]
	c.mu.RUnlock()
	if ok {
		return p
	}

	v, _, _ := c.flight.Do(origin, func() (interface{}, error) {
		c.mu.RLock()
		p, ok := c.policies[origin]
		c.mu.RUnlock()
		if ok {
			return p, nil
		}
		p = c.load(ctx, origin)
		c.mu.Lock()
		c.policies[origin] = p
		c.mu.Unlock()
		return p, nil
	})
	return v.(*Policy)
}

func (c *Checker) load(ctx context.Context, origin string) *Policy {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	p, err := Fetch(ctx, c.client, origin, c.userAgent)
	if err != nil {
		c.logger.Debug("robots.txt not usable, allowing all", zap.String("origin", origin), zap.Error(err))
		return AllowAll()
	}
	c.logger.Debug("robots.txt cached", zap.String("origin", origin))
	return p
}

// CrawlDelay returns the Crawl-delay the origin's robots.txt asks of this checker's agent.
func (c *Checker) CrawlDelay(ctx context.Context, origin string) time.Duration {
	return c.Policy(ctx, origin).CrawlDelay(c.userAgent)
}
