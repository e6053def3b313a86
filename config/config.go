package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"crawlurl/internal/app/requester"
	"crawlurl/internal/app/robots"
	"crawlurl/internal/app/storage"
	"crawlurl/internal/usecase"
)

const (
	ModeAuto    = "auto"
	ModeSitemap = "sitemap"
	ModeCrawl   = "crawl"

	MinDepth   = 1
	MaxDepth   = 10
	MinMaxURLs = 1
	MaxMaxURLs = 10000
)

var Modes = []string{ModeAuto, ModeSitemap, ModeCrawl}

type Config struct {
	URL           string  `toml:"url" yaml:"url"`
	Mode          string  `toml:"mode" yaml:"mode"`
	MaxDepth      int     `toml:"max_depth" yaml:"max_depth"`
	Delay         float64 `toml:"delay" yaml:"delay"` // in seconds
	MaxURLs       int     `toml:"max_urls" yaml:"max_urls"`
	Filter        string  `toml:"filter" yaml:"filter"`
	Format        string  `toml:"format" yaml:"format"`
	Output        string  `toml:"output" yaml:"output"`
	UserAgent     string  `toml:"user_agent" yaml:"user_agent"`
	ReqTimeout    int     `toml:"req_timeout" yaml:"req_timeout"`       // in seconds
	RobotsTimeout int     `toml:"robots_timeout" yaml:"robots_timeout"` // in seconds
	Verbose       bool    `toml:"verbose" yaml:"verbose"`
	History       bool    `toml:"history" yaml:"history"`
	HistoryDir    string  `toml:"history_dir" yaml:"history_dir"`
}

func NewConfig() *Config {
	return &Config{
		Mode:          ModeAuto,
		MaxDepth:      3,
		Delay:         1.0,
		MaxURLs:       1000,
		Format:        string(storage.FormatTXT),
		UserAgent:     requester.DefaultUserAgent,
		ReqTimeout:    int(requester.DefaultTimeout / time.Second),
		RobotsTimeout: int(robots.DefaultTimeout / time.Second),
	}
}

// ErrInvalidConfig matches every *ValidationError via errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

type ErrorKind string

const (
	KindMissing       ErrorKind = "missing"
	KindOutOfRange    ErrorKind = "out of range"
	KindInvalidChoice ErrorKind = "invalid choice"
	KindInvalidURL    ErrorKind = "invalid url"
)

// ValidationError names the offending field, its value and what is allowed.
type ValidationError struct {
	Kind    ErrorKind
	Field   string
	Value   interface{}
	Allowed string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %v (allowed: %s)", e.Field, e.Kind, e.Value, e.Allowed)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return &ValidationError{Kind: KindMissing, Field: "url", Value: c.URL, Allowed: "an http or https URL"}
	}
	if !contains(Modes, c.Mode) {
		return &ValidationError{Kind: KindInvalidChoice, Field: "mode", Value: c.Mode, Allowed: strings.Join(Modes, ", ")}
	}
	// a local sitemap file is the only non-URL input
	if !(c.UseSitemap() && !strings.Contains(c.URL, "://")) {
		u, err := url.Parse(c.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Kind: KindInvalidURL, Field: "url", Value: c.URL, Allowed: "an http or https URL with a host"}
		}
	}
	if c.MaxDepth < MinDepth || c.MaxDepth > MaxDepth {
		return &ValidationError{Kind: KindOutOfRange, Field: "max_depth", Value: c.MaxDepth, Allowed: fmt.Sprintf("%d..%d", MinDepth, MaxDepth)}
	}
	if c.Delay < 0 {
		return &ValidationError{Kind: KindOutOfRange, Field: "delay", Value: c.Delay, Allowed: ">= 0 seconds"}
	}
	if c.MaxURLs < MinMaxURLs || c.MaxURLs > MaxMaxURLs {
		return &ValidationError{Kind: KindOutOfRange, Field: "max_urls", Value: c.MaxURLs, Allowed: fmt.Sprintf("%d..%d", MinMaxURLs, MaxMaxURLs)}
	}
	if _, err := storage.ParseFormat(c.Format); err != nil {
		allowed := make([]string, len(storage.Formats))
		for i, f := range storage.Formats {
			allowed[i] = string(f)
		}
		return &ValidationError{Kind: KindInvalidChoice, Field: "format", Value: c.Format, Allowed: strings.Join(allowed, ", ")}
	}
	if c.ReqTimeout < 0 {
		return &ValidationError{Kind: KindOutOfRange, Field: "req_timeout", Value: c.ReqTimeout, Allowed: ">= 0 seconds"}
	}
	if c.RobotsTimeout < 0 {
		return &ValidationError{Kind: KindOutOfRange, Field: "robots_timeout", Value: c.RobotsTimeout, Allowed: ">= 0 seconds"}
	}
	return nil
}

// Job validates the configuration and returns the crawl it describes.
func (c *Config) Job() (usecase.CrawlJob, error) {
	if err := c.Validate(); err != nil {
		return usecase.CrawlJob{}, err
	}
	return usecase.CrawlJob{
		StartURL:     c.URL,
		MaxDepth:     c.MaxDepth,
		Delay:        c.DelayDuration(),
		MaxURLs:      c.MaxURLs,
		FilterPrefix: c.Filter,
	}, nil
}

func (c *Config) DelayDuration() time.Duration {
	return time.Duration(c.Delay * float64(time.Second))
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.ReqTimeout) * time.Second
}

func (c *Config) RobotsTimeoutDuration() time.Duration {
	return time.Duration(c.RobotsTimeout) * time.Second
}

// UseSitemap reports whether the run goes to the sitemap service.
func (c *Config) UseSitemap() bool {
	switch c.Mode {
	case ModeSitemap:
		return true
	case ModeCrawl:
		return false
	}
	return IsSitemapPath(c.URL)
}

// IsSitemapPath reports whether s names a sitemap document rather than a site.
func IsSitemapPath(s string) bool {
	s = strings.ToLower(s)
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		s = u.Path
	}
	return strings.HasSuffix(s, ".xml") || strings.HasSuffix(s, ".xml.gz")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
