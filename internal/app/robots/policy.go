package robots

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// maxRobotsSize caps how much of a robots.txt body is read.
const maxRobotsSize = 512 * 1024

var ErrUnavailable = errors.New("robots.txt unavailable")

// Policy is the cached robots decision logic for one origin.
// A Policy without parsed data allows everything.
type Policy struct {
	data       *robotstxt.RobotsData
	disallowed map[string]int // agent -> number of non-empty Disallow rules
}

// AllowAll is the permissive policy used when robots.txt cannot be read.
func AllowAll() *Policy {
	return &Policy{}
}

// Parse builds a Policy from a robots.txt body.
func Parse(body []byte) (*Policy, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, err
	}
	return &Policy{data: data, disallowed: countDisallows(body)}, nil
}

// Fetch downloads origin/robots.txt. Anything but a 200 is ErrUnavailable.
func Fetch(ctx context.Context, client *http.Client, origin, userAgent string) (*Policy, error) {
	robotsURL := strings.TrimRight(origin, "/") + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnavailable, robotsURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Parse(body)
}

// Allowed reports whether agent may fetch path (path plus optional query).
func (p *Policy) Allowed(path, agent string) (allowed bool) {
	if p == nil || p.data == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			allowed = true
		}
	}()
	if path == "" {
		path = "/"
	}
	if p.data.TestAgent(path, agent) {
		return true
	}
	// a group without any Disallow rule never denies
	return !p.hasDisallows(agent)
}

// CrawlDelay returns the Crawl-delay declared for agent, zero when absent.
func (p *Policy) CrawlDelay(agent string) time.Duration {
	if p == nil || p.data == nil {
		return 0
	}
	if g := p.data.FindGroup(agent); g != nil {
		return g.CrawlDelay
	}
	return 0
}

// Sitemaps returns the Sitemap: URLs listed in robots.txt.
func (p *Policy) Sitemaps() []string {
	if p == nil || p.data == nil {
		return nil
	}
	return p.data.Sitemaps
}

// hasDisallows picks the group the same way robotstxt.FindGroup does: the
// longest declared agent that prefixes the requesting agent, else "*".
func (p *Policy) hasDisallows(agent string) bool {
	agent = strings.ToLower(agent)
	best, bestLen := "*", 0
	for a := range p.disallowed {
		if a != "*" && strings.HasPrefix(agent, a) && len(a) > bestLen {
			best, bestLen = a, len(a)
		}
	}
	return p.disallowed[best] > 0
}

func countDisallows(body []byte) map[string]int {
	counts := make(map[string]int)
	var agents []string
	inRules := false
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "user-agent", "useragent":
			if inRules {
				agents = agents[:0]
				inRules = false
			}
			agent := strings.ToLower(value)
			agents = append(agents, agent)
			if _, ok := counts[agent]; !ok {
				counts[agent] = 0
			}
		case "disallow":
			inRules = true
			if value == "" {
				continue
			}
			for _, a := range agents {
				counts[a]++
			}
		default:
			if len(agents) > 0 {
				inRules = true
			}
		}
	}
	return counts
}
