package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const agent = "crawl-url/1.0 (Compatible Web Crawler)"

func robotsServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestCanFetchUnreachableRobots(t *testing.T) {
	ctx := context.Background()
	l := zap.NewExample()

	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusForbidden} {
		s := robotsServer(t, status, "User-agent: *\nDisallow: /", nil)
		c := NewChecker(s.Client(), agent, time.Second, l)
		assert.True(t, c.CanFetch(ctx, s.URL+"/anything"), "status %d", status)
		assert.True(t, c.CanFetch(ctx, s.URL+"/"), "status %d", status)
	}

	// connection refused
	s := httptest.NewServer(http.NotFoundHandler())
	addr := s.URL
	s.Close()
	c := NewChecker(http.DefaultClient, agent, time.Second, l)
	assert.True(t, c.CanFetch(ctx, addr+"/page"))
}

func TestCanFetchRobotsTimeout(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		fmt.Fprint(w, "User-agent: *\nDisallow: /")
	}))
	defer s.Close()

	c := NewChecker(s.Client(), agent, 50*time.Millisecond, zap.NewExample())
	start := time.Now()
	assert.True(t, c.CanFetch(context.Background(), s.URL+"/private"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCanFetchRules(t *testing.T) {
	body := "User-agent: *\nDisallow: /private\nDisallow: /tmp/\n"
	s := robotsServer(t, http.StatusOK, body, nil)
	c := NewChecker(s.Client(), agent, time.Second, zap.NewExample())
	ctx := context.Background()

	assert.False(t, c.CanFetch(ctx, s.URL+"/private"))
	assert.False(t, c.CanFetch(ctx, s.URL+"/private/page?x=1"))
	assert.False(t, c.CanFetch(ctx, s.URL+"/tmp/file"))
	assert.True(t, c.CanFetch(ctx, s.URL+"/public"))
	assert.True(t, c.CanFetch(ctx, s.URL))
}

func TestCanFetchAgentSpecificGroup(t *testing.T) {
	body := "User-agent: crawl-url\nDisallow: /\n\nUser-agent: *\nDisallow:\n"
	s := robotsServer(t, http.StatusOK, body, nil)
	c := NewChecker(s.Client(), agent, time.Second, zap.NewExample())
	ctx := context.Background()

	assert.False(t, c.CanFetch(ctx, s.URL+"/page"))
	assert.True(t, c.CanFetchAs(ctx, s.URL+"/page", "otherbot/2.0"))
}

func TestCanFetchWithoutDisallowRules(t *testing.T) {
	ctx := context.Background()
	for _, body := range []string{
		"User-agent: *\n",
		"User-agent: *\nDisallow:\n",
		"User-agent: *\nAllow: /public\n",
		"# nothing here\n",
		"",
	} {
		s := robotsServer(t, http.StatusOK, body, nil)
		c := NewChecker(s.Client(), agent, time.Second, zap.NewExample())
		assert.True(t, c.CanFetch(ctx, s.URL+"/any/path"), "body %q", body)
		assert.True(t, c.CanFetchAs(ctx, s.URL+"/private", "*"), "body %q", body)
	}
}

func TestPolicyGuardsParserDefaultDeny(t *testing.T) {
	// parsed data that denies everything while the body declares no Disallow rules
	p, err := Parse([]byte("User-agent: *\nDisallow: /\n"))
	require.NoError(t, err)
	require.False(t, p.Allowed("/page", agent))

	p.disallowed = map[string]int{"*": 0}
	assert.True(t, p.Allowed("/page", agent))
}

func TestPolicyNilAllowsAll(t *testing.T) {
	var p *Policy
	assert.True(t, p.Allowed("/x", agent))
	assert.True(t, AllowAll().Allowed("/x", agent))
	assert.Zero(t, AllowAll().CrawlDelay(agent))
	assert.Empty(t, AllowAll().Sitemaps())
}

func TestRobotsFetchedOncePerOrigin(t *testing.T) {
	var hits int32
	s := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /admin\n", &hits)
	c := NewChecker(s.Client(), agent, time.Second, zap.NewExample())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.CanFetch(ctx, fmt.Sprintf("%s/page/%d", s.URL, i))
		}(i)
	}
	wg.Wait()
	assert.False(t, c.CanFetch(ctx, s.URL+"/admin"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCrawlDelayAndSitemaps(t *testing.T) {
	body := "User-agent: *\nCrawl-delay: 2\nDisallow: /x\n\nSitemap: https://example.com/sitemap.xml\n"
	p, err := Parse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, p.CrawlDelay(agent))
	assert.Equal(t, []string{"https://example.com/sitemap.xml"}, p.Sitemaps())

	s := robotsServer(t, http.StatusOK, body, nil)
	c := NewChecker(s.Client(), agent, time.Second, zap.NewExample())
	assert.Equal(t, 2*time.Second, c.CrawlDelay(context.Background(), s.URL))
}

func TestCanFetchMalformedURL(t *testing.T) {
	c := NewChecker(http.DefaultClient, agent, time.Second, zap.NewExample())
	assert.True(t, c.CanFetch(context.Background(), "://bad"))
	assert.True(t, c.CanFetch(context.Background(), "/relative"))
}
