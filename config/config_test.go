package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid() *Config {
	c := NewConfig()
	c.URL = "https://example.com"
	return c
}

func TestNewConfig(t *testing.T) {
	c := NewConfig()
	assert.Equal(t, ModeAuto, c.Mode)
	assert.Equal(t, 3, c.MaxDepth)
	assert.Equal(t, 1.0, c.Delay)
	assert.Equal(t, 1000, c.MaxURLs)
	assert.Equal(t, "txt", c.Format)
	assert.Equal(t, 10, c.ReqTimeout)
	assert.Equal(t, 5, c.RobotsTimeout)
	assert.Equal(t, "crawl-url/1.0 (Compatible Web Crawler)", c.UserAgent)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
		kind   ErrorKind
	}{
		{"missing url", func(c *Config) { c.URL = "" }, "url", KindMissing},
		{"bad scheme", func(c *Config) { c.URL = "ftp://example.com" }, "url", KindInvalidURL},
		{"no host", func(c *Config) { c.URL = "https://" }, "url", KindInvalidURL},
		{"local path in crawl mode", func(c *Config) { c.URL = "sitemap.xml"; c.Mode = ModeCrawl }, "url", KindInvalidURL},
		{"bad mode", func(c *Config) { c.Mode = "turbo" }, "mode", KindInvalidChoice},
		{"depth zero", func(c *Config) { c.MaxDepth = 0 }, "max_depth", KindOutOfRange},
		{"depth eleven", func(c *Config) { c.MaxDepth = 11 }, "max_depth", KindOutOfRange},
		{"negative delay", func(c *Config) { c.Delay = -0.5 }, "delay", KindOutOfRange},
		{"zero urls", func(c *Config) { c.MaxURLs = 0 }, "max_urls", KindOutOfRange},
		{"too many urls", func(c *Config) { c.MaxURLs = 10001 }, "max_urls", KindOutOfRange},
		{"bad format", func(c *Config) { c.Format = "xml" }, "format", KindInvalidChoice},
		{"negative timeout", func(c *Config) { c.ReqTimeout = -1 }, "req_timeout", KindOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, tt.kind, ve.Kind)
			assert.NotEmpty(t, ve.Allowed)
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	c := valid()
	assert.NoError(t, c.Validate())

	c.MaxDepth, c.MaxURLs, c.Delay = 10, 10000, 0
	assert.NoError(t, c.Validate())

	c.MaxDepth, c.MaxURLs = 1, 1
	assert.NoError(t, c.Validate())

	local := valid()
	local.URL = "./maps/sitemap.xml.gz"
	assert.NoError(t, local.Validate(), "local sitemap file in auto mode")
}

func TestJob(t *testing.T) {
	c := valid()
	c.Delay = 0.5
	c.Filter = "https://example.com/docs"
	job, err := c.Job()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", job.StartURL)
	assert.Equal(t, 3, job.MaxDepth)
	assert.Equal(t, 500*time.Millisecond, job.Delay)
	assert.Equal(t, 1000, job.MaxURLs)
	assert.Equal(t, "https://example.com/docs", job.FilterPrefix)

	c.MaxDepth = 42
	_, err = c.Job()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestUseSitemap(t *testing.T) {
	c := valid()
	assert.False(t, c.UseSitemap())

	c.URL = "https://example.com/sitemap.xml"
	assert.True(t, c.UseSitemap())
	c.URL = "https://example.com/sitemap.XML.gz"
	assert.True(t, c.UseSitemap())
	c.URL = "https://example.com/sitemap.xml?page=2"
	assert.True(t, c.UseSitemap())

	c.Mode = ModeCrawl
	assert.False(t, c.UseSitemap())

	c.URL = "https://example.com"
	c.Mode = ModeSitemap
	assert.True(t, c.UseSitemap())
}

func TestLoadFileTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl-url.toml")
	data := `
url = "https://example.com"
mode = "crawl"
max_depth = 2
delay = 0.25
filter = "https://example.com/blog"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", c.URL)
	assert.Equal(t, ModeCrawl, c.Mode)
	assert.Equal(t, 2, c.MaxDepth)
	assert.Equal(t, 0.25, c.Delay)
	assert.Equal(t, "json", c.Format)
	assert.Equal(t, 1000, c.MaxURLs, "unset keys keep defaults")
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl-url.yaml")
	data := "url: https://example.com\nmax_urls: 50\nverbose: true\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50, c.MaxURLs)
	assert.True(t, c.Verbose)
	assert.Equal(t, 3, c.MaxDepth)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFile(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("max_depth = ["), 0o644))
	_, err = LoadFile(bad)
	assert.Error(t, err)

	ini := filepath.Join(dir, "crawl.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o644))
	_, err = LoadFile(ini)
	assert.Error(t, err)
}

func TestFindFile(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(explicit, []byte(""), 0o644))

	assert.Equal(t, explicit, FindFile(explicit))
	assert.Empty(t, FindFile(filepath.Join(dir, "nope.toml")))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	require.NoError(t, os.WriteFile("crawl-url.yaml", []byte(""), 0o644))
	assert.Equal(t, "crawl-url.yaml", FindFile(""))
}
