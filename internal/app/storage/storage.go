// Package storage writes discovered URLs to txt, json, csv or markdown files.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
)

type Format string

const (
	FormatTXT      Format = "txt"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"

	FormatVersion  = "1.0"
	dateLayout     = "2006-01-02 15:04:05"
	stampLayout    = "20060102_150405"
	maxNameLength  = 50
	fallbackDomain = "crawl_results"
)

var ErrUnsupportedFormat = errors.New("unsupported output format")

// Formats lists every supported output format.
var Formats = []Format{FormatTXT, FormatJSON, FormatCSV, FormatMarkdown}

// now is replaced in tests.
var now = time.Now

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w %q (choose txt, json, csv or md)", ErrUnsupportedFormat, s)
}

// Metadata heads the json output.
type Metadata struct {
	CrawlDate     string `json:"crawl_date"`
	TotalURLs     int    `json:"total_urls"`
	FormatVersion string `json:"format_version"`
}

type document struct {
	Metadata Metadata `json:"metadata"`
	URLs     []string `json:"urls"`
}

// Save writes urls to path in format and returns the path written. An empty
// path becomes a generated file name in the working directory.
func Save(urls []string, baseURL string, format Format, path string) (string, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return "", err
	}
	if path == "" {
		path = Filename(baseURL, format, now())
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	if err := Write(f, urls, baseURL, format); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close output file: %w", err)
	}
	return path, nil
}

// Write encodes urls to w in format.
func Write(w io.Writer, urls []string, baseURL string, format Format) error {
	if urls == nil {
		urls = []string{}
	}
	switch format {
	case FormatTXT:
		_, err := io.WriteString(w, strings.Join(urls, "\n"))
		return err
	case FormatJSON:
		return writeJSON(w, urls)
	case FormatCSV:
		return writeCSV(w, urls)
	case FormatMarkdown:
		return writeMarkdown(w, urls, baseURL)
	}
	return fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
}

func writeJSON(w io.Writer, urls []string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(document{
		Metadata: Metadata{
			CrawlDate:     now().Format(dateLayout),
			TotalURLs:     len(urls),
			FormatVersion: FormatVersion,
		},
		URLs: urls,
	})
}

func writeCSV(w io.Writer, urls []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"URL", "Domain", "Path"}); err != nil {
		return err
	}
	for _, u := range urls {
		domain, path := split(u)
		if err := cw.Write([]string{u, domain, path}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeMarkdown(w io.Writer, urls []string, baseURL string) error {
	md := markdown.NewMarkdown(w)
	md.H1("Crawl Results")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Base URL", baseURL},
			{"Crawl Date", now().Format(dateLayout)},
			{"Total URLs", strconv.Itoa(len(urls))},
		},
	})
	md.PlainText("")

	if len(urls) == 0 {
		md.PlainText("No URLs found.")
		return md.Build()
	}
	rows := make([][]string, 0, len(urls))
	for _, u := range urls {
		domain, path := split(u)
		rows = append(rows, []string{u, domain, path})
	}
	md.H2("URLs")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Domain", "Path"},
		Rows:   rows,
	})
	return md.Build()
}

// split returns host and path of u, both empty when u does not parse.
func split(u string) (string, string) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", ""
	}
	return parsed.Host, parsed.Path
}

// Filename builds <domain>_<YYYYmmdd_HHMMSS>.<ext> for baseURL.
func Filename(baseURL string, format Format, t time.Time) string {
	domain := ""
	if u, err := url.Parse(baseURL); err == nil {
		domain = u.Host
	}
	if domain == "" {
		domain = fallbackDomain
	}
	return cleanName(domain) + "_" + t.Format(stampLayout) + "." + string(format)
}

func cleanName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*', '.':
			return '_'
		}
		return r
	}, name)
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' })
	name = strings.Join(parts, "_")
	if name == "" {
		return "unnamed"
	}
	return name
}
