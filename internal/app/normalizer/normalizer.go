package normalizer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrRejected marks a URL that must not be crawled. Wrapped errors carry the reason.
var ErrRejected = errors.New("url rejected")

type Normalizer struct {
	filterPrefix string
}

// New returns a Normalizer. A non-empty filterPrefix rejects every URL whose
// canonical form does not start with it.
func New(filterPrefix string) *Normalizer {
	return &Normalizer{filterPrefix: filterPrefix}
}

// Normalize resolves raw against base, strips the fragment and applies the filter prefix.
func (n *Normalizer) Normalize(raw, base string) (string, error) {
	canonical, err := Normalize(raw, base)
	if err != nil {
		return "", err
	}
	if n.filterPrefix != "" && !strings.HasPrefix(canonical, n.filterPrefix) {
		return "", fmt.Errorf("%w: %s does not match filter %s", ErrRejected, canonical, n.filterPrefix)
	}
	return canonical, nil
}

// Normalize resolves raw against base and strips the fragment. Only absolute
// http and https URLs with a host are accepted. Query strings are kept verbatim.
func Normalize(raw, base string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrRejected)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	b := &url.URL{}
	if base != "" {
		if b, err = url.Parse(base); err != nil {
			return "", fmt.Errorf("%w: bad base %q: %v", ErrRejected, base, err)
		}
	}
	// resolving against an empty base still removes dot segments
	ref = b.ResolveReference(ref)
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrRejected, ref.Scheme)
	}
	if ref.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrRejected)
	}
	ref.Fragment = ""
	ref.RawFragment = ""
	return ref.String(), nil
}

// Origin returns scheme://host[:port] of rawURL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %s has no origin", ErrRejected, rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
