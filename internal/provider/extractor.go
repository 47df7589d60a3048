// Package provider resolves hoster embed pages into direct media URLs.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/fetcharr/fetcharr/internal/sites"
)

// Extractor turns a hoster embed URL into a direct media URL.
type Extractor interface {
	// Name returns the canonical provider name, e.g. "VOE".
	Name() string

	// Extract fetches the embed and returns the direct media URL.
	// referer is the episode page the embed was found on; some hosters
	// check it.
	Extract(ctx context.Context, client *http.Client, embedURL, referer string) (string, error)
}

// DefaultOrder is the provider fallback order used when the client
// expresses no preference.
var DefaultOrder = []string{
	"LoadX",
	"VOE",
	"Vidmoly",
	"Filemoon",
	"Luluvdo",
	"Doodstream",
	"Vidoza",
	"SpeedFiles",
	"Streamtape",
}

var (
	notFoundRe = regexp.MustCompile(`(?i)video not found|video was deleted|file was deleted|not found`)

	// mediaPatterns are tried in order against embed page HTML. The last
	// one is a loose fallback for hosters that inline the URL bare.
	mediaPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<source[^>]+src="(https?://[^"]+\.(?:mp4|mkv|webm|m3u8)[^"]*)"`),
		regexp.MustCompile(`(?i)file\s*:\s*["'](https?://[^"']+\.(?:mp4|mkv|webm|m3u8)[^"']*)["']`),
		regexp.MustCompile(`(?i)"url"\s*:\s*"(https?://[^"]+\.(?:mp4|mkv|webm|m3u8)[^"]*)"`),
		regexp.MustCompile(`(?i)(https?://[^\s"'\\]+\.(?:mp4|mkv|webm|m3u8)[^\s"'\\]*)`),
	}
)

func fetchBody(ctx context.Context, client *http.Client, rawURL, referer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", sites.UserAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return "", fmt.Errorf("get %s: status %d: %w", rawURL, resp.StatusCode, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return string(body), nil
}

// findMediaURL scans HTML for a direct media URL using the shared
// pattern list. Escaped slashes from JSON-embedded URLs are unescaped.
func findMediaURL(html string) (string, bool) {
	for _, pat := range mediaPatterns {
		if m := pat.FindStringSubmatch(html); m != nil {
			return strings.ReplaceAll(m[1], `\/`, `/`), true
		}
	}
	return "", false
}

// patternExtractor covers the hosters whose embed pages carry the media
// URL in plain or lightly obfuscated page source.
type patternExtractor struct {
	name string
}

func (e *patternExtractor) Name() string { return e.name }

func (e *patternExtractor) Extract(ctx context.Context, client *http.Client, embedURL, referer string) (string, error) {
	html, err := fetchBody(ctx, client, embedURL, referer)
	if err != nil {
		return "", err
	}
	if notFoundRe.MatchString(html) {
		return "", fmt.Errorf("%s: %w", embedURL, ErrNotFound)
	}
	if direct, ok := findMediaURL(html); ok {
		return direct, nil
	}
	if direct, ok := findBase64MediaURL(html); ok {
		return direct, nil
	}
	return "", fmt.Errorf("%s: %w", embedURL, ErrNoDirectLink)
}

var base64CandidateRe = regexp.MustCompile(`["']([A-Za-z0-9+/=]{40,})["']`)

// findBase64MediaURL decodes quoted base64 blobs and checks whether any
// of them is itself a media URL. Several hosters hide the source this way.
func findBase64MediaURL(html string) (string, bool) {
	for _, m := range base64CandidateRe.FindAllStringSubmatch(html, 10) {
		decoded, err := base64.StdEncoding.DecodeString(m[1])
		if err != nil {
			continue
		}
		if direct, ok := findMediaURL(string(decoded)); ok {
			return direct, true
		}
	}
	return "", false
}

// streamtapeExtractor follows the embed page and, when the page itself
// carries no media URL, the API endpoint it references.
type streamtapeExtractor struct{}

var streamtapeAPIRe = regexp.MustCompile(`"(https?://(?:www\.)?streamtape\.com/api/[^"']+)"`)

func (*streamtapeExtractor) Name() string { return "Streamtape" }

func (e *streamtapeExtractor) Extract(ctx context.Context, client *http.Client, embedURL, referer string) (string, error) {
	html, err := fetchBody(ctx, client, embedURL, referer)
	if err != nil {
		return "", err
	}
	if notFoundRe.MatchString(html) {
		return "", fmt.Errorf("%s: %w", embedURL, ErrNotFound)
	}
	if direct, ok := findMediaURL(html); ok {
		return direct, nil
	}

	if m := streamtapeAPIRe.FindStringSubmatch(html); m != nil {
		apiBody, err := fetchBody(ctx, client, m[1], referer)
		if err != nil {
			return "", err
		}
		if direct, ok := findMediaURL(apiBody); ok {
			return direct, nil
		}
	}
	return "", fmt.Errorf("%s: %w", embedURL, ErrNoDirectLink)
}

// voeExtractor handles VOE's domain-hopping redirect before scanning the
// final page, whose source list is base64 encoded.
type voeExtractor struct{}

var voeRedirectRe = regexp.MustCompile(`window\.location\.href\s*=\s*["'](https?://[^"']+)["']`)

func (*voeExtractor) Name() string { return "VOE" }

func (e *voeExtractor) Extract(ctx context.Context, client *http.Client, embedURL, referer string) (string, error) {
	html, err := fetchBody(ctx, client, embedURL, referer)
	if err != nil {
		return "", err
	}

	// The published domain usually bounces to a rotating mirror.
	if m := voeRedirectRe.FindStringSubmatch(html); m != nil {
		html, err = fetchBody(ctx, client, m[1], embedURL)
		if err != nil {
			return "", err
		}
	}
	if notFoundRe.MatchString(html) {
		return "", fmt.Errorf("%s: %w", embedURL, ErrNotFound)
	}
	if direct, ok := findMediaURL(html); ok {
		return direct, nil
	}
	if direct, ok := findBase64MediaURL(html); ok {
		return direct, nil
	}
	return "", fmt.Errorf("%s: %w", embedURL, ErrNoDirectLink)
}

// doodstreamExtractor resolves the pass_md5 token dance. The download
// URL is the pass_md5 response body plus a random suffix and token.
type doodstreamExtractor struct{}

var (
	doodPassRe  = regexp.MustCompile(`\$\.get\(['"](/pass_md5/[^'"]+)['"]`)
	doodTokenRe = regexp.MustCompile(`token=([a-zA-Z0-9]+)`)
)

const doodSuffixChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (*doodstreamExtractor) Name() string { return "Doodstream" }

func (e *doodstreamExtractor) Extract(ctx context.Context, client *http.Client, embedURL, referer string) (string, error) {
	html, err := fetchBody(ctx, client, embedURL, referer)
	if err != nil {
		return "", err
	}
	if notFoundRe.MatchString(html) {
		return "", fmt.Errorf("%s: %w", embedURL, ErrNotFound)
	}

	passMatch := doodPassRe.FindStringSubmatch(html)
	if passMatch == nil {
		// Some mirrors inline the URL directly.
		if direct, ok := findMediaURL(html); ok {
			return direct, nil
		}
		return "", fmt.Errorf("%s: %w", embedURL, ErrNoDirectLink)
	}

	base, err := baseOf(embedURL)
	if err != nil {
		return "", err
	}
	passBody, err := fetchBody(ctx, client, base+passMatch[1], embedURL)
	if err != nil {
		return "", err
	}

	token := ""
	if m := doodTokenRe.FindStringSubmatch(html); m != nil {
		token = m[1]
	}

	suffix := make([]byte, 10)
	for i := range suffix {
		suffix[i] = doodSuffixChars[rand.Intn(len(doodSuffixChars))]
	}

	return fmt.Sprintf("%s%s?token=%s&expiry=%d",
		strings.TrimSpace(passBody), suffix, token, time.Now().UnixMilli()), nil
}

func baseOf(rawURL string) (string, error) {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return "", fmt.Errorf("bad embed URL %q", rawURL)
	}
	rest := rawURL[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rawURL[:idx+3] + rest, nil
}

// defaultExtractors builds the registry covering every provider in
// DefaultOrder.
func defaultExtractors() map[string]Extractor {
	extractors := map[string]Extractor{
		"VOE":        &voeExtractor{},
		"Doodstream": &doodstreamExtractor{},
		"Streamtape": &streamtapeExtractor{},
	}
	for _, name := range []string{"LoadX", "Vidmoly", "Filemoon", "Luluvdo", "Vidoza", "SpeedFiles"} {
		extractors[name] = &patternExtractor{name: name}
	}
	return extractors
}
