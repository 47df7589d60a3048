// Package movie4k implements the sites.Adapter for movie4k.sx.
//
// Unlike the series sites, movie4k exposes a JSON API for metadata,
// streams and languages. Only the keyword search falls back to HTML.
package movie4k

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fetcharr/fetcharr/internal/sites"
)

const defaultBaseURL = "https://movie4k.sx"

// languageNames maps the API's lang codes to display names.
var languageNames = map[int]string{
	2: "Deutsch",
	3: "English",
}

// providerPatterns maps hoster URL substrings to canonical provider names.
var providerPatterns = []struct {
	substr   string
	provider string
}{
	{"streamtape", "Streamtape"},
	{"filemoon", "Filemoon"},
	{"doodstream", "Doodstream"},
	{"dood", "Doodstream"},
	{"vidoza", "Vidoza"},
	{"voe", "VOE"},
}

var (
	watchRe = regexp.MustCompile(`/watch/([^/]+)/([a-f0-9]+)`)
	slugRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// Adapter talks to movie4k.sx.
type Adapter struct {
	client  *http.Client
	baseURL string
}

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL overrides the site base URL, used by tests to point the
// adapter at a local server.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// New creates a movie4k.sx adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID implements sites.Adapter.
func (a *Adapter) ID() sites.ID { return sites.SiteMovie4k }

// watchData is the /data/watch/ API response, reduced to the fields we use.
type watchData struct {
	Title     string        `json:"title"`
	Year      int           `json:"year"`
	Storyline string        `json:"storyline"`
	Overview  string        `json:"overview"`
	Streams   []streamEntry `json:"streams"`
}

type streamEntry struct {
	Stream string `json:"stream"`
	Lang   int    `json:"lang"`
}

type langEntry struct {
	Lang int `json:"lang"`
}

type browseData struct {
	Movies []browseMovie `json:"movies"`
}

type browseMovie struct {
	ID         string `json:"_id"`
	Title      string `json:"title"`
	Year       int    `json:"year"`
	PosterPath string `json:"poster_path"`
}

// Search scrapes the HTML browse page. The JSON search endpoint is
// disabled on the site, so /watch/{slug}/{id} links are the source.
func (a *Adapter) Search(ctx context.Context, query string) ([]sites.SearchResult, error) {
	searchURL := fmt.Sprintf("%s/browse?keyword=%s&type=movies", a.baseURL, url.QueryEscape(query))
	doc, err := sites.FetchDocument(ctx, a.client, searchURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var results []sites.SearchResult
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := watchRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		slug, movieID := m[1], m[2]
		if _, dup := seen[slug]; dup {
			return
		}
		seen[slug] = struct{}{}

		parent := s.Closest("div, article, li")
		title := strings.TrimSpace(parent.Find("h1, h2, h3, h4").First().Text())
		if title == "" {
			title, _ = s.Attr("title")
		}
		if title == "" {
			title = strings.TrimSpace(s.Text())
		}
		if title == "" {
			title = strings.ReplaceAll(slug, "-", " ")
		}
		cover, _ := parent.Find("img").First().Attr("data-src")
		if cover == "" {
			cover, _ = parent.Find("img").First().Attr("src")
		}

		results = append(results, sites.SearchResult{
			Title:       title,
			URL:         fmt.Sprintf("%s/watch/%s/%s", a.baseURL, slug, movieID),
			Slug:        slug,
			Cover:       a.absoluteURL(cover),
			Description: strings.TrimSpace(parent.Find("p").First().Text()),
			Site:        a.ID(),
			IsMovie:     true,
		})
	})
	return results, nil
}

// ListEpisodes returns a single-movie listing. Movies are modeled as
// one entry in the Movies slice so the queue can treat them like a
// one-episode group.
func (a *Adapter) ListEpisodes(ctx context.Context, movieURL string) (*sites.Listing, error) {
	slug, movieID, err := parseWatchURL(movieURL)
	if err != nil {
		return nil, err
	}

	var data watchData
	apiURL := fmt.Sprintf("%s/data/watch/?_id=%s", a.baseURL, movieID)
	if err := sites.FetchJSON(ctx, a.client, apiURL, &data); err != nil {
		return nil, err
	}

	title := data.Title
	if title == "" {
		title = strings.ReplaceAll(slug, "-", " ")
	}
	desc := data.Storyline
	if desc == "" {
		desc = data.Overview
	}

	return &sites.Listing{
		Title:       title,
		Slug:        slug,
		Description: desc,
		Episodes:    map[int][]sites.EpisodeRef{},
		Movies: []sites.MovieRef{{
			Movie: 1,
			Title: title,
			URL:   fmt.Sprintf("%s/watch/%s/%s", a.baseURL, slug, movieID),
		}},
		AvailableLanguages: a.langList(ctx, movieID),
	}, nil
}

func (a *Adapter) langList(ctx context.Context, movieID string) []string {
	var entries []langEntry
	apiURL := fmt.Sprintf("%s/data/langList/?_id=%s", a.baseURL, movieID)
	if err := sites.FetchJSON(ctx, a.client, apiURL, &entries); err != nil {
		return nil
	}

	var langs []string
	seen := make(map[string]struct{})
	for _, e := range entries {
		name, ok := languageNames[e.Lang]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		langs = append(langs, name)
	}
	return langs
}

// Streams maps the API's stream list to provider embeds. Providers are
// recognized by URL substring; unrecognized hosters are dropped.
func (a *Adapter) Streams(ctx context.Context, movieURL string) ([]sites.Stream, error) {
	_, movieID, err := parseWatchURL(movieURL)
	if err != nil {
		return nil, err
	}

	var data watchData
	apiURL := fmt.Sprintf("%s/data/watch/?_id=%s", a.baseURL, movieID)
	if err := sites.FetchJSON(ctx, a.client, apiURL, &data); err != nil {
		return nil, err
	}

	var streams []sites.Stream
	for _, entry := range data.Streams {
		if entry.Stream == "" {
			continue
		}
		provider := providerFromURL(entry.Stream)
		if provider == "" {
			continue
		}
		language := languageNames[entry.Lang]
		if language == "" {
			language = "Deutsch"
		}
		streams = append(streams, sites.Stream{
			Provider: provider,
			Language: language,
			EmbedURL: entry.Stream,
		})
	}

	if len(streams) == 0 {
		return nil, fmt.Errorf("no supported hoster for %s: %w", movieURL, sites.ErrNoResults)
	}
	return streams, nil
}

// ResolveDirect validates a pasted watch URL against the API.
func (a *Adapter) ResolveDirect(ctx context.Context, rawURL string) (*sites.SearchResult, error) {
	slug, movieID, err := parseWatchURL(rawURL)
	if err != nil {
		return nil, err
	}

	var data watchData
	apiURL := fmt.Sprintf("%s/data/watch/?_id=%s", a.baseURL, movieID)
	if err := sites.FetchJSON(ctx, a.client, apiURL, &data); err != nil {
		return nil, err
	}

	title := data.Title
	if title == "" {
		title = strings.ReplaceAll(slug, "-", " ")
	}
	year := ""
	if data.Year > 0 {
		year = fmt.Sprintf("%d", data.Year)
	}

	return &sites.SearchResult{
		Title:   title,
		URL:     fmt.Sprintf("%s/watch/%s/%s", a.baseURL, slug, movieID),
		Slug:    slug,
		Year:    year,
		Site:    a.ID(),
		IsMovie: true,
	}, nil
}

// PopularNew queries the browse API once per ordering.
func (a *Adapter) PopularNew(ctx context.Context) (*sites.PopularNew, error) {
	out := &sites.PopularNew{}
	queries := []struct {
		orderBy string
		dest    *[]sites.SearchResult
	}{
		{"Trending", &out.Popular},
		{"Neu", &out.New},
	}

	for _, q := range queries {
		apiURL := fmt.Sprintf(
			"%s/data/browse/?lang=2&keyword=&year=&networks=&rating=&votes=&genre=&country=&cast=&directors=&type=movies&order_by=%s&page=1&limit=20",
			a.baseURL, q.orderBy,
		)
		var data browseData
		if err := sites.FetchJSON(ctx, a.client, apiURL, &data); err != nil {
			continue
		}
		for _, m := range data.Movies {
			if m.Title == "" || m.ID == "" {
				continue
			}
			cover := ""
			if m.PosterPath != "" {
				cover = "https://image.tmdb.org/t/p/w92" + m.PosterPath
			}
			*q.dest = append(*q.dest, sites.SearchResult{
				Title:   m.Title,
				URL:     fmt.Sprintf("%s/watch/%s/%s", a.baseURL, titleToSlug(m.Title), m.ID),
				Slug:    titleToSlug(m.Title),
				Cover:   cover,
				Site:    a.ID(),
				IsMovie: true,
			})
		}
	}
	return out, nil
}

func parseWatchURL(rawURL string) (slug, movieID string, err error) {
	m := watchRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", "", fmt.Errorf("not a watch URL: %s: %w", rawURL, sites.ErrNoResults)
	}
	return m[1], m[2], nil
}

func providerFromURL(streamURL string) string {
	lower := strings.ToLower(streamURL)
	for _, p := range providerPatterns {
		if strings.Contains(lower, p.substr) {
			return p.provider
		}
	}
	return ""
}

func titleToSlug(title string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

func (a *Adapter) absoluteURL(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		return a.baseURL + ref
	}
	return a.baseURL + "/" + ref
}
