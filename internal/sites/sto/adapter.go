// Package sto implements the sites.Adapter for s.to.
package sto

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fetcharr/fetcharr/internal/sites"
)

const defaultBaseURL = "https://s.to"

// seriesPath is the path segment between the base URL and the series slug.
const seriesPath = "serie"

var languageNames = map[string]string{
	"1": "German Dub",
	"2": "English Sub",
	"3": "German Sub",
}

var (
	seasonRe  = regexp.MustCompile(`/staffel-(\d+)$`)
	episodeRe = regexp.MustCompile(`/staffel-(\d+)/episode-(\d+)$`)
	yearRe    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// Adapter scrapes s.to.
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

// New creates an s.to adapter.
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
func (a *Adapter) ID() sites.ID { return sites.SiteSTO }

// Search scrapes the HTML search page. The site has no JSON search
// endpoint, so results come from the /serie/ links in the result list.
func (a *Adapter) Search(ctx context.Context, query string) ([]sites.SearchResult, error) {
	searchURL := fmt.Sprintf("%s/suche?term=%s", a.baseURL, url.QueryEscape(query))
	doc, err := sites.FetchDocument(ctx, a.client, searchURL)
	if err != nil {
		return nil, err
	}

	container := doc.Find("div.search-results-list")
	if container.Length() == 0 {
		container = doc.Selection
	}

	seen := make(map[string]struct{})
	var results []sites.SearchResult
	container.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		slug := slugFromHref(href)
		if slug == "" {
			return
		}
		if _, dup := seen[slug]; dup {
			return
		}
		seen[slug] = struct{}{}

		title := strings.TrimSpace(s.Find("h3, .series-name, strong").First().Text())
		if title == "" {
			title = strings.TrimSpace(s.Text())
		}
		if title == "" {
			return
		}
		cover, _ := s.Find("img").First().Attr("data-src")
		if cover == "" {
			cover, _ = s.Find("img").First().Attr("src")
		}
		desc := strings.TrimSpace(s.Find("p").First().Text())

		results = append(results, sites.SearchResult{
			Title:       title,
			URL:         fmt.Sprintf("%s/%s/%s", a.baseURL, seriesPath, slug),
			Slug:        slug,
			Cover:       a.absoluteURL(cover),
			Description: desc,
			Year:        yearRe.FindString(s.Text()),
			Site:        a.ID(),
		})
	})
	return results, nil
}

// ListEpisodes walks the series page and each season page.
func (a *Adapter) ListEpisodes(ctx context.Context, seriesURL string) (*sites.Listing, error) {
	slug, err := a.slugFromURL(seriesURL)
	if err != nil {
		return nil, err
	}
	seriesPage := fmt.Sprintf("%s/%s/%s", a.baseURL, seriesPath, slug)

	doc, err := sites.FetchDocument(ctx, a.client, seriesPage)
	if err != nil {
		return nil, err
	}

	listing := &sites.Listing{
		Slug:     slug,
		Title:    strings.TrimSpace(doc.Find(".series-title h1 span").First().Text()),
		Episodes: make(map[int][]sites.EpisodeRef),
	}
	if desc, ok := doc.Find("p.seri_des").Attr("data-full-description"); ok {
		listing.Description = strings.TrimSpace(desc)
	} else {
		listing.Description = strings.TrimSpace(doc.Find("p.seri_des").Text())
	}

	for _, season := range a.seasonNumbers(doc) {
		refs, err := a.seasonEpisodes(ctx, slug, season)
		if err != nil {
			continue
		}
		if len(refs) > 0 {
			listing.Episodes[season] = refs
		}
	}

	if len(listing.Episodes) == 0 {
		refs, err := a.seasonEpisodes(ctx, slug, 1)
		if err == nil && len(refs) > 0 {
			listing.Episodes[1] = refs
		}
	}

	listing.AvailableLanguages = a.availableLanguages(ctx, listing)
	return listing, nil
}

func (a *Adapter) seasonNumbers(doc *goquery.Document) []int {
	seen := make(map[int]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m := seasonRe.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				seen[n] = struct{}{}
			}
		}
	})
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (a *Adapter) seasonEpisodes(ctx context.Context, slug string, season int) ([]sites.EpisodeRef, error) {
	seasonURL := fmt.Sprintf("%s/%s/%s/staffel-%d", a.baseURL, seriesPath, slug, season)
	doc, err := sites.FetchDocument(ctx, a.client, seasonURL)
	if err != nil {
		return nil, err
	}

	titles := make(map[int]string)
	doc.Find("table.seasonEpisodesList tbody tr").Each(func(_ int, row *goquery.Selection) {
		href, _ := row.Find("a[href]").First().Attr("href")
		m := episodeRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		ep, _ := strconv.Atoi(m[2])
		if t := strings.TrimSpace(row.Find("strong").First().Text()); t != "" {
			titles[ep] = t
		}
	})

	episodes := make(map[int]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m := episodeRe.FindStringSubmatch(href); m != nil {
			if se, _ := strconv.Atoi(m[1]); se == season {
				if ep, err := strconv.Atoi(m[2]); err == nil {
					episodes[ep] = struct{}{}
				}
			}
		}
	})

	nums := make([]int, 0, len(episodes))
	for n := range episodes {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	refs := make([]sites.EpisodeRef, 0, len(nums))
	for _, ep := range nums {
		title := titles[ep]
		if title == "" {
			title = fmt.Sprintf("Episode %d", ep)
		}
		refs = append(refs, sites.EpisodeRef{
			Season:  season,
			Episode: ep,
			Title:   title,
			URL:     fmt.Sprintf("%s/%s/%s/staffel-%d/episode-%d", a.baseURL, seriesPath, slug, season, ep),
		})
	}
	return refs, nil
}

func (a *Adapter) availableLanguages(ctx context.Context, listing *sites.Listing) []string {
	var first string
	for _, season := range sortedSeasons(listing.Episodes) {
		if refs := listing.Episodes[season]; len(refs) > 0 {
			first = refs[0].URL
			break
		}
	}
	if first == "" {
		return nil
	}

	doc, err := sites.FetchDocument(ctx, a.client, first)
	if err != nil {
		return nil
	}

	var langs []string
	seen := make(map[string]struct{})
	doc.Find("div.changeLanguageBox img[data-lang-key], [data-lang-key]").Each(func(_ int, s *goquery.Selection) {
		key, _ := s.Attr("data-lang-key")
		name, ok := languageNames[key]
		if !ok {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		langs = append(langs, name)
	})
	return langs
}

// Streams lists the hoster embeds on an episode page.
func (a *Adapter) Streams(ctx context.Context, episodeURL string) ([]sites.Stream, error) {
	doc, err := sites.FetchDocument(ctx, a.client, episodeURL)
	if err != nil {
		return nil, err
	}

	var streams []sites.Stream
	doc.Find("li[data-lang-key]").Each(func(_ int, li *goquery.Selection) {
		langKey, _ := li.Attr("data-lang-key")
		language, ok := languageNames[langKey]
		if !ok {
			return
		}
		href, ok := li.Find("a.watchEpisode, a[href*='/redirect/']").First().Attr("href")
		if !ok {
			return
		}
		provider := strings.TrimSpace(li.Find("h4").First().Text())
		if provider == "" {
			provider = strings.TrimSpace(li.Find("a").First().Text())
		}
		if provider == "" {
			return
		}
		streams = append(streams, sites.Stream{
			Provider: provider,
			Language: language,
			EmbedURL: a.absoluteURL(href),
		})
	})

	if len(streams) == 0 {
		return nil, fmt.Errorf("no hoster entries on %s: %w", episodeURL, sites.ErrNoResults)
	}
	return streams, nil
}

// ResolveDirect validates a pasted series URL and fills a SearchResult
// from the series page.
func (a *Adapter) ResolveDirect(ctx context.Context, rawURL string) (*sites.SearchResult, error) {
	slug, err := a.slugFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	seriesURL := fmt.Sprintf("%s/%s/%s", a.baseURL, seriesPath, slug)

	doc, err := sites.FetchDocument(ctx, a.client, seriesURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find(".series-title h1 span").First().Text())
	if title == "" {
		title = slug
	}
	cover, _ := doc.Find(".seriesCoverBox img").First().Attr("data-src")
	if cover == "" {
		cover, _ = doc.Find(".seriesCoverBox img").First().Attr("src")
	}

	return &sites.SearchResult{
		Title: title,
		URL:   seriesURL,
		Slug:  slug,
		Cover: a.absoluteURL(cover),
		Site:  a.ID(),
	}, nil
}

// PopularNew scrapes the homepage carousels.
func (a *Adapter) PopularNew(ctx context.Context) (*sites.PopularNew, error) {
	doc, err := sites.FetchDocument(ctx, a.client, a.baseURL+"/")
	if err != nil {
		return nil, err
	}

	out := &sites.PopularNew{}
	doc.Find("div.carousel").Each(func(_ int, carousel *goquery.Selection) {
		heading := strings.ToLower(strings.TrimSpace(carousel.Find("h2").First().Text()))
		entries := a.carouselEntries(carousel)
		switch {
		case strings.Contains(heading, "beliebt") || strings.Contains(heading, "popular"):
			out.Popular = append(out.Popular, entries...)
		case strings.Contains(heading, "neu") || strings.Contains(heading, "new"):
			out.New = append(out.New, entries...)
		}
	})
	return out, nil
}

func (a *Adapter) carouselEntries(carousel *goquery.Selection) []sites.SearchResult {
	var entries []sites.SearchResult
	carousel.Find("div.coverListItem a, a[href*='/serie/']").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		slug := slugFromHref(href)
		if slug == "" {
			return
		}
		title := strings.TrimSpace(s.Find("h3").First().Text())
		if title == "" {
			title = strings.TrimSpace(s.Text())
		}
		if title == "" {
			return
		}
		cover, _ := s.Find("img").First().Attr("data-src")
		if cover == "" {
			cover, _ = s.Find("img").First().Attr("src")
		}
		entries = append(entries, sites.SearchResult{
			Title: title,
			URL:   fmt.Sprintf("%s/%s/%s", a.baseURL, seriesPath, slug),
			Slug:  slug,
			Cover: a.absoluteURL(cover),
			Site:  a.ID(),
		})
	})
	return entries
}

// slugFromHref extracts the series slug from a /serie/{slug} link and
// rejects deeper links like season or episode pages.
func slugFromHref(href string) string {
	marker := "/" + seriesPath + "/"
	idx := strings.Index(href, marker)
	if idx < 0 {
		return ""
	}
	rest := strings.Trim(href[idx+len(marker):], "/")
	if rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

func (a *Adapter) slugFromURL(rawURL string) (string, error) {
	marker := "/" + seriesPath + "/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return "", fmt.Errorf("not a series URL: %s: %w", rawURL, sites.ErrNoResults)
	}
	rest := strings.Trim(rawURL[idx+len(marker):], "/")
	slug := strings.SplitN(rest, "/", 2)[0]
	if slug == "" {
		return "", fmt.Errorf("not a series URL: %s: %w", rawURL, sites.ErrNoResults)
	}
	return slug, nil
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

func sortedSeasons(episodes map[int][]sites.EpisodeRef) []int {
	out := make([]int, 0, len(episodes))
	for season := range episodes {
		out = append(out, season)
	}
	sort.Ints(out)
	return out
}
