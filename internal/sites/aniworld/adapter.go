// Package aniworld implements the sites.Adapter for aniworld.to.
package aniworld

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
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fetcharr/fetcharr/internal/sites"
)

const defaultBaseURL = "https://aniworld.to"

// streamPath is the path segment between the base URL and the series slug.
const streamPath = "anime/stream"

// languageNames maps the site's data-lang-key values to display names.
var languageNames = map[string]string{
	"1": "German Dub",
	"2": "English Sub",
	"3": "German Sub",
}

var (
	seasonRe  = regexp.MustCompile(`/staffel-(\d+)$`)
	episodeRe = regexp.MustCompile(`/staffel-(\d+)/episode-(\d+)$`)
	filmRe    = regexp.MustCompile(`/filme/film-(\d+)$`)
)

// Adapter scrapes aniworld.to.
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

// New creates an aniworld.to adapter.
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
func (a *Adapter) ID() sites.ID { return sites.SiteAniworld }

// searchEntry is one row of the ajax search endpoint's JSON response.
type searchEntry struct {
	Name           string `json:"name"`
	Link           string `json:"link"`
	Description    string `json:"description"`
	ProductionYear string `json:"productionYear"`
	Cover          string `json:"cover"`
}

// Search queries the site's ajax series search.
func (a *Adapter) Search(ctx context.Context, query string) ([]sites.SearchResult, error) {
	searchURL := fmt.Sprintf("%s/ajax/seriesSearch?keyword=%s", a.baseURL, url.QueryEscape(query))

	var entries []searchEntry
	if err := sites.FetchJSON(ctx, a.client, searchURL, &entries); err != nil {
		return nil, err
	}

	results := make([]sites.SearchResult, 0, len(entries))
	for _, e := range entries {
		if e.Link == "" {
			continue
		}
		results = append(results, sites.SearchResult{
			Title:       displayTitle(e.Name, e.ProductionYear),
			URL:         fmt.Sprintf("%s/%s/%s", a.baseURL, streamPath, e.Link),
			Slug:        e.Link,
			Cover:       a.absoluteURL(e.Cover),
			Description: e.Description,
			Year:        e.ProductionYear,
			Site:        a.ID(),
		})
	}
	return results, nil
}

// ListEpisodes walks the series page and each season page to build the
// episode tree. Episode pages themselves are not fetched here; the stream
// listing is resolved lazily per episode when a download starts.
func (a *Adapter) ListEpisodes(ctx context.Context, seriesURL string) (*sites.Listing, error) {
	slug, err := a.slugFromURL(seriesURL)
	if err != nil {
		return nil, err
	}
	seriesPage := fmt.Sprintf("%s/%s/%s", a.baseURL, streamPath, slug)

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

	seasons := a.seasonNumbers(doc)
	for _, season := range seasons {
		refs, err := a.seasonEpisodes(ctx, slug, season)
		if err != nil {
			// A single broken season page should not sink the listing.
			continue
		}
		if len(refs) > 0 {
			listing.Episodes[season] = refs
		}
	}

	// Movies live under /filme on the same series.
	listing.Movies = a.movies(ctx, doc, slug)

	// Fallback for single-season shows whose page carries no season tabs.
	if len(listing.Episodes) == 0 && len(listing.Movies) == 0 {
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
	seasonURL := fmt.Sprintf("%s/%s/%s/staffel-%d", a.baseURL, streamPath, slug, season)
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
		ger := strings.TrimSpace(row.Find("strong.episode-title-ger, strong").First().Text())
		if ger != "" {
			titles[ep] = ger
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
			URL:     fmt.Sprintf("%s/%s/%s/staffel-%d/episode-%d", a.baseURL, streamPath, slug, season, ep),
		})
	}
	return refs, nil
}

func (a *Adapter) movies(ctx context.Context, seriesDoc *goquery.Document, slug string) []sites.MovieRef {
	hasFilms := false
	seriesDoc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.Contains(href, "/filme") {
			hasFilms = true
			return false
		}
		return true
	})
	if !hasFilms {
		return nil
	}

	filmURL := fmt.Sprintf("%s/%s/%s/filme", a.baseURL, streamPath, slug)
	doc, err := sites.FetchDocument(ctx, a.client, filmURL)
	if err != nil {
		return nil
	}

	seen := make(map[int]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m := filmRe.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				seen[n] = struct{}{}
			}
		}
	})

	nums := make([]int, 0, len(seen))
	for n := range seen {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	movies := make([]sites.MovieRef, 0, len(nums))
	for _, n := range nums {
		movies = append(movies, sites.MovieRef{
			Movie: n,
			Title: fmt.Sprintf("Movie %d", n),
			URL:   fmt.Sprintf("%s/%s/%s/filme/film-%d", a.baseURL, streamPath, slug, n),
		})
	}
	return movies
}

// availableLanguages probes the first episode's page for the language
// switcher. The result restricts what the client may request for this series.
func (a *Adapter) availableLanguages(ctx context.Context, listing *sites.Listing) []string {
	var first string
	for _, season := range sortedSeasons(listing.Episodes) {
		if refs := listing.Episodes[season]; len(refs) > 0 {
			first = refs[0].URL
			break
		}
	}
	if first == "" && len(listing.Movies) > 0 {
		first = listing.Movies[0].URL
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

// Streams lists the hoster embeds on an episode page. Each embed is a
// site-local redirect link; the provider extractor follows it.
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
	seriesURL := fmt.Sprintf("%s/%s/%s", a.baseURL, streamPath, slug)

	doc, err := sites.FetchDocument(ctx, a.client, seriesURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find(".series-title h1 span").First().Text())
	if title == "" {
		title = cases.Title(language.English).String(strings.ReplaceAll(slug, "-", " "))
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
	carousel.Find("div.coverListItem a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !strings.Contains(href, "/"+streamPath+"/") {
			return
		}
		slug := strings.TrimSuffix(href[strings.LastIndex(href, "/")+1:], "/")
		title := strings.TrimSpace(s.Find("h3").First().Text())
		if title == "" {
			title = strings.TrimSpace(s.Text())
		}
		cover, _ := s.Find("img").First().Attr("data-src")
		if cover == "" {
			cover, _ = s.Find("img").First().Attr("src")
		}
		entries = append(entries, sites.SearchResult{
			Title: title,
			URL:   a.absoluteURL(href),
			Slug:  slug,
			Cover: a.absoluteURL(cover),
			Site:  a.ID(),
		})
	})
	return entries
}

func (a *Adapter) slugFromURL(rawURL string) (string, error) {
	marker := "/" + streamPath + "/"
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

func displayTitle(name, year string) string {
	if year != "" && !strings.Contains(name, year) {
		return name + " " + year
	}
	return name
}

func sortedSeasons(episodes map[int][]sites.EpisodeRef) []int {
	out := make([]int, 0, len(episodes))
	for season := range episodes {
		out = append(out, season)
	}
	sort.Ints(out)
	return out
}
