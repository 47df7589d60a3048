// Package sites defines the adapter contract for content catalogs and the
// normalized shapes they produce.
package sites

import (
	"context"
)

// ID identifies a supported content site.
type ID string

const (
	SiteAniworld ID = "aniworld.to"
	SiteSTO      ID = "s.to"
	SiteMovie4k  ID = "movie4k.sx"
)

// SearchResult is one catalog entry returned by a search or popular/new scan.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Slug        string `json:"slug"`
	Cover       string `json:"cover"`
	Description string `json:"description,omitempty"`
	Year        string `json:"year,omitempty"`
	Site        ID     `json:"site"`
	IsMovie     bool   `json:"is_movie"`
}

// EpisodeRef describes one downloadable episode within a series.
// Local is filled in by the library cross-reference, not by the adapters.
type EpisodeRef struct {
	Season    int    `json:"season"`
	Episode   int    `json:"episode"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Local     bool   `json:"local"`
	LocalPath string `json:"local_path,omitempty"`
	Watched   bool   `json:"watched"`
}

// MovieRef describes one downloadable movie entry. Movies are keyed by
// their ordinal within the series, not by (season, episode).
type MovieRef struct {
	Movie     int    `json:"movie"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Local     bool   `json:"local"`
	LocalPath string `json:"local_path,omitempty"`
	Watched   bool   `json:"watched"`
}

// Listing is the structured episode tree for one series.
type Listing struct {
	Title              string               `json:"title"`
	Slug               string               `json:"slug"`
	Episodes           map[int][]EpisodeRef `json:"episodes"`
	Movies             []MovieRef           `json:"movies"`
	Description        string               `json:"description"`
	AvailableLanguages []string             `json:"available_languages"`
}

// Stream is one hoster embed offered for an episode in one language.
type Stream struct {
	Provider string
	Language string
	EmbedURL string
}

// PopularNew holds the per-site popular and newly added catalog rows.
type PopularNew struct {
	Popular []SearchResult `json:"popular"`
	New     []SearchResult `json:"new"`
}

// Adapter translates one site's page structure into the normalized shapes.
// Implementations must return typed errors (ErrSiteUnavailable, ErrNoResults)
// rather than panicking on unexpected page shapes.
type Adapter interface {
	// ID returns the site identifier this adapter serves.
	ID() ID

	// Search returns catalog entries matching the query. An empty result
	// set is not an error.
	Search(ctx context.Context, query string) ([]SearchResult, error)

	// ListEpisodes returns the episode tree for a series page URL.
	ListEpisodes(ctx context.Context, seriesURL string) (*Listing, error)

	// Streams returns the hoster embeds available for one episode page,
	// across all languages the site offers for it.
	Streams(ctx context.Context, episodeURL string) ([]Stream, error)

	// ResolveDirect turns a pasted site URL into a SearchResult for the
	// paste-a-link flow.
	ResolveDirect(ctx context.Context, rawURL string) (*SearchResult, error)

	// PopularNew returns the site's popular and newly added entries.
	PopularNew(ctx context.Context) (*PopularNew, error)
}
