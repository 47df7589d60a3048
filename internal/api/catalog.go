package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fetcharr/fetcharr/internal/sites"
)

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	ids := make([]sites.ID, 0, len(req.Sites))
	for _, name := range req.Sites {
		ids = append(ids, sites.ID(name))
	}

	results, errs := s.deps.Registry.Search(r.Context(), req.Query, ids)

	resp := searchResponse{Success: true, Results: results, Count: len(results)}
	if results == nil {
		resp.Results = []sites.SearchResult{}
	}
	for _, err := range errs {
		resp.Errors = append(resp.Errors, err.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) direct(w http.ResponseWriter, r *http.Request) {
	var req directRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := s.deps.Registry.ResolveDirect(r.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, sites.ErrUnknownSite):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported site: %s", req.URL))
		case errors.Is(err, sites.ErrNoResults):
			writeError(w, http.StatusNotFound, "no title found at that URL")
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, directResponse{Success: true, Result: result})
}

func (s *Server) episodes(w http.ResponseWriter, r *http.Request) {
	var req episodesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SeriesURL == "" {
		writeError(w, http.StatusBadRequest, "series_url is required")
		return
	}

	adapter, err := s.deps.Registry.ForURL(req.SeriesURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported site: %s", req.SeriesURL))
		return
	}

	listing, err := adapter.ListEpisodes(r.Context(), req.SeriesURL)
	if err != nil {
		if errors.Is(err, sites.ErrNoResults) {
			writeError(w, http.StatusNotFound, "series not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if listing.Slug == "" {
		listing.Slug = slugFromURL(req.SeriesURL)
	}

	if s.deps.Library != nil {
		s.deps.Library.Annotate(listing)
	}
	s.annotateWatched(string(adapter.ID()), listing)

	writeJSON(w, http.StatusOK, episodesResponse{
		Success:            true,
		Title:              listing.Title,
		Slug:               listing.Slug,
		Description:        listing.Description,
		AvailableLanguages: listing.AvailableLanguages,
		Episodes:           listing.Episodes,
		Movies:             listing.Movies,
	})
}

// annotateWatched marks refs whose recorded playback crossed the
// watched threshold.
func (s *Server) annotateWatched(site string, listing *sites.Listing) {
	if s.deps.History == nil {
		return
	}
	progress, err := s.deps.History.SeriesProgress(site, listing.Slug)
	if err != nil {
		s.log.Warn("series progress lookup failed", "slug", listing.Slug, "error", err)
		return
	}
	for season, refs := range listing.Episodes {
		for i, ref := range refs {
			key := fmt.Sprintf("s%de%d", season, ref.Episode)
			if e, ok := progress[key]; ok && e.Watched() {
				listing.Episodes[season][i].Watched = true
			}
		}
	}
	for i, m := range listing.Movies {
		key := fmt.Sprintf("movie-%d", m.Movie)
		if e, ok := progress[key]; ok && e.Watched() {
			listing.Movies[i].Watched = true
		}
	}
}

// popularNew serves the per-site popular/new catalog with a TTL cache.
// ?force=true bypasses the cache.
func (s *Server) popularNew(id sites.ID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter, ok := s.deps.Registry.Get(id)
		if !ok {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("site %s not configured", id))
			return
		}

		force := r.URL.Query().Get("force") == "true"
		if !force {
			if cached, ok := s.popular.get(id); ok {
				writeJSON(w, http.StatusOK, popularNewResponse{
					Success: true, Popular: cached.Popular, New: cached.New, Cached: true,
				})
				return
			}
		}

		pn, err := adapter.PopularNew(r.Context())
		if err != nil {
			// A stale page beats an error page for the landing view.
			if cached, ok := s.popular.getStale(id); ok {
				writeJSON(w, http.StatusOK, popularNewResponse{
					Success: true, Popular: cached.Popular, New: cached.New, Cached: true,
				})
				return
			}
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		s.popular.put(id, pn)
		writeJSON(w, http.StatusOK, popularNewResponse{Success: true, Popular: pn.Popular, New: pn.New})
	}
}

// popularCache holds per-site popular/new pages for a bounded time.
type popularCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[sites.ID]popularEntry
}

type popularEntry struct {
	data *sites.PopularNew
	at   time.Time
}

func newPopularCache(ttl time.Duration) *popularCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &popularCache{ttl: ttl, entries: make(map[sites.ID]popularEntry)}
}

func (c *popularCache) get(id sites.ID) (*sites.PopularNew, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || time.Since(e.at) > c.ttl {
		return nil, false
	}
	return e.data, true
}

// getStale returns whatever is cached regardless of age.
func (c *popularCache) getStale(id sites.ID) (*sites.PopularNew, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.data, true
}

func (c *popularCache) put(id sites.ID, data *sites.PopularNew) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = popularEntry{data: data, at: time.Now()}
}
