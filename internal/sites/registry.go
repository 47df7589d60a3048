package sites

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Registry holds the configured site adapters and fans searches out to them.
type Registry struct {
	adapters map[ID]Adapter
	order    []ID
	log      *slog.Logger
}

// NewRegistry creates a registry over the given adapters. Iteration order
// follows registration order.
func NewRegistry(log *slog.Logger, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[ID]Adapter, len(adapters)),
		log:      log,
	}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
		r.order = append(r.order, a.ID())
	}
	return r
}

// Get returns the adapter for a site identifier.
func (r *Registry) Get(id ID) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns the registered site identifiers in registration order.
func (r *Registry) IDs() []ID {
	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}

// ForURL returns the adapter whose site serves the given URL.
func (r *Registry) ForURL(rawURL string) (Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrUnknownSite
	}
	host := strings.ToLower(u.Hostname())
	for _, id := range r.order {
		if host == string(id) || strings.HasSuffix(host, "."+string(id)) {
			return r.adapters[id], nil
		}
	}
	return nil, ErrUnknownSite
}

// Search queries the requested sites in parallel and merges results.
// Each branch fails independently: one unreachable site never cancels the
// others, and its error is returned alongside whatever the rest produced.
// Zero results with zero errors is a valid outcome, not a failure.
func (r *Registry) Search(ctx context.Context, query string, ids []ID) ([]SearchResult, []error) {
	if len(ids) == 0 {
		ids = r.order
	}
	start := time.Now()

	type branch struct {
		results []SearchResult
		err     error
	}

	results := make(chan branch, len(ids))
	var wg sync.WaitGroup

	for _, id := range ids {
		a, ok := r.adapters[id]
		if !ok {
			results <- branch{err: ErrUnknownSite}
			continue
		}
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			branchStart := time.Now()
			res, err := a.Search(ctx, query)
			if err != nil {
				r.log.Warn("site search failed", "site", a.ID(), "error", err,
					"duration_ms", time.Since(branchStart).Milliseconds())
			} else {
				r.log.Debug("site search returned", "site", a.ID(), "results", len(res),
					"duration_ms", time.Since(branchStart).Milliseconds())
			}
			results <- branch{results: res, err: err}
		}(a)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var merged []SearchResult
	var errs []error
	seen := make(map[string]struct{})

	for b := range results {
		if b.err != nil {
			errs = append(errs, b.err)
			continue
		}
		for _, res := range b.results {
			if _, dup := seen[res.URL]; dup {
				continue
			}
			seen[res.URL] = struct{}{}
			merged = append(merged, res)
		}
	}

	r.log.Info("search complete", "query", query, "sites", len(ids),
		"results", len(merged), "errors", len(errs),
		"duration_ms", time.Since(start).Milliseconds())
	return merged, errs
}

// Streams dispatches an episode page URL to its site adapter and lists
// the hoster embeds it offers.
func (r *Registry) Streams(ctx context.Context, episodeURL string) ([]Stream, error) {
	a, err := r.ForURL(episodeURL)
	if err != nil {
		return nil, err
	}
	return a.Streams(ctx, episodeURL)
}

// ResolveDirect dispatches a pasted URL to the adapter for its site.
func (r *Registry) ResolveDirect(ctx context.Context, rawURL string) (*SearchResult, error) {
	a, err := r.ForURL(rawURL)
	if err != nil {
		return nil, err
	}
	return a.ResolveDirect(ctx, rawURL)
}
