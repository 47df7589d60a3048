package sites

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	id        ID
	searchFn  func(ctx context.Context, query string) ([]SearchResult, error)
	resolveFn func(ctx context.Context, rawURL string) (*SearchResult, error)
}

func (f *fakeAdapter) ID() ID { return f.id }

func (f *fakeAdapter) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, query)
	}
	return nil, nil
}

func (f *fakeAdapter) ListEpisodes(ctx context.Context, seriesURL string) (*Listing, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) Streams(ctx context.Context, episodeURL string) ([]Stream, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) ResolveDirect(ctx context.Context, rawURL string) (*SearchResult, error) {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, rawURL)
	}
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) PopularNew(ctx context.Context) (*PopularNew, error) {
	return nil, errors.New("not implemented")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRegistrySearchMergesAcrossSites(t *testing.T) {
	reg := NewRegistry(discardLogger(),
		&fakeAdapter{
			id: SiteAniworld,
			searchFn: func(_ context.Context, _ string) ([]SearchResult, error) {
				return []SearchResult{
					{Title: "Naruto", URL: "https://aniworld.to/anime/stream/naruto", Site: SiteAniworld},
				}, nil
			},
		},
		&fakeAdapter{
			id: SiteSTO,
			searchFn: func(_ context.Context, _ string) ([]SearchResult, error) {
				return []SearchResult{
					{Title: "Naruto", URL: "https://s.to/serie/naruto", Site: SiteSTO},
				}, nil
			},
		},
	)

	results, errs := reg.Search(context.Background(), "naruto", nil)
	require.Empty(t, errs)
	assert.Len(t, results, 2)
}

func TestRegistrySearchIsolatesFailedSite(t *testing.T) {
	siteErr := errors.New("connection refused")
	reg := NewRegistry(discardLogger(),
		&fakeAdapter{
			id: SiteAniworld,
			searchFn: func(_ context.Context, _ string) ([]SearchResult, error) {
				return nil, siteErr
			},
		},
		&fakeAdapter{
			id: SiteSTO,
			searchFn: func(_ context.Context, _ string) ([]SearchResult, error) {
				return []SearchResult{
					{Title: "Dark", URL: "https://s.to/serie/dark", Site: SiteSTO},
				}, nil
			},
		},
	)

	results, errs := reg.Search(context.Background(), "dark", nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Dark", results[0].Title)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], siteErr)
}

func TestRegistrySearchEmptyIsNotAnError(t *testing.T) {
	reg := NewRegistry(discardLogger(), &fakeAdapter{id: SiteAniworld})

	results, errs := reg.Search(context.Background(), "zzzzz", nil)
	assert.Empty(t, results)
	assert.Empty(t, errs)
}

func TestRegistrySearchDeduplicatesByURL(t *testing.T) {
	dup := SearchResult{Title: "Naruto", URL: "https://aniworld.to/anime/stream/naruto", Site: SiteAniworld}
	reg := NewRegistry(discardLogger(),
		&fakeAdapter{
			id: SiteAniworld,
			searchFn: func(_ context.Context, _ string) ([]SearchResult, error) {
				return []SearchResult{dup, dup}, nil
			},
		},
	)

	results, errs := reg.Search(context.Background(), "naruto", nil)
	require.Empty(t, errs)
	assert.Len(t, results, 1)
}

func TestRegistrySearchUnknownSite(t *testing.T) {
	reg := NewRegistry(discardLogger(), &fakeAdapter{id: SiteAniworld})

	_, errs := reg.Search(context.Background(), "naruto", []ID{"nosuch.site"})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknownSite)
}

func TestRegistryForURL(t *testing.T) {
	reg := NewRegistry(discardLogger(),
		&fakeAdapter{id: SiteAniworld},
		&fakeAdapter{id: SiteSTO},
		&fakeAdapter{id: SiteMovie4k},
	)

	tests := []struct {
		name    string
		url     string
		want    ID
		wantErr bool
	}{
		{name: "aniworld series", url: "https://aniworld.to/anime/stream/naruto", want: SiteAniworld},
		{name: "sto episode", url: "https://s.to/serie/dark/staffel-1/episode-1", want: SiteSTO},
		{name: "movie4k watch", url: "https://movie4k.sx/watch/greenland/6195193258607cdfb9fa2e98", want: SiteMovie4k},
		{name: "subdomain", url: "https://www.aniworld.to/anime/stream/naruto", want: SiteAniworld},
		{name: "unknown host", url: "https://example.com/some/path", wantErr: true},
		{name: "garbage", url: "://not-a-url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := reg.ForURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownSite)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.ID())
		})
	}
}

func TestRegistryResolveDirectDispatches(t *testing.T) {
	want := &SearchResult{Title: "Dark", URL: "https://s.to/serie/dark", Site: SiteSTO}
	reg := NewRegistry(discardLogger(),
		&fakeAdapter{
			id: SiteSTO,
			resolveFn: func(_ context.Context, rawURL string) (*SearchResult, error) {
				return want, nil
			},
		},
	)

	got, err := reg.ResolveDirect(context.Background(), "https://s.to/serie/dark")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = reg.ResolveDirect(context.Background(), "https://example.com/x")
	assert.ErrorIs(t, err, ErrUnknownSite)
}
