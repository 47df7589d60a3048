package aniworld

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/sites"
)

const episodePage = `<html><body>
<div class="changeLanguageBox">
  <img data-lang-key="1" title="Deutsch">
  <img data-lang-key="3" title="Untertitel Deutsch">
</div>
<ul>
  <li data-lang-key="1"><h4>VOE</h4><a class="watchEpisode" href="/redirect/101"></a></li>
  <li data-lang-key="1"><h4>Vidoza</h4><a class="watchEpisode" href="/redirect/102"></a></li>
  <li data-lang-key="3"><h4>VOE</h4><a class="watchEpisode" href="/redirect/103"></a></li>
  <li data-lang-key="9"><h4>Bogus</h4><a class="watchEpisode" href="/redirect/104"></a></li>
</ul>
</body></html>`

func newTestServer(t *testing.T) (*httptest.Server, *Adapter) {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/ajax/seriesSearch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "naruto", r.URL.Query().Get("keyword"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"name":"Naruto","link":"naruto","description":"Ninja","productionYear":"(2002)","cover":"/img/naruto.jpg"},
			{"name":"Naruto Shippuden","link":"naruto-shippuden","description":"","productionYear":"","cover":""}
		]`)
	})

	mux.HandleFunc("/anime/stream/naruto", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
<div class="series-title"><h1><span>Naruto</span></h1></div>
<p class="seri_des" data-full-description="A ninja story.">A ninja...</p>
<div class="seriesCoverBox"><img data-src="/img/naruto.jpg"></div>
<a href="/anime/stream/naruto/staffel-1">Staffel 1</a>
<a href="/anime/stream/naruto/staffel-2">Staffel 2</a>
</body></html>`)
	})

	for season, episodes := range map[int]int{1: 3, 2: 2} {
		season, episodes := season, episodes
		mux.HandleFunc(fmt.Sprintf("/anime/stream/naruto/staffel-%d", season), func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "<html><body><table class=\"seasonEpisodesList\"><tbody>")
			for ep := 1; ep <= episodes; ep++ {
				fmt.Fprintf(w, `<tr><td><a href="/anime/stream/naruto/staffel-%d/episode-%d"><strong>Folge %d</strong></a></td></tr>`, season, ep, ep)
			}
			fmt.Fprint(w, "</tbody></table></body></html>")
		})
	}

	mux.HandleFunc("/anime/stream/naruto/staffel-1/episode-1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, episodePage)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestSearch(t *testing.T) {
	srv, a := newTestServer(t)

	results, err := a.Search(context.Background(), "naruto")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Naruto (2002)", results[0].Title)
	assert.Equal(t, srv.URL+"/anime/stream/naruto", results[0].URL)
	assert.Equal(t, "naruto", results[0].Slug)
	assert.Equal(t, srv.URL+"/img/naruto.jpg", results[0].Cover)
	assert.Equal(t, sites.SiteAniworld, results[0].Site)
	assert.False(t, results[0].IsMovie)
}

func TestSearchSiteDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := a.Search(context.Background(), "naruto")
	assert.ErrorIs(t, err, sites.ErrSiteUnavailable)
}

func TestListEpisodes(t *testing.T) {
	srv, a := newTestServer(t)

	listing, err := a.ListEpisodes(context.Background(), srv.URL+"/anime/stream/naruto")
	require.NoError(t, err)

	assert.Equal(t, "Naruto", listing.Title)
	assert.Equal(t, "naruto", listing.Slug)
	assert.Equal(t, "A ninja story.", listing.Description)

	require.Len(t, listing.Episodes[1], 3)
	require.Len(t, listing.Episodes[2], 2)
	assert.Equal(t, "Folge 1", listing.Episodes[1][0].Title)
	assert.Equal(t, srv.URL+"/anime/stream/naruto/staffel-2/episode-2", listing.Episodes[2][1].URL)

	assert.Equal(t, []string{"German Dub", "German Sub"}, listing.AvailableLanguages)
}

func TestStreams(t *testing.T) {
	srv, a := newTestServer(t)

	streams, err := a.Streams(context.Background(), srv.URL+"/anime/stream/naruto/staffel-1/episode-1")
	require.NoError(t, err)

	// The unknown lang key 9 entry is dropped.
	require.Len(t, streams, 3)
	assert.Equal(t, sites.Stream{Provider: "VOE", Language: "German Dub", EmbedURL: srv.URL + "/redirect/101"}, streams[0])
	assert.Equal(t, "Vidoza", streams[1].Provider)
	assert.Equal(t, "German Sub", streams[2].Language)
}

func TestStreamsNoHosters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body></body></html>")
	}))
	defer srv.Close()

	a := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := a.Streams(context.Background(), srv.URL+"/anime/stream/naruto/staffel-1/episode-1")
	assert.ErrorIs(t, err, sites.ErrNoResults)
}

func TestResolveDirect(t *testing.T) {
	srv, a := newTestServer(t)

	res, err := a.ResolveDirect(context.Background(), srv.URL+"/anime/stream/naruto/staffel-1/episode-1")
	require.NoError(t, err)
	assert.Equal(t, "Naruto", res.Title)
	assert.Equal(t, "naruto", res.Slug)
	assert.Equal(t, srv.URL+"/anime/stream/naruto", res.URL)

	_, err = a.ResolveDirect(context.Background(), srv.URL+"/something/else")
	assert.Error(t, err)
}
