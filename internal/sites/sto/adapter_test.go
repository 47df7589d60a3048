package sto

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

func newTestServer(t *testing.T) (*httptest.Server, *Adapter) {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/suche", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dark", r.URL.Query().Get("term"))
		fmt.Fprint(w, `<html><body><div class="search-results-list">
<a href="/serie/dark"><img data-src="/img/dark.jpg"><h3>Dark</h3><p>Winden secrets (2017)</p></a>
<a href="/serie/dark">duplicate</a>
<a href="/serie/dark/staffel-1">deep link ignored</a>
<a href="/serie/the-dark-one"><h3>The Dark One</h3></a>
</div></body></html>`)
	})

	mux.HandleFunc("/serie/dark", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
<div class="series-title"><h1><span>Dark</span></h1></div>
<p class="seri_des" data-full-description="Winden keeps its secrets.">Winden...</p>
<div class="seriesCoverBox"><img src="/img/dark.jpg"></div>
<a href="/serie/dark/staffel-1">Staffel 1</a>
</body></html>`)
	})

	mux.HandleFunc("/serie/dark/staffel-1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><table class="seasonEpisodesList"><tbody>
<tr><td><a href="/serie/dark/staffel-1/episode-1"><strong>Geheimnisse</strong></a></td></tr>
<tr><td><a href="/serie/dark/staffel-1/episode-2"><strong>Lügen</strong></a></td></tr>
</tbody></table></body></html>`)
	})

	mux.HandleFunc("/serie/dark/staffel-1/episode-1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
<div class="changeLanguageBox"><img data-lang-key="1"><img data-lang-key="2"></div>
<ul>
  <li data-lang-key="1"><h4>VOE</h4><a class="watchEpisode" href="/redirect/201"></a></li>
  <li data-lang-key="2"><h4>Streamtape</h4><a class="watchEpisode" href="/redirect/202"></a></li>
</ul>
</body></html>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestSearch(t *testing.T) {
	srv, a := newTestServer(t)

	results, err := a.Search(context.Background(), "dark")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Dark", results[0].Title)
	assert.Equal(t, srv.URL+"/serie/dark", results[0].URL)
	assert.Equal(t, "dark", results[0].Slug)
	assert.Equal(t, srv.URL+"/img/dark.jpg", results[0].Cover)
	assert.Equal(t, "2017", results[0].Year)
	assert.Equal(t, sites.SiteSTO, results[0].Site)

	assert.Equal(t, "the-dark-one", results[1].Slug)
}

func TestListEpisodes(t *testing.T) {
	srv, a := newTestServer(t)

	listing, err := a.ListEpisodes(context.Background(), srv.URL+"/serie/dark")
	require.NoError(t, err)

	assert.Equal(t, "Dark", listing.Title)
	assert.Equal(t, "Winden keeps its secrets.", listing.Description)
	require.Len(t, listing.Episodes[1], 2)
	assert.Equal(t, "Geheimnisse", listing.Episodes[1][0].Title)
	assert.Equal(t, srv.URL+"/serie/dark/staffel-1/episode-2", listing.Episodes[1][1].URL)
	assert.Equal(t, []string{"German Dub", "English Sub"}, listing.AvailableLanguages)
}

func TestStreams(t *testing.T) {
	srv, a := newTestServer(t)

	streams, err := a.Streams(context.Background(), srv.URL+"/serie/dark/staffel-1/episode-1")
	require.NoError(t, err)

	require.Len(t, streams, 2)
	assert.Equal(t, sites.Stream{Provider: "VOE", Language: "German Dub", EmbedURL: srv.URL + "/redirect/201"}, streams[0])
	assert.Equal(t, sites.Stream{Provider: "Streamtape", Language: "English Sub", EmbedURL: srv.URL + "/redirect/202"}, streams[1])
}

func TestResolveDirect(t *testing.T) {
	srv, a := newTestServer(t)

	res, err := a.ResolveDirect(context.Background(), srv.URL+"/serie/dark/staffel-1")
	require.NoError(t, err)
	assert.Equal(t, "Dark", res.Title)
	assert.Equal(t, srv.URL+"/serie/dark", res.URL)
	assert.Equal(t, srv.URL+"/img/dark.jpg", res.Cover)
}
