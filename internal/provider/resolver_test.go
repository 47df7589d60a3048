package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/sites"
)

type fakeExtractor struct {
	name    string
	direct  string
	err     error
	delay   time.Duration
	calls   int
	lastURL string
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(ctx context.Context, _ *http.Client, embedURL, _ string) (string, error) {
	f.calls++
	f.lastURL = embedURL
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.direct, nil
}

func newTestResolver(t *testing.T, order []string, extractors ...*fakeExtractor) *Resolver {
	t.Helper()
	reg := make(map[string]Extractor, len(extractors))
	for _, e := range extractors {
		reg[e.name] = e
	}
	return NewResolver(slog.New(slog.DiscardHandler), WithExtractors(order, reg))
}

func streamsFor(providers ...string) []sites.Stream {
	out := make([]sites.Stream, 0, len(providers))
	for _, p := range providers {
		out = append(out, sites.Stream{
			Provider: p,
			Language: "German Dub",
			EmbedURL: "https://embed.example/" + p,
		})
	}
	return out
}

func TestResolvePicksFirstInOrder(t *testing.T) {
	voe := &fakeExtractor{name: "VOE", direct: "https://cdn.example/voe.mp4"}
	vidoza := &fakeExtractor{name: "Vidoza", direct: "https://cdn.example/vidoza.mp4"}
	r := newTestResolver(t, []string{"VOE", "Vidoza"}, voe, vidoza)

	res, err := r.Resolve(context.Background(), streamsFor("Vidoza", "VOE"), "German Dub", "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "VOE", res.Provider)
	assert.Equal(t, "https://cdn.example/voe.mp4", res.DirectURL)
	assert.Equal(t, 0, vidoza.calls)
}

func TestResolvePreferredFirst(t *testing.T) {
	voe := &fakeExtractor{name: "VOE", direct: "https://cdn.example/voe.mp4"}
	vidoza := &fakeExtractor{name: "Vidoza", direct: "https://cdn.example/vidoza.mp4"}
	r := newTestResolver(t, []string{"VOE", "Vidoza"}, voe, vidoza)

	res, err := r.Resolve(context.Background(), streamsFor("Vidoza", "VOE"), "German Dub", "Vidoza", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "Vidoza", res.Provider)
	assert.Equal(t, 0, voe.calls)
}

func TestResolveFallsBackOnFailure(t *testing.T) {
	voe := &fakeExtractor{name: "VOE", err: errors.New("embed gone")}
	vidoza := &fakeExtractor{name: "Vidoza", direct: "https://cdn.example/vidoza.mp4"}
	r := newTestResolver(t, []string{"VOE", "Vidoza"}, voe, vidoza)

	res, err := r.Resolve(context.Background(), streamsFor("VOE", "Vidoza"), "German Dub", "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "Vidoza", res.Provider)
	assert.Equal(t, 1, voe.calls)
}

func TestResolveLanguageUnavailable(t *testing.T) {
	voe := &fakeExtractor{name: "VOE", direct: "https://cdn.example/voe.mp4"}
	r := newTestResolver(t, []string{"VOE"}, voe)

	_, err := r.Resolve(context.Background(), streamsFor("VOE"), "English Sub", "", nil, "")
	assert.ErrorIs(t, err, ErrLanguageUnavailable)
	assert.Equal(t, 0, voe.calls)
}

func TestResolveExcludedProvidersSkipped(t *testing.T) {
	voe := &fakeExtractor{name: "VOE", direct: "https://cdn.example/voe.mp4"}
	vidoza := &fakeExtractor{name: "Vidoza", direct: "https://cdn.example/vidoza.mp4"}
	r := newTestResolver(t, []string{"VOE", "Vidoza"}, voe, vidoza)

	res, err := r.Resolve(context.Background(), streamsFor("VOE", "Vidoza"), "German Dub",
		"", map[string]bool{"VOE": true}, "")
	require.NoError(t, err)
	assert.Equal(t, "Vidoza", res.Provider)
	assert.Equal(t, 0, voe.calls)
}

func TestResolveExhaustedCarriesPerProviderErrors(t *testing.T) {
	voeErr := errors.New("embed gone")
	vidozaErr := errors.New("timeout")
	voe := &fakeExtractor{name: "VOE", err: voeErr}
	vidoza := &fakeExtractor{name: "Vidoza", err: vidozaErr}
	r := newTestResolver(t, []string{"VOE", "Vidoza"}, voe, vidoza)

	_, err := r.Resolve(context.Background(), streamsFor("VOE", "Vidoza"), "German Dub", "", nil, "")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, exhausted.Attempts["VOE"], voeErr)
	assert.ErrorIs(t, exhausted.Attempts["Vidoza"], vidozaErr)
}

func TestResolveUnknownProvidersIgnored(t *testing.T) {
	voe := &fakeExtractor{name: "VOE", direct: "https://cdn.example/voe.mp4"}
	r := newTestResolver(t, []string{"VOE"}, voe)

	res, err := r.Resolve(context.Background(), streamsFor("Obscure", "VOE"), "German Dub", "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "VOE", res.Provider)
}

func TestResolveAttemptTimeout(t *testing.T) {
	slow := &fakeExtractor{name: "VOE", direct: "https://cdn.example/voe.mp4", delay: time.Second}
	fast := &fakeExtractor{name: "Vidoza", direct: "https://cdn.example/vidoza.mp4"}
	reg := map[string]Extractor{"VOE": slow, "Vidoza": fast}
	r := NewResolver(slog.New(slog.DiscardHandler),
		WithExtractors([]string{"VOE", "Vidoza"}, reg),
		WithAttemptTimeout(20*time.Millisecond))

	res, err := r.Resolve(context.Background(), streamsFor("VOE", "Vidoza"), "German Dub", "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "Vidoza", res.Provider)
}

func TestResolveCancelledContext(t *testing.T) {
	voe := &fakeExtractor{name: "VOE", err: errors.New("whatever")}
	vidoza := &fakeExtractor{name: "Vidoza", direct: "https://cdn.example/vidoza.mp4"}
	r := newTestResolver(t, []string{"VOE", "Vidoza"}, voe, vidoza)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, streamsFor("VOE", "Vidoza"), "German Dub", "", nil, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, vidoza.calls)
}
