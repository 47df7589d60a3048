package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferWritesFile(t *testing.T) {
	payload := strings.Repeat("x", 100_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "series", "Season 1", "ep.mp4")
	tr := NewHTTPTransferrer(WithTransferClient(srv.Client()))

	var lastDownloaded, lastSize int64
	written, err := tr.Transfer(context.Background(), srv.URL, "", dest,
		func(downloaded, size, _ int64) {
			lastDownloaded, lastSize = downloaded, size
		})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), written)
	assert.Equal(t, int64(len(payload)), lastDownloaded)
	assert.Equal(t, int64(len(payload)), lastSize)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Len(t, data, len(payload))

	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestTransferRejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "ep.mp4")
	tr := NewHTTPTransferrer(WithTransferClient(srv.Client()))

	_, err := tr.Transfer(context.Background(), srv.URL, "", dest, nil)
	assert.ErrorIs(t, err, ErrTruncated)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTransferRejectsShortRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		fmt.Fprint(w, strings.Repeat("x", 400))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "ep.mp4")
	tr := NewHTTPTransferrer(WithTransferClient(srv.Client()))

	_, err := tr.Transfer(context.Background(), srv.URL, "", dest, nil)
	assert.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(statErr))
}

func TestTransferHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tr := NewHTTPTransferrer(WithTransferClient(srv.Client()))
	_, err := tr.Transfer(context.Background(), srv.URL, "", filepath.Join(t.TempDir(), "ep.mp4"), nil)
	assert.ErrorContains(t, err, "status 403")
}

func TestTransferCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		fmt.Fprint(w, strings.Repeat("x", 10_000))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "ep.mp4")
	tr := NewHTTPTransferrer(WithTransferClient(srv.Client()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := tr.Transfer(ctx, srv.URL, "", dest, nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(statErr))
}

func TestTransferStallDetection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		fmt.Fprint(w, strings.Repeat("x", 10_000))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Stop sending without closing: the stall watchdog must fire.
		<-r.Context().Done()
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "ep.mp4")
	tr := NewHTTPTransferrer(
		WithTransferClient(srv.Client()),
		WithStallTimeout(100*time.Millisecond),
	)

	start := time.Now()
	_, err := tr.Transfer(context.Background(), srv.URL, "", dest, nil)
	assert.ErrorIs(t, err, ErrStalled)
	assert.Less(t, time.Since(start), 3*time.Second)

	_, statErr := os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(statErr))
}
