package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLog() *slog.Logger { return slog.New(slog.DiscardHandler) }

func waitForAddr(t *testing.T, r *Runner) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := r.Addr(); addr != "" {
			return addr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("runner never bound a listener")
	return ""
}

func TestRunnerServesAndShutsDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "pong")
	})

	r := NewRunner("127.0.0.1:0", mux, discardLog())

	componentStopped := make(chan struct{})
	r.Add("ticker", func(ctx context.Context) error {
		<-ctx.Done()
		close(componentStopped)
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	addr := waitForAddr(t, r)
	resp, err := http.Get("http://" + addr + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	select {
	case <-componentStopped:
	default:
		t.Fatal("component context was not cancelled")
	}
}

func TestRunnerComponentFailureStopsEverything(t *testing.T) {
	r := NewRunner("127.0.0.1:0", http.NewServeMux(), discardLog())

	boom := errors.New("boom")
	r.Add("broken", func(context.Context) error { return boom })

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after component failure")
	}
}

func TestRunnerBadAddr(t *testing.T) {
	r := NewRunner("256.256.256.256:99999", http.NewServeMux(), discardLog())
	assert.Error(t, r.Run(context.Background()))
}
