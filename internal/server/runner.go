// Package server runs the HTTP listener and the background components
// under one lifecycle.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds graceful HTTP drain on exit.
const shutdownTimeout = 30 * time.Second

// Component is a background job that runs until its context ends.
type Component func(ctx context.Context) error

// Runner owns the HTTP server plus any registered background
// components. Cancelling the context passed to Run stops everything;
// one component failing stops the rest.
type Runner struct {
	addr    string
	handler http.Handler
	log     *slog.Logger

	components []namedComponent

	mu    sync.Mutex
	bound string
}

type namedComponent struct {
	name string
	run  Component
}

// NewRunner creates a runner serving handler on addr.
func NewRunner(addr string, handler http.Handler, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{addr: addr, handler: handler, log: log}
}

// Add registers a background component to run alongside the server.
func (r *Runner) Add(name string, c Component) {
	r.components = append(r.components, namedComponent{name: name, run: c})
}

// Addr returns the bound listen address, or "" before Run binds it.
func (r *Runner) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bound
}

// Run blocks until ctx is cancelled or a component fails.
func (r *Runner) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.bound = ln.Addr().String()
	r.mu.Unlock()

	srv := &http.Server{Handler: logRequests(r.handler, r.log)}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.log.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		r.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	for _, c := range r.components {
		c := c
		g.Go(func() error {
			r.log.Info("component started", "component", c.name)
			err := c.run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error("component failed", "component", c.name, "error", err)
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 200 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
