// Package api implements the polling JSON HTTP API consumed by the web
// UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fetcharr/fetcharr/internal/cast"
	"github.com/fetcharr/fetcharr/internal/download"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/sites"
	"github.com/fetcharr/fetcharr/internal/subscriptions"
)

// Config holds API server configuration.
type Config struct {
	// AuthToken gates /api routes when non-empty.
	AuthToken       string
	DownloadDir     string
	MaxConcurrent   int
	DefaultLanguage string
	PopularTTL      time.Duration
	Version         string
}

// Searcher is the site catalog surface the API depends on.
// *sites.Registry satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, ids []sites.ID) ([]sites.SearchResult, []error)
	ResolveDirect(ctx context.Context, rawURL string) (*sites.SearchResult, error)
	ForURL(rawURL string) (sites.Adapter, error)
	Get(id sites.ID) (sites.Adapter, bool)
	IDs() []sites.ID
}

// Caster is the cast control surface. *cast.Manager satisfies it.
type Caster interface {
	Devices(ctx context.Context) ([]cast.Device, error)
	Start(ctx context.Context, deviceUUID, mediaURL, title string, startTime int) (*cast.Status, error)
	Pause(deviceUUID string) error
	Resume(deviceUUID string) error
	Seek(deviceUUID string, seconds float64) error
	SetVolume(deviceUUID string, level float64) error
	Stop(deviceUUID string) error
	Status(deviceUUID string) (*cast.Status, error)
	Sessions() []cast.Status
}

// ServerDeps contains the API server's collaborators. Registry and
// Queue are required; the rest degrade to 503 on their routes when nil.
type ServerDeps struct {
	Registry Searcher
	Queue    *download.Queue

	Library *library.Library
	History *history.Store
	Subs    *subscriptions.Store
	Checker *subscriptions.Checker
	Cast    Caster
}

// Validate checks that required dependencies are provided.
func (d ServerDeps) Validate() error {
	if d.Registry == nil {
		return errors.New("site registry is required")
	}
	if d.Queue == nil {
		return errors.New("download queue is required")
	}
	return nil
}

// Server is the JSON API server.
type Server struct {
	deps    ServerDeps
	cfg     Config
	log     *slog.Logger
	popular *popularCache
}

// New creates the API server.
func New(deps ServerDeps, cfg Config, log *slog.Logger) (*Server, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	return &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		popular: newPopularCache(cfg.PopularTTL),
	}, nil
}

// RegisterRoutes registers API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	auth := s.requireAuth

	// Catalog
	mux.HandleFunc("POST /api/search", auth(s.search))
	mux.HandleFunc("POST /api/direct", auth(s.direct))
	mux.HandleFunc("POST /api/episodes", auth(s.episodes))
	mux.HandleFunc("GET /api/popular-new", auth(s.popularNew(sites.SiteAniworld)))
	mux.HandleFunc("GET /api/popular-new-sto", auth(s.popularNew(sites.SiteSTO)))
	mux.HandleFunc("GET /api/popular-new-movie4k", auth(s.popularNew(sites.SiteMovie4k)))

	// Downloads
	mux.HandleFunc("POST /api/download", auth(s.enqueueDownloads))
	mux.HandleFunc("GET /api/queue-status", auth(s.queueStatus))
	mux.HandleFunc("POST /api/queue/cancel/{id}", auth(s.cancelDownload))
	mux.HandleFunc("POST /api/queue/cancel-group", auth(s.cancelGroup))
	mux.HandleFunc("GET /api/download-path", auth(s.downloadPath))

	// Watch progress and preferences
	mux.HandleFunc("GET /api/watch-progress", auth(s.requireHistory(s.getProgress)))
	mux.HandleFunc("POST /api/watch-progress", auth(s.requireHistory(s.setProgress)))
	mux.HandleFunc("DELETE /api/watch-progress", auth(s.requireHistory(s.deleteProgress)))
	mux.HandleFunc("GET /api/preferences", auth(s.requireHistory(s.getPreferences)))
	mux.HandleFunc("POST /api/preferences", auth(s.requireHistory(s.setPreference)))

	// Local files
	mux.HandleFunc("GET /api/files", auth(s.requireLibrary(s.listFiles)))
	mux.HandleFunc("GET /api/files/stream/{path...}", auth(s.requireLibrary(s.streamFile)))
	mux.HandleFunc("GET /api/files/download/{path...}", auth(s.requireLibrary(s.downloadFile)))
	mux.HandleFunc("POST /api/files/delete", auth(s.requireLibrary(s.deleteFile)))

	// Chromecast
	mux.HandleFunc("GET /api/chromecast/discover", auth(s.requireCast(s.castDiscover)))
	mux.HandleFunc("POST /api/chromecast/cast", auth(s.requireCast(s.castStart)))
	mux.HandleFunc("POST /api/chromecast/control", auth(s.requireCast(s.castControl)))
	mux.HandleFunc("GET /api/chromecast/status", auth(s.requireCast(s.castStatus)))

	// Subscriptions
	mux.HandleFunc("GET /api/subscriptions", auth(s.requireSubs(s.listSubscriptions)))
	mux.HandleFunc("POST /api/subscriptions", auth(s.requireSubs(s.addSubscription)))
	mux.HandleFunc("PUT /api/subscriptions/{id}", auth(s.requireSubs(s.updateSubscription)))
	mux.HandleFunc("DELETE /api/subscriptions/{id}", auth(s.requireSubs(s.removeSubscription)))
	mux.HandleFunc("POST /api/subscriptions/check", auth(s.requireSubs(s.checkSubscriptions)))
	mux.HandleFunc("GET /api/subscriptions/notifications", auth(s.requireSubs(s.listNotifications)))
	mux.HandleFunc("POST /api/subscriptions/notifications/read", auth(s.requireSubs(s.readNotifications)))

	// System
	mux.HandleFunc("GET /api/info", auth(s.info))
	mux.HandleFunc("GET /health", s.health)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// pathID extracts an integer ID from the URL path.
func pathID(r *http.Request, name string) (int64, error) {
	idStr := r.PathValue(name)
	if idStr == "" {
		return 0, fmt.Errorf("missing path parameter: %s", name)
	}
	return strconv.ParseInt(idStr, 10, 64)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	ids := s.deps.Registry.IDs()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	writeJSON(w, http.StatusOK, infoResponse{
		Success:       true,
		Version:       s.cfg.Version,
		Sites:         names,
		Providers:     providerNames(),
		MaxConcurrent: s.cfg.MaxConcurrent,
	})
}

func (s *Server) downloadPath(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"path": s.cfg.DownloadDir})
}

// slugFromURL takes the last meaningful path segment of a series URL.
func slugFromURL(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
