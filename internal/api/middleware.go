package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAuth rejects requests without the configured session token.
// An empty configured token disables the gate.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// requireHistory wraps a handler and returns 503 if the history store
// is not configured.
func (s *Server) requireHistory(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.History == nil {
			writeError(w, http.StatusServiceUnavailable, "history store not configured")
			return
		}
		next(w, r)
	}
}

// requireLibrary wraps a handler and returns 503 if the local library
// is not configured.
func (s *Server) requireLibrary(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Library == nil {
			writeError(w, http.StatusServiceUnavailable, "library not configured")
			return
		}
		next(w, r)
	}
}

// requireCast wraps a handler and returns 503 if the cast manager is
// not configured.
func (s *Server) requireCast(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Cast == nil {
			writeError(w, http.StatusServiceUnavailable, "cast manager not configured")
			return
		}
		next(w, r)
	}
}

// requireSubs wraps a handler and returns 503 if the subscriptions
// store is not configured.
func (s *Server) requireSubs(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Subs == nil {
			writeError(w, http.StatusServiceUnavailable, "subscriptions not configured")
			return
		}
		next(w, r)
	}
}
