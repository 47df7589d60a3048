package api

import (
	"net/http"

	"github.com/fetcharr/fetcharr/internal/history"
)

// getProgress returns the recorded progress for one series when site
// and slug are given, or the full file-keyed map plus the most recent
// entries otherwise.
func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	site := r.URL.Query().Get("site")
	slug := r.URL.Query().Get("slug")

	if site != "" && slug != "" {
		progress, err := s.deps.History.SeriesProgress(site, slug)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, progressResponse{Success: true, Progress: progress})
		return
	}

	progress, err := s.deps.History.FileProgress()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recent, err := s.deps.History.Recent(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recent == nil {
		recent = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, progressResponse{Success: true, Progress: progress, Recent: recent})
}

// setProgress upserts one playback record, keyed by local file path or
// by site/slug episode.
func (s *Server) setProgress(w http.ResponseWriter, r *http.Request) {
	var e history.Entry
	if err := decodeBody(r, &e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if e.File == "" && (e.Site == "" || e.Slug == "") {
		writeError(w, http.StatusBadRequest, "file or site and slug are required")
		return
	}

	if err := s.deps.History.SetProgress(e); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) deleteProgress(w http.ResponseWriter, r *http.Request) {
	var req deleteProgressRequest
	_ = decodeBody(r, &req)
	if req.File == "" {
		req.File = r.URL.Query().Get("file")
	}

	if req.File != "" {
		if err := s.deps.History.DeleteFileProgress(req.File); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
		return
	}

	site := r.URL.Query().Get("site")
	slug := r.URL.Query().Get("slug")
	key := r.URL.Query().Get("key")
	if site == "" || slug == "" || key == "" {
		writeError(w, http.StatusBadRequest, "file or site, slug and key are required")
		return
	}

	if err := s.deps.History.DeleteProgress(site, slug, key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) getPreferences(w http.ResponseWriter, _ *http.Request) {
	prefs, err := s.deps.History.Preferences()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, preferencesResponse{Success: true, Preferences: prefs})
}

func (s *Server) setPreference(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := s.deps.History.SetPreference(req.Key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
