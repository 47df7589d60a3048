package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/fetcharr/fetcharr/internal/library"
)

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")

	entries, err := s.deps.Library.Browse(relPath)
	if err != nil {
		if errors.Is(err, library.ErrOutsideRoot) {
			writeError(w, http.StatusBadRequest, "invalid path")
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, filesResponse{Success: true, Path: relPath, Entries: entries})
}

// streamFile serves a library file. http.ServeFile handles Range
// requests, which seeking players rely on.
func (s *Server) streamFile(w http.ResponseWriter, r *http.Request) {
	abs, ok := s.resolveFile(w, r)
	if !ok {
		return
	}
	http.ServeFile(w, r, abs)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	abs, ok := s.resolveFile(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(abs)))
	http.ServeFile(w, r, abs)
}

func (s *Server) resolveFile(w http.ResponseWriter, r *http.Request) (string, bool) {
	relPath := r.PathValue("path")
	abs, err := s.deps.Library.FilePath(relPath)
	if err != nil {
		if errors.Is(err, library.ErrOutsideRoot) {
			writeError(w, http.StatusBadRequest, "invalid path")
			return "", false
		}
		writeError(w, http.StatusNotFound, "file not found")
		return "", false
	}
	return abs, true
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	var req deleteFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := s.deps.Library.Delete(req.Path); err != nil {
		if errors.Is(err, library.ErrOutsideRoot) {
			writeError(w, http.StatusBadRequest, "invalid path")
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Info("file deleted", "path", req.Path)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
