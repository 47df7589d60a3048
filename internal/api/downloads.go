package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fetcharr/fetcharr/internal/download"
	"github.com/fetcharr/fetcharr/internal/sites"
)

func (s *Server) enqueueDownloads(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.EpisodeURLs) == 0 {
		writeError(w, http.StatusBadRequest, "episode_urls is required")
		return
	}
	if req.AnimeTitle == "" {
		writeError(w, http.StatusBadRequest, "anime_title is required")
		return
	}
	language := req.Language
	if language == "" {
		language = s.cfg.DefaultLanguage
	}

	var ids []int64
	skipped := 0
	for _, rawURL := range req.EpisodeURLs {
		adapter, err := s.deps.Registry.ForURL(rawURL)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported site: %s", rawURL))
			return
		}

		season, episode, movie := sites.Ordinals(rawURL)
		job, err := s.deps.Queue.Enqueue(download.Request{
			Title:      episodeLabel(season, episode, movie),
			SeriesName: req.AnimeTitle,
			Season:     season,
			Episode:    episode,
			Movie:      movie,
			SourceURL:  rawURL,
			Site:       string(adapter.ID()),
			Language:   language,
			Provider:   req.Provider,
			Cover:      req.Cover,
		})
		if err != nil {
			if errors.Is(err, download.ErrDuplicate) {
				skipped++
				continue
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		ids = append(ids, job.ID)
	}

	writeJSON(w, http.StatusOK, downloadResponse{
		Success:       true,
		QueueIDs:      ids,
		EpisodeCount:  len(ids),
		Skipped:       skipped,
		MaxConcurrent: s.cfg.MaxConcurrent,
	})
}

func episodeLabel(season, episode, movie int) string {
	if movie > 0 {
		return fmt.Sprintf("Movie %d", movie)
	}
	return fmt.Sprintf("S%02dE%02d", season, episode)
}

func (s *Server) queueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, queueStatusResponse{
		Success: true,
		Queue:   s.deps.Queue.Snapshot(),
	})
}

func (s *Server) cancelDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Queue.Cancel(id); err != nil {
		switch {
		case errors.Is(err, download.ErrNotFound):
			writeError(w, http.StatusNotFound, "download not found")
		case errors.Is(err, download.ErrNotCancellable):
			writeError(w, http.StatusConflict, "download already finished")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) cancelGroup(w http.ResponseWriter, r *http.Request) {
	var req cancelGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	cancelled := s.deps.Queue.CancelGroup(req.Name)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cancelled": cancelled})
}
