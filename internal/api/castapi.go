package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fetcharr/fetcharr/internal/cast"
	"github.com/fetcharr/fetcharr/internal/history"
)

// skipStep is how far rewind/forward jump, in seconds.
const skipStep = 10.0

func (s *Server) castDiscover(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deps.Cast.Devices(r.Context())
	if err != nil {
		if errors.Is(err, cast.ErrNoDevices) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "devices": []cast.Device{}})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "devices": devices})
}

func (s *Server) castStart(w http.ResponseWriter, r *http.Request) {
	var req castStartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DeviceUUID == "" {
		writeError(w, http.StatusBadRequest, "device_uuid is required")
		return
	}

	mediaURL := req.MediaURL
	if mediaURL == "" && req.FilePath != "" {
		if s.deps.Library == nil {
			writeError(w, http.StatusServiceUnavailable, "library not configured")
			return
		}
		abs, err := s.deps.Library.FilePath(req.FilePath)
		if err != nil {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		mediaURL = abs
	}
	if mediaURL == "" {
		writeError(w, http.StatusBadRequest, "media_url or file_path is required")
		return
	}

	status, err := s.deps.Cast.Start(r.Context(), req.DeviceUUID, mediaURL, req.Title, req.StartTime)
	if err != nil {
		if errors.Is(err, cast.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": status})
}

func (s *Server) castControl(w http.ResponseWriter, r *http.Request) {
	var req castControlRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DeviceUUID == "" {
		writeError(w, http.StatusBadRequest, "device_uuid is required")
		return
	}

	var err error
	switch req.Action {
	case "pause":
		err = s.deps.Cast.Pause(req.DeviceUUID)
	case "play", "resume":
		err = s.deps.Cast.Resume(req.DeviceUUID)
	case "stop":
		err = s.deps.Cast.Stop(req.DeviceUUID)
	case "seek":
		err = s.deps.Cast.Seek(req.DeviceUUID, req.Position)
	case "rewind":
		err = s.skipBy(req.DeviceUUID, -skipStep)
	case "forward":
		err = s.skipBy(req.DeviceUUID, skipStep)
	case "volume":
		// Clients send 0-100; the receiver wants 0.0-1.0.
		err = s.deps.Cast.SetVolume(req.DeviceUUID, req.Value/100)
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
		return
	}

	if err != nil {
		if errors.Is(err, cast.ErrNoSession) {
			writeError(w, http.StatusNotFound, "no active session for device")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) skipBy(deviceUUID string, delta float64) error {
	status, err := s.deps.Cast.Status(deviceUUID)
	if err != nil {
		return err
	}
	target := status.CurrentTime + delta
	if target < 0 {
		target = 0
	}
	return s.deps.Cast.Seek(deviceUUID, target)
}

// castStatus returns one device's session status, or all sessions when
// no device_uuid is given. When the caller identifies the playing
// title, playback position is fed into the watch-progress store.
func (s *Server) castStatus(w http.ResponseWriter, r *http.Request) {
	deviceUUID := r.URL.Query().Get("device_uuid")
	if deviceUUID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": s.deps.Cast.Sessions()})
		return
	}

	status, err := s.deps.Cast.Status(deviceUUID)
	if err != nil {
		if errors.Is(err, cast.ErrNoSession) {
			writeError(w, http.StatusNotFound, "no active session for device")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.recordCastProgress(r, status)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": status})
}

func (s *Server) recordCastProgress(r *http.Request, status *cast.Status) {
	if s.deps.History == nil || status.Duration <= 0 {
		return
	}
	site := r.URL.Query().Get("site")
	slug := r.URL.Query().Get("slug")
	if site == "" || slug == "" {
		return
	}

	q := r.URL.Query()
	season, _ := strconv.Atoi(q.Get("season"))
	episode, _ := strconv.Atoi(q.Get("episode"))
	movie, _ := strconv.Atoi(q.Get("movie"))

	err := s.deps.History.SetProgress(history.Entry{
		Site:     site,
		Slug:     slug,
		Season:   season,
		Episode:  episode,
		Movie:    movie,
		Position: status.CurrentTime,
		Duration: status.Duration,
	})
	if err != nil {
		s.log.Warn("cast progress write failed", "slug", slug, "error", err)
	}
}
