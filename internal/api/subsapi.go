package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fetcharr/fetcharr/internal/subscriptions"
)

func (s *Server) listSubscriptions(w http.ResponseWriter, _ *http.Request) {
	subs, err := s.deps.Subs.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if subs == nil {
		subs = []*subscriptions.Subscription{}
	}
	writeJSON(w, http.StatusOK, subscriptionsResponse{Success: true, Subscriptions: subs})
}

func (s *Server) addSubscription(w http.ResponseWriter, r *http.Request) {
	var req addSubscriptionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "url and title are required")
		return
	}

	adapter, err := s.deps.Registry.ForURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported site: %s", req.URL))
		return
	}

	sub := &subscriptions.Subscription{
		Site:     string(adapter.ID()),
		Slug:     slugFromURL(req.URL),
		Title:    req.Title,
		URL:      req.URL,
		Language: req.Language,
	}
	if err := s.deps.Subs.Add(sub); err != nil {
		if errors.Is(err, subscriptions.ErrDuplicate) {
			writeError(w, http.StatusConflict, "already subscribed")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "subscription": sub})
}

func (s *Server) updateSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updateSubscriptionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Subs.UpdateLanguage(id, req.Language); err != nil {
		if errors.Is(err, subscriptions.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) removeSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Subs.Remove(id); err != nil {
		if errors.Is(err, subscriptions.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// checkSubscriptions triggers one synchronous sweep.
func (s *Server) checkSubscriptions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checker == nil {
		writeError(w, http.StatusServiceUnavailable, "subscription checker not running")
		return
	}
	s.deps.Checker.CheckAll(r.Context())
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifications, err := s.deps.Subs.Notifications(unreadOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if notifications == nil {
		notifications = []*subscriptions.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Success: true, Notifications: notifications})
}

func (s *Server) readNotifications(w http.ResponseWriter, _ *http.Request) {
	if err := s.deps.Subs.MarkNotificationsRead(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
