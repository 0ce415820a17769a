package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"aqua-backend/internal/feeding"
	"aqua-backend/internal/models"
)

type feedStatus struct {
	Feeding  bool              `json:"feeding"`
	LastFeed *models.FeedEvent `json:"last_feed,omitempty"`
}

type scheduleRequest struct {
	Hour    int   `json:"hour"`
	Minute  int   `json:"minute"`
	Enabled *bool `json:"enabled"`
}

func (s *Server) feedStatus() feedStatus {
	st := feedStatus{Feeding: s.deps.Feeding.Feeding()}
	if last, ok := s.deps.Feeding.LastFeed(); ok {
		st.LastFeed = &last
	}
	return st
}

func (s *Server) getFeedStatus(w http.ResponseWriter, _ *http.Request) error {
	s.respondJSON(w, http.StatusOK, s.feedStatus())
	return nil
}

func (s *Server) feedNow(w http.ResponseWriter, r *http.Request) error {
	if err := s.deps.Feeding.FeedNow(r.Context()); err != nil {
		return err
	}
	s.respondJSON(w, http.StatusOK, s.feedStatus())
	return nil
}

func (s *Server) listSchedules(w http.ResponseWriter, _ *http.Request) error {
	s.respondJSON(w, http.StatusOK, nonNil(s.deps.Feeding.List()))
	return nil
}

func (s *Server) addSchedule(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeJSON[scheduleRequest](r)
	if err != nil {
		return err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sched, err := s.deps.Feeding.Add(req.Hour, req.Minute, enabled)
	if err != nil {
		return err
	}
	s.respondJSON(w, http.StatusCreated, sched)
	return nil
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) error {
	upd, err := decodeJSON[feeding.ScheduleUpdate](r)
	if err != nil {
		return err
	}

	sched, err := s.deps.Feeding.Update(chi.URLParam(r, "id"), upd)
	if err != nil {
		return err
	}
	s.respondJSON(w, http.StatusOK, sched)
	return nil
}

func (s *Server) removeSchedule(w http.ResponseWriter, r *http.Request) error {
	if err := s.deps.Feeding.Remove(chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
