package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"aqua-backend/internal/models"
)

const defaultArchiveRange = 24 * time.Hour

type historyResponse struct {
	Metric models.Metric         `json:"metric"`
	Unit   string                `json:"unit"`
	Points []models.HistoryPoint `json:"points"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) error {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mqtt":   s.deps.Connection.Status().State,
	})
	return nil
}

func (s *Server) getSnapshot(w http.ResponseWriter, _ *http.Request) error {
	s.respondJSON(w, http.StatusOK, s.deps.Telemetry.Snapshot())
	return nil
}

// getHistory serves the in-memory history, optionally limited to ?window=<duration>
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) error {
	metric, err := metricParam(r)
	if err != nil {
		return err
	}

	var points []models.HistoryPoint
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			return badRequest("window must be a positive duration such as 1h")
		}
		points = s.deps.Telemetry.HistorySince(metric, s.now().Add(-window))
	} else {
		points = s.deps.Telemetry.History(metric)
	}

	s.respondJSON(w, http.StatusOK, historyResponse{Metric: metric, Unit: metric.Unit(), Points: nonNil(points)})
	return nil
}

// getArchive reads [from, to) from the reading archive. Both bounds are RFC 3339
// and default to the last day.
func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) error {
	if s.deps.Archive == nil {
		return &httpError{Status: http.StatusServiceUnavailable, Message: "reading archive is disabled"}
	}

	metric, err := metricParam(r)
	if err != nil {
		return err
	}

	q := r.URL.Query()
	to := s.now()
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return badRequest("to must be an RFC 3339 timestamp")
		}
	}
	from := to.Add(-defaultArchiveRange)
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return badRequest("from must be an RFC 3339 timestamp")
		}
	}
	if !from.Before(to) {
		return badRequest("from must be before to")
	}

	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		return err
	}

	points, err := s.deps.Archive.QueryHistory(r.Context(), metric, from, to, limit)
	if err != nil {
		return err
	}

	s.respondJSON(w, http.StatusOK, historyResponse{Metric: metric, Unit: metric.Unit(), Points: nonNil(points)})
	return nil
}

func metricParam(r *http.Request) (models.Metric, error) {
	metric, err := models.ParseMetric(chi.URLParam(r, "metric"))
	if err != nil {
		return "", badRequest("%v", err)
	}
	return metric, nil
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", key)
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
