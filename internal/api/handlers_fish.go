package api

import (
	"net/http"
	"strings"

	"aqua-backend/internal/compat"
	"aqua-backend/internal/models"
	"aqua-backend/internal/recommend"
)

type waterTypeBody struct {
	WaterType compat.WaterType `json:"water_type"`
}

// compareRequest names a catalog fish or carries an ad hoc profile
type compareRequest struct {
	Fish    string              `json:"fish"`
	Profile *compat.FishProfile `json:"profile"`
}

type recommendRequest struct {
	Length      float64  `json:"length"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
	Temperature *float64 `json:"temperature"`
}

type recommendResponse struct {
	VolumeLiters float64          `json:"volume_liters"`
	Temperature  float64          `json:"temperature"`
	Fish         []recommend.Fish `json:"fish"`
}

type lookupRequest struct {
	Name string `json:"name"`
}

func (s *Server) getWaterType(w http.ResponseWriter, _ *http.Request) error {
	s.respondJSON(w, http.StatusOK, waterTypeBody{WaterType: s.deps.Water.Get()})
	return nil
}

func (s *Server) setWaterType(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeJSON[waterTypeBody](r)
	if err != nil {
		return err
	}
	if err := s.deps.Water.Set(req.WaterType); err != nil {
		return badRequest("%v", err)
	}
	s.respondJSON(w, http.StatusOK, waterTypeBody{WaterType: s.deps.Water.Get()})
	return nil
}

func (s *Server) listCatalog(w http.ResponseWriter, _ *http.Request) error {
	s.respondJSON(w, http.StatusOK, nonNil(s.deps.Catalog.List()))
	return nil
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeJSON[compareRequest](r)
	if err != nil {
		return err
	}

	var profile compat.FishProfile
	switch {
	case req.Profile != nil:
		if err := req.Profile.Validate(); err != nil {
			return badRequest("%v", err)
		}
		profile = *req.Profile
	case strings.TrimSpace(req.Fish) != "":
		if profile, err = s.deps.Catalog.Find(req.Fish); err != nil {
			return err
		}
	default:
		return badRequest("fish or profile is required")
	}

	report := compat.Analyze(profile, s.conditions())
	s.respondJSON(w, http.StatusOK, report)
	return nil
}

// conditions collects the live tank state. Before the first reading every
// metric is missing; afterwards a metric with no samples and a zero value is.
func (s *Server) conditions() compat.Conditions {
	snap := s.deps.Telemetry.Snapshot()
	missing := make(map[models.Metric]bool)
	for _, m := range models.AllMetrics {
		if snap.UpdatedAt.IsZero() || (snap.Value(m) == 0 && len(s.deps.Telemetry.History(m)) == 0) {
			missing[m] = true
		}
	}
	return compat.Conditions{Snapshot: snap, Water: s.deps.Water.Get(), Missing: missing}
}

// recommend uses the live temperature unless the request overrides it, and
// the configured default while no temperature has been reported
func (s *Server) recommend(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeJSON[recommendRequest](r)
	if err != nil {
		return err
	}

	tank := recommend.Tank{Length: req.Length, Width: req.Width, Height: req.Height}
	if err := tank.Validate(); err != nil {
		return err
	}

	var temperature float64
	switch cond := s.conditions(); {
	case req.Temperature != nil:
		temperature = *req.Temperature
	case cond.Missing[models.MetricTemperature]:
		temperature = s.deps.DefaultTemperature
	default:
		temperature = cond.Snapshot.Temperature
	}

	fish, err := s.deps.Recommender.Recommend(r.Context(), tank, temperature)
	if err != nil {
		return err
	}

	s.respondJSON(w, http.StatusOK, recommendResponse{
		VolumeLiters: tank.VolumeLiters(),
		Temperature:  temperature,
		Fish:         nonNil(fish),
	})
	return nil
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeJSON[lookupRequest](r)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Name) == "" {
		return badRequest("name is required")
	}

	info, err := s.deps.Recommender.LookupFish(r.Context(), req.Name)
	if err != nil {
		return err
	}
	s.respondJSON(w, http.StatusOK, info)
	return nil
}
