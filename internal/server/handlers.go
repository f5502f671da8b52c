package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"gorm.io/gorm"

	"github.com/TerraCast/TC-Backend/internal/alerts"
	"github.com/TerraCast/TC-Backend/internal/crs"
	"github.com/TerraCast/TC-Backend/internal/geo"
	"github.com/TerraCast/TC-Backend/internal/vault"
	"github.com/TerraCast/TC-Backend/internal/weather"
)

func userID(r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	return id, id != ""
}

func (s *Server) IngestHandler(w http.ResponseWriter, r *http.Request) {
	var fc geo.FeatureCollection
	if err := json.NewDecoder(r.Body).Decode(&fc); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.Ingest.Run(r.Context(), &fc)
	if err != nil {
		switch {
		case errors.Is(err, geo.ErrEmptyInput):
			http.Error(w, "Empty feature collection", http.StatusBadRequest)
		case errors.Is(err, geo.ErrUnsupportedGeometryType):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, crs.ErrResolutionFailed):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, "Ingest failed: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) DeleteBatchHandler(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	deleted, err := s.Regions.DeleteBatch(r.Context(), batchID)
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if deleted == 0 {
		http.Error(w, "Batch not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
}

func (s *Server) ListDatesHandler(w http.ResponseWriter, r *http.Request) {
	dates, err := s.Snapshots.ListDates(r.Context())
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dates); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// dateRef reads date_id or at from query parameters.
func dateRef(r *http.Request) (weather.DateRef, error) {
	if id := r.URL.Query().Get("date_id"); id != "" {
		return weather.DateRef{ID: id}, nil
	}
	if raw := r.URL.Query().Get("at"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return weather.DateRef{}, err
		}
		return weather.DateRef{At: &at}, nil
	}
	return weather.DateRef{}, errors.New("date_id or at is required")
}

func bboxFilter(r *http.Request) (*weather.SpatialFilter, error) {
	q := r.URL.Query()
	keys := []string{"min_lon", "min_lat", "max_lon", "max_lat"}
	present := 0
	for _, k := range keys {
		if q.Get(k) != "" {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present < len(keys) {
		return nil, errors.New("bounding box needs all of min_lon, min_lat, max_lon, max_lat")
	}

	vals := make([]float64, 0, len(keys))
	for _, k := range keys {
		v, err := strconv.ParseFloat(q.Get(k), 64)
		if err != nil {
			return nil, errors.New("invalid " + k)
		}
		vals = append(vals, v)
	}
	bound := orb.Bound{
		Min: orb.Point{vals[0], vals[1]},
		Max: orb.Point{vals[2], vals[3]},
	}
	return &weather.SpatialFilter{Box: &bound}, nil
}

func (s *Server) QueryHandler(w http.ResponseWriter, r *http.Request) {
	ref, err := dateRef(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter, err := bboxFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := s.Query.QueryRegionsWithWeather(r.Context(), ref, filter, IsAuthenticated(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, weather.ErrNoSnapshotDate), errors.Is(err, gorm.ErrRecordNotFound):
			http.Error(w, "No snapshot date", http.StatusNotFound)
		default:
			http.Error(w, "Query failed: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) PolygonQueryHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DateID  string         `json:"date_id"`
		At      *time.Time     `json:"at"`
		Polygon [][][2]float64 `json:"polygon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(input.Polygon) == 0 {
		http.Error(w, "Polygon is required", http.StatusBadRequest)
		return
	}

	poly := make(orb.Polygon, len(input.Polygon))
	for i, ring := range input.Polygon {
		pts := make(orb.Ring, len(ring))
		for j, pt := range ring {
			pts[j] = orb.Point{pt[0], pt[1]}
		}
		poly[i] = pts
	}

	ref := weather.DateRef{ID: input.DateID, At: input.At}
	rows, err := s.Query.QueryRegionsWithWeather(r.Context(), ref,
		&weather.SpatialFilter{Polygon: poly}, IsAuthenticated(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, weather.ErrNoSnapshotDate), errors.Is(err, gorm.ErrRecordNotFound):
			http.Error(w, "No snapshot date", http.StatusNotFound)
		default:
			http.Error(w, "Query failed: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) ListRulesHandler(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Rules.List(r.Context())
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rules); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) SaveRuleHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ID           string         `json:"id"`
		Field        string         `json:"field"`
		AuthRequired bool           `json:"auth_required"`
		Active       bool           `json:"active"`
		Ranges       []alerts.Range `json:"ranges"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if input.Field == "" {
		http.Error(w, "Field is required", http.StatusBadRequest)
		return
	}

	m := &alerts.Metadata{
		ID:           input.ID,
		Field:        input.Field,
		AuthRequired: input.AuthRequired,
		Active:       input.Active,
	}
	if err := m.SetRanges(input.Ranges); err != nil {
		http.Error(w, "Invalid ranges: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Rules.Save(r.Context(), m); err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(m); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) DeleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Rules.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ComputeAlertsHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "Missing X-User-ID header", http.StatusBadRequest)
		return
	}

	var input struct {
		LookaheadDays int `json:"lookahead_days"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	if input.LookaheadDays <= 0 {
		input.LookaheadDays = 5
	}

	locs, err := s.Vault.List(r.Context(), uid)
	if err != nil {
		http.Error(w, "Vault error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	points := make([]alerts.Point, len(locs))
	for i, l := range locs {
		points[i] = alerts.Point{ID: l.ID, Label: l.Label, Lon: l.Lon, Lat: l.Lat}
	}

	matched, err := s.Alerts.ComputeAlerts(r.Context(), points, input.LookaheadDays)
	if err != nil {
		http.Error(w, "Alert matching failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if matched == nil {
		matched = []alerts.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(matched); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) ListLocationsHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "Missing X-User-ID header", http.StatusBadRequest)
		return
	}

	locs, err := s.Vault.List(r.Context(), uid)
	if err != nil {
		http.Error(w, "Vault error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(locs); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) StoreLocationHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "Missing X-User-ID header", http.StatusBadRequest)
		return
	}

	var input vault.PlainLocation
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stored, err := s.Vault.Store(r.Context(), uid, input)
	if err != nil {
		http.Error(w, "Vault error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(stored); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) RemoveLocationHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "Missing X-User-ID header", http.StatusBadRequest)
		return
	}

	err := s.Vault.Remove(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, vault.ErrLocationNotFound) {
			http.Error(w, "Location not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Vault error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
