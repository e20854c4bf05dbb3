package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sdvuuv/spitec/internal/config"
	"github.com/sdvuuv/spitec/internal/dataset"
	"github.com/sdvuuv/spitec/internal/products"
	"github.com/sdvuuv/spitec/internal/region"
	"github.com/sdvuuv/spitec/internal/sites"
	"github.com/sdvuuv/spitec/internal/storage"
	"github.com/sdvuuv/spitec/internal/trajectory"
	"github.com/sdvuuv/spitec/pkg/logger"
)

// Reloader reloads the data set and refreshes connected sessions
type Reloader interface {
	Reload(ctx context.Context) (int, error)
}

// Handler contains the API handlers
type Handler struct {
	service  *dataset.Service
	reloader Reloader
	config   *config.Config
	logger   *logger.Logger
	started  time.Time
}

// NewHandler creates a new API handler
func NewHandler(service *dataset.Service, reloader Reloader, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		service:  service,
		reloader: reloader,
		config:   cfg,
		logger:   log.Named("api-handler"),
		started:  time.Now(),
	}
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	siteCount := 0
	if dir, err := h.service.Directory(r.Context()); err != nil {
		h.logger.Warn("Health check could not load sites", logger.Error(err))
		status = "degraded"
	} else {
		siteCount = dir.Len()
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":              status,
		"sites":               siteCount,
		"cached_trajectories": h.service.CachedTrajectories(),
		"uptime_seconds":      int(time.Since(h.started).Seconds()),
	})
}

// GetConfig returns the public configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	productList := make([]map[string]string, 0, len(products.All))
	for _, p := range products.All {
		productList = append(productList, map[string]string{"name": string(p), "long_name": p.LongName()})
	}

	publicConfig := map[string]any{
		"trajectory": map[string]any{
			"shell_height_km":       h.config.Trajectory.ShellHeightKm,
			"max_shell_height_km":   h.config.Trajectory.MaxShellHeightKm,
			"gap_threshold_minutes": h.config.Trajectory.GapThresholdMinutes,
			"break_offset_seconds":  h.config.Trajectory.BreakOffsetSeconds,
			"break_group_size":      trajectory.BreakGroupSize,
		},
		"region": map[string]any{
			"bbox": region.BoundingBox{
				MinLat: h.config.Region.MinLat,
				MaxLat: h.config.Region.MaxLat,
				MinLon: h.config.Region.MinLon,
				MaxLon: h.config.Region.MaxLon,
			},
			"default_radius_km": h.config.Region.DefaultRadiusKm,
		},
		"products":        productList,
		"default_product": products.Default,
		"default_shift":   products.DefaultShift,
	}

	WriteJSON(w, http.StatusOK, publicConfig)
}

// GetSites returns every station with coordinates in degrees
func (h *Handler) GetSites(w http.ResponseWriter, r *http.Request) {
	stations, err := h.service.Sites(r.Context())
	if err != nil {
		h.writeError(w, "Failed to load sites", err)
		return
	}

	type siteResponse struct {
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
	}
	response := make([]siteResponse, 0, len(stations))
	for _, st := range stations {
		response = append(response, siteResponse{Name: st.Name, Lat: st.LatDeg(), Lon: st.LonDeg()})
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"sites": response,
		"count": len(response),
	})
}

// SelectBoundingBox returns the stations inside a lat/lon box
func (h *Handler) SelectBoundingBox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	box := region.BoundingBox{
		MinLat: h.config.Region.MinLat,
		MaxLat: h.config.Region.MaxLat,
		MinLon: h.config.Region.MinLon,
		MaxLon: h.config.Region.MaxLon,
	}

	for name, target := range map[string]*float64{
		"min_lat": &box.MinLat,
		"max_lat": &box.MaxLat,
		"min_lon": &box.MinLon,
		"max_lon": &box.MaxLon,
	} {
		if err := parseFloatParam(q.Get(name), target); err != nil {
			http.Error(w, fmt.Sprintf("Invalid %s: %v", name, err), http.StatusBadRequest)
			return
		}
	}

	sel, err := h.service.SelectBoundingBox(r.Context(), box)
	if err != nil {
		h.writeError(w, "Failed to select region", err)
		return
	}
	writeSelection(w, sel)
}

// SelectCircle returns the stations within a radius of a point
func (h *Handler) SelectCircle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	circle := region.Circle{RadiusKm: h.config.Region.DefaultRadiusKm}

	if q.Get("lat") == "" || q.Get("lon") == "" {
		http.Error(w, "Missing lat or lon", http.StatusBadRequest)
		return
	}
	for name, target := range map[string]*float64{
		"lat":       &circle.Lat,
		"lon":       &circle.Lon,
		"radius_km": &circle.RadiusKm,
	} {
		if err := parseFloatParam(q.Get(name), target); err != nil {
			http.Error(w, fmt.Sprintf("Invalid %s: %v", name, err), http.StatusBadRequest)
			return
		}
	}

	sel, err := h.service.SelectRadius(r.Context(), circle)
	if err != nil {
		h.writeError(w, "Failed to select region", err)
		return
	}
	writeSelection(w, sel)
}

func writeSelection(w http.ResponseWriter, sel region.Selection) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"sites":   sel.Names(),
		"indices": sel,
		"count":   len(sel),
	})
}

// GetSatellites lists the satellites a station observed
func (h *Handler) GetSatellites(w http.ResponseWriter, r *http.Request) {
	site := strings.ToLower(chi.URLParam(r, "site"))
	if site == "" {
		http.Error(w, "Missing site", http.StatusBadRequest)
		return
	}

	sats, err := h.service.Satellites(r.Context(), site)
	if err != nil {
		h.writeError(w, "Failed to list satellites", err)
		return
	}
	if sats == nil {
		sats = []string{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"site":       site,
		"satellites": sats,
	})
}

// GetTrajectory returns the full trajectory of one satellite seen from one
// station, with the window and tag resolved from the query
func (h *Handler) GetTrajectory(w http.ResponseWriter, r *http.Request) {
	site := strings.ToLower(chi.URLParam(r, "site"))
	sat := strings.ToUpper(chi.URLParam(r, "sat"))
	q := r.URL.Query()

	var hm float64
	if err := parseFloatParam(q.Get("hm"), &hm); err != nil {
		http.Error(w, fmt.Sprintf("Invalid hm: %v", err), http.StatusBadRequest)
		return
	}
	start, err := parseTimeParam(q.Get("start"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid start: %v", err), http.StatusBadRequest)
		return
	}
	end, err := parseTimeParam(q.Get("end"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid end: %v", err), http.StatusBadRequest)
		return
	}
	tag, err := parseTimeParam(q.Get("tag"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid tag: %v", err), http.StatusBadRequest)
		return
	}

	t, err := h.service.Trajectory(r.Context(), site, sat, hm)
	if err != nil {
		h.writeError(w, "Failed to build trajectory", err)
		return
	}

	window := t.Full()
	if !start.IsZero() || !end.IsZero() {
		if start.IsZero() || end.IsZero() {
			http.Error(w, "start and end must be given together", http.StatusBadRequest)
			return
		}
		window = t.Clip(start, end)
	}

	response := map[string]any{
		"trajectory": t,
		"window":     window,
		"valid":      window.Valid(),
	}
	if p, ok := t.Endpoint(window); ok {
		response["endpoint"] = p
	}
	if !tag.IsZero() {
		if p, ok := t.TagPosition(tag, window); ok {
			response["tag"] = p
		}
	}

	WriteJSON(w, http.StatusOK, response)
}

// PostView builds a map view for several stations
func (h *Handler) PostView(w http.ResponseWriter, r *http.Request) {
	var req dataset.ViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	for i := range req.Sites {
		req.Sites[i] = strings.ToLower(req.Sites[i])
	}

	view, err := h.service.View(r.Context(), req)
	if err != nil {
		h.writeError(w, "Failed to build view", err)
		return
	}

	WriteJSON(w, http.StatusOK, view)
}

// GetSeries returns stacked product series for the time-series plot
func (h *Handler) GetSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var siteNames []string
	for _, name := range strings.Split(q.Get("sites"), ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			siteNames = append(siteNames, name)
		}
	}
	if len(siteNames) == 0 {
		http.Error(w, "Missing sites", http.StatusBadRequest)
		return
	}

	product := products.Parse(q.Get("product"))
	var shift float64
	if err := parseFloatParam(q.Get("shift"), &shift); err != nil {
		http.Error(w, fmt.Sprintf("Invalid shift: %v", err), http.StatusBadRequest)
		return
	}

	series, err := h.service.Series(r.Context(), siteNames, strings.ToUpper(q.Get("sat")), product, shift)
	if err != nil {
		h.writeError(w, "Failed to load series", err)
		return
	}

	// Optional hour slider window on a given day
	if day := q.Get("date"); day != "" {
		start, end, err := parseHourWindow(day, q.Get("start_hour"), q.Get("end_hour"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for i := range series {
			series[i] = series[i].Between(start, end)
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"product":   product,
		"long_name": product.LongName(),
		"series":    series,
	})
}

// PostReload re-reads the data set
func (h *Handler) PostReload(w http.ResponseWriter, r *http.Request) {
	count, err := h.reloader.Reload(r.Context())
	if err != nil {
		h.writeError(w, "Failed to reload data set", err)
		return
	}
	h.logger.Info("Data set reloaded via API", logger.Int("sites", count))
	WriteJSON(w, http.StatusOK, map[string]any{"sites": count})
}

// writeError maps service errors to status codes
func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, sites.ErrSiteNotFound), errors.Is(err, storage.ErrSatelliteNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, dataset.ErrInvalidWindow),
		errors.Is(err, dataset.ErrInvalidShellHeight),
		errors.Is(err, dataset.ErrInvalidRegion),
		errors.Is(err, dataset.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
	default:
		h.logger.Error(msg, logger.Error(err))
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// parseFloatParam leaves target unchanged when raw is empty. NaN and
// infinities are rejected.
func parseFloatParam(raw string, target *float64) error {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%q is not a finite number", raw)
	}
	*target = v
	return nil
}

// parseTimeParam accepts RFC 3339; empty gives the zero time
func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseHourWindow(day, startHour, endHour string) (time.Time, time.Time, error) {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date: %w", err)
	}
	from, to := 0, 24
	if startHour != "" {
		if from, err = strconv.Atoi(startHour); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_hour: %w", err)
		}
	}
	if endHour != "" {
		if to, err = strconv.Atoi(endHour); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_hour: %w", err)
		}
	}
	return products.HourWindow(d, from, to)
}
