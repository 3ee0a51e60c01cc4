package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"skyroute/internal/geo"
	"skyroute/internal/models"
	"skyroute/internal/route"

	"github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
	maxRequestBody    = 1 << 20
)

var errInvalidRequest = errors.New("invalid request")

// routeRequest accepts the English field names and the Spanish aliases sent by older
// dashboard clients
type routeRequest struct {
	Origin        []float64   `json:"origin"`
	Destination   []float64   `json:"destination"`
	Constraints   [][]float64 `json:"constraints"`
	Origen        []float64   `json:"origen"`
	Destino       []float64   `json:"destino"`
	Restricciones [][]float64 `json:"restricciones"`
}

type routeResponse struct {
	Status          string          `json:"status"`
	DistanceKm      float64         `json:"distanceKm"`
	OrderedPoints   [][2]float64    `json:"orderedPoints"`
	IsCriticalAlert bool            `json:"isCriticalAlert"`
	Geometry        json.RawMessage `json:"geometry,omitempty"`
	Projected       [][2]float64    `json:"projected"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOptimizeRoute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	origin, destination, waypoints, err := decodeRouteRequest(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := cacheKey(origin, destination, waypoints)
	if cached, ok := s.cache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	res, err := s.optimizer.Optimize(origin, destination, waypoints)
	if err != nil {
		slog.Error("Route optimization failed", "error", err)
		writeError(w, http.StatusInternalServerError, "route optimization failed")
		return
	}

	geometry, err := geo.GeoJSON(res.Points)
	if err != nil {
		slog.Error("Failed to build route geometry", "error", err)
		writeError(w, http.StatusInternalServerError, "route optimization failed")
		return
	}

	ordered := make([][2]float64, len(res.Points))
	for i, p := range res.Points {
		ordered[i] = [2]float64{p.Lat, p.Lon}
	}

	resp := routeResponse{
		Status:          "success",
		DistanceKm:      res.DistanceKm,
		OrderedPoints:   ordered,
		IsCriticalAlert: route.IsCritical(res, len(waypoints), s.critical),
		Geometry:        geometry,
		Projected:       geo.ProjectAll(res.Points),
	}
	s.cache.Add(key, resp)

	slog.Info("Route optimized",
		"waypoints", len(waypoints),
		"distance_km", res.DistanceKm,
		"critical", resp.IsCriticalAlert,
	)
	writeJSON(w, http.StatusOK, resp)
}

func decodeRouteRequest(body io.Reader) (geo.Point, geo.Point, []geo.Point, error) {
	var req routeRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return geo.Point{}, geo.Point{}, nil, fmt.Errorf("%w: malformed JSON body", errInvalidRequest)
	}

	rawOrigin := req.Origin
	if rawOrigin == nil {
		rawOrigin = req.Origen
	}
	rawDestination := req.Destination
	if rawDestination == nil {
		rawDestination = req.Destino
	}
	rawConstraints := req.Constraints
	if rawConstraints == nil {
		rawConstraints = req.Restricciones
	}

	origin, err := parsePoint("origin", rawOrigin)
	if err != nil {
		return geo.Point{}, geo.Point{}, nil, err
	}
	destination, err := parsePoint("destination", rawDestination)
	if err != nil {
		return geo.Point{}, geo.Point{}, nil, err
	}

	waypoints := make([]geo.Point, 0, len(rawConstraints))
	for i, c := range rawConstraints {
		p, err := parsePoint(fmt.Sprintf("constraints[%d]", i), c)
		if err != nil {
			return geo.Point{}, geo.Point{}, nil, err
		}
		waypoints = append(waypoints, p)
	}

	return origin, destination, waypoints, nil
}

func parsePoint(field string, raw []float64) (geo.Point, error) {
	if raw == nil {
		return geo.Point{}, fmt.Errorf("%w: %s is required", errInvalidRequest, field)
	}
	if len(raw) != 2 {
		return geo.Point{}, fmt.Errorf("%w: %s must be [lat, lon]", errInvalidRequest, field)
	}
	p := geo.NewPoint(raw[0], raw[1])
	if !geo.Valid(p) {
		return geo.Point{}, fmt.Errorf("%w: %s is out of range", errInvalidRequest, field)
	}
	return p, nil
}

func cacheKey(origin, destination geo.Point, waypoints []geo.Point) string {
	var b strings.Builder
	write := func(p geo.Point) {
		b.WriteString(strconv.FormatFloat(p.Lat, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p.Lon, 'g', -1, 64))
		b.WriteByte(';')
	}
	write(origin)
	write(destination)
	for _, p := range waypoints {
		write(p)
	}
	return b.String()
}

type flightsResponse struct {
	Status    string                  `json:"status"`
	Source    string                  `json:"source"`
	UpdatedAt *time.Time              `json:"updated_at,omitempty"`
	Flights   []models.Aircraft       `json:"flights"`
	Conflicts []models.ConflictRecord `json:"conflicts"`
	Alerts    []models.Alert          `json:"alerts"`
}

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.flights == nil {
		writeError(w, http.StatusServiceUnavailable, "flight monitoring is disabled")
		return
	}

	snap := s.flights.Latest()
	resp := flightsResponse{
		Status:    "ok",
		Source:    snap.Source,
		Flights:   nonNil(snap.Flights),
		Conflicts: nonNil(snap.Conflicts),
		Alerts:    nonNil(snap.Alerts),
	}
	if !snap.At.IsZero() {
		resp.UpdatedAt = &snap.At
	}
	writeJSON(w, http.StatusOK, resp)
}

type statisticsResponse struct {
	Status           string `json:"status"`
	TotalFlights     int    `json:"total_flights"`
	PassengerFlights int    `json:"passenger_flights"`
	CargoFlights     int    `json:"cargo_flights"`
	UnknownFlights   int    `json:"unknown_flights"`
	KnownConflicts   int    `json:"known_conflicts"`
	Zones            int    `json:"zones"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.traffic == nil {
		writeError(w, http.StatusServiceUnavailable, "flight monitoring is disabled")
		return
	}

	st := s.traffic.Statistics()
	writeJSON(w, http.StatusOK, statisticsResponse{
		Status:           "ok",
		TotalFlights:     st.TotalFlights,
		PassengerFlights: st.PassengerFlights,
		CargoFlights:     st.CargoFlights,
		UnknownFlights:   st.UnknownFlights,
		KnownConflicts:   st.KnownConflicts,
		Zones:            st.Zones,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alert storage is disabled")
		return
	}

	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAlertLimit)
	}

	alerts, err := s.alerts.Recent(limit)
	if err != nil {
		slog.Error("Failed to read alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"alerts": nonNil(alerts),
	})
}

type zoneView struct {
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusKm float64 `json:"radius_km"`
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.traffic == nil {
		writeError(w, http.StatusServiceUnavailable, "flight monitoring is disabled")
		return
	}

	zones := s.traffic.Zones()
	out := make([]zoneView, len(zones))
	for i, z := range zones {
		out[i] = zoneView{Name: z.Name, Lat: z.Center.Lat, Lon: z.Center.Lon, RadiusKm: z.RadiusKm}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"zones":  out,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream is disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	c, ok := s.hub.subscribe(r.RemoteAddr)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "event stream is shutting down")
		return
	}
	defer s.hub.unsubscribe(c)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case msg, open := <-c.send:
			if !open {
				return
			}
			if _, err := w.Write(msg); err != nil {
				slog.Debug("SSE write failed", "client", c.id, "error", err)
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
