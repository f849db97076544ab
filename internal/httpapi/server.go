// Package httpapi serves the agent's local status surface: the
// controller's current view for the UI layer, paged ride history, a
// health probe and prometheus metrics.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-client/internal/models"
)

// ViewFunc returns the owning controller's current snapshot.
type ViewFunc func() any

// HistoryFunc pages the ride history from the backend.
type HistoryFunc func(ctx context.Context, pageOffset, pageSize int) ([]models.Ride, error)

// FareFunc quotes a trip between two coordinates. Optional; rider
// agents wire the controller's fare estimate here.
type FareFunc func(ctx context.Context, pickup, dropoff models.Coord) (float64, error)

type Server struct {
	logger  *slog.Logger
	view    ViewFunc
	history HistoryFunc
	fare    FareFunc
	mux     *mux.Router
}

func NewServer(logger *slog.Logger, view ViewFunc, history HistoryFunc, fare FareFunc) *Server {
	s := &Server{logger: logger, view: view, history: history, fare: fare, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/state", s.handleState).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides", s.handleRides).Methods("GET")
	s.mux.HandleFunc("/api/v1/fare", s.handleFare).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.view()); err != nil {
		s.logger.Warn("state encode failed", "err", err)
	}
}

func (s *Server) handleRides(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history not available", http.StatusNotFound)
		return
	}
	offset := intQuery(r, "pageOffset", 0)
	size := intQuery(r, "pageSize", 10)
	rides, err := s.history(r.Context(), offset, size)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rides)
}

func (s *Server) handleFare(w http.ResponseWriter, r *http.Request) {
	if s.fare == nil {
		http.Error(w, "fare estimate not available", http.StatusNotFound)
		return
	}
	pickup, err := coordQuery(r, "pickupLon", "pickupLat")
	if err != nil {
		http.Error(w, "pickup coordinates required", http.StatusBadRequest)
		return
	}
	dropoff, err := coordQuery(r, "dropoffLon", "dropoffLat")
	if err != nil {
		http.Error(w, "dropoff coordinates required", http.StatusBadRequest)
		return
	}
	fare, err := s.fare(r.Context(), pickup, dropoff)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]float64{"fare": fare})
}

func coordQuery(r *http.Request, lonKey, latKey string) (models.Coord, error) {
	lon, err := strconv.ParseFloat(r.URL.Query().Get(lonKey), 64)
	if err != nil {
		return models.Coord{}, err
	}
	lat, err := strconv.ParseFloat(r.URL.Query().Get(latKey), 64)
	if err != nil {
		return models.Coord{}, err
	}
	return models.Coord{lon, lat}, nil
}

func intQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return def
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
