package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/observability"
)

// Resolver looks up driving routes against an OSRM HTTP server.
// Resolve never fails: any error degrades to the straight line
// between the endpoints, so callers need no fallback of their own.
type Resolver struct {
	Endpoint string
	Client   *http.Client
	Log      *slog.Logger

	cache *Cache
}

func NewResolver(endpoint string, cacheTTL time.Duration, log *slog.Logger) *Resolver {
	r := &Resolver{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 5 * time.Second},
		Log:      log,
	}
	if cacheTTL > 0 {
		r.cache = NewCache(cacheTTL)
	}
	return r
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates []models.Coord `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Resolve returns the driving polyline from start to end. The result
// always has length >= 2, begins at start and ends at end.
func (r *Resolver) Resolve(ctx context.Context, start, end models.Coord) models.Polyline {
	if r.cache != nil {
		if line, ok := r.cache.Get(start, end); ok {
			return line
		}
	}

	out, err := r.query(ctx, start, end, "overview=full&geometries=geojson")
	if err != nil {
		observability.RouteFallbacks.Inc()
		r.Log.Warn("route lookup failed, using straight line", "err", err)
		return models.Polyline{start, end}
	}

	line := models.Polyline(out.Routes[0].Geometry.Coordinates)
	if len(line) < 2 {
		observability.RouteFallbacks.Inc()
		return models.Polyline{start, end}
	}
	// OSRM snaps endpoints to the road network; pin the exact ones.
	line[0] = start
	line[len(line)-1] = end

	if r.cache != nil {
		r.cache.Set(start, end, line)
	}
	return line
}

// TravelTime estimates the driving duration between two points,
// falling back to haversine distance at city speed when the routing
// service is unreachable.
func (r *Resolver) TravelTime(ctx context.Context, start, end models.Coord) time.Duration {
	out, err := r.query(ctx, start, end, "overview=false")
	if err != nil {
		const citySpeedKmh = 30.0
		km := HaversineKm(start, end)
		return time.Duration(km / citySpeedKmh * float64(time.Hour))
	}
	return time.Duration(out.Routes[0].Duration * float64(time.Second))
}

func (r *Resolver) query(ctx context.Context, start, end models.Coord, params string) (*osrmResponse, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?%s",
		r.Endpoint, start.Lon(), start.Lat(), end.Lon(), end.Lat(), params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osrm status %d", resp.StatusCode)
	}
	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, fmt.Errorf("osrm no route: %v", out.Code)
	}
	return &out, nil
}

// HaversineKm is the great-circle distance between two points in km.
func HaversineKm(a, b models.Coord) float64 {
	const R = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(b.Lat() - a.Lat())
	dLon := toRad(b.Lon() - a.Lon())
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat()))*math.Cos(toRad(b.Lat()))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return R * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
