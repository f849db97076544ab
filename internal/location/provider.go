package location

import (
	"context"
	"sync"

	"github.com/example/ride-client/internal/models"
)

// StaticProvider reports a fixed position. Useful for riders and for
// drivers parked between rides.
type StaticProvider struct {
	mu  sync.Mutex
	pos models.Coord
}

func NewStaticProvider(pos models.Coord) *StaticProvider {
	return &StaticProvider{pos: pos}
}

func (s *StaticProvider) Set(pos models.Coord) {
	s.mu.Lock()
	s.pos = pos
	s.mu.Unlock()
}

func (s *StaticProvider) Current(ctx context.Context) (models.Coord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, nil
}

// RouteFollower walks the active polyline one vertex per sample,
// holding the final vertex once the route is exhausted. Assigning a
// new route restarts from its first vertex.
type RouteFollower struct {
	mu   sync.Mutex
	line models.Polyline
	idx  int
	base models.Coord
}

func NewRouteFollower(base models.Coord) *RouteFollower {
	return &RouteFollower{base: base}
}

func (f *RouteFollower) SetRoute(line models.Polyline) {
	f.mu.Lock()
	f.line = line
	f.idx = 0
	f.mu.Unlock()
}

func (f *RouteFollower) Current(ctx context.Context) (models.Coord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.line) == 0 {
		return f.base, nil
	}
	pos := f.line[f.idx]
	if f.idx < len(f.line)-1 {
		f.idx++
	}
	f.base = pos
	return pos, nil
}
