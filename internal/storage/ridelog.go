package storage

import (
	"sync"

	"github.com/example/ride-client/internal/models"
)

// RideLog records rides the controllers have seen reach a terminal
// state. Best-effort: controllers log failures but never block on it.
// SaveRide upserts, so redelivered terminal snapshots are harmless.
type RideLog interface {
	SaveRide(r *models.Ride) error
}

type MemoryLog struct {
	mu    sync.RWMutex
	rides map[int64]*models.Ride
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{rides: make(map[int64]*models.Ride)}
}

func (m *MemoryLog) SaveRide(r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = r
	return nil
}

func (m *MemoryLog) Get(id int64) (*models.Ride, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	return r, ok
}
