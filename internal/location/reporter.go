// Package location samples the device position on a fixed cadence and
// publishes it over the push channel while the actor is online. The
// reporter is a cancellable periodic task owned by its controller and
// torn down with it; no sample is published outside the online window.
package location

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/observability"
)

const locationDestination = "/app/driver/location"

// PositionProvider abstracts the geolocation source.
type PositionProvider interface {
	Current(ctx context.Context) (models.Coord, error)
}

// Publisher is the channel subset the reporter needs.
type Publisher interface {
	Publish(destination string, v any) error
}

type Reporter struct {
	provider PositionProvider
	pub      Publisher
	userID   int64
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	last    models.Coord
	hasLast bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewReporter(provider PositionProvider, pub Publisher, userID int64, interval time.Duration, log *slog.Logger) *Reporter {
	return &Reporter{provider: provider, pub: pub, userID: userID, interval: interval, log: log}
}

// Start begins sampling. No-op if already running.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop halts sampling immediately. Safe to call repeatedly; returns
// once the sampling goroutine has exited.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

// Last returns the most recent successful sample.
func (r *Reporter) Last() (models.Coord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.hasLast
}

func (r *Reporter) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reporter) tick(ctx context.Context) {
	sampleCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	pos, err := r.provider.Current(sampleCtx)
	if err != nil {
		// Not fatal: log and retry on the next tick.
		observability.LocationErrors.Inc()
		r.log.Warn("position sample failed", "err", err)
		return
	}

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.last = pos
	r.hasLast = true
	r.mu.Unlock()

	update := models.LocationUpdate{UserID: r.userID, Coordinates: pos}
	if err := r.pub.Publish(locationDestination, update); err != nil {
		r.log.Warn("location publish failed", "err", err)
		return
	}
	observability.LocationsPublished.Inc()
}
