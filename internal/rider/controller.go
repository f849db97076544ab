// Package rider is the rider-side ride lifecycle controller. It
// subscribes to the four per-rider push topics, each carrying a full
// ride snapshot, and applies them idempotently: status mapping is a
// pure function, snapshots replace the held ride wholesale, and a
// snapshot never moves the ride backward.
package rider

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/example/ride-client/internal/channel"
	"github.com/example/ride-client/internal/events"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/observability"
	"github.com/example/ride-client/internal/storage"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateSearching State = "SEARCHING"
	StateConfirmed State = "CONFIRMED"
	StateOngoing   State = "ONGOING"
	StateEnded     State = "ENDED"
	StateCancelled State = "CANCELLED"
)

// StateForStatus maps a backend ride status to the controller state.
// Pure: no hidden state, same input always gives the same output.
func StateForStatus(s models.RideStatus) State {
	switch s {
	case models.StatusPending:
		return StateSearching
	case models.StatusConfirmed:
		return StateConfirmed
	case models.StatusOngoing:
		return StateOngoing
	case models.StatusEnded:
		return StateEnded
	case models.StatusCancelled:
		return StateCancelled
	}
	return StateIdle
}

type Gateway interface {
	RequestRide(ctx context.Context, pickup, dropoff models.Coord, pm models.PaymentMethod) (*models.Ride, error)
	CancelRideAsRider(ctx context.Context, rideID int64) (*models.Ride, error)
	GetPricing(ctx context.Context, pickup, dropoff models.Coord) (float64, error)
}

type Bus interface {
	Subscribe(topic string, h channel.Handler)
	Unsubscribe(topic string)
}

type RouteSource interface {
	Resolve(ctx context.Context, start, end models.Coord) models.Polyline
}

// Wallet is the optional payment hook for WALLET rides: hold on
// confirmation, capture on end, release on cancellation.
type Wallet interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Release(ctx context.Context, paymentIntentID string) error
}

type Controller struct {
	gw      Gateway
	bus     Bus
	routes  RouteSource
	wallet  Wallet
	rideLog storage.RideLog
	log     *slog.Logger

	riderID int64

	// OnSnapshot, when set, observes every applied ride snapshot.
	// The agent uses it to persist the active ride for resume.
	OnSnapshot func(*models.Ride)

	mu     sync.Mutex
	state  State
	ride   *models.Ride
	route  models.Polyline
	holdID string
	closed bool
}

func NewController(gw Gateway, bus Bus, routes RouteSource, rideLog storage.RideLog, riderID int64, log *slog.Logger) *Controller {
	return &Controller{
		gw:      gw,
		bus:     bus,
		routes:  routes,
		rideLog: rideLog,
		log:     log,
		riderID: riderID,
		state:   StateIdle,
	}
}

// SetWallet installs the payment hook for WALLET rides.
func (c *Controller) SetWallet(w Wallet) { c.wallet = w }

// Start registers the per-rider subscriptions. Call once at mount;
// pair with Close.
func (c *Controller) Start() {
	for _, topic := range events.RiderTopics(c.riderID) {
		t := topic
		c.bus.Subscribe(t, func(payload []byte) { c.onMessage(t, payload) })
	}
}

// Close drops all subscriptions. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	for _, topic := range events.RiderTopics(c.riderID) {
		c.bus.Unsubscribe(topic)
	}
}

type View struct {
	State State           `json:"state"`
	Ride  *models.Ride    `json:"ride,omitempty"`
	Route models.Polyline `json:"route,omitempty"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{State: c.state, Ride: c.ride, Route: c.route}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EstimateFare quotes the trip before requesting it.
func (c *Controller) EstimateFare(ctx context.Context, pickup, dropoff models.Coord) (float64, error) {
	return c.gw.GetPricing(ctx, pickup, dropoff)
}

// RequestRide issues the request command and transitions to
// SEARCHING optimistically, rolling back to IDLE on command failure.
func (c *Controller) RequestRide(ctx context.Context, pickup, dropoff models.Coord, pm models.PaymentMethod) error {
	c.mu.Lock()
	if c.state == StateSearching || c.state == StateConfirmed || c.state == StateOngoing {
		c.mu.Unlock()
		return fmt.Errorf("rider: ride already active in %s", c.state)
	}
	c.state = StateSearching
	c.ride = nil
	c.route = nil
	c.mu.Unlock()

	ride, err := c.gw.RequestRide(ctx, pickup, dropoff, pm)
	if err != nil {
		c.mu.Lock()
		if c.state == StateSearching {
			c.state = StateIdle
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.state == StateSearching && ride != nil {
		c.ride = ride
	}
	c.mu.Unlock()
	c.log.Info("ride requested", "pickup", pickup, "dropoff", dropoff, "payment", pm)
	return nil
}

// CancelRide issues the cancel command. The local clear is
// optimistic; any later push snapshot remains authoritative and is
// reconciled through the usual monotonic application. While the
// request command is still in flight the ride id is unknown, so
// cancel is rejected until the backend has answered.
func (c *Controller) CancelRide(ctx context.Context) error {
	c.mu.Lock()
	if c.ride == nil {
		c.mu.Unlock()
		return fmt.Errorf("rider: no ride to cancel in %s", c.state)
	}
	rideID := c.ride.ID
	c.mu.Unlock()

	cancelled, err := c.gw.CancelRideAsRider(ctx, rideID)
	if err != nil {
		return err
	}

	if cancelled != nil {
		c.Apply(cancelled)
		return nil
	}
	c.mu.Lock()
	if c.ride != nil {
		c.ride.RideStatus = models.StatusCancelled
	}
	c.state = StateCancelled
	c.mu.Unlock()
	return nil
}

// Reset clears a terminal ride so a new one can be requested.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded || c.state == StateCancelled {
		c.state = StateIdle
		c.ride = nil
		c.route = nil
	}
}

// Resume seeds the controller with a previously cached snapshot.
func (c *Controller) Resume(ride *models.Ride) {
	if ride != nil {
		c.Apply(ride)
	}
}

func (c *Controller) onMessage(topic string, payload []byte) {
	ev, err := events.Decode(topic, payload)
	if err != nil {
		observability.MessagesInvalid.Inc()
		c.log.Warn("rejected push message", "topic", topic, "err", err)
		return
	}
	c.Apply(ev.Ride)
}

// Apply replaces the held ride with a backend snapshot. Duplicates
// are no-ops in effect (same snapshot, same state) and stale
// snapshots, meaning a lower status rank for the same ride, are
// dropped, so delivery order and redelivery do not matter. The backend
// allows one live ride per rider, so while the held ride is still
// short of terminal, a snapshot carrying a different ride id can only
// be a redelivered duplicate of an earlier ride and is dropped too.
func (c *Controller) Apply(ride *models.Ride) {
	c.mu.Lock()
	prevRank := -1
	if c.ride != nil {
		if c.ride.ID == ride.ID {
			prevRank = c.ride.RideStatus.Rank()
		} else if c.ride.RideStatus.Rank() < models.StatusEnded.Rank() {
			heldID := c.ride.ID
			c.mu.Unlock()
			c.log.Debug("dropping snapshot for another ride", "held_ride_id", heldID, "ride_id", ride.ID)
			return
		}
	}
	newRank := ride.RideStatus.Rank()
	if prevRank > newRank {
		c.mu.Unlock()
		c.log.Debug("dropping stale ride snapshot", "ride_id", ride.ID, "status", ride.RideStatus)
		return
	}
	advanced := newRank > prevRank
	c.ride = ride
	c.state = StateForStatus(ride.RideStatus)
	pickup := ride.PickupLocation.Coordinates
	dropoff := ride.DropoffLocation.Coordinates
	needRoute := advanced && (c.state == StateConfirmed || c.state == StateOngoing)
	c.mu.Unlock()

	// Route lookup hits the network; it must not hold up the read
	// goroutine delivering the next push message.
	if needRoute {
		go c.resolveRoute(ride.ID, pickup, dropoff)
	}

	if advanced {
		c.settle(ride)
	}
	if c.OnSnapshot != nil {
		c.OnSnapshot(ride)
	}
}

func (c *Controller) resolveRoute(rideID int64, pickup, dropoff models.Coord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	route := c.routes.Resolve(ctx, pickup, dropoff)
	cancel()
	c.mu.Lock()
	if c.ride != nil && c.ride.ID == rideID {
		c.route = route
	}
	c.mu.Unlock()
}

// settle runs the per-transition side effects exactly once per
// forward edge: payment hold/capture/release and the terminal ride
// log entry.
func (c *Controller) settle(ride *models.Ride) {
	ctx := context.Background()

	switch ride.RideStatus {
	case models.StatusConfirmed:
		if c.wallet != nil && ride.PaymentMethod == models.PaymentWallet {
			amount := int64(math.Round(ride.Fare * 100))
			id, err := c.wallet.Hold(ctx, amount, "usd", "")
			if err != nil {
				c.log.Warn("wallet hold failed", "ride_id", ride.ID, "err", err)
				break
			}
			c.mu.Lock()
			c.holdID = id
			c.mu.Unlock()
		}
	case models.StatusEnded:
		c.captureHold(ctx, ride)
		c.record(ride)
	case models.StatusCancelled:
		c.releaseHold(ctx, ride)
		c.record(ride)
	}
}

func (c *Controller) captureHold(ctx context.Context, ride *models.Ride) {
	c.mu.Lock()
	id := c.holdID
	c.holdID = ""
	c.mu.Unlock()
	if id == "" || c.wallet == nil {
		return
	}
	if err := c.wallet.Capture(ctx, id); err != nil {
		c.log.Warn("wallet capture failed", "ride_id", ride.ID, "err", err)
	}
}

func (c *Controller) releaseHold(ctx context.Context, ride *models.Ride) {
	c.mu.Lock()
	id := c.holdID
	c.holdID = ""
	c.mu.Unlock()
	if id == "" || c.wallet == nil {
		return
	}
	if err := c.wallet.Release(ctx, id); err != nil {
		c.log.Warn("wallet release failed", "ride_id", ride.ID, "err", err)
	}
}

func (c *Controller) record(ride *models.Ride) {
	if c.rideLog == nil {
		return
	}
	if err := c.rideLog.SaveRide(ride); err != nil {
		c.log.Warn("ride log write failed", "ride_id", ride.ID, "err", err)
	}
}
