// Package driver is the driver-side ride lifecycle controller: it
// consumes offered ride requests from the push channel, drives the
// OFFLINE → ONLINE_IDLE → REQUEST_PENDING → ACCEPTED → IN_PROGRESS →
// COMPLETED progression through backend commands, and exposes the
// current view to the UI layer.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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
	StateOffline        State = "OFFLINE"
	StateOnlineIdle     State = "ONLINE_IDLE"
	StateRequestPending State = "REQUEST_PENDING"
	StateAccepted       State = "ACCEPTED"
	StateInProgress     State = "IN_PROGRESS"
	StateCompleted      State = "COMPLETED"
)

// ErrOTPMismatch is the local validation failure on start: no state
// transition, no backend call.
var ErrOTPMismatch = errors.New("otp mismatch")

// Gateway is the backend command subset the controller issues.
type Gateway interface {
	SetDriverAvailability(ctx context.Context, available bool) error
	AcceptRide(ctx context.Context, requestID int64) (*models.Ride, error)
	StartRide(ctx context.Context, rideID int64, otp string) (*models.Ride, error)
	EndRide(ctx context.Context, rideID int64) (*models.Ride, error)
	CancelRideAsDriver(ctx context.Context, rideID int64) (*models.Ride, error)
}

// Bus is the push-channel subset the controller needs.
type Bus interface {
	Subscribe(topic string, h channel.Handler)
	Unsubscribe(topic string)
}

// RouteSource resolves the polyline for the active leg.
type RouteSource interface {
	Resolve(ctx context.Context, start, end models.Coord) models.Polyline
}

// LocationTask is the reporter subset gated by availability.
type LocationTask interface {
	Start()
	Stop()
	Last() (models.Coord, bool)
}

type Controller struct {
	gw       Gateway
	bus      Bus
	routes   RouteSource
	reporter LocationTask
	rideLog  storage.RideLog
	log      *slog.Logger

	driverID   int64
	resetDelay time.Duration

	// RouteChanged, when set, observes every new active-leg polyline.
	// Used by the agent to steer its position provider.
	RouteChanged func(models.Polyline)

	mu         sync.Mutex
	state      State
	queue      *RequestQueue
	ride       *models.Ride
	route      models.Polyline
	otpErr     bool
	resetTimer *time.Timer
	closed     bool
}

func NewController(gw Gateway, bus Bus, routes RouteSource, reporter LocationTask, rideLog storage.RideLog, driverID int64, resetDelay time.Duration, log *slog.Logger) *Controller {
	return &Controller{
		gw:         gw,
		bus:        bus,
		routes:     routes,
		reporter:   reporter,
		rideLog:    rideLog,
		log:        log,
		driverID:   driverID,
		resetDelay: resetDelay,
		state:      StateOffline,
		queue:      NewRequestQueue(),
	}
}

// View is a read-only snapshot for the UI layer. Consumers must not
// mutate the referenced ride/request; ownership stays with the
// controller.
type View struct {
	State    State               `json:"state"`
	Request  *models.RideRequest `json:"request,omitempty"`
	Ride     *models.Ride        `json:"ride,omitempty"`
	Route    models.Polyline     `json:"route,omitempty"`
	OTPError bool                `json:"otpError"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		State:    c.state,
		Request:  c.queue.Current(),
		Ride:     c.ride,
		Route:    c.route,
		OTPError: c.otpErr,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GoOnline flips availability on. The transition to ONLINE_IDLE is
// optimistic and rolled back if the availability command fails.
func (c *Controller) GoOnline(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateOffline {
		c.mu.Unlock()
		return fmt.Errorf("driver: go online from %s", c.state)
	}
	c.state = StateOnlineIdle
	c.mu.Unlock()

	topic := events.DriverRequestTopic(c.driverID)
	c.bus.Subscribe(topic, func(payload []byte) { c.onRequest(topic, payload) })
	if c.reporter != nil {
		c.reporter.Start()
	}

	if err := c.gw.SetDriverAvailability(ctx, true); err != nil {
		c.bus.Unsubscribe(topic)
		if c.reporter != nil {
			c.reporter.Stop()
		}
		c.mu.Lock()
		c.state = StateOffline
		c.mu.Unlock()
		return err
	}
	c.log.Info("driver online", "driver_id", c.driverID)
	return nil
}

// GoOffline flips availability off, clears pending requests and stops
// the location task. The local OFFLINE state holds even if the
// backend command fails; staying silently "available" would be worse.
func (c *Controller) GoOffline(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateOffline
	c.ride = nil
	c.route = nil
	c.otpErr = false
	c.queue.Clear()
	c.stopResetTimerLocked()
	c.mu.Unlock()

	c.bus.Unsubscribe(events.DriverRequestTopic(c.driverID))
	if c.reporter != nil {
		c.reporter.Stop()
	}

	if err := c.gw.SetDriverAvailability(ctx, false); err != nil {
		c.log.Warn("availability command failed while going offline", "err", err)
		return err
	}
	c.log.Info("driver offline", "driver_id", c.driverID)
	return nil
}

// onRequest materializes an offered ride request. Duplicates are
// harmless (same request replaces itself) and offers arriving in any
// state but ONLINE_IDLE/REQUEST_PENDING are ignored.
func (c *Controller) onRequest(topic string, payload []byte) {
	ev, err := events.Decode(topic, payload)
	if err != nil {
		observability.MessagesInvalid.Inc()
		c.log.Warn("rejected push message", "topic", topic, "err", err)
		return
	}
	req := ev.Request

	c.mu.Lock()
	if c.state != StateOnlineIdle && c.state != StateRequestPending {
		c.mu.Unlock()
		c.log.Debug("ignoring ride request in state", "state", c.state, "request_id", req.ID)
		return
	}
	c.queue.Offer(req)
	c.state = StateRequestPending
	c.mu.Unlock()
	c.log.Info("ride request pending", "request_id", req.ID, "fare", req.Fare)

	// Pickup leg: from the last known position (or the pickup itself
	// when no fix yet) to the rider's pickup point. Resolved off the
	// read goroutine; the route lookup hits the network and must not
	// hold up the next push message.
	start := req.PickupLocation.Coordinates
	if c.reporter != nil {
		if pos, ok := c.reporter.Last(); ok {
			start = pos
		}
	}
	go c.resolvePickupLeg(req, start)
}

func (c *Controller) resolvePickupLeg(req *models.RideRequest, start models.Coord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	route := c.routes.Resolve(ctx, start, req.PickupLocation.Coordinates)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.queue.Current(); cur != nil && cur.ID == req.ID {
		cur.Route = route
		return
	}
	// Already claimed before the lookup finished; attach the leg to
	// the accepted ride instead.
	if c.state == StateAccepted && c.ride != nil && c.ride.ID == req.ID && c.route == nil {
		c.setRouteLocked(route)
	}
}

// Accept claims the pending request. The ACCEPTED transition is
// optimistic; a failed command (including a lost race to another
// driver) rolls back to ONLINE_IDLE with no active ride.
func (c *Controller) Accept(ctx context.Context, requestID int64) error {
	c.mu.Lock()
	if c.state != StateRequestPending {
		c.mu.Unlock()
		return fmt.Errorf("driver: accept from %s", c.state)
	}
	req, ok := c.queue.Take(requestID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("driver: request %d is not pending", requestID)
	}
	c.state = StateAccepted
	c.ride = rideFromRequest(req)
	c.setRouteLocked(req.Route)
	c.mu.Unlock()

	ride, err := c.gw.AcceptRide(ctx, requestID)
	if err != nil {
		c.mu.Lock()
		if c.state == StateAccepted {
			c.state = StateOnlineIdle
			c.ride = nil
			c.route = nil
			c.queue.Clear()
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.state == StateAccepted && ride != nil {
		c.ride = ride
	}
	c.mu.Unlock()
	c.log.Info("ride accepted", "request_id", requestID)
	return nil
}

// Decline drops the request locally. The backend is not told and will
// re-offer elsewhere after its own timeout.
func (c *Controller) Decline(requestID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Remove(requestID) && c.queue.Empty() && c.state == StateRequestPending {
		c.state = StateOnlineIdle
	}
}

// VerifyStart checks the rider's OTP against the value most recently
// supplied by the backend for this ride. A match issues the start
// command and moves to IN_PROGRESS with the dropoff leg resolved; a
// mismatch only sets the local error flag.
func (c *Controller) VerifyStart(ctx context.Context, otp string) error {
	c.mu.Lock()
	if c.state != StateAccepted || c.ride == nil {
		c.mu.Unlock()
		return fmt.Errorf("driver: start from %s", c.state)
	}
	if otp != c.ride.OTP {
		c.otpErr = true
		c.mu.Unlock()
		return ErrOTPMismatch
	}
	c.otpErr = false
	rideID := c.ride.ID
	pickup := c.ride.PickupLocation.Coordinates
	dropoff := c.ride.DropoffLocation.Coordinates
	c.mu.Unlock()

	started, err := c.gw.StartRide(ctx, rideID, otp)
	if err != nil {
		return err
	}

	route := c.routes.Resolve(ctx, pickup, dropoff)

	c.mu.Lock()
	if c.state == StateAccepted {
		c.state = StateInProgress
		if started != nil {
			c.ride = started
		} else {
			c.ride.RideStatus = models.StatusOngoing
		}
		c.setRouteLocked(route)
	}
	c.mu.Unlock()
	c.log.Info("ride started", "ride_id", rideID)
	return nil
}

// Complete ends the ride. After the fixed convenience delay the
// controller returns to ONLINE_IDLE with no active ride.
func (c *Controller) Complete(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInProgress || c.ride == nil {
		c.mu.Unlock()
		return fmt.Errorf("driver: complete from %s", c.state)
	}
	rideID := c.ride.ID
	c.mu.Unlock()

	ended, err := c.gw.EndRide(ctx, rideID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateInProgress {
		c.state = StateCompleted
		if ended != nil {
			c.ride = ended
		} else {
			c.ride.RideStatus = models.StatusEnded
		}
		c.recordRideLocked()
		c.stopResetTimerLocked()
		c.resetTimer = time.AfterFunc(c.resetDelay, c.resetToIdle)
	}
	c.mu.Unlock()
	c.log.Info("ride completed", "ride_id", rideID)
	return nil
}

// Cancel aborts the active ride and clears straight back to
// ONLINE_IDLE.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if (c.state != StateAccepted && c.state != StateInProgress) || c.ride == nil {
		c.mu.Unlock()
		return fmt.Errorf("driver: cancel from %s", c.state)
	}
	rideID := c.ride.ID
	c.mu.Unlock()

	cancelled, err := c.gw.CancelRideAsDriver(ctx, rideID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if cancelled != nil {
		c.ride = cancelled
	} else if c.ride != nil {
		c.ride.RideStatus = models.StatusCancelled
	}
	c.recordRideLocked()
	c.state = StateOnlineIdle
	c.ride = nil
	c.route = nil
	c.otpErr = false
	c.queue.Clear()
	c.mu.Unlock()
	c.log.Info("ride cancelled", "ride_id", rideID)
	return nil
}

// Close releases the controller's timer, subscription and location
// task. Guaranteed to be safe on every exit path; idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopResetTimerLocked()
	c.mu.Unlock()

	c.bus.Unsubscribe(events.DriverRequestTopic(c.driverID))
	if c.reporter != nil {
		c.reporter.Stop()
	}
}

func (c *Controller) resetToIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != StateCompleted {
		return
	}
	c.state = StateOnlineIdle
	c.ride = nil
	c.route = nil
	c.queue.Clear()
}

func (c *Controller) setRouteLocked(route models.Polyline) {
	c.route = route
	if c.RouteChanged != nil && route != nil {
		go c.RouteChanged(route)
	}
}

func (c *Controller) recordRideLocked() {
	if c.rideLog == nil || c.ride == nil {
		return
	}
	if err := c.rideLog.SaveRide(c.ride); err != nil {
		c.log.Warn("ride log write failed", "ride_id", c.ride.ID, "err", err)
	}
}

func (c *Controller) stopResetTimerLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
}

// rideFromRequest builds the provisional local projection used while
// the accept command is in flight; the backend snapshot replaces it on
// confirmation.
func rideFromRequest(req *models.RideRequest) *models.Ride {
	return &models.Ride{
		ID:              req.ID,
		PickupLocation:  req.PickupLocation,
		DropoffLocation: req.DropoffLocation,
		Rider:           req.Rider,
		Fare:            req.Fare,
		RideStatus:      models.StatusConfirmed,
	}
}
