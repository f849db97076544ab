// Package api is the REST client for the backend gateway. Every
// response arrives in a {data, apiError} envelope; failures are
// returned as *CommandError so controllers can roll back optimistic
// transitions and surface the message to the user.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/observability"
)

// CommandError is a failed backend command. It is the only
// user-visible error class in this module.
type CommandError struct {
	Op      string
	Status  int
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

type Client struct {
	BaseURL string
	Cookie  string
	HTTP    *http.Client
	Log     *slog.Logger
}

func NewClient(baseURL, cookie string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		Cookie:  cookie,
		HTTP:    &http.Client{Timeout: timeout},
		Log:     log,
	}
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	APIError *apiError       `json:"apiError"`
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s body: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("api: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Cookie != "" {
		req.Header.Set("Cookie", c.Cookie)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		observability.CommandsFailed.WithLabelValues(op).Inc()
		return &CommandError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.APIError != nil {
		msg := resp.Status
		if env.APIError != nil && env.APIError.Message != "" {
			msg = env.APIError.Message
		}
		observability.CommandsFailed.WithLabelValues(op).Inc()
		c.Log.Warn("command failed", "op", op, "status", resp.StatusCode, "message", msg)
		return &CommandError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		observability.CommandsFailed.WithLabelValues(op).Inc()
		return &CommandError{Op: op, Status: resp.StatusCode, Message: decodeErr.Error()}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("api: decode %s response: %w", op, err)
		}
	}
	return nil
}

func (c *Client) DriverProfile(ctx context.Context) (*models.Driver, error) {
	var d models.Driver
	if err := c.do(ctx, "getMyProfile", http.MethodGet, "/driver/getMyProfile", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) RiderProfile(ctx context.Context) (*models.Rider, error) {
	var r models.Rider
	if err := c.do(ctx, "getMyProfile", http.MethodGet, "/rider/getMyProfile", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DriverRides pages through the driver's ride history. pageOffset is
// 0-based on the wire.
func (c *Client) DriverRides(ctx context.Context, pageOffset, pageSize int) ([]models.Ride, error) {
	return c.rides(ctx, "/driver/getMyRides", pageOffset, pageSize)
}

func (c *Client) RiderRides(ctx context.Context, pageOffset, pageSize int) ([]models.Ride, error) {
	return c.rides(ctx, "/rider/getMyRides", pageOffset, pageSize)
}

func (c *Client) rides(ctx context.Context, path string, pageOffset, pageSize int) ([]models.Ride, error) {
	var rides []models.Ride
	p := fmt.Sprintf("%s?pageOffset=%d&pageSize=%d", path, pageOffset, pageSize)
	if err := c.do(ctx, "getMyRides", http.MethodGet, p, nil, &rides); err != nil {
		return nil, err
	}
	return rides, nil
}

// SetDriverAvailability mirrors the local availability flag to the
// backend. Path spelling matches the backend route.
func (c *Client) SetDriverAvailability(ctx context.Context, available bool) error {
	body := map[string]bool{"isAvailable": available}
	return c.do(ctx, "setDriverAvailability", http.MethodPost, "/driver/setDriverAvailibility", body, nil)
}

func (c *Client) AcceptRide(ctx context.Context, requestID int64) (*models.Ride, error) {
	var ride models.Ride
	path := fmt.Sprintf("/driver/acceptRide/%d", requestID)
	if err := c.do(ctx, "acceptRide", http.MethodPost, path, nil, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

func (c *Client) StartRide(ctx context.Context, rideID int64, otp string) (*models.Ride, error) {
	var ride models.Ride
	path := fmt.Sprintf("/driver/startRide/%d", rideID)
	body := map[string]string{"otp": otp}
	if err := c.do(ctx, "startRide", http.MethodPost, path, body, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

func (c *Client) EndRide(ctx context.Context, rideID int64) (*models.Ride, error) {
	var ride models.Ride
	path := fmt.Sprintf("/driver/endRide/%d", rideID)
	if err := c.do(ctx, "endRide", http.MethodPost, path, nil, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

func (c *Client) CancelRideAsDriver(ctx context.Context, rideID int64) (*models.Ride, error) {
	return c.cancel(ctx, fmt.Sprintf("/driver/cancelRide/%d", rideID))
}

func (c *Client) CancelRideAsRider(ctx context.Context, rideID int64) (*models.Ride, error) {
	return c.cancel(ctx, fmt.Sprintf("/rider/cancelRide/%d", rideID))
}

func (c *Client) cancel(ctx context.Context, path string) (*models.Ride, error) {
	var ride models.Ride
	if err := c.do(ctx, "cancelRide", http.MethodPost, path, nil, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

type rideRequestBody struct {
	PickupLocation  models.GeoPoint      `json:"pickupLocation"`
	DropoffLocation models.GeoPoint      `json:"dropoffLocation"`
	PaymentMethod   models.PaymentMethod `json:"paymentMethod,omitempty"`
}

func (c *Client) RequestRide(ctx context.Context, pickup, dropoff models.Coord, pm models.PaymentMethod) (*models.Ride, error) {
	var ride models.Ride
	body := rideRequestBody{
		PickupLocation:  models.Point(pickup),
		DropoffLocation: models.Point(dropoff),
		PaymentMethod:   pm,
	}
	if err := c.do(ctx, "requestRide", http.MethodPost, "/rider/requestRide", body, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

// GetPricing returns the estimated fare for the trip.
func (c *Client) GetPricing(ctx context.Context, pickup, dropoff models.Coord) (float64, error) {
	body := rideRequestBody{
		PickupLocation:  models.Point(pickup),
		DropoffLocation: models.Point(dropoff),
	}
	var out struct {
		Fare float64 `json:"fare"`
	}
	if err := c.do(ctx, "getPricing", http.MethodPost, "/rider/getPricing", body, &out); err != nil {
		return 0, err
	}
	return out.Fare, nil
}
