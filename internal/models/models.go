package models

import (
	"fmt"
	"strings"
	"time"
)

// Coord is a [longitude, latitude] pair, matching the backend's
// GeoJSON-style wire order.
type Coord [2]float64

func (c Coord) Lon() float64 { return c[0] }
func (c Coord) Lat() float64 { return c[1] }

// GeoPoint is how the backend wraps a coordinate in ride payloads.
type GeoPoint struct {
	Coordinates Coord  `json:"coordinates"`
	Type        string `json:"type,omitempty"`
}

func Point(c Coord) GeoPoint { return GeoPoint{Coordinates: c, Type: "Point"} }

// Polyline is an ordered route. Once a route lookup has been attempted
// it always holds at least the two endpoints.
type Polyline []Coord

type RideStatus string

const (
	StatusPending   RideStatus = "PENDING"
	StatusConfirmed RideStatus = "CONFIRMED"
	StatusOngoing   RideStatus = "ONGOING"
	StatusEnded     RideStatus = "ENDED"
	StatusCancelled RideStatus = "CANCELLED"
)

// Rank orders statuses along the ride's forward progression. Terminal
// statuses share a rank so a later terminal snapshot may replace an
// earlier one (last server word wins).
func (s RideStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusConfirmed:
		return 1
	case StatusOngoing:
		return 2
	case StatusEnded, StatusCancelled:
		return 3
	}
	return -1
}

func (s RideStatus) Valid() bool { return s.Rank() >= 0 }

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentWallet PaymentMethod = "WALLET"
)

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Rider struct {
	ID     int64   `json:"id"`
	User   User    `json:"user"`
	Rating float64 `json:"rating"`
}

type Driver struct {
	ID          int64   `json:"id"`
	User        User    `json:"user"`
	IsAvailable bool    `json:"isAvailable"`
	Rating      float64 `json:"rating"`
	VehicleID   string  `json:"vehicleId"`
}

// Ride is the client projection of a backend ride snapshot. The
// backend is authoritative; only the owning lifecycle controller
// mutates the held copy.
type Ride struct {
	ID              int64         `json:"id"`
	PickupLocation  GeoPoint      `json:"pickupLocation"`
	DropoffLocation GeoPoint      `json:"dropoffLocation"`
	CreatedTime     *BackendTime  `json:"createdTime,omitempty"`
	Rider           *Rider        `json:"rider,omitempty"`
	Driver          *Driver       `json:"driver,omitempty"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	RideStatus      RideStatus    `json:"rideStatus"`
	OTP             string        `json:"otp,omitempty"`
	Fare            float64       `json:"fare"`
	StartedAt       *BackendTime  `json:"startedAt"`
	EndedAt         *BackendTime  `json:"endedAt"`
}

// RideRequest is the driver-side view of an offered ride. Ephemeral:
// it lives until accept, decline or supersession by a newer offer.
type RideRequest struct {
	ID              int64    `json:"id"`
	Rider           *Rider   `json:"rider,omitempty"`
	PickupLocation  GeoPoint `json:"pickupLocation"`
	DropoffLocation GeoPoint `json:"dropoffLocation"`
	Fare            float64  `json:"fare"`
	Route           Polyline `json:"route,omitempty"`
}

// LocationUpdate is the body published to /app/driver/location.
type LocationUpdate struct {
	UserID      int64 `json:"userId"`
	Coordinates Coord `json:"coordinates"`
}

// BackendTime tolerates the backend's zone-less timestamps
// ("2025-04-16T21:09:04.284928") as well as RFC 3339.
type BackendTime struct {
	time.Time
}

const backendTimeLayout = "2006-01-02T15:04:05.999999999"

func (t *BackendTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.Parse(backendTimeLayout, s)
	if err != nil {
		return fmt.Errorf("parse backend time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t BackendTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}
