package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/ride-client/internal/models"
)

// Kind discriminates the push events the backend delivers. Payloads
// are JSON strings parsed and validated here, before any controller
// sees them.
type Kind string

const (
	KindDriverRequest Kind = "DriverRequest"
	KindRideAccepted  Kind = "RideAccepted"
	KindRideStarted   Kind = "RideStarted"
	KindRideEnded     Kind = "RideEnded"
	KindRideCancelled Kind = "RideCancelled"
)

// Topic name builders, per-user as the backend scopes them.
func DriverRequestTopic(driverID int64) string {
	return fmt.Sprintf("/topic/driver/requestRide/%d", driverID)
}

func RiderTopics(riderID int64) []string {
	return []string{
		fmt.Sprintf("/topic/rider/rideAccepted/%d", riderID),
		fmt.Sprintf("/topic/rider/rideStart/%d", riderID),
		fmt.Sprintf("/topic/rider/rideEnd/%d", riderID),
		fmt.Sprintf("/topic/rider/rideCancel/%d", riderID),
	}
}

// Event is the decoded union. Exactly one of Ride or Request is set,
// depending on Kind.
type Event struct {
	Kind    Kind
	Ride    *models.Ride
	Request *models.RideRequest
}

// KindForTopic maps a subscription topic to the event kind carried on
// it. The mapping is static; unknown topics are an error.
func KindForTopic(topic string) (Kind, error) {
	switch {
	case strings.HasPrefix(topic, "/topic/driver/requestRide/"):
		return KindDriverRequest, nil
	case strings.HasPrefix(topic, "/topic/rider/rideAccepted/"):
		return KindRideAccepted, nil
	case strings.HasPrefix(topic, "/topic/rider/rideStart/"):
		return KindRideStarted, nil
	case strings.HasPrefix(topic, "/topic/rider/rideEnd/"):
		return KindRideEnded, nil
	case strings.HasPrefix(topic, "/topic/rider/rideCancel/"):
		return KindRideCancelled, nil
	}
	return "", fmt.Errorf("events: no kind for topic %q", topic)
}

// Decode parses and validates a raw push payload for the given topic.
func Decode(topic string, payload []byte) (Event, error) {
	kind, err := KindForTopic(topic)
	if err != nil {
		return Event{}, err
	}

	if kind == KindDriverRequest {
		var req models.RideRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return Event{}, fmt.Errorf("events: decode %s: %w", kind, err)
		}
		if err := validateRequest(&req); err != nil {
			return Event{}, err
		}
		return Event{Kind: kind, Request: &req}, nil
	}

	var ride models.Ride
	if err := json.Unmarshal(payload, &ride); err != nil {
		return Event{}, fmt.Errorf("events: decode %s: %w", kind, err)
	}
	if err := validateRide(&ride); err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, Ride: &ride}, nil
}

func validateRide(r *models.Ride) error {
	if r.ID <= 0 {
		return fmt.Errorf("events: ride snapshot missing id")
	}
	if !r.RideStatus.Valid() {
		return fmt.Errorf("events: ride %d has unknown status %q", r.ID, r.RideStatus)
	}
	if zeroPoint(r.PickupLocation) || zeroPoint(r.DropoffLocation) {
		return fmt.Errorf("events: ride %d missing pickup/dropoff coordinates", r.ID)
	}
	return nil
}

func validateRequest(r *models.RideRequest) error {
	if r.ID <= 0 {
		return fmt.Errorf("events: ride request missing id")
	}
	if zeroPoint(r.PickupLocation) || zeroPoint(r.DropoffLocation) {
		return fmt.Errorf("events: ride request %d missing pickup/dropoff coordinates", r.ID)
	}
	return nil
}

func zeroPoint(p models.GeoPoint) bool {
	return p.Coordinates[0] == 0 && p.Coordinates[1] == 0
}
