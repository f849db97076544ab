package models

import (
	"encoding/json"
	"testing"
)

func TestBackendTimeParsesZonelessTimestamps(t *testing.T) {
	var r Ride
	payload := `{"id":20,"rideStatus":"CONFIRMED","pickupLocation":{"coordinates":[88.41,26.71]},"dropoffLocation":{"coordinates":[88.50,26.80]},"createdTime":"2025-04-16T21:09:04.284928","startedAt":null,"endedAt":null}`
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.CreatedTime == nil || r.CreatedTime.IsZero() {
		t.Fatalf("expected createdTime to parse, got %v", r.CreatedTime)
	}
	if r.CreatedTime.Year() != 2025 {
		t.Fatalf("unexpected year %d", r.CreatedTime.Year())
	}
	if r.StartedAt != nil && !r.StartedAt.IsZero() {
		t.Fatalf("expected zero startedAt")
	}
}

func TestCoordWireOrder(t *testing.T) {
	c := Coord{88.41, 26.71}
	if c.Lon() != 88.41 || c.Lat() != 26.71 {
		t.Fatalf("lon/lat swapped: %v", c)
	}
	b, _ := json.Marshal(Point(c))
	want := `{"coordinates":[88.41,26.71],"type":"Point"}`
	if string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}
}

func TestStatusRankMonotonic(t *testing.T) {
	order := []RideStatus{StatusPending, StatusConfirmed, StatusOngoing, StatusEnded}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("%s should outrank %s", order[i], order[i-1])
		}
	}
	if StatusEnded.Rank() != StatusCancelled.Rank() {
		t.Fatalf("terminal statuses must share a rank")
	}
	if RideStatus("BOGUS").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}
