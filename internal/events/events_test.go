package events

import (
	"testing"
)

func TestDecodeDriverRequest(t *testing.T) {
	topic := DriverRequestTopic(9)
	payload := []byte(`{"id":7,"pickupLocation":{"coordinates":[88.41,26.71]},"dropoffLocation":{"coordinates":[88.50,26.80]},"fare":120.5,"rider":{"id":3,"user":{"id":3,"name":"Sarah"},"rating":4.7}}`)
	ev, err := Decode(topic, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != KindDriverRequest || ev.Request == nil || ev.Ride != nil {
		t.Fatalf("wrong union arm: %+v", ev)
	}
	if ev.Request.ID != 7 || ev.Request.Rider.User.Name != "Sarah" {
		t.Fatalf("bad request: %+v", ev.Request)
	}
}

func TestDecodeRideSnapshot(t *testing.T) {
	topic := RiderTopics(3)[0] // rideAccepted
	payload := []byte(`{"id":20,"rideStatus":"CONFIRMED","otp":"3758","fare":171.4,"pickupLocation":{"coordinates":[88.41,26.71]},"dropoffLocation":{"coordinates":[88.50,26.80]}}`)
	ev, err := Decode(topic, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != KindRideAccepted || ev.Ride == nil {
		t.Fatalf("wrong union arm: %+v", ev)
	}
	if ev.Ride.OTP != "3758" {
		t.Fatalf("otp not carried: %+v", ev.Ride)
	}
}

func TestDecodeRejectsUnknownTopic(t *testing.T) {
	if _, err := Decode("/topic/unknown/1", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown topic")
	}
}

func TestDecodeRejectsInvalidSnapshots(t *testing.T) {
	topic := RiderTopics(3)[1]
	cases := []string{
		`{"rideStatus":"CONFIRMED","pickupLocation":{"coordinates":[88.41,26.71]},"dropoffLocation":{"coordinates":[88.50,26.80]}}`, // no id
		`{"id":20,"rideStatus":"WEIRD","pickupLocation":{"coordinates":[88.41,26.71]},"dropoffLocation":{"coordinates":[88.50,26.80]}}`,
		`{"id":20,"rideStatus":"CONFIRMED"}`, // no coordinates
		`not json`,
	}
	for _, payload := range cases {
		if _, err := Decode(topic, []byte(payload)); err == nil {
			t.Fatalf("expected rejection for %s", payload)
		}
	}
}
