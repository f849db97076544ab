package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-client/internal/logging"
	"github.com/example/ride-client/internal/models"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, "SESSION=abc123", time.Second, logging.Nop())
}

func TestRequestRideUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rider/requestRide" || r.Method != http.MethodPost {
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		if c := r.Header.Get("Cookie"); c != "SESSION=abc123" {
			t.Errorf("session cookie not forwarded: %q", c)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if _, ok := body["pickupLocation"]; !ok {
			t.Errorf("missing pickupLocation in %v", body)
		}
		w.Write([]byte(`{"data":{"id":20,"rideStatus":"PENDING","fare":171.4,"pickupLocation":{"coordinates":[88.41,26.71]},"dropoffLocation":{"coordinates":[88.50,26.80]}},"apiError":null}`))
	}))
	defer srv.Close()

	ride, err := newTestClient(srv).RequestRide(context.Background(), models.Coord{88.41, 26.71}, models.Coord{88.50, 26.80}, models.PaymentCash)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ride.ID != 20 || ride.RideStatus != models.StatusPending {
		t.Fatalf("bad ride: %+v", ride)
	}
}

func TestEnvelopeErrorBecomesCommandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the backend reports failures inside the envelope, HTTP 200
		w.Write([]byte(`{"data":null,"apiError":{"message":"ride already assigned"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).AcceptRide(context.Background(), 7)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %T %v", err, err)
	}
	if cmdErr.Op != "acceptRide" || cmdErr.Message != "ride already assigned" {
		t.Fatalf("bad error: %+v", cmdErr)
	}
}

func TestHTTPStatusBecomesCommandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(srv).SetDriverAvailability(context.Background(), true)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %T %v", err, err)
	}
	if cmdErr.Status != http.StatusInternalServerError {
		t.Fatalf("status not carried: %+v", cmdErr)
	}
}

func TestSetDriverAvailabilityUsesBackendSpelling(t *testing.T) {
	var path string
	var body map[string]bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"data":null,"apiError":null}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv).SetDriverAvailability(context.Background(), true); err != nil {
		t.Fatalf("availability: %v", err)
	}
	if path != "/driver/setDriverAvailibility" {
		t.Fatalf("wrong path %q", path)
	}
	if !body["isAvailable"] {
		t.Fatalf("wrong body %v", body)
	}
}

func TestRidesPagination(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{"data":[{"id":1,"rideStatus":"ENDED","pickupLocation":{"coordinates":[1,2]},"dropoffLocation":{"coordinates":[3,4]}}],"apiError":null}`))
	}))
	defer srv.Close()

	rides, err := newTestClient(srv).DriverRides(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("rides: %v", err)
	}
	if query != "pageOffset=2&pageSize=10" {
		t.Fatalf("wrong query %q", query)
	}
	if len(rides) != 1 || rides[0].RideStatus != models.StatusEnded {
		t.Fatalf("bad page: %+v", rides)
	}
}

func TestGetPricingReadsFare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"fare":171.4},"apiError":null}`))
	}))
	defer srv.Close()

	fare, err := newTestClient(srv).GetPricing(context.Background(), models.Coord{88.41, 26.71}, models.Coord{88.50, 26.80})
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	if fare != 171.4 {
		t.Fatalf("fare %f", fare)
	}
}
