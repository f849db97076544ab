package driver

import (
	"sync"

	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/observability"
)

// RequestQueue holds the ride request currently offered to the
// driver. At most one request is retained: a newer offer replaces the
// pending one (latest wins). Accepting is a client-side claim only;
// the backend enforces actual exclusivity.
type RequestQueue struct {
	mu  sync.Mutex
	req *models.RideRequest
}

func NewRequestQueue() *RequestQueue { return &RequestQueue{} }

// Offer installs a request, superseding any pending one. Returns true
// when an older, different request was replaced.
func (q *RequestQueue) Offer(req *models.RideRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	replaced := q.req != nil && q.req.ID != req.ID
	if replaced {
		observability.RequestsSuperseded.Inc()
	}
	q.req = req
	return replaced
}

// Current returns the pending request, if any.
func (q *RequestQueue) Current() *models.RideRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.req
}

// Take claims the request with the given id, removing it.
func (q *RequestQueue) Take(id int64) (*models.RideRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.req == nil || q.req.ID != id {
		return nil, false
	}
	req := q.req
	q.req = nil
	return req, true
}

// Remove drops the request with the given id, if it is the pending one.
func (q *RequestQueue) Remove(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.req == nil || q.req.ID != id {
		return false
	}
	q.req = nil
	return true
}

func (q *RequestQueue) Clear() {
	q.mu.Lock()
	q.req = nil
	q.mu.Unlock()
}

func (q *RequestQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.req == nil
}
