package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/optibot/optibot/internal/metrics"
)

// RequestStore holds in-flight change requests keyed by id. Requests live
// until they reach a terminal state or sit idle past the configured timeout.
// Concurrency exists across requests, not within one: each request advances
// only on its own user events, so per-request fields need no locking beyond
// the store's map lock.
type RequestStore struct {
	mu          sync.RWMutex
	requests    map[string]*ChangeRequest
	idleTimeout time.Duration
}

// NewRequestStore creates a store that discards requests idle for longer
// than idleTimeout.
func NewRequestStore(idleTimeout time.Duration) *RequestStore {
	if idleTimeout <= 0 {
		idleTimeout = 15 * time.Minute
	}
	return &RequestStore{
		requests:    make(map[string]*ChangeRequest),
		idleTimeout: idleTimeout,
	}
}

// Create inserts a new request in StateInitiated and returns it.
func (s *RequestStore) Create(user, channel string, ref WorkloadRef) *ChangeRequest {
	now := time.Now()
	req := &ChangeRequest{
		ID:             uuid.NewString(),
		Workload:       ref,
		State:          StateInitiated,
		InitiatingUser: user,
		Channel:        channel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	s.requests[req.ID] = req
	metrics.ActiveRequests.Set(float64(len(s.requests)))
	s.mu.Unlock()
	return req
}

// Get returns a snapshot of the request, or ErrUnknownRequest.
func (s *RequestStore) Get(id string) (*ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrUnknownRequest
	}
	return req.Clone(), nil
}

// Update applies fn to the stored request under the lock and returns a
// snapshot of the result. fn sees and mutates the live request.
func (s *RequestStore) Update(id string, fn func(*ChangeRequest) error) (*ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrUnknownRequest
	}
	if err := fn(req); err != nil {
		return nil, err
	}
	req.UpdatedAt = time.Now()
	return req.Clone(), nil
}

// Remove deletes the request from the store. Called when a request reaches
// a terminal state.
func (s *RequestStore) Remove(id string) {
	s.mu.Lock()
	delete(s.requests, id)
	metrics.ActiveRequests.Set(float64(len(s.requests)))
	s.mu.Unlock()
}

// Len returns the number of in-flight requests.
func (s *RequestStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

// applyingGraceFactor scales the idle timeout into the hard cap for
// requests stuck in StateApplying. An apply normally finishes in seconds;
// a request still applying after several idle timeouts was orphaned by a
// crashed worker and would otherwise leak forever.
const applyingGraceFactor = 4

// Sweep discards non-terminal requests idle past the timeout and returns
// how many were dropped. Abandonment before StateApplying is always safe:
// no cluster mutation has happened yet. Requests in StateApplying get a
// much longer grace period so an in-flight apply runs to completion or
// defined failure, but an orphaned one is still eventually reclaimed.
func (s *RequestStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for id, req := range s.requests {
		if req.State.Terminal() {
			continue
		}
		timeout := s.idleTimeout
		if req.State == StateApplying {
			timeout = applyingGraceFactor * s.idleTimeout
		}
		if now.Sub(req.UpdatedAt) > timeout {
			delete(s.requests, id)
			dropped++
			metrics.RequestsExpired.Inc()
		}
	}
	metrics.ActiveRequests.Set(float64(len(s.requests)))
	return dropped
}

// Run sweeps periodically until ctx is cancelled.
func (s *RequestStore) Run(ctx context.Context, interval time.Duration) {
	logger := ctrl.Log.WithName("request-store")
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				logger.Info("Discarded idle change requests", "count", n)
			}
		}
	}
}
