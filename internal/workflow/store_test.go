package workflow

import (
	"errors"
	"testing"
	"time"
)

func TestStoreCreateGet(t *testing.T) {
	s := NewRequestStore(time.Minute)
	ref := NewWorkloadRef("default", "frontend-service")

	req := s.Create("U123", "C456", ref)
	if req.ID == "" {
		t.Fatal("Create() returned empty id")
	}
	if req.State != StateInitiated {
		t.Errorf("State = %q, want %q", req.State, StateInitiated)
	}

	got, err := s.Get(req.ID)
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if got.Workload != ref {
		t.Errorf("Workload = %v, want %v", got.Workload, ref)
	}
	if got.InitiatingUser != "U123" || got.Channel != "C456" {
		t.Errorf("user/channel = %q/%q, want U123/C456", got.InitiatingUser, got.Channel)
	}
}

func TestStoreGetReturnsSnapshot(t *testing.T) {
	s := NewRequestStore(time.Minute)
	req := s.Create("U123", "C456", NewWorkloadRef("default", "app"))

	snap, _ := s.Get(req.ID)
	snap.State = StateCompleted

	got, _ := s.Get(req.ID)
	if got.State != StateInitiated {
		t.Errorf("mutating a snapshot changed stored state to %q", got.State)
	}
}

func TestStoreUpdate(t *testing.T) {
	s := NewRequestStore(time.Minute)
	req := s.Create("U123", "C456", NewWorkloadRef("default", "app"))

	got, err := s.Update(req.ID, func(r *ChangeRequest) error {
		r.State = StateAwaitingProposal
		return nil
	})
	if err != nil {
		t.Fatalf("Update() unexpected error: %v", err)
	}
	if got.State != StateAwaitingProposal {
		t.Errorf("State = %q, want %q", got.State, StateAwaitingProposal)
	}

	wantErr := errors.New("rejected")
	if _, err := s.Update(req.ID, func(r *ChangeRequest) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Update() error = %v, want the fn's error", err)
	}

	if _, err := s.Update("no-such-id", func(r *ChangeRequest) error { return nil }); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("Update() unknown id error = %v, want ErrUnknownRequest", err)
	}
}

func TestStoreSweep(t *testing.T) {
	s := NewRequestStore(time.Minute)
	ref := NewWorkloadRef("default", "app")

	idle := s.Create("U1", "C1", ref)
	fresh := s.Create("U2", "C1", ref)
	applying := s.Create("U3", "C1", ref)
	s.Update(applying.ID, func(r *ChangeRequest) error {
		r.State = StateApplying
		return nil
	})

	// Age the idle and applying requests past the timeout.
	old := time.Now().Add(-2 * time.Minute)
	for _, id := range []string{idle.ID, applying.ID} {
		s.mu.Lock()
		s.requests[id].UpdatedAt = old
		s.mu.Unlock()
	}

	dropped := s.Sweep(time.Now())
	if dropped != 1 {
		t.Errorf("Sweep() = %d, want 1", dropped)
	}
	if _, err := s.Get(idle.ID); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("idle request survived the sweep: %v", err)
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Errorf("fresh request was swept: %v", err)
	}
	// An in-flight apply is never abandoned mid-mutation.
	if _, err := s.Get(applying.ID); err != nil {
		t.Errorf("applying request was swept: %v", err)
	}
}

func TestStoreSweepReclaimsOrphanedApply(t *testing.T) {
	s := NewRequestStore(time.Minute)
	applying := s.Create("U1", "C1", NewWorkloadRef("default", "app"))
	s.Update(applying.ID, func(r *ChangeRequest) error {
		r.State = StateApplying
		return nil
	})

	// Past the idle timeout but inside the applying grace period: kept.
	s.mu.Lock()
	s.requests[applying.ID].UpdatedAt = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()
	if dropped := s.Sweep(time.Now()); dropped != 0 {
		t.Errorf("Sweep() = %d inside the grace period, want 0", dropped)
	}

	// Past the grace period the orphan is reclaimed.
	s.mu.Lock()
	s.requests[applying.ID].UpdatedAt = time.Now().Add(-(applyingGraceFactor + 1) * time.Minute)
	s.mu.Unlock()
	if dropped := s.Sweep(time.Now()); dropped != 1 {
		t.Errorf("Sweep() = %d past the grace period, want 1", dropped)
	}
	if _, err := s.Get(applying.ID); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("orphaned applying request survived the sweep: %v", err)
	}
}
