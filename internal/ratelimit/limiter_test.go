package ratelimit

import (
	"path/filepath"
	"testing"
)

func TestAllow_WithinLimit(t *testing.T) {
	s := &Store{Requesters: map[string][]int64{}}
	policy := Policy{WindowSeconds: 60, MaxRequests: 3}

	for i := int64(0); i < 3; i++ {
		ok, reason, _ := s.Allow("req-1", 1000+i, policy)
		if !ok || reason != "" {
			t.Fatalf("request %d: expected allowed, got ok=%v reason=%s", i, ok, reason)
		}
	}
}

func TestAllow_ExceedsLimit(t *testing.T) {
	s := &Store{Requesters: map[string][]int64{}}
	policy := Policy{WindowSeconds: 60, MaxRequests: 2}

	s.Allow("req-1", 1000, policy)
	s.Allow("req-1", 1001, policy)

	ok, reason, retryAfter := s.Allow("req-1", 1002, policy)
	if ok || reason != ReasonExceeded {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got ok=%v reason=%s", ok, reason)
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retryAfterSec, got %d", retryAfter)
	}
}

func TestAllow_WindowSlidesOut(t *testing.T) {
	s := &Store{Requesters: map[string][]int64{}}
	policy := Policy{WindowSeconds: 10, MaxRequests: 1}

	s.Allow("req-1", 1000, policy)
	if ok, _, _ := s.Allow("req-1", 1005, policy); ok {
		t.Fatal("expected denied within window")
	}
	if ok, _, _ := s.Allow("req-1", 1011, policy); !ok {
		t.Fatal("expected allowed once entry ages out of window")
	}
}

func TestAllow_IndependentRequesters(t *testing.T) {
	s := &Store{Requesters: map[string][]int64{}}
	policy := Policy{WindowSeconds: 60, MaxRequests: 1}

	s.Allow("req-1", 1000, policy)
	if ok, _, _ := s.Allow("req-2", 1000, policy); !ok {
		t.Fatal("expected different requester to be independent")
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratelimit.json")
	policy := Policy{WindowSeconds: 60, MaxRequests: 1}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Allow("req-1", 1000, policy)
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ok, reason, _ := reloaded.Allow("req-1", 1000, policy); ok || reason != ReasonExceeded {
		t.Fatalf("expected persisted state to deny, got ok=%v reason=%s", ok, reason)
	}
}
