// Package ratelimit implements the per-requester sliding-window rate
// limiter consulted only by the run action. Each requester's recent
// request timestamps are tracked; once the window holds maxRequests
// entries, further requests are denied until old entries age out.
//
// Grounded structurally on the teacher's pluggable-store shape in
// pkg/auth/ratelimit.go and pkg/kernel/limiter.go (BackpressurePolicy,
// LimiterStore interface), adapted from token-bucket accounting to a
// timestamp-list sliding window and persisted via internal/atomicfile
// rather than kept purely in memory or in Redis.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/sentinel/internal/atomicfile"
)

// ReasonExceeded is returned when the requester has hit the window limit.
const ReasonExceeded = "RATE_LIMIT_EXCEEDED"

// Policy configures the sliding window.
type Policy struct {
	WindowSeconds int64
	MaxRequests   int
}

// Store is the rate-limit state: a list of unix-second timestamps per
// requester.
type Store struct {
	Requesters map[string][]int64
}

// wireEntry is the on-disk shape of a single rate-limit entry (spec §6):
// {requesterId, timestamp}.
type wireEntry struct {
	RequesterID string `json:"requesterId"`
	Timestamp   int64  `json:"timestamp"`
}

// wireStore is the on-disk shape of the whole store (spec §6):
// {entries:[{requesterId, timestamp}]}.
type wireStore struct {
	Entries []wireEntry `json:"entries"`
}

// MarshalJSON renders the store as the literal {entries:[{requesterId,
// timestamp}]} wire shape, sorted by requesterId then chronologically
// for deterministic output.
func (s Store) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s.Requesters))
	for id := range s.Requesters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := wireStore{Entries: []wireEntry{}}
	for _, id := range ids {
		for _, ts := range s.Requesters[id] {
			w.Entries = append(w.Entries, wireEntry{RequesterID: id, Timestamp: ts})
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the {entries:[{requesterId, timestamp}]} wire
// shape back into the internal per-requester map representation.
func (s *Store) UnmarshalJSON(data []byte) error {
	var w wireStore
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Requesters = map[string][]int64{}
	for _, e := range w.Entries {
		s.Requesters[e.RequesterID] = append(s.Requesters[e.RequesterID], e.Timestamp)
	}
	return nil
}

// New returns an empty, ready-to-use store.
func New() *Store {
	return &Store{Requesters: map[string][]int64{}}
}

// Load reads the store from path, returning an empty store if absent.
func Load(path string) (*Store, error) {
	data, exists, err := atomicfile.ReadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: load store: %w", err)
	}
	if !exists {
		return &Store{Requesters: map[string][]int64{}}, nil
	}
	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("ratelimit: parse store: %w", err)
	}
	if s.Requesters == nil {
		s.Requesters = map[string][]int64{}
	}
	return &s, nil
}

// Save persists the store atomically.
func (s *Store) Save(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ratelimit: marshal store: %w", err)
	}
	return atomicfile.Write(path, data)
}

// purge drops timestamps older than the window and returns the surviving
// slice.
func purge(timestamps []int64, nowUnix, windowSeconds int64) []int64 {
	cutoff := nowUnix - windowSeconds
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}

// Allow purges stale entries for requesterID, and if the remaining count is
// below policy.MaxRequests, records nowUnix as a new request and returns
// ok=true. Otherwise it returns ok=false, ReasonExceeded, and the number of
// seconds until the oldest entry ages out of the window.
func (s *Store) Allow(requesterID string, nowUnix int64, policy Policy) (ok bool, reason string, retryAfterSec int64) {
	windowSeconds := policy.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = 1
	}

	entries := purge(s.Requesters[requesterID], nowUnix, windowSeconds)

	if len(entries) >= policy.MaxRequests {
		oldest := entries[0]
		retryAfterSec = oldest + windowSeconds - nowUnix
		if retryAfterSec < 0 {
			retryAfterSec = 0
		}
		s.Requesters[requesterID] = entries
		return false, ReasonExceeded, retryAfterSec
	}

	entries = append(entries, nowUnix)
	s.Requesters[requesterID] = entries
	return true, "", 0
}
