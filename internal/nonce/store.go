// Package nonce implements the replay-nonce store: each
// (requesterId, sessionId, nonce) triple may be accepted at most once
// within its TTL window. The nonce is consumed on first sight even if a
// later gate in the pipeline rejects the proposal.
//
// Grounded on the teacher's pkg/api/idempotency.go in-memory idempotency
// store, adapted from a pure in-memory map to a file-backed JSON store so
// state survives across separate CLI invocations, persisted via
// internal/atomicfile.
package nonce

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Mindburn-Labs/sentinel/internal/atomicfile"
)

const (
	// ReasonReplay is returned when the triple was already recorded and is
	// still within its TTL window.
	ReasonReplay = "REPLAY_NONCE"
	// DefaultTTLSeconds is used when a store has no configured TTL.
	DefaultTTLSeconds = 3600
)

// record is a single previously-seen nonce, persisted with the wall-clock
// time it was first recorded so entries can be pruned once stale.
type record struct {
	SeenAt int64 `json:"seenAt"`
}

// Store is the nonce-tracking state: the composite (requesterId,
// sessionId, nonce) key mapped to when it was first observed.
type Store struct {
	Entries map[string]record
}

// wireEntry is the on-disk shape of a single nonce entry (spec §6):
// {key, timestamp}.
type wireEntry struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
}

// wireStore is the on-disk shape of the whole store (spec §6):
// {entries:[{key, timestamp}]}.
type wireStore struct {
	Entries []wireEntry `json:"entries"`
}

// MarshalJSON renders the store as the literal {entries:[{key,
// timestamp}]} wire shape, sorted by key for deterministic output.
func (s Store) MarshalJSON() ([]byte, error) {
	w := wireStore{Entries: make([]wireEntry, 0, len(s.Entries))}
	for k, r := range s.Entries {
		w.Entries = append(w.Entries, wireEntry{Key: k, Timestamp: r.SeenAt})
	}
	sort.Slice(w.Entries, func(i, j int) bool { return w.Entries[i].Key < w.Entries[j].Key })
	return json.Marshal(w)
}

// UnmarshalJSON parses the {entries:[{key, timestamp}]} wire shape back
// into the internal map representation used for lookups.
func (s *Store) UnmarshalJSON(data []byte) error {
	var w wireStore
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Entries = make(map[string]record, len(w.Entries))
	for _, e := range w.Entries {
		s.Entries[e.Key] = record{SeenAt: e.Timestamp}
	}
	return nil
}

// New returns an empty, ready-to-use store.
func New() *Store {
	return &Store{Entries: map[string]record{}}
}

func key(requesterID, sessionID, n string) string {
	return requesterID + "\x00" + sessionID + "\x00" + n
}

// Load reads the store from path, returning an empty store if it does not
// exist yet.
func Load(path string) (*Store, error) {
	data, exists, err := atomicfile.ReadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("nonce: load store: %w", err)
	}
	if !exists {
		return &Store{Entries: map[string]record{}}, nil
	}
	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("nonce: parse store: %w", err)
	}
	if s.Entries == nil {
		s.Entries = map[string]record{}
	}
	return &s, nil
}

// Save persists the store atomically.
func (s *Store) Save(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("nonce: marshal store: %w", err)
	}
	return atomicfile.Write(path, data)
}

// prune drops entries older than ttlSeconds relative to now.
func (s *Store) prune(now time.Time, ttlSeconds int64) {
	cutoff := now.Unix() - ttlSeconds
	for k, v := range s.Entries {
		if v.SeenAt < cutoff {
			delete(s.Entries, k)
		}
	}
}

// CheckAndRecord prunes expired entries, then checks whether the given
// triple was already seen within the TTL window. If not, it records the
// triple as seen now and returns ok=true. If it was already seen, it
// returns ok=false with ReasonReplay — the nonce remains consumed either
// way.
func (s *Store) CheckAndRecord(requesterID, sessionID, n string, now time.Time, ttlSeconds int64) (ok bool, reason string) {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	s.prune(now, ttlSeconds)

	k := key(requesterID, sessionID, n)
	if _, seen := s.Entries[k]; seen {
		return false, ReasonReplay
	}
	s.Entries[k] = record{SeenAt: now.Unix()}
	return true, ""
}
