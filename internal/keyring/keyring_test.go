package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"
)

func makeStore(t *testing.T, entries map[string]Entry) *Store {
	t.Helper()
	return &Store{SchemaVersion: 1, TrustedKeys: entries}
}

func genKey(t *testing.T) (string, ed25519.PublicKey) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return base64.StdEncoding.EncodeToString(pub), pub
}

func TestResolve_Success(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	encoded, pub := genKey(t)
	store := makeStore(t, map[string]Entry{
		"req-1:main": {
			PublicKey:   encoded,
			RequesterID: "req-1",
			NotBefore:   "2025-01-01T00:00:00Z",
			ExpiresAt:   "2027-01-01T00:00:00Z",
		},
	})

	got, reason := Resolve(store, "req-1:main", "req-1", now)
	if reason != "" {
		t.Fatalf("unexpected reason: %s", reason)
	}
	if got.Equal(pub) == false {
		t.Fatal("returned public key does not match stored key")
	}
}

func TestResolve_KeyIDInvalid(t *testing.T) {
	store := makeStore(t, nil)
	for _, keyID := range []string{"", "default", "a!b", "ab"} {
		if _, reason := Resolve(store, keyID, "req-1", time.Now()); reason != ReasonKeyIDInvalid {
			t.Fatalf("keyID %q: got %s, want KEY_ID_INVALID", keyID, reason)
		}
	}
}

func TestResolve_NotTrusted(t *testing.T) {
	store := makeStore(t, map[string]Entry{})
	if _, reason := Resolve(store, "unknown:key", "req-1", time.Now()); reason != ReasonKeyNotTrusted {
		t.Fatalf("got %s, want KEY_NOT_TRUSTED", reason)
	}
}

func TestResolve_Deprecated(t *testing.T) {
	encoded, _ := genKey(t)
	store := makeStore(t, map[string]Entry{
		"req-1:main": {
			PublicKey:  encoded,
			NotBefore:  "2025-01-01T00:00:00Z",
			ExpiresAt:  "2027-01-01T00:00:00Z",
			Deprecated: true,
		},
	})
	if _, reason := Resolve(store, "req-1:main", "req-1", time.Now()); reason != ReasonKeyDeprecated {
		t.Fatalf("got %s, want KEY_DEPRECATED", reason)
	}
}

func TestResolve_RequesterMismatch(t *testing.T) {
	encoded, _ := genKey(t)
	store := makeStore(t, map[string]Entry{
		"req-1:main": {
			PublicKey:   encoded,
			RequesterID: "req-1",
			NotBefore:   "2025-01-01T00:00:00Z",
			ExpiresAt:   "2027-01-01T00:00:00Z",
		},
	})
	if _, reason := Resolve(store, "req-1:main", "req-2", time.Now()); reason != ReasonKeyRequesterMismatch {
		t.Fatalf("got %s, want KEY_REQUESTER_MISMATCH", reason)
	}
}

func TestResolve_NotYetValidAndExpired(t *testing.T) {
	encoded, _ := genKey(t)
	store := makeStore(t, map[string]Entry{
		"req-1:main": {
			PublicKey: encoded,
			NotBefore: "2026-06-01T00:00:00Z",
			ExpiresAt: "2026-12-01T00:00:00Z",
		},
	})

	if _, reason := Resolve(store, "req-1:main", "req-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); reason != ReasonKeyNotYetValid {
		t.Fatalf("got %s, want KEY_NOT_YET_VALID", reason)
	}
	if _, reason := Resolve(store, "req-1:main", "req-1", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)); reason != ReasonKeyExpired {
		t.Fatalf("got %s, want KEY_EXPIRED", reason)
	}
}

func TestResolve_LifecycleInvalid(t *testing.T) {
	encoded, _ := genKey(t)
	store := makeStore(t, map[string]Entry{
		"req-1:main": {PublicKey: encoded},
	})
	if _, reason := Resolve(store, "req-1:main", "req-1", time.Now()); reason != ReasonKeyLifecycleInvalid {
		t.Fatalf("got %s, want KEY_LIFECYCLE_INVALID", reason)
	}
}

func TestResolve_ConfigInvalid_BadPublicKey(t *testing.T) {
	store := makeStore(t, map[string]Entry{
		"req-1:main": {
			PublicKey: "not-base64!!!",
			NotBefore: "2025-01-01T00:00:00Z",
			ExpiresAt: "2027-01-01T00:00:00Z",
		},
	})
	if _, reason := Resolve(store, "req-1:main", "req-1", time.Now()); reason != ReasonKeyConfigInvalid {
		t.Fatalf("got %s, want KEY_CONFIG_INVALID", reason)
	}
}
