// Package audit implements the hash-chained, append-only audit ledger:
// every gate decision and dispatch result is recorded as a JSONL entry
// whose hash covers both its own fields and the previous entry's hash,
// making tampering or reordering detectable.
//
// Grounded directly on the teacher's core/pkg/guardian/audit.go
// AuditEntry/AuditLog (Append, VerifyChain, computeEntryHash), adapted
// from an in-memory-only log to a file-backed JSONL ledger persisted via
// internal/atomicfile for append, and supplemented with ReadAll/Tail
// helpers for introspection tooling.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Mindburn-Labs/sentinel/internal/atomicfile"
	"github.com/Mindburn-Labs/sentinel/internal/canonicalize"
)

// genesisHash is the sentinel previous-hash value for the first entry in
// a ledger.
const genesisHash = "GENESIS"

// Entry is a single tamper-evident audit record.
type Entry struct {
	ID          string `json:"id"`
	Timestamp   int64  `json:"timestamp"`
	RequesterID string `json:"requesterId"`
	CommandID   string `json:"commandId"`
	Action      string `json:"action"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
	Details     string `json:"details,omitempty"`

	PrevHash string `json:"prevHash"`
	Hash     string `json:"hash"`
}

func computeEntryHash(e *Entry) (string, error) {
	data := map[string]interface{}{
		"id":          e.ID,
		"timestamp":   e.Timestamp,
		"requesterId": e.RequesterID,
		"commandId":   e.CommandID,
		"action":      e.Action,
		"outcome":     e.Outcome,
		"reason":      e.Reason,
		"details":     e.Details,
		"prevHash":    e.PrevHash,
	}
	return canonicalize.CanonicalHash(data)
}

// Append computes prevHash/hash for a new entry derived from the last
// line of path (or genesisHash if the ledger is empty/absent) and appends
// it as a single JSONL line.
func Append(path string, e Entry) (*Entry, error) {
	prevHash, err := lastHash(path)
	if err != nil {
		return nil, err
	}
	e.PrevHash = prevHash

	hash, err := computeEntryHash(&e)
	if err != nil {
		return nil, fmt.Errorf("audit: compute entry hash: %w", err)
	}
	e.Hash = hash

	line, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal entry: %w", err)
	}

	existing, _, err := atomicfile.ReadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("audit: read ledger: %w", err)
	}
	data := make([]byte, 0, len(existing)+len(line)+1)
	data = append(data, existing...)
	data = append(data, line...)
	data = append(data, '\n')
	if err := atomicfile.Write(path, data); err != nil {
		return nil, fmt.Errorf("audit: append entry: %w", err)
	}

	return &e, nil
}

func lastHash(path string) (string, error) {
	entries, err := ReadAll(path)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return genesisHash, nil
	}
	return entries[len(entries)-1].Hash, nil
}

// ReadAll reads every entry in the ledger in file order. A missing file
// is treated as an empty ledger.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open ledger: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("audit: parse ledger line: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan ledger: %w", err)
	}
	return entries, nil
}

// Tail returns the last n entries (or fewer if the ledger is shorter).
func Tail(path string, n int) ([]Entry, error) {
	entries, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// VerifyResult reports the outcome of verifying a ledger's hash chain.
type VerifyResult struct {
	Valid             bool     `json:"valid"`
	Entries           int      `json:"entries"`
	FirstInvalidIndex int      `json:"firstInvalidIndex,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}

// VerifyOptions controls VerifyIntegrity's behavior.
type VerifyOptions struct {
	// FailFast stops at the first broken link/hash instead of continuing
	// to accumulate every subsequent error.
	FailFast bool
	// MaxEntries limits how many entries are read from the ledger before
	// verification; zero means no limit.
	MaxEntries int
}

// rawLine is one scanned ledger line: either a parsed Entry, or a parse
// failure recorded as INVALID_JSON_LINE per spec §4.10.
type rawLine struct {
	entry Entry
	ok    bool
}

func readRawLines(path string) ([]rawLine, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open ledger: %w", err)
	}
	defer f.Close()

	var lines []rawLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			lines = append(lines, rawLine{ok: false})
			continue
		}
		lines = append(lines, rawLine{entry: e, ok: true})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan ledger: %w", err)
	}
	return lines, nil
}

// VerifyIntegrity re-derives each entry's hash and checks link continuity
// against the previous entry, the same two checks as the teacher's
// VerifyChain. A line that fails to parse as JSON is reported as
// INVALID_JSON_LINE rather than aborting the walk with a Go error, per
// spec §4.10/§8: integrity failures are reported outcomes, not crashes.
func VerifyIntegrity(path string, opts VerifyOptions) (VerifyResult, error) {
	lines, err := readRawLines(path)
	if err != nil {
		return VerifyResult{}, err
	}
	if opts.MaxEntries > 0 && len(lines) > opts.MaxEntries {
		lines = lines[:opts.MaxEntries]
	}

	result := VerifyResult{Valid: true, Entries: len(lines)}
	prevHash := genesisHash

	fail := func(i int, reason, detail string) bool {
		result.Valid = false
		if result.Reason == "" {
			result.FirstInvalidIndex = i
			result.Reason = reason
		}
		result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %s", i, detail))
		return opts.FailFast
	}

	for i, ln := range lines {
		if !ln.ok {
			if fail(i, "INVALID_JSON_LINE", "could not parse JSON") {
				return result, nil
			}
			continue
		}
		e := ln.entry

		if e.PrevHash != prevHash {
			if fail(i, "PREV_HASH_MISMATCH", "prevHash does not match the preceding entry's hash") {
				return result, nil
			}
		}

		computed, err := computeEntryHash(&e)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("audit: recompute hash at index %d: %w", i, err)
		}
		if computed != e.Hash {
			if fail(i, "HASH_MISMATCH", "stored hash does not match recomputed hash") {
				return result, nil
			}
		}

		prevHash = e.Hash
	}

	return result, nil
}
