// Package atomicfile implements the write-tmp-then-rename primitive used by
// every mutable state file (nonce store, rate-limit store, policy-version
// state, audit ledger). Callers are responsible for serializing concurrent access; this
// package tolerates crash-partial writes but not simultaneous writers.
package atomicfile

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Write ensures dir(path) exists, then writes data to a sibling temp
// file and renames it over path. On any failure the temp file is removed
// on a best-effort basis.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("atomicfile: create directory %s: %w", dir, err)
	}

	tmpPath := fmt.Sprintf("%s.tmp-%d-%d", path, time.Now().UnixNano(), randSuffix())

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("atomicfile: create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("atomicfile: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("atomicfile: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: rename temp to target: %w", err)
	}
	return nil
}

// randSuffix returns a small random value used to disambiguate temp file
// names from concurrent invocations; not a security primitive.
func randSuffix() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().Nanosecond())
	}
	return binary.LittleEndian.Uint32(b[:])
}

// ReadOrDefault reads path; if it doesn't exist, it returns (nil, false, nil)
// so the caller can substitute a default value.
func ReadOrDefault(path string) (data []byte, exists bool, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("atomicfile: read %s: %w", path, err)
	}
	return data, true, nil
}
