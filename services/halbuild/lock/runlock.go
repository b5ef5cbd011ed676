// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// HolderInfo describes the process holding a RunLock. It is stored as JSON
// inside the lock file.
type HolderInfo struct {
	PID    int       `json:"pid"`
	Host   string    `json:"host"`
	RunID  string    `json:"run_id"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

// RunLockError is returned when another process holds the run lock.
type RunLockError struct {
	Path   string
	Holder *HolderInfo
	Err    error
}

// Error names the holder when it is known.
func (e *RunLockError) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v (pid %d on %s, %s since %s)",
		e.Path, e.Err, e.Holder.PID, e.Holder.Host, e.Holder.Reason, e.Holder.Since.Format(time.RFC3339))
}

// Unwrap returns the underlying error, normally ErrFileLocked.
func (e *RunLockError) Unwrap() error {
	return e.Err
}

// RunLock is an exclusive, non-blocking, process-level lock on a file.
//
// # Thread Safety
//
// Acquire and Release are safe for concurrent use, but a RunLock models a
// single holder: acquiring twice without releasing returns an error.
type RunLock struct {
	path   string
	locker FileLocker
	mu     sync.Mutex
	file   *os.File
}

// NewRunLock returns a lock backed by the file at path. The file and its
// directory are created on first Acquire.
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path, locker: newFileLocker()}
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.path
}

// Acquire takes the lock or fails immediately.
//
// # Description
//
// Opens the lock file, requests an exclusive advisory lock and, on
// success, records HolderInfo in the file for diagnostics. When another
// process holds the lock the returned *RunLockError carries that
// process's HolderInfo if it could be read.
//
// # Inputs
//
//   - runID: Identifier of the run taking the lock.
//   - reason: Short description such as "sync" or "watch".
//
// # Outputs
//
//   - error: *RunLockError wrapping ErrFileLocked on contention, or an
//     I/O error.
func (l *RunLock) Acquire(runID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return fmt.Errorf("run lock %s already held by this process", l.path)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open run lock %s: %w", l.path, err)
	}

	if err := l.locker.Lock(f); err != nil {
		f.Close()
		if errors.Is(err, ErrFileLocked) {
			holder, _ := readHolder(l.path)
			return &RunLockError{Path: l.path, Holder: holder, Err: ErrFileLocked}
		}
		return fmt.Errorf("lock %s: %w", l.path, err)
	}

	host, _ := os.Hostname()
	info := HolderInfo{
		PID:    os.Getpid(),
		Host:   host,
		RunID:  runID,
		Reason: reason,
		Since:  time.Now().UTC(),
	}
	if err := writeHolder(f, info); err != nil {
		_ = l.locker.Unlock(f)
		f.Close()
		return fmt.Errorf("write run lock holder: %w", err)
	}

	l.file = f
	slog.Debug("acquired run lock", slog.String("path", l.path), slog.String("run_id", runID))
	return nil
}

// Release drops the lock. It returns ErrLockNotHeld if Acquire did not
// succeed first.
func (l *RunLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrLockNotHeld
	}
	f := l.file
	l.file = nil

	_ = f.Truncate(0)
	unlockErr := l.locker.Unlock(f)
	closeErr := f.Close()
	return errors.Join(unlockErr, closeErr)
}

func writeHolder(f *os.File, info HolderInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Sync()
}

// readHolder parses the holder recorded in the lock file at path.
func readHolder(path string) (*HolderInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var info HolderInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
