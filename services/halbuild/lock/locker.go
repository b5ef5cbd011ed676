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
	"errors"
	"os"
)

var (
	// ErrFileLocked is returned by a FileLocker when another process holds
	// the lock.
	ErrFileLocked = errors.New("file is locked by another process")

	// ErrLockNotHeld is returned when releasing a lock that is not held.
	ErrLockNotHeld = errors.New("lock not held")
)

// FileLocker provides platform-specific advisory file locking.
//
// Implementations must not block: Lock returns ErrFileLocked at once when
// the lock is taken.
type FileLocker interface {
	Lock(f *os.File) error
	Unlock(f *os.File) error
}

func newFileLocker() FileLocker {
	return newPlatformLocker()
}
