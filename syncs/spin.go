// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package syncs

import "sync/atomic"

// RawSpin is a test-and-set spin lock with no payload.
//
// The zero value is an unlocked RawSpin. A RawSpin must not be copied after
// first use.
//
// Unlock happens-before the Lock that next acquires l, so all writes made
// while holding l are visible to the next holder, on any CPU.
type RawSpin struct {
	locked atomic.Bool
}

// Lock spins until it acquires l.
//
// There is no timeout. Locking l again from the context that holds it
// deadlocks.
func (l *RawSpin) Lock() {
	var spins int
	for l.locked.Swap(true) {
		// Wait on plain loads until l looks free so contended CPUs don't
		// bounce the cache line with writes.
		for l.locked.Load() {
			spinHint(&spins)
		}
	}
}

// TryLock makes a single attempt to acquire l and reports whether it
// succeeded.
func (l *RawSpin) TryLock() bool {
	return !l.locked.Swap(true)
}

// Unlock releases l. Unlocking a RawSpin that is not locked is a no-op.
//
// Unlock does not check that the caller holds l.
func (l *RawSpin) Unlock() {
	l.locked.Store(false)
}
