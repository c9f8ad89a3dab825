// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package syncs contains busy-waiting synchronization types for code that
// runs before any scheduler exists.
//
// Nothing in this package parks, yields to a scheduler it owns, or
// allocates on the lock path. Every lock is a spin lock: a holder that never
// releases makes every other caller spin forever, and a context that locks a
// lock it already holds deadlocks against itself. Neither condition is
// detected. In particular, an interrupt or fault handler must not lock
// anything the interrupted context may be holding.
package syncs

// AssertLocked panics if l is not locked.
//
// It cannot tell who holds l, only that someone does.
func AssertLocked(l *RawSpin) {
	if !l.locked.Load() {
		panic("syncs: RawSpin is not locked")
	}
}
