// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package syncs

// SpinLock is a value of type T guarded by a RawSpin.
//
// The value is reachable only through a Guard returned by Lock or TryLock,
// or inside Do. The zero value is an unlocked SpinLock holding the zero T.
// A SpinLock must not be copied after first use.
type SpinLock[T any] struct {
	mu RawSpin
	v  T
}

// NewSpinLock returns an unlocked SpinLock holding v.
func NewSpinLock[T any](v T) *SpinLock[T] {
	return &SpinLock[T]{v: v}
}

// Guard is exclusive access to the value of a locked SpinLock.
//
// A Guard is live from the Lock that returned it until its first Unlock.
// Callers should defer Unlock immediately so the lock is released on every
// return path, including panics:
//
//	g := l.Lock()
//	defer g.Unlock()
//
// A Guard must not be copied; each copy could release the lock.
type Guard[T any] struct {
	l *SpinLock[T] // nil once released
}

// Lock spins until it acquires l and returns a live Guard.
func (l *SpinLock[T]) Lock() Guard[T] {
	l.mu.Lock()
	return Guard[T]{l: l}
}

// TryLock makes a single attempt to acquire l. If it fails, the returned
// Guard is not live and ok is false.
func (l *SpinLock[T]) TryLock() (g Guard[T], ok bool) {
	if !l.mu.TryLock() {
		return Guard[T]{}, false
	}
	return Guard[T]{l: l}, true
}

// Do calls f with the guarded value while holding l. The lock is released
// when f returns or panics.
func (l *SpinLock[T]) Do(f func(*T)) {
	g := l.Lock()
	defer g.Unlock()
	f(g.Get())
}

// Take returns the guarded value and leaves the zero T in its place.
func (l *SpinLock[T]) Take() T {
	g := l.Lock()
	defer g.Unlock()
	var zero T
	v := *g.Get()
	*g.Get() = zero
	return v
}

// Get returns a pointer to the guarded value. The pointer must not be
// retained past Unlock.
//
// It panics if g is not live.
func (g *Guard[T]) Get() *T {
	if g.l == nil {
		panic("syncs: use of released Guard")
	}
	return &g.l.v
}

// Live reports whether g still holds its lock.
func (g *Guard[T]) Live() bool {
	return g.l != nil
}

// Unlock releases the lock held by g. It panics if g was already released
// or never held the lock.
func (g *Guard[T]) Unlock() {
	l := g.l
	if l == nil {
		panic("syncs: unlock of released Guard")
	}
	g.l = nil
	l.mu.Unlock()
}
