// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package syncs

import "io"

// OnceMutex is a SpinLock over a value that is filled in by the first
// locker.
//
// The check for an empty cell and the call to the initializer both happen
// while holding the lock, so of any number of concurrent lockers exactly one
// runs its initializer and every locker observes the same value. There is no
// lock-free fast path: every access, initialized or not, pays for a lock and
// an unlock. That suits infrequent accesses such as console output.
//
// The zero value is an empty OnceMutex. It must not be copied after first
// use.
type OnceMutex[T any] struct {
	inner SpinLock[onceSlot[T]]
}

type onceSlot[T any] struct {
	v      T
	ok     bool // v has been filled; never reset
	closed bool
}

// OnceGuard is a Guard over an initialized OnceMutex. Get never observes an
// empty cell.
type OnceGuard[T any] struct {
	g Guard[onceSlot[T]]
}

// LockOrInit locks m and, if m is empty, fills it with the result of init.
// init is called at most once per OnceMutex across all callers.
//
// If init panics, m stays empty, the lock is released and the panic
// propagates. Calling LockOrInit on m from inside init deadlocks.
//
// LockOrInit panics if m has been closed.
func (m *OnceMutex[T]) LockOrInit(init func() T) OnceGuard[T] {
	g := m.inner.Lock()
	s := g.Get()
	if s.closed {
		g.Unlock()
		panic("syncs: use of closed OnceMutex")
	}
	if !s.ok {
		filled := false
		defer func() {
			if !filled {
				g.Unlock()
			}
		}()
		s.v = init()
		s.ok = true
		filled = true
	}
	return OnceGuard[T]{g: g}
}

// Lock is LockOrInit with an initializer returning the zero T.
func (m *OnceMutex[T]) Lock() OnceGuard[T] {
	return m.LockOrInit(zero[T])
}

func zero[T any]() (v T) { return v }

// Peek returns a copy of m's value and whether m has been initialized,
// without initializing it. It reports false once m is closed.
func (m *OnceMutex[T]) Peek() (v T, ok bool) {
	g := m.inner.Lock()
	defer g.Unlock()
	s := g.Get()
	if !s.ok || s.closed {
		return v, false
	}
	return s.v, true
}

// WithLock calls f while holding m's lock without initializing m. f gets a
// pointer to the value, or nil if m is empty or closed.
func (m *OnceMutex[T]) WithLock(f func(v *T)) {
	g := m.inner.Lock()
	defer g.Unlock()
	s := g.Get()
	if !s.ok || s.closed {
		f(nil)
		return
	}
	f(&s.v)
}

// Close tears m down. If m holds a value that implements io.Closer, it is
// closed exactly once and its error returned. Later calls return nil, and
// later Lock and LockOrInit calls panic.
func (m *OnceMutex[T]) Close() error {
	g := m.inner.Lock()
	defer g.Unlock()
	s := g.Get()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.ok {
		return nil
	}
	if c, ok := any(s.v).(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Get returns a pointer to the initialized value. The pointer must not be
// retained past Unlock.
func (g *OnceGuard[T]) Get() *T {
	return &g.g.Get().v
}

// Unlock releases the lock. It panics if g was already released.
func (g *OnceGuard[T]) Unlock() {
	g.g.Unlock()
}

// Live reports whether g still holds its lock.
func (g *OnceGuard[T]) Live() bool {
	return g.g.Live()
}
