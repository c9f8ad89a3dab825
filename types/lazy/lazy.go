// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package lazy provides a spin-locked cell whose value is computed on first
// use by an initializer supplied at construction.
package lazy

import (
	"io"
	"sync/atomic"

	"kboot.dev/syncs"
)

// Initializer produces a Cell's value. Init is called at most once.
//
// An Initializer that holds resources of its own should also implement
// io.Closer: a Cell closed before it ever called Init releases the
// Initializer with Close instead.
type Initializer[T any] interface {
	Init() T
}

// InitFunc adapts a plain function to an Initializer.
type InitFunc[T any] func() T

// Init calls f.
func (f InitFunc[T]) Init() T { return f() }

// Cell is a lazily computed value, typically a process-wide singleton such
// as a hardware port handle.
//
// The initializer is stored in the Cell until the first Lock, which moves it
// out of the Cell and calls it while holding the lock. From then on every
// Lock returns the same value. A Cell must be created with New or NewFrom
// and must not be copied.
//
// Recursive use of a Cell from its own initializer deadlocks.
type Cell[T any] struct {
	once   syncs.OnceMutex[T]
	fill   func() T // c.fillLocked, bound once so Lock doesn't allocate
	closed atomic.Bool

	// The fields below are guarded by once's lock.
	//
	// init is non-nil exactly while once is empty and Init has not been
	// called. It is cleared before Init runs, together with setting taken,
	// so a panicking Init can't be called or released a second time.
	init  Initializer[T]
	taken bool
}

// New returns a Cell whose value is computed by fill.
func New[T any](fill func() T) *Cell[T] {
	if fill == nil {
		return NewFrom[T](nil)
	}
	return NewFrom[T](InitFunc[T](fill))
}

// NewFrom returns a Cell whose value is computed by init.
func NewFrom[T any](init Initializer[T]) *Cell[T] {
	c := &Cell[T]{init: init}
	c.fill = c.fillLocked
	return c
}

// Lock locks c, computing its value first if this is the first Lock.
//
// It panics if c has been closed, if c has no initializer, or if an earlier
// call to the initializer panicked.
func (c *Cell[T]) Lock() syncs.OnceGuard[T] {
	if c.closed.Load() {
		panic("lazy: use of closed Cell")
	}
	if c.fill == nil {
		panic("lazy: Cell without initializer")
	}
	return c.once.LockOrInit(c.fill)
}

// Do calls f with c's value while holding c's lock, computing the value
// first if needed. The lock is released when f returns or panics.
func (c *Cell[T]) Do(f func(*T)) {
	g := c.Lock()
	defer g.Unlock()
	f(g.Get())
}

func (c *Cell[T]) fillLocked() T {
	init := c.init
	switch {
	case c.closed.Load():
		// Close is in progress and will release init itself.
		panic("lazy: use of closed Cell")
	case init != nil:
	case c.taken:
		panic("lazy: initializer panicked")
	default:
		panic("lazy: Cell without initializer")
	}
	c.init, c.taken = nil, true
	return init.Init()
}

// Peek returns c's value and whether it has been computed, without
// computing it.
func (c *Cell[T]) Peek() (v T, ok bool) {
	return c.once.Peek()
}

// Close tears c down.
//
// If c's value was never computed, the stored initializer is released:
// closed if it implements io.Closer, then dropped. Init is not called. If the
// value was computed, the initializer is already gone and is not touched;
// the value is closed if it implements io.Closer.
//
// Either way exactly one of them is released, once. Later calls return nil.
// Lock panics after Close.
func (c *Cell[T]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	var err error
	c.once.WithLock(func(v *T) {
		if v != nil {
			return
		}
		init := c.init
		c.init = nil
		if cl, ok := init.(io.Closer); ok {
			err = cl.Close()
		}
	})
	if cerr := c.once.Close(); err == nil {
		err = cerr
	}
	return err
}
