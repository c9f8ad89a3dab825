// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package syncs

import (
	"errors"
	"fmt"
	"testing"

	"kboot.dev/tstest"
)

func TestOnceMutexConcurrent(t *testing.T) {
	const callers = 8
	var (
		m       OnceMutex[int]
		counter RawSpin // locks n below; separate from m on purpose
		n       int
		got     [callers]int
	)
	tstest.Contend(t, callers, func(i int) error {
		g := m.LockOrInit(func() int {
			counter.Lock()
			defer counter.Unlock()
			n++
			return n
		})
		defer g.Unlock()
		got[i] = *g.Get()
		return nil
	})
	if n != 1 {
		t.Errorf("initializer ran %d times; want 1", n)
	}
	for i, v := range got {
		if v != 1 {
			t.Errorf("caller %d saw %d; want 1", i, v)
		}
	}
}

func TestOnceMutexMemoized(t *testing.T) {
	var (
		m     OnceMutex[string]
		calls int
	)
	fill := func() string {
		calls++
		return fmt.Sprintf("value-%d", calls)
	}
	for range 100 {
		g := m.LockOrInit(fill)
		if got := *g.Get(); got != "value-1" {
			t.Fatalf("got %q; want %q", got, "value-1")
		}
		g.Unlock()
	}
	if calls != 1 {
		t.Errorf("calls = %d; want 1", calls)
	}
}

func TestOnceMutexMutate(t *testing.T) {
	var m OnceMutex[[]string]
	for _, s := range []string{"a", "b", "c"} {
		g := m.Lock()
		*g.Get() = append(*g.Get(), s)
		g.Unlock()
	}
	v, ok := m.Peek()
	if !ok || fmt.Sprint(v) != "[a b c]" {
		t.Errorf("Peek = %v, %v; want [a b c], true", v, ok)
	}
}

func TestOnceMutexPeekEmpty(t *testing.T) {
	var m OnceMutex[int]
	if v, ok := m.Peek(); ok || v != 0 {
		t.Errorf("Peek = %v, %v; want 0, false", v, ok)
	}
	m.WithLock(func(v *int) {
		if v != nil {
			t.Errorf("WithLock got %v on empty cell; want nil", *v)
		}
	})
}

func TestOnceMutexInitPanics(t *testing.T) {
	var m OnceMutex[int]
	wantPanic(t, func() {
		m.LockOrInit(func() int { panic("init failed") })
	})
	if _, ok := m.Peek(); ok {
		t.Fatal("cell initialized after panicking initializer")
	}
	g := m.LockOrInit(func() int { return 5 })
	if got := *g.Get(); got != 5 {
		t.Errorf("got %d; want 5", got)
	}
	g.Unlock()
}

type closeCounter struct {
	closes int
	err    error
}

func (c *closeCounter) Close() error {
	c.closes++
	return c.err
}

func TestOnceMutexClose(t *testing.T) {
	wantErr := errors.New("close failed")
	cc := &closeCounter{err: wantErr}

	var m OnceMutex[*closeCounter]
	g := m.LockOrInit(func() *closeCounter { return cc })
	g.Unlock()

	if err := m.Close(); err != wantErr {
		t.Errorf("Close = %v; want %v", err, wantErr)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close = %v; want nil", err)
	}
	if cc.closes != 1 {
		t.Errorf("closes = %d; want 1", cc.closes)
	}
	if _, ok := m.Peek(); ok {
		t.Error("Peek reported a value after Close")
	}
	wantPanic(t, func() { m.Lock() })
}

func TestOnceMutexCloseEmpty(t *testing.T) {
	var m OnceMutex[*closeCounter]
	if err := m.Close(); err != nil {
		t.Errorf("Close = %v; want nil", err)
	}
	wantPanic(t, func() {
		m.LockOrInit(func() *closeCounter {
			t.Error("initializer ran on closed OnceMutex")
			return nil
		})
	})
}
