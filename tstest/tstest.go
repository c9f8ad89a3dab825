// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package tstest provides utilities for use in unit tests.
package tstest

import (
	"testing"

	"github.com/creachadair/taskgroup"
)

// Replace replaces the value of target with val.
// The old value is restored when the test ends.
func Replace[T any](t testing.TB, target *T, val T) {
	t.Helper()
	if target == nil {
		t.Fatalf("Replace: nil pointer")
	}
	old := *target
	t.Cleanup(func() {
		*target = old
	})

	*target = val
}

// Contend runs fn on n goroutines at once and waits for all of them.
//
// The goroutines are started first and then released together, so more of
// them race on whatever fn locks than with staggered starts. Contend fails t
// with the first error any fn returns.
func Contend(t testing.TB, n int, fn func(i int) error) {
	t.Helper()
	var (
		g     taskgroup.Group
		start = make(chan struct{})
	)
	for i := range n {
		g.Go(func() error {
			<-start
			return fn(i)
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		t.Fatalf("contender: %v", err)
	}
}
