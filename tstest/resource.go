// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package tstest

import (
	"bytes"
	"runtime"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// ResourceCheck snapshots the current goroutines and registers a cleanup on
// t that fails the test if goroutines started during it are still around,
// such as harts left spinning on a lock nobody will release.
//
// It panics if called from a parallel test.
func ResourceCheck(t testing.TB) {
	t.Helper()

	// t.Setenv panics in parallel tests, which is the point.
	t.Setenv("KBOOT_CHECKING_RESOURCES", "1")

	startN, startStacks := goroutines()
	t.Cleanup(func() {
		if t.Failed() {
			return
		}
		for range 300 {
			if runtime.NumGoroutine() <= startN {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		endN, endStacks := goroutines()
		if endN <= startN {
			return
		}
		t.Logf("goroutine diff:\n%v\n", cmp.Diff(startStacks, endStacks))
		t.Errorf("goroutine count: expected %d, got %d\n", startN, endN)
	})
}

func goroutines() (int, string) {
	p := pprof.Lookup("goroutine")
	b := new(bytes.Buffer)
	p.WriteTo(b, 1)
	return p.Count(), b.String()
}
