// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package syncs

import "runtime"

// spinsPerYield is how many failed polls pass between hints to the
// runtime.
const spinsPerYield = 64

// spinHint is called between polls of a contended lock.
//
// Hosted builds run on top of the Go scheduler, which may have descheduled
// the holder; every spinsPerYield polls we give its goroutine a chance to
// run and release. The spinning goroutine itself never parks.
func spinHint(spins *int) {
	*spins++
	if *spins%spinsPerYield == 0 {
		runtime.Gosched()
	}
}
