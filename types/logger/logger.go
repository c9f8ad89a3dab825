// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package logger defines a type for writing to logs. It's just a
// convenience type so that we don't have to pass verbose func(...)
// types around.
//
// Boot code logs through a console (serial or screen), so nothing here
// buffers, timestamps or rate limits.
package logger

// Logf is the basic logger type: a printf-like func.
// Like log.Printf, the format need not end in a newline.
// Logf functions must be safe for concurrent use.
//
// Functions that wrap logger functions must pass through the original
// format and args, possibly augmented.
type Logf func(format string, args ...any)

// WithPrefix wraps f, prefixing each format with the provided prefix.
func WithPrefix(f Logf, prefix string) Logf {
	return func(format string, args ...any) {
		f(prefix+format, args...)
	}
}

// Tee returns a Logf that logs to each of fs in order.
func Tee(fs ...Logf) Logf {
	return func(format string, args ...any) {
		for _, f := range fs {
			f(format, args...)
		}
	}
}

// Discard is a Logf that throws away the logs given to it.
func Discard(string, ...any) {}
