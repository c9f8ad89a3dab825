// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package volatile provides memory cells whose loads and stores the
// compiler may not elide, merge or reorder against each other, for
// memory-mapped hardware registers.
//
// A device register can have side effects on store that no Go code can see,
// and can return a different value on every load. Plain Go loads and stores
// give no such guarantee.
//
// Cells do no locking. Callers that share a register between CPUs
// synchronize access themselves.
package volatile

import (
	"sync/atomic"
	"unsafe"
)

// Word is the set of types a Cell can hold: fixed-width integers that are
// copied bit for bit and have nothing to release.
type Word interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~int8 | ~int16 | ~int32 | ~int64
}

// Cell is a single volatile value of type T.
//
// 64-bit cells must be 8-byte aligned, as device registers are.
type Cell[T Word] struct {
	v T
}

// accessOp identifies a Cell access for testHookAccess.
type accessOp uint8

const (
	opRead  accessOp = iota + 1 // a load
	opWrite                     // a store
)

// testHookAccess, if non-nil, is called on every Read and Write.
var testHookAccess func(accessOp)

// Read performs one load of c.
func (c *Cell[T]) Read() T {
	if testHookAccess != nil {
		testHookAccess(opRead)
	}
	p := unsafe.Pointer(&c.v)
	switch unsafe.Sizeof(c.v) {
	case 1:
		return T(load8((*uint8)(p)))
	case 2:
		return T(load16((*uint16)(p)))
	case 4:
		return T(atomic.LoadUint32((*uint32)(p)))
	default:
		return T(atomic.LoadUint64((*uint64)(p)))
	}
}

// Write performs one store of v to c.
func (c *Cell[T]) Write(v T) {
	if testHookAccess != nil {
		testHookAccess(opWrite)
	}
	p := unsafe.Pointer(&c.v)
	switch unsafe.Sizeof(c.v) {
	case 1:
		store8((*uint8)(p), uint8(v))
	case 2:
		store16((*uint16)(p), uint16(v))
	case 4:
		atomic.StoreUint32((*uint32)(p), uint32(v))
	default:
		atomic.StoreUint64((*uint64)(p), uint64(v))
	}
}

// Update reads c, applies f and writes the result back. The pair is two
// separate accesses, not an atomic read-modify-write.
func (c *Cell[T]) Update(f func(T) T) {
	c.Write(f(c.Read()))
}

// At returns the Cell at the fixed physical address addr, such as a device
// register in identity-mapped memory. addr must not point into the Go heap.
func At[T Word](addr uintptr) *Cell[T] {
	return (*Cell[T])(unsafe.Pointer(addr))
}

// Slice returns the n consecutive Cells starting at addr, such as a
// device's register bank. The same rules as for At apply.
func Slice[T Word](addr uintptr, n int) []Cell[T] {
	return unsafe.Slice(At[T](addr), n)
}

// The sync/atomic package has no 8- and 16-bit operations. The Go compiler
// never removes a call to a function it did not inline, nor the memory
// access inside it.

//go:noinline
func load8(p *uint8) uint8 { return *p }

//go:noinline
func load16(p *uint16) uint16 { return *p }

//go:noinline
func store8(p *uint8, v uint8) { *p = v }

//go:noinline
func store16(p *uint16, v uint16) { *p = v }
