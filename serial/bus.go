// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package serial

import (
	"fmt"
	"io"

	"kboot.dev/volatile"
)

// MMIO is a Bus for a UART whose registers are memory-mapped, one byte
// apart.
type MMIO struct {
	regs []volatile.Cell[uint8]
}

// NewMMIO returns a Bus over regs, which must cover at least the eight
// 16550 registers.
func NewMMIO(regs []volatile.Cell[uint8]) *MMIO {
	if len(regs) < numRegs {
		panic(fmt.Sprintf("serial: MMIO window has %d registers; need %d", len(regs), numRegs))
	}
	return &MMIO{regs: regs}
}

// MMIOAt returns a Bus for a UART mapped at the physical address base.
func MMIOAt(base uintptr) *MMIO {
	return NewMMIO(volatile.Slice[uint8](base, numRegs))
}

func (m *MMIO) ReadReg(off uint8) uint8 { return m.regs[off].Read() }

func (m *MMIO) WriteReg(off, v uint8) { m.regs[off].Write(v) }

// mcrLoopback makes a 16550 feed its transmitter into its receiver.
const mcrLoopback = 1 << 4

// Loopback is a Bus that emulates a 16550 in memory for hosted builds. Bytes
// the Port transmits are written to an io.Writer; the transmitter is always
// ready. If the writer fails, the error is latched and the line status
// reports it from then on.
//
// A Loopback is not safe for concurrent use.
type Loopback struct {
	regs [numRegs]volatile.Cell[uint8]
	div  [2]volatile.Cell[uint8] // divisor latch, low and high
	w    io.Writer
	rx   []byte
	err  error
	buf  [1]byte
}

// NewLoopback returns a Loopback transmitting to w.
func NewLoopback(w io.Writer) *Loopback {
	return &Loopback{w: w}
}

func (l *Loopback) dlab() bool {
	return l.regs[regLineCtrl].Read()&lcrDLAB != 0
}

func (l *Loopback) ReadReg(off uint8) uint8 {
	off %= numRegs
	switch off {
	case regData:
		if l.dlab() {
			return l.div[0].Read()
		}
		if len(l.rx) == 0 {
			return 0
		}
		b := l.rx[0]
		l.rx = l.rx[1:]
		return b
	case regIntEnable:
		if l.dlab() {
			return l.div[1].Read()
		}
	case regLineStatus:
		s := uint8(lsrTHREmpty | lsrTxIdle)
		if len(l.rx) > 0 {
			s |= lsrDataReady
		}
		if l.err != nil {
			s |= lsrError
		}
		return s
	}
	return l.regs[off].Read()
}

func (l *Loopback) WriteReg(off, v uint8) {
	off %= numRegs
	switch {
	case off == regData && l.dlab():
		l.div[0].Write(v)
	case off == regIntEnable && l.dlab():
		l.div[1].Write(v)
	case off == regData:
		l.transmit(v)
	default:
		l.regs[off].Write(v)
	}
}

func (l *Loopback) transmit(b byte) {
	l.regs[regData].Write(b)
	if l.regs[regModemCtrl].Read()&mcrLoopback != 0 {
		l.rx = append(l.rx, b)
		return
	}
	if l.err != nil {
		return
	}
	l.buf[0] = b
	if _, err := l.w.Write(l.buf[:]); err != nil {
		l.err = err
	}
}

// Inject queues b as if received on the line.
func (l *Loopback) Inject(b ...byte) {
	l.rx = append(l.rx, b...)
}

// Divisor returns the programmed baud rate divisor.
func (l *Loopback) Divisor() uint16 {
	return uint16(l.div[1].Read())<<8 | uint16(l.div[0].Read())
}

// Reg returns the raw contents of register off, bypassing the divisor
// latch and line status emulation.
func (l *Loopback) Reg(off uint8) uint8 {
	return l.regs[off%numRegs].Read()
}

// Close closes the transmit writer if it implements io.Closer.
func (l *Loopback) Close() error {
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Err returns the first error from the transmit writer, if any.
func (l *Loopback) Err() error {
	return l.err
}
