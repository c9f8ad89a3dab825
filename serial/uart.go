// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package serial drives a 16550-compatible UART and provides the kernel's
// serial console.
package serial

import "errors"

// Register offsets from the UART base.
const (
	regData       = 0 // THR on write, RBR on read; divisor low with DLAB
	regIntEnable  = 1 // divisor high with DLAB
	regFIFOCtrl   = 2
	regLineCtrl   = 3
	regModemCtrl  = 4
	regLineStatus = 5

	numRegs = 8
)

// Line control and line status bits.
const (
	lcrDLAB = 1 << 7

	lsrDataReady = 1 << 0
	lsrTHREmpty  = 1 << 5
	lsrTxIdle    = 1 << 6
	lsrError     = 1 << 7
)

// ErrTransmit is returned when the UART reports an error after a byte was
// handed to the transmitter.
var ErrTransmit = errors.New("serial: transmit error")

// Bus is how a Port reaches its registers: port I/O on x86, memory-mapped
// I/O elsewhere. off is a register offset from the UART base.
type Bus interface {
	ReadReg(off uint8) uint8
	WriteReg(off, v uint8)
}

// Port is a 16550 UART.
//
// A Port is not safe for concurrent use; share one through a lazy.Cell or a
// syncs.SpinLock.
type Port struct {
	bus Bus
}

// NewPort returns a Port using bus. It does not touch the hardware; call
// Init before use.
func NewPort(bus Bus) *Port {
	return &Port{bus: bus}
}

// Init programs the UART for 38400 baud, 8 data bits, no parity, one stop
// bit, with FIFOs enabled and receive interrupts on.
func (p *Port) Init() {
	w := p.bus.WriteReg
	w(regIntEnable, 0x00) // interrupts off while programming
	w(regLineCtrl, lcrDLAB)
	w(regData, 0x03) // divisor 3: 115200/3 = 38400 baud
	w(regIntEnable, 0x00)
	w(regLineCtrl, 0x03)  // 8N1, DLAB off
	w(regFIFOCtrl, 0xc7)  // enable, clear both, 14-byte threshold
	w(regModemCtrl, 0x0b) // DTR, RTS, OUT2
	w(regIntEnable, 0x01) // data available
}

func (p *Port) lineStatus() uint8 {
	return p.bus.ReadReg(regLineStatus)
}

func (p *Port) send(b byte) error {
	for p.lineStatus()&lsrTHREmpty == 0 {
		// Transmitter busy. There is no timeout.
	}
	p.bus.WriteReg(regData, b)
	if p.lineStatus()&lsrError != 0 {
		return ErrTransmit
	}
	return nil
}

// WriteByte transmits b, waiting for the transmitter to be ready.
// Backspace and DEL erase the previous character on the terminal.
func (p *Port) WriteByte(b byte) error {
	switch b {
	case 0x08, 0x7f:
		for _, c := range [...]byte{0x08, ' ', 0x08} {
			if err := p.send(c); err != nil {
				return err
			}
		}
		return nil
	}
	return p.send(b)
}

// Write transmits b. It stops at the first error.
func (p *Port) Write(b []byte) (int, error) {
	for i, c := range b {
		if err := p.WriteByte(c); err != nil {
			return i, err
		}
	}
	return len(b), nil
}

// Receive returns the next received byte, if any.
func (p *Port) Receive() (b byte, ok bool) {
	if p.lineStatus()&lsrDataReady == 0 {
		return 0, false
	}
	return p.bus.ReadReg(regData), true
}
