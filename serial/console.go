// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package serial

import (
	"fmt"
	"io"
	"os"
	"strings"

	"kboot.dev/syncs"
	"kboot.dev/types/lazy"
)

// Console is a serial console: one Port, set up on first use and shared by
// every writer.
//
// A failed write panics. This early there is no other channel to report
// it on, and retrying would go through the same broken port.
type Console struct {
	port *lazy.Cell[*Port]
}

// NewConsole returns a Console whose Port is created by init on first use.
// init should return an initialized Port.
func NewConsole(init lazy.Initializer[*Port]) *Console {
	return &Console{port: lazy.NewFrom(init)}
}

// Write writes b to the port while holding the console lock.
func (c *Console) Write(b []byte) (n int, err error) {
	c.port.Do(func(p **Port) {
		n, err = (*p).Write(b)
	})
	return n, err
}

// Printf formats according to a format specifier and writes to c.
func (c *Console) Printf(format string, args ...any) {
	c.port.Do(func(p **Port) {
		if _, err := fmt.Fprintf(*p, format, args...); err != nil {
			panic(fmt.Sprintf("serial: printing failed: %v", err))
		}
	})
}

// Print is like fmt.Print but writes to c.
func (c *Console) Print(args ...any) {
	c.Printf("%s", fmt.Sprint(args...))
}

// Println is like fmt.Println but writes to c.
func (c *Console) Println(args ...any) {
	c.Printf("%s", fmt.Sprintln(args...))
}

// Logf is a logger.Logf that writes one line per call to c.
func (c *Console) Logf(format string, args ...any) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	c.Printf(format, args...)
}

// Close tears down the console, closing its Port's Bus if it implements
// io.Closer. The console can't be used afterwards.
func (c *Console) Close() error {
	return c.port.Close()
}

// Close closes p's Bus if it implements io.Closer. Closing a nil Port
// does nothing.
func (p *Port) Close() error {
	if p == nil {
		return nil
	}
	if c, ok := p.bus.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// output is where the hosted Serial1 transmits. It is read once, when
// Serial1 is first used.
var output = syncs.NewSpinLock[io.Writer](os.Stdout)

// SetOutput sets where Serial1 transmits in hosted builds. It has no effect
// once Serial1 has been used.
func SetOutput(w io.Writer) {
	output.Do(func(v *io.Writer) { *v = w })
}

func newSerial1() *Port {
	var w io.Writer
	output.Do(func(v *io.Writer) { w = *v })
	p := NewPort(NewLoopback(w))
	p.Init()
	return p
}

// Serial1 is the first serial port, the kernel's console.
var Serial1 = NewConsole(lazy.InitFunc[*Port](newSerial1))

// Printf formats according to a format specifier and writes to Serial1.
func Printf(format string, args ...any) { Serial1.Printf(format, args...) }

// Println is like fmt.Println but writes to Serial1.
func Println(args ...any) { Serial1.Println(args...) }
