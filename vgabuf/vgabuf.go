// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package vgabuf writes text to a VGA text-mode buffer.
package vgabuf

import (
	"fmt"
	"strings"

	"kboot.dev/syncs"
	"kboot.dev/volatile"
)

// Screen dimensions in character cells.
const (
	Height = 25
	Width  = 80
)

// PhysAddr is where the text buffer is mapped on PC hardware.
const PhysAddr = 0xb8000

// Color is one of the 16 VGA text colors.
type Color uint8

const (
	Black Color = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGray
	DarkGray
	LightBlue
	LightGreen
	LightCyan
	LightRed
	Pink
	Yellow
	White
)

// ColorCode is a foreground and background color pair as stored in a cell's
// attribute byte.
type ColorCode uint8

// NewColorCode returns the attribute byte for fg on bg.
func NewColorCode(fg, bg Color) ColorCode {
	return ColorCode(bg)<<4 | ColorCode(fg)
}

// Buffer is the text buffer: one 16-bit cell per character, the ASCII code
// in the low byte and the ColorCode in the high byte.
type Buffer [Height][Width]volatile.Cell[uint16]

// Cell returns the character and color at row, col.
func (b *Buffer) Cell(row, col int) (byte, ColorCode) {
	v := b[row][col].Read()
	return byte(v), ColorCode(v >> 8)
}

func (b *Buffer) set(row, col int, c byte, color ColorCode) {
	b[row][col].Write(uint16(color)<<8 | uint16(c))
}

// Row returns the text of row with trailing blanks removed.
func (b *Buffer) Row(row int) string {
	var sb strings.Builder
	for col := range Width {
		c, _ := b.Cell(row, col)
		sb.WriteByte(c)
	}
	return strings.TrimRight(sb.String(), " ")
}

// Writer writes text to the bottom row of a Buffer, scrolling up on
// newline. It is not safe for concurrent use; Screen serializes access.
type Writer struct {
	col   int
	color ColorCode
	buf   *Buffer
}

// NewWriter returns a Writer drawing in color on buf.
func NewWriter(buf *Buffer, color ColorCode) *Writer {
	return &Writer{color: color, buf: buf}
}

// Buffer returns the buffer w draws on.
func (w *Writer) Buffer() *Buffer { return w.buf }

// SetColor changes the color of text written from now on.
func (w *Writer) SetColor(c ColorCode) { w.color = c }

// WriteByte writes c at the cursor. Newline moves to a fresh bottom row;
// text wraps at the right edge.
func (w *Writer) WriteByte(c byte) error {
	if c == '\n' {
		w.newLine()
		return nil
	}
	if w.col >= Width {
		w.newLine()
	}
	w.buf.set(Height-1, w.col, c, w.color)
	w.col++
	return nil
}

// WriteString writes s. Bytes outside printable ASCII are shown as ■.
func (w *Writer) WriteString(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 0x20 || c > 0x7e) && c != '\n' {
			c = 0xfe
		}
		w.WriteByte(c)
	}
	return len(s), nil
}

// Write is WriteString for byte slices. It never fails.
func (w *Writer) Write(b []byte) (int, error) {
	return w.WriteString(string(b))
}

func (w *Writer) newLine() {
	for row := 1; row < Height; row++ {
		for col := range Width {
			w.buf[row-1][col].Write(w.buf[row][col].Read())
		}
	}
	w.ClearRow(Height - 1)
	w.col = 0
}

// ClearRow blanks row in the current color.
func (w *Writer) ClearRow(row int) {
	for col := range Width {
		w.buf.set(row, col, ' ', w.color)
	}
}

// Console is a text screen shared by all CPUs. Its Writer is created on
// first use.
type Console struct {
	w   syncs.OnceMutex[*Writer]
	buf *Buffer
}

// NewConsole returns a Console drawing on buf. If buf is nil, the Console
// allocates an off-screen Buffer on first use, as hosted builds do.
func NewConsole(buf *Buffer) *Console {
	return &Console{buf: buf}
}

func (c *Console) newWriter() *Writer {
	buf := c.buf
	if buf == nil {
		buf = new(Buffer)
	}
	w := NewWriter(buf, NewColorCode(Yellow, Black))
	for row := range Height {
		w.ClearRow(row)
	}
	return w
}

// Do calls f with the console's Writer while holding the console lock.
func (c *Console) Do(f func(w *Writer)) {
	g := c.w.LockOrInit(c.newWriter)
	defer g.Unlock()
	f(*g.Get())
}

// Printf formats according to a format specifier and writes to c.
func (c *Console) Printf(format string, args ...any) {
	c.Do(func(w *Writer) { fmt.Fprintf(w, format, args...) })
}

// Println is like fmt.Println but writes to c.
func (c *Console) Println(args ...any) {
	c.Do(func(w *Writer) { fmt.Fprintln(w, args...) })
}

// Rows returns a snapshot of the screen, top row first.
func (c *Console) Rows() []string {
	rows := make([]string, Height)
	c.Do(func(w *Writer) {
		for i := range rows {
			rows[i] = w.buf.Row(i)
		}
	})
	return rows
}

// Screen is the hosted stand-in for the text buffer at PhysAddr.
var Screen = NewConsole(nil)

// Printf formats according to a format specifier and writes to Screen.
func Printf(format string, args ...any) { Screen.Printf(format, args...) }

// Println is like fmt.Println but writes to Screen.
func Println(args ...any) { Screen.Println(args...) }
