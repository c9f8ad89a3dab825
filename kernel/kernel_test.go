// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"kboot.dev/serial"
	"kboot.dev/syncs"
	"kboot.dev/tstest"
	"kboot.dev/types/lazy"
	"kboot.dev/vgabuf"
)

// testConfig returns a Config whose consoles write to memory, and a func
// returning what was printed on the serial console.
func testConfig(harts int) (Config, func() string) {
	var out syncs.SpinLock[bytes.Buffer]
	con := serial.NewConsole(lazy.InitFunc[*serial.Port](func() *serial.Port {
		p := serial.NewPort(serial.NewLoopback(lockedWriter{&out}))
		p.Init()
		return p
	}))
	cfg := Config{
		Harts:  harts,
		Serial: con,
		Screen: vgabuf.NewConsole(nil),
	}
	return cfg, func() string {
		g := out.Lock()
		defer g.Unlock()
		return g.Get().String()
	}
}

type lockedWriter struct {
	l *syncs.SpinLock[bytes.Buffer]
}

func (w lockedWriter) Write(b []byte) (int, error) {
	g := w.l.Lock()
	defer g.Unlock()
	return g.Get().Write(b)
}

func linesWith(s, substr string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			lines = append(lines, line)
		}
	}
	slices.Sort(lines)
	return lines
}

func TestStart(t *testing.T) {
	c := qt.New(t)
	cfg, serialOut := testConfig(4)
	m, err := Start(context.Background(), cfg)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Online(), qt.DeepEquals, []int{0, 1, 2, 3})
	c.Assert(m.Halted(), qt.HasLen, 0)

	out := serialOut()
	c.Assert(linesWith(out, "online"), qt.DeepEquals, []string{
		"hart 0: online",
		"hart 1: online",
		"hart 2: online",
		"hart 3: online",
		"kernel: 4 of 4 harts online",
	})
	c.Assert(strings.HasPrefix(out, "kernel: booting 4 harts\n"), qt.IsTrue, qt.Commentf("serial output: %q", out))

	rows := cfg.Screen.Rows()
	c.Assert(rows[vgabuf.Height-2], qt.Equals, "Hello, World!")
}

func TestStartDefaultsToOneHart(t *testing.T) {
	cfg, _ := testConfig(0)
	var logs []string
	cfg.Logf = func(format string, args ...any) {
		logs = append(logs, format)
	}
	m, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Online(); !slices.Equal(got, []int{0}) {
		t.Errorf("Online = %v; want [0]", got)
	}
	if len(logs) != 2 || !strings.HasPrefix(logs[0], "kernel: ") {
		t.Errorf("logs = %q; want two kernel: lines", logs)
	}
}

func TestFaultHalts(t *testing.T) {
	tstest.ResourceCheck(t)
	var halts atomic.Int32
	halted := make(chan struct{})
	release := make(chan struct{})
	tstest.Replace(t, &haltHook, func() {
		if halts.Add(1) == 1 {
			close(halted)
		}
		<-release
		runtime.Goexit()
	})

	c := qt.New(t)
	cfg, serialOut := testConfig(2)
	cfg.Fault = "page fault at 0xdead"
	m, err := New(cfg)
	c.Assert(err, qt.IsNil)

	booted := make(chan error, 1)
	go func() { booted <- m.Boot(context.Background()) }()
	// The halted hart parks in haltHook until cleanup; let it and the
	// goroutine stuck in Boot exit before ResourceCheck looks.
	t.Cleanup(func() { close(release) })

	select {
	case <-halted:
	case <-time.After(10 * time.Second):
		t.Fatal("hart 0 did not halt")
	}
	c.Assert(halts.Load(), qt.Equals, int32(1))
	c.Assert(m.Halted(), qt.DeepEquals, []int{0})
	c.Assert(slices.Contains(m.Online(), 0), qt.IsTrue)
	c.Assert(linesWith(serialOut(), "panicked"), qt.DeepEquals, []string{
		"hart 0: panicked: page fault at 0xdead",
	})

	select {
	case err := <-booted:
		t.Fatalf("Boot returned %v with a halted hart", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(Config{Harts: -1}); err == nil {
		t.Error("New accepted -1 harts")
	}
}

func TestStartCanceled(t *testing.T) {
	cfg, _ := testConfig(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := Start(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Start = %v; want %v", err, context.Canceled)
	}
	if got := m.Online(); len(got) != 0 {
		t.Errorf("Online = %v; want none", got)
	}
}

func TestStartInvalid(t *testing.T) {
	if _, err := Start(context.Background(), Config{Harts: -1}); err == nil {
		t.Error("Start accepted -1 harts")
	}
}
