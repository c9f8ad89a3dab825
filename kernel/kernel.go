// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel is the boot entry point: it brings up each hart (hardware
// thread), prints the banner and halts a hart that faults.
package kernel

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"
	"kboot.dev/serial"
	"kboot.dev/types/logger"
	"kboot.dev/vgabuf"
)

// Config configures Start.
type Config struct {
	// Harts is how many harts to boot. Zero means one.
	Harts int

	// Serial is the console harts report on. Nil means serial.Serial1.
	Serial *serial.Console

	// Screen is where the banner is drawn. Nil means vgabuf.Screen.
	Screen *vgabuf.Console

	// Logf logs boot progress. Nil means the serial console.
	Logf logger.Logf

	// Fault, if non-empty, makes hart 0 panic with it once it is online.
	Fault string
}

// hart is the boot state of one hart. Each hart writes only its own
// record, so records are kept on separate cache lines.
type hart struct {
	id     int
	online atomic.Bool
	halted atomic.Bool
	_      cpu.CacheLinePad
}

// Machine is the set of harts brought up by Boot.
type Machine struct {
	cfg   Config
	logf  logger.Logf
	harts []hart
}

// New returns a Machine for cfg with no harts running yet.
func New(cfg Config) (*Machine, error) {
	if cfg.Harts < 0 {
		return nil, fmt.Errorf("kernel: invalid hart count %d", cfg.Harts)
	}
	if cfg.Harts == 0 {
		cfg.Harts = 1
	}
	if cfg.Serial == nil {
		cfg.Serial = serial.Serial1
	}
	if cfg.Screen == nil {
		cfg.Screen = vgabuf.Screen
	}
	logf := cfg.Logf
	if logf == nil {
		logf = cfg.Serial.Logf
	}
	return &Machine{
		cfg:   cfg,
		logf:  logger.WithPrefix(logf, "kernel: "),
		harts: make([]hart, cfg.Harts),
	}, nil
}

// Boot brings up every hart concurrently and returns once all of them are
// online. A hart that faults reports the fault on the serial console and
// halts for good; Boot then never returns, as a machine with a halted CPU
// never finishes booting.
//
// Boot must be called at most once.
func (m *Machine) Boot(ctx context.Context) error {
	m.logf("booting %d harts", len(m.harts))
	var g errgroup.Group
	for i := range m.harts {
		h := &m.harts[i]
		h.id = i
		g.Go(func() error {
			return m.run(ctx, h)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.logf("%d of %d harts online", len(m.Online()), len(m.harts))
	return nil
}

// Start is New followed by Boot.
func Start(ctx context.Context, cfg Config) (*Machine, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return m, m.Boot(ctx)
}

func (m *Machine) run(ctx context.Context, h *hart) error {
	defer m.recoverHart(h)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("hart %d: %w", h.id, err)
	}
	if h.id == 0 {
		m.cfg.Screen.Printf("Hello, World%c\n", '!')
	}
	m.cfg.Serial.Printf("hart %d: online\n", h.id)
	h.online.Store(true)
	if h.id == 0 && m.cfg.Fault != "" {
		panic(m.cfg.Fault)
	}
	return nil
}

// recoverHart is deferred by every hart. On a fault it reports through the
// serial console and halts the hart.
//
// If the fault happened while the hart held the serial console, the
// console's deferred unlock has already run by the time we get here. A
// fault raised while holding a lock without a deferred unlock would spin
// here forever instead.
func (m *Machine) recoverHart(h *hart) {
	r := recover()
	if r == nil {
		return
	}
	h.halted.Store(true)
	m.cfg.Serial.Printf("hart %d: panicked: %v\n", h.id, r)
	Halt()
}

// Online returns the IDs of harts that came online.
func (m *Machine) Online() []int {
	var ids []int
	for i := range m.harts {
		if m.harts[i].online.Load() {
			ids = append(ids, i)
		}
	}
	return ids
}

// Halted returns the IDs of harts that faulted and halted.
func (m *Machine) Halted() []int {
	var ids []int
	for i := range m.harts {
		if m.harts[i].halted.Load() {
			ids = append(ids, i)
		}
	}
	return ids
}

// haltHook stops the calling hart. Tests replace it.
var haltHook = func() {
	for {
	}
}

// Halt stops the calling hart for good. It never returns.
func Halt() {
	haltHook()
	for {
	}
}
