// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// The kboot command boots the kernel as a hosted process: harts are
// goroutines, the serial port transmits to stdout or a file, and the text
// screen is kept in memory.
//
// With --fault, hart 0 panics after boot and halts. Like real hardware the
// process then spins, until it is interrupted or killed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/peterbourgon/ff/v3"
	"kboot.dev/kernel"
	"kboot.dev/serial"
	"kboot.dev/types/logger"
	"kboot.dev/vgabuf"
)

func main() {
	fs := flag.NewFlagSet("kboot", flag.ContinueOnError)
	var (
		harts     = fs.Int("harts", 1, "number of harts to boot")
		serialOut = fs.String("serial-out", "stdout", `where the serial port transmits: "stdout", "stderr" or a file path`)
		dumpVGA   = fs.Bool("dump-vga", false, "print the text screen to stdout after boot")
		fault     = fs.String("fault", "", "if non-empty, hart 0 panics with this message after boot and halts")
		quiet     = fs.Bool("quiet", false, "don't log boot progress")
		logStderr = fs.Bool("log-stderr", false, "also log boot progress to stderr")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("KBOOT")); err != nil {
		log.Fatalf("ff.Parse: %v", err)
	}

	out, err := openSerialOut(*serialOut)
	if err != nil {
		log.Fatal(err)
	}
	serial.SetOutput(out)

	var std *log.Logger
	if *logStderr {
		std = log.New(os.Stderr, "", log.LstdFlags)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	booted := make(chan struct{})
	go exitOnInterrupt(ctx, booted)

	_, err = kernel.Start(ctx, kernel.Config{
		Harts: *harts,
		Logf:  bootLogf(serial.Serial1, *quiet, std),
		Fault: *fault,
	})
	close(booted)
	stop()
	if err != nil {
		log.Fatal(err)
	}
	if *dumpVGA {
		for _, row := range vgabuf.Screen.Rows() {
			fmt.Println(row)
		}
	}
	if err := serial.Serial1.Close(); err != nil {
		log.Fatalf("closing serial console: %v", err)
	}
}

// openSerialOut returns the writer for the -serial-out value name. Files
// are closed along with the serial console, by the Loopback bus; stdout and
// stderr are wrapped so they are not.
func openSerialOut(name string) (io.Writer, error) {
	switch name {
	case "stdout", "":
		return struct{ io.Writer }{os.Stdout}, nil
	case "stderr":
		return struct{ io.Writer }{os.Stderr}, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("serial output: %w", err)
	}
	return f, nil
}

// bootLogf returns where kernel boot progress is logged: con, plus std if
// non-nil, or nowhere if quiet.
func bootLogf(con *serial.Console, quiet bool, std *log.Logger) logger.Logf {
	switch {
	case quiet:
		return logger.Discard
	case std != nil:
		return logger.Tee(con.Logf, std.Printf)
	}
	return con.Logf
}

// exit is os.Exit. Tests replace it.
var exit = os.Exit

// exitOnInterrupt exits the process if ctx is done before booted is closed.
// A halted hart never lets boot finish, so this is how an interrupt stops a
// faulted machine.
func exitOnInterrupt(ctx context.Context, booted <-chan struct{}) {
	select {
	case <-booted:
		return
	case <-ctx.Done():
	}
	select {
	case <-booted:
	default:
		fmt.Fprintln(os.Stderr, "kboot: interrupted")
		exit(130)
	}
}
