// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package probe defines the register transport that a debug probe driver
// exposes to the CoreSight layers above it.
//
// A Transport moves single 32-bit values in and out of Debug Port and
// Access Port registers and knows how to clock the wire. It never caches or
// interprets register contents; that is the job of package dap.
//
// AP-directed addresses carry the APSEL in bits [31:24] and the register
// offset in bits [7:0]. Drivers are expected to take care of the DP SELECT
// banking needed to reach the addressed register.
package probe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransferFault is returned when the target answered FAULT. The DP
	// latches STICKYERR and refuses further AP transfers until it is
	// cleared.
	ErrTransferFault = errors.New("transfer fault")
	// ErrStall is returned when the target kept answering WAIT.
	ErrStall = errors.New("transfer stalled")
	// ErrProbe covers everything that went wrong on the probe side (USB,
	// protocol errors, unexpected responses).
	ErrProbe = errors.New("probe error")
)

type WireProtocol int

const (
	SWD WireProtocol = iota
	JTAG
)

func (p WireProtocol) String() string {
	switch p {
	case SWD:
		return "swd"
	case JTAG:
		return "jtag"
	}
	return fmt.Sprintf("WireProtocol(%d)", int(p))
}

// ParseWireProtocol accepts "swd" or "jtag" in any case.
func ParseWireProtocol(s string) (WireProtocol, error) {
	switch strings.ToLower(s) {
	case "swd":
		return SWD, nil
	case "jtag":
		return JTAG, nil
	}
	return SWD, fmt.Errorf("unknown wire protocol %q", s)
}

type Transport interface {
	// Connect initializes the probe I/O pins for the selected protocol.
	Connect() error
	// Disconnect releases the probe I/O pins.
	Disconnect() error

	SetWireProtocol(p WireProtocol) error
	WireProtocol() WireProtocol
	// SetClock sets the SWCLK/TCK frequency in Hz.
	SetClock(hz uint32) error

	// SwjSequence sends the line reset and protocol selection sequence.
	SwjSequence() error

	ReadDP(addr uint32) (uint32, error)
	WriteDP(addr uint32, value uint32) error
	ReadAP(addr uint32) (uint32, error)
	WriteAP(addr uint32, value uint32) error
	// ReadAPMultiple reads the same AP register count times in one burst.
	ReadAPMultiple(addr uint32, count int) ([]uint32, error)
	// WriteAPMultiple writes all values to the same AP register in one burst.
	WriteAPMultiple(addr uint32, values []uint32) error

	// Reset pulses the target reset line.
	Reset() error
	// AssertReset drives the target reset line.
	AssertReset(assert bool) error
}
