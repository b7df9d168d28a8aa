// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dap

import (
	"errors"
	"fmt"

	"github.com/u-root/coresight/pkg/probe"
)

var (
	// ErrTransferFault is the transport fault that latches STICKYERR.
	ErrTransferFault = probe.ErrTransferFault

	ErrInvalidAccessPortNumber = errors.New("invalid access port number")
	ErrUnsupportedAccessPort   = errors.New("unsupported access port type")
	ErrMemoryNotAligned        = errors.New("memory address not aligned")
	ErrPowerUpTimeout          = errors.New("debug power up not acknowledged")
	ErrBlockCrossesPage        = errors.New("block crosses auto-increment page")
	ErrNegativeCount           = errors.New("negative transfer count")
)

// TransportError wraps a failed register transaction.
type TransportError struct {
	Op   string
	Addr uint32
	Err  error
}

func (e *TransportError) Error() string {
	switch e.Op {
	case "read_dp", "write_dp", "read_ap", "write_ap":
		ap := e.Op == "read_ap" || e.Op == "write_ap"
		write := e.Op == "write_dp" || e.Op == "write_ap"
		return fmt.Sprintf("%s %s: %v", e.Op, RegisterName(ap, write, e.Addr), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TransferFaultError annotates a failed memory transfer with the target
// address range it covered.
type TransferFaultError struct {
	Addr   uint32
	Length uint32
	Err    error
}

func (e *TransferFaultError) Error() string {
	return fmt.Sprintf("memory transfer at %#08x (%d bytes) failed: %v", e.Addr, e.Length, e.Err)
}

func (e *TransferFaultError) Unwrap() error {
	return e.Err
}

// UnsupportedAccessPortError is returned for an AP whose IDR variant and
// type are not in the classification table. It matches both
// ErrUnsupportedAccessPort and ErrInvalidAccessPortNumber.
type UnsupportedAccessPortError struct {
	APNum uint8
	IDR   IDR
}

func (e *UnsupportedAccessPortError) Error() string {
	return fmt.Sprintf("AP%d: %v (variant %d, type %#x)", e.APNum, ErrUnsupportedAccessPort, e.IDR.Variant(), e.IDR.Type())
}

func (e *UnsupportedAccessPortError) Is(target error) bool {
	return target == ErrUnsupportedAccessPort || target == ErrInvalidAccessPortNumber
}

// AlignmentError is returned before any register access when an address
// does not meet the alignment of the transfer width.
type AlignmentError struct {
	Addr  uint32
	Width int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("%v: %#08x for %d-bit access", ErrMemoryNotAligned, e.Addr, e.Width)
}

func (e *AlignmentError) Is(target error) bool {
	return target == ErrMemoryNotAligned
}
