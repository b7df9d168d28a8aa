// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory provides typed 8, 16 and 32-bit access to target memory
// through a MEM-AP.
package memory

import (
	"encoding/binary"
	"fmt"

	"github.com/u-root/coresight/pkg/dap"
	"github.com/u-root/coresight/pkg/logger"
)

var log = logger.LogContainer.GetSimpleLogger()

// MemAP is the part of a MEM-AP the Interface drives.
// *dap.MemoryAccessPort implements it.
type MemAP interface {
	ReadReg(addr uint32) (uint32, error)
	WriteReg(addr uint32, value uint32) error
	ReadMemoryBlock32(addr uint32, count int) ([]uint32, error)
	WriteMemoryBlock32(addr uint32, data []uint32) error
}

// Word is a memory access width.
type Word interface {
	~uint8 | ~uint16 | ~uint32
}

type Interface struct {
	ap MemAP
}

func New(ap MemAP) *Interface {
	return &Interface{ap: ap}
}

// ForAccessPort returns an Interface for the MEM-AP n of dp.
func ForAccessPort(dp *dap.DebugPort, n uint8) (*Interface, error) {
	ap, err := dp.MemoryAccessPort(n)
	if err != nil {
		return nil, err
	}
	return New(ap), nil
}

// size returns the width of W in bytes.
func size[W Word]() uint32 {
	switch uint64(^W(0)) {
	case 0xff:
		return 1
	case 0xffff:
		return 2
	}
	return 4
}

func cswSize(n uint32) uint32 {
	switch n {
	case 1:
		return dap.CSW_SIZE8
	case 2:
		return dap.CSW_SIZE16
	}
	return dap.CSW_SIZE32
}

func checkCount(count int) error {
	if count < 0 {
		return fmt.Errorf("%d elements: %w", count, dap.ErrNegativeCount)
	}
	return nil
}

func checkAlign[W Word](addr uint32) error {
	n := size[W]()
	if addr&(n-1) != 0 {
		return &dap.AlignmentError{Addr: addr, Width: int(n) * 8}
	}
	return nil
}

// toWord places v in the byte lane selected by addr.
func toWord[W Word](addr uint32, v W) uint32 {
	n := size[W]()
	return uint32(v) << (8 * (addr & 3 &^ (n - 1)))
}

// fromWord extracts the value in the byte lane selected by addr.
func fromWord[W Word](addr uint32, v uint32) W {
	n := size[W]()
	return W(v >> (8 * (addr & 3 &^ (n - 1))))
}

func (m *Interface) setup(addr, n uint32) error {
	if err := m.ap.WriteReg(dap.MEM_AP_CSW, dap.CSW_VALUE|cswSize(n)); err != nil {
		return err
	}
	return m.ap.WriteReg(dap.MEM_AP_TAR, addr)
}

// Read reads one W sized value from addr.
func Read[W Word](m *Interface, addr uint32) (W, error) {
	if err := checkAlign[W](addr); err != nil {
		return 0, err
	}
	n := size[W]()
	if err := m.setup(addr, n); err != nil {
		return 0, &dap.TransferFaultError{Addr: addr, Length: n, Err: err}
	}
	v, err := m.ap.ReadReg(dap.MEM_AP_DRW)
	if err != nil {
		return 0, &dap.TransferFaultError{Addr: addr, Length: n, Err: err}
	}
	return fromWord[W](addr, v), nil
}

// Write writes one W sized value to addr.
func Write[W Word](m *Interface, addr uint32, v W) error {
	if err := checkAlign[W](addr); err != nil {
		return err
	}
	n := size[W]()
	if err := m.setup(addr, n); err != nil {
		return &dap.TransferFaultError{Addr: addr, Length: n, Err: err}
	}
	if err := m.ap.WriteReg(dap.MEM_AP_DRW, toWord(addr, v)); err != nil {
		return &dap.TransferFaultError{Addr: addr, Length: n, Err: err}
	}
	return nil
}

// ReadBlockSimple reads count values with one transaction per value.
func ReadBlockSimple[W Word](m *Interface, addr uint32, count int) ([]W, error) {
	if err := checkCount(count); err != nil {
		return nil, err
	}
	if err := checkAlign[W](addr); err != nil {
		return nil, err
	}
	n := size[W]()
	out := make([]W, count)
	for i := range out {
		v, err := Read[W](m, addr+uint32(i)*n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteBlock writes data with one transaction per value.
func WriteBlock[W Word](m *Interface, addr uint32, data []W) error {
	if err := checkAlign[W](addr); err != nil {
		return err
	}
	n := size[W]()
	for i, v := range data {
		if err := Write(m, addr+uint32(i)*n, v); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlock reads count values starting at addr. Values before the first
// and after the last word boundary are read one by one, everything in
// between is read as 32-bit bursts and split into lanes.
func ReadBlock[W Word](m *Interface, addr uint32, count int) ([]W, error) {
	if err := checkCount(count); err != nil {
		return nil, err
	}
	if err := checkAlign[W](addr); err != nil {
		return nil, err
	}
	n := size[W]()
	out := make([]W, 0, count)

	// Prefix up to the first word boundary.
	head := int((4 - addr&3) & 3 / n)
	if head > count {
		head = count
	}
	for i := 0; i < head; i++ {
		v, err := Read[W](m, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		addr += n
	}

	// Interior whole words.
	per := int(4 / n)
	words := (count - head) / per
	if words > 0 {
		log.Debugf("memory: %d-bit block %#08x, %d words", n*8, addr, words)
		data, err := m.ap.ReadMemoryBlock32(addr, words)
		if err != nil {
			return nil, err
		}
		for _, w := range data {
			for lane := uint32(0); lane < 4; lane += n {
				out = append(out, W(w>>(8*lane)))
			}
		}
		addr += uint32(words) * 4
	}

	// Suffix past the last word boundary.
	for len(out) < count {
		v, err := Read[W](m, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		addr += n
	}
	return out, nil
}

func (m *Interface) Read8(addr uint32) (uint8, error)   { return Read[uint8](m, addr) }
func (m *Interface) Read16(addr uint32) (uint16, error) { return Read[uint16](m, addr) }
func (m *Interface) Read32(addr uint32) (uint32, error) { return Read[uint32](m, addr) }

func (m *Interface) Write8(addr uint32, v uint8) error   { return Write(m, addr, v) }
func (m *Interface) Write16(addr uint32, v uint16) error { return Write(m, addr, v) }
func (m *Interface) Write32(addr uint32, v uint32) error { return Write(m, addr, v) }

// ReadMemory fills buf from target memory starting at addr.
func (m *Interface) ReadMemory(addr uint32, buf []byte) error {
	data, err := ReadBlock[uint8](m, addr, len(buf))
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// WriteMemory copies data to target memory starting at addr. The word
// aligned part goes out as 32-bit bursts.
func (m *Interface) WriteMemory(addr uint32, data []byte) error {
	for len(data) > 0 && addr&3 != 0 {
		if err := m.Write8(addr, data[0]); err != nil {
			return err
		}
		addr++
		data = data[1:]
	}
	if words := len(data) / 4; words > 0 {
		buf := make([]uint32, words)
		for i := range buf {
			buf[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
		if err := m.ap.WriteMemoryBlock32(addr, buf); err != nil {
			return fmt.Errorf("writing %d bytes: %w", words*4, err)
		}
		addr += uint32(words) * 4
		data = data[words*4:]
	}
	for _, b := range data {
		if err := m.Write8(addr, b); err != nil {
			return err
		}
		addr++
	}
	return nil
}
