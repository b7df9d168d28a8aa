// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dap

import "fmt"

// DefaultAutoIncrementPageSize is the smallest TAR auto-increment range
// every MEM-AP implements. A smaller size than the real one only costs
// extra TAR writes.
const DefaultAutoIncrementPageSize = 0x400

// cswCache is the last CSW value the transport accepted. An unknown cache
// is never equal to any CSW value.
type cswCache struct {
	value uint32
	known bool
}

type MemoryAccessPort struct {
	accessPort
	csw      cswCache
	pageSize uint32
}

func newMemoryAccessPort(dp *DebugPort, num uint8, idr IDR) *MemoryAccessPort {
	m := &MemoryAccessPort{
		accessPort: accessPort{dp: dp, num: num, idr: idr},
		pageSize:   DefaultAutoIncrementPageSize,
	}
	if err := m.SetAutoIncrementPageSize(dp.cfg.AutoIncrementPageSize); err != nil {
		log.Warnf("AP%d: %v, using %#x", num, err, m.pageSize)
	}
	return m
}

func (m *MemoryAccessPort) AutoIncrementPageSize() uint32 {
	return m.pageSize
}

// SetAutoIncrementPageSize sets the range block transfers must not cross.
// It has to be a power of two of at least one word.
func (m *MemoryAccessPort) SetAutoIncrementPageSize(n uint32) error {
	if n < 4 || n&(n-1) != 0 {
		return fmt.Errorf("auto increment page size %#x is not a power of two >= 4", n)
	}
	m.pageSize = n
	return nil
}

// WriteReg skips CSW writes that would not change the cached value.
func (m *MemoryAccessPort) WriteReg(addr uint32, value uint32) error {
	if addr&AP_REG_MASK == MEM_AP_CSW {
		if m.csw.known && m.csw.value == value {
			log.Debugf("AP%d.CSW %#08x cached", m.num, value)
			return nil
		}
		m.csw = cswCache{value: value, known: true}
	}
	if err := m.accessPort.WriteReg(addr, value); err != nil {
		m.handleError(err)
		return err
	}
	return nil
}

func (m *MemoryAccessPort) ReadReg(addr uint32) (uint32, error) {
	if addr&AP_REG_MASK == MEM_AP_CSW && m.csw.known {
		return m.csw.value, nil
	}
	v, err := m.accessPort.ReadReg(addr)
	if err != nil {
		m.handleError(err)
		return 0, err
	}
	return v, nil
}

func (m *MemoryAccessPort) ResetDidOccur() {
	m.csw = cswCache{}
}

// handleError runs after the DebugPort has already dealt with the sticky
// error; the device side CSW is no longer certain.
func (m *MemoryAccessPort) handleError(err error) {
	if m.csw.known {
		log.Debugf("AP%d: dropping cached CSW after %v", m.num, err)
	}
	m.csw = cswCache{}
}

// ReadBase returns the BASE register decoded into the ROM table address
// and whether a ROM table is present.
func (m *MemoryAccessPort) ReadBase() (uint32, bool, error) {
	v, err := m.ReadReg(AP_BASE)
	if err != nil {
		return 0, false, err
	}
	// Legacy format for "no debug entries present".
	if v == 0xffffffff {
		return 0, false, nil
	}
	return v & BASE_ADDRMASK, v&BASE_PRESENT != 0, nil
}

func (m *MemoryAccessPort) checkBlock(addr uint32, words int) error {
	if addr&0x3 != 0 {
		return &AlignmentError{Addr: addr, Width: 32}
	}
	if uint64(addr&(m.pageSize-1))+uint64(words)*4 > uint64(m.pageSize) {
		return fmt.Errorf("%#08x + %d words: %w", addr, words, ErrBlockCrossesPage)
	}
	return nil
}

// fault annotates err with the block it was transferring. Register
// accesses have already dropped the CSW cache.
func (m *MemoryAccessPort) fault(addr uint32, length int, err error) error {
	return &TransferFaultError{Addr: addr, Length: uint32(length), Err: err}
}

// WriteBlock32 writes words in a single AP transaction. The block must be
// word aligned and must not cross the auto-increment page.
func (m *MemoryAccessPort) WriteBlock32(addr uint32, data []uint32) error {
	if err := m.checkBlock(addr, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := m.WriteReg(MEM_AP_CSW, CSW_VALUE|CSW_SIZE32); err != nil {
		return m.fault(addr, len(data)*4, err)
	}
	if err := m.WriteReg(MEM_AP_TAR, addr); err != nil {
		return m.fault(addr, len(data)*4, err)
	}
	if err := m.dp.writeAPMultiple(apAddress(m.num, MEM_AP_DRW), data); err != nil {
		m.handleError(err)
		return m.fault(addr, len(data)*4, err)
	}
	return nil
}

// ReadBlock32 reads count words in a single AP transaction. The block must
// be word aligned and must not cross the auto-increment page.
func (m *MemoryAccessPort) ReadBlock32(addr uint32, count int) ([]uint32, error) {
	if count < 0 {
		return nil, fmt.Errorf("%d words: %w", count, ErrNegativeCount)
	}
	if err := m.checkBlock(addr, count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	if err := m.WriteReg(MEM_AP_CSW, CSW_VALUE|CSW_SIZE32); err != nil {
		return nil, m.fault(addr, count*4, err)
	}
	if err := m.WriteReg(MEM_AP_TAR, addr); err != nil {
		return nil, m.fault(addr, count*4, err)
	}
	words, err := m.dp.readAPMultiple(apAddress(m.num, MEM_AP_DRW), count)
	if err == nil && len(words) != count {
		err = fmt.Errorf("probe returned %d of %d words", len(words), count)
	}
	if err != nil {
		m.handleError(err)
		return nil, m.fault(addr, count*4, err)
	}
	return words, nil
}

// nextChunk returns how many bytes starting at addr fit before the next
// auto-increment boundary, capped at size.
func (m *MemoryAccessPort) nextChunk(addr, size uint32) uint32 {
	n := m.pageSize - (addr & (m.pageSize - 1))
	if size < n {
		n = size & 0xfffffffc
	}
	return n
}

// WriteMemoryBlock32 writes an arbitrarily long word aligned block, split
// at every auto-increment boundary.
func (m *MemoryAccessPort) WriteMemoryBlock32(addr uint32, data []uint32) error {
	if addr&0x3 != 0 {
		return &AlignmentError{Addr: addr, Width: 32}
	}
	size := uint32(len(data)) * 4
	for size > 0 {
		n := m.nextChunk(addr, size)
		log.Debugf("AP%d: write block %#08x, %d bytes", m.num, addr, n)
		if err := m.WriteBlock32(addr, data[:n/4]); err != nil {
			return err
		}
		data = data[n/4:]
		size -= n
		addr += n
	}
	return nil
}

// ReadMemoryBlock32 reads count words from a word aligned address, split
// at every auto-increment boundary.
func (m *MemoryAccessPort) ReadMemoryBlock32(addr uint32, count int) ([]uint32, error) {
	if count < 0 {
		return nil, fmt.Errorf("%d words: %w", count, ErrNegativeCount)
	}
	if addr&0x3 != 0 {
		return nil, &AlignmentError{Addr: addr, Width: 32}
	}
	out := make([]uint32, 0, count)
	size := uint32(count) * 4
	for size > 0 {
		n := m.nextChunk(addr, size)
		log.Debugf("AP%d: read block %#08x, %d bytes", m.num, addr, n)
		words, err := m.ReadBlock32(addr, int(n/4))
		if err != nil {
			return nil, err
		}
		out = append(out, words...)
		size -= n
		addr += n
	}
	return out, nil
}
