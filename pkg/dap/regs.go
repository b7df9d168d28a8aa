// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dap

import "fmt"

// DP register addresses
const (
	DP_IDCODE    uint32 = 0x0 // read-only
	DP_ABORT     uint32 = 0x0 // write-only
	DP_CTRL_STAT uint32 = 0x4
	DP_SELECT    uint32 = 0x8 // write-only
	DP_RDBUFF    uint32 = 0xC // read-only
)

const (
	ABORT_STKERRCLR uint32 = 0x00000004

	CTRLSTAT_STICKYORUN uint32 = 0x00000002
	CTRLSTAT_STICKYCMP  uint32 = 0x00000010
	CTRLSTAT_STICKYERR  uint32 = 0x00000020

	CSYSPWRUPACK uint32 = 0x80000000
	CDBGPWRUPACK uint32 = 0x20000000
	CSYSPWRUPREQ uint32 = 0x40000000
	CDBGPWRUPREQ uint32 = 0x10000000

	TRNNORMAL uint32 = 0x00000000
	MASKLANE  uint32 = 0x00000f00
)

// AP register offsets
const (
	MEM_AP_CSW uint32 = 0x00
	MEM_AP_TAR uint32 = 0x04
	MEM_AP_DRW uint32 = 0x0C
	AP_BASE    uint32 = 0xF8
	AP_IDR     uint32 = 0xFC

	APSEL_SHIFT   = 24
	AP_REG_MASK   = 0xff
	APSEL_MASK    = 0xff000000
	BASE_PRESENT  = 0x00000001
	BASE_ADDRMASK = 0xfffff000
)

// MEM-AP Control and Status Word
const (
	CSW_SIZE     uint32 = 0x00000007
	CSW_SIZE8    uint32 = 0x00000000
	CSW_SIZE16   uint32 = 0x00000001
	CSW_SIZE32   uint32 = 0x00000002
	CSW_ADDRINC  uint32 = 0x00000030
	CSW_NADDRINC uint32 = 0x00000000
	CSW_SADDRINC uint32 = 0x00000010
	CSW_PADDRINC uint32 = 0x00000020
	CSW_DBGSTAT  uint32 = 0x00000040
	CSW_TINPROG  uint32 = 0x00000080
	CSW_HPROT    uint32 = 0x02000000
	CSW_MSTRTYPE uint32 = 0x20000000
	CSW_MSTRCORE uint32 = 0x00000000
	CSW_MSTRDBG  uint32 = 0x20000000
	CSW_RESERVED uint32 = 0x01000000

	// Debug master, privileged data access, single address increment.
	// OR in the transfer size.
	CSW_VALUE = CSW_RESERVED | CSW_MSTRDBG | CSW_HPROT | CSW_DBGSTAT | CSW_SADDRINC
)

// AP IDR bitfields:
// [31:28] Revision
// [27:24] JEP106 continuation (0x4 for ARM)
// [23:17] JEP106 vendor ID (0x3B for ARM)
// [16:13] Class (0b1000=Mem-AP)
// [12:8]  Reserved
// [7:4]   AP Variant (non-zero for JTAG-AP)
// [3:0]   AP Type
const (
	AP_IDR_REVISION_MASK  uint32 = 0xf0000000
	AP_IDR_REVISION_SHIFT        = 28
	AP_IDR_JEP106_MASK    uint32 = 0x0ffe0000
	AP_IDR_JEP106_SHIFT          = 17
	AP_IDR_CLASS_MASK     uint32 = 0x0001e000
	AP_IDR_CLASS_SHIFT           = 13
	AP_IDR_VARIANT_MASK   uint32 = 0x000000f0
	AP_IDR_VARIANT_SHIFT         = 4
	AP_IDR_TYPE_MASK      uint32 = 0x0000000f
)

const (
	AP_TYPE_AHB  = 0x1
	AP_TYPE_APB  = 0x2
	AP_TYPE_AXI  = 0x4
	AP_TYPE_AHB5 = 0x5

	AP_CLASS_NONE   = 0x0
	AP_CLASS_MEM_AP = 0x8
)

// DPIDR bitfields
const (
	DPIDR_REVISION_MASK  uint32 = 0xf0000000
	DPIDR_REVISION_SHIFT        = 28
	DPIDR_PARTNO_MASK    uint32 = 0x0ff00000
	DPIDR_PARTNO_SHIFT          = 20
	DPIDR_MIN_MASK       uint32 = 0x00010000
	DPIDR_VERSION_MASK   uint32 = 0x0000f000
	DPIDR_VERSION_SHIFT         = 12
	DPIDR_DESIGNER_MASK  uint32 = 0x00000ffe
	DPIDR_DESIGNER_SHIFT        = 1
)

var (
	dpReadRegs = map[uint32]string{
		DP_IDCODE:    "IDCODE",
		DP_CTRL_STAT: "CTRL/STAT",
		DP_RDBUFF:    "RDBUFF",
	}
	dpWriteRegs = map[uint32]string{
		DP_ABORT:     "ABORT",
		DP_CTRL_STAT: "CTRL/STAT",
		DP_SELECT:    "SELECT",
	}
	apRegs = map[uint32]string{
		MEM_AP_CSW: "CSW",
		MEM_AP_TAR: "TAR",
		MEM_AP_DRW: "DRW",
		AP_BASE:    "BASE",
		AP_IDR:     "IDR",
	}
)

// RegisterName returns a human readable name for a register. DP offset 0
// and 0xC mean different registers for reads and writes.
func RegisterName(ap, write bool, addr uint32) string {
	if ap {
		if n, ok := apRegs[addr&AP_REG_MASK]; ok {
			return fmt.Sprintf("AP%d.%s", addr>>APSEL_SHIFT, n)
		}
		return fmt.Sprintf("AP%d.%#02x", addr>>APSEL_SHIFT, addr&AP_REG_MASK)
	}
	m := dpReadRegs
	if write {
		m = dpWriteRegs
	}
	if n, ok := m[addr]; ok {
		return "DP." + n
	}
	return fmt.Sprintf("DP.%#x", addr)
}
