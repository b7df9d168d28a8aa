// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dap

import "fmt"

const jep106ARM = 0x23B

// IDR is the raw value of an AP identification register.
type IDR uint32

func (i IDR) Revision() uint8 {
	return uint8((uint32(i) & AP_IDR_REVISION_MASK) >> AP_IDR_REVISION_SHIFT)
}

// Designer returns the JEP106 continuation code and identity code, 0x23B
// for ARM.
func (i IDR) Designer() uint16 {
	return uint16((uint32(i) & AP_IDR_JEP106_MASK) >> AP_IDR_JEP106_SHIFT)
}

func (i IDR) Class() uint8 {
	return uint8((uint32(i) & AP_IDR_CLASS_MASK) >> AP_IDR_CLASS_SHIFT)
}

func (i IDR) Variant() uint8 {
	return uint8((uint32(i) & AP_IDR_VARIANT_MASK) >> AP_IDR_VARIANT_SHIFT)
}

func (i IDR) Type() uint8 {
	return uint8(uint32(i) & AP_IDR_TYPE_MASK)
}

func (i IDR) String() string {
	designer := fmt.Sprintf("%#03x", i.Designer())
	if i.Designer() == jep106ARM {
		designer = "ARM"
	}
	return fmt.Sprintf("IDR %#08x (designer %s, class %d, variant %d, type %#x, rev %d)",
		uint32(i), designer, i.Class(), i.Variant(), i.Type(), i.Revision())
}

// IDCode is the decoded DPIDR.
type IDCode struct {
	Raw        uint32
	Revision   uint8
	PartNumber uint8
	Version    uint8
	MinDP      bool
	Designer   uint16
}

func decodeIDCode(v uint32) IDCode {
	return IDCode{
		Raw:        v,
		Revision:   uint8((v & DPIDR_REVISION_MASK) >> DPIDR_REVISION_SHIFT),
		PartNumber: uint8((v & DPIDR_PARTNO_MASK) >> DPIDR_PARTNO_SHIFT),
		Version:    uint8((v & DPIDR_VERSION_MASK) >> DPIDR_VERSION_SHIFT),
		MinDP:      v&DPIDR_MIN_MASK != 0,
		Designer:   uint16((v & DPIDR_DESIGNER_MASK) >> DPIDR_DESIGNER_SHIFT),
	}
}

func (c IDCode) String() string {
	return fmt.Sprintf("DPIDR %#08x (DPv%d, designer %#03x, part %#02x, rev %d, mindp %v)",
		c.Raw, c.Version, c.Designer, c.PartNumber, c.Revision, c.MinDP)
}
