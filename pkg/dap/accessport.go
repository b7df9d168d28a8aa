// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dap

import "fmt"

// AccessPort is implemented by every AP kind a DebugPort can create.
type AccessPort interface {
	APNum() uint8
	IDR() IDR
	ReadReg(addr uint32) (uint32, error)
	WriteReg(addr uint32, value uint32) error
	// ResetDidOccur drops any state cached from the target.
	ResetDidOccur()
}

// accessPort has the register addressing shared by all AP kinds.
type accessPort struct {
	dp  *DebugPort
	num uint8
	idr IDR
}

func apAddress(num uint8, reg uint32) uint32 {
	return uint32(num)<<APSEL_SHIFT | reg&AP_REG_MASK
}

func (ap *accessPort) APNum() uint8 {
	return ap.num
}

func (ap *accessPort) IDR() IDR {
	return ap.idr
}

func (ap *accessPort) ReadReg(addr uint32) (uint32, error) {
	return ap.dp.readAP(apAddress(ap.num, addr))
}

func (ap *accessPort) WriteReg(addr uint32, value uint32) error {
	return ap.dp.writeAP(apAddress(ap.num, addr), value)
}

func (ap *accessPort) ResetDidOccur() {}

type apKind struct {
	variant uint8
	typ     uint8
}

// AP classes by IDR (variant, type).
var apTypeMap = map[apKind]func(dp *DebugPort, num uint8, idr IDR) AccessPort{
	{0, AP_TYPE_AHB}:  newMemAP,
	{0, AP_TYPE_APB}:  newMemAP,
	{0, AP_TYPE_AXI}:  newMemAP,
	{0, AP_TYPE_AHB5}: newMemAP,
}

func newMemAP(dp *DebugPort, num uint8, idr IDR) AccessPort {
	return newMemoryAccessPort(dp, num, idr)
}

func readIDR(dp *DebugPort, num uint8) (IDR, error) {
	v, err := dp.readAP(apAddress(num, AP_IDR))
	return IDR(v), err
}

// accessPortIsValid reports whether an AP answers at num. An AP is absent
// iff its IDR reads as zero.
func accessPortIsValid(dp *DebugPort, num uint8) (bool, error) {
	idr, err := readIDR(dp, num)
	if err != nil {
		return false, err
	}
	return idr != 0, nil
}

// createAccessPort determines the AP kind from the IDR and builds it.
func createAccessPort(dp *DebugPort, num uint8) (AccessPort, error) {
	idr, err := readIDR(dp, num)
	if err != nil {
		return nil, err
	}
	if idr == 0 {
		return nil, fmt.Errorf("AP%d has no IDR: %w", num, ErrInvalidAccessPortNumber)
	}
	ctor, ok := apTypeMap[apKind{idr.Variant(), idr.Type()}]
	if !ok {
		return nil, &UnsupportedAccessPortError{APNum: num, IDR: idr}
	}
	return ctor(dp, num, idr), nil
}
