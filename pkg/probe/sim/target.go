// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim provides a simulated CoreSight target that implements
// probe.Transport.
//
// The target has one Debug Port, a list of MEM-APs that all see the same
// flat little-endian memory, a sticky error flag and TAR auto-increment
// that wraps inside the auto-increment page like real hardware does.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/u-root/coresight/pkg/logger"
	"github.com/u-root/coresight/pkg/probe"
)

var log = logger.LogContainer.GetSimpleLogger()

// Register layout as seen on the wire. Kept local so that this package
// does not depend on the layers it is used to test.
const (
	dpIDCode   = 0x0
	dpAbort    = 0x0
	dpCtrlStat = 0x4
	dpSelect   = 0x8
	dpRdBuff   = 0xc

	apCSW  = 0x00
	apTAR  = 0x04
	apDRW  = 0x0c
	apBase = 0xf8
	apIDR  = 0xfc

	abortStkErrClr = 0x00000004
	stickyErr      = 0x00000020
	cdbgPwrUpReq   = 0x10000000
	cdbgPwrUpAck   = 0x20000000
	csysPwrUpReq   = 0x40000000
	csysPwrUpAck   = 0x80000000
	ctrlStatRW     = cdbgPwrUpReq | csysPwrUpReq | 0x00000f00

	cswSize     = 0x00000007
	cswAddrInc  = 0x00000030
	cswSAddrInc = 0x00000010
	cswPAddrInc = 0x00000020
)

// Defaults used by NewTarget for zero Options fields.
const (
	DefaultDPIDR    = 0x2ba01477
	DefaultIDR      = 0x84770001
	DefaultMemSize  = 0x10000
	DefaultPageSize = 0x400
	// DefaultBase is a BASE value pointing at a present ROM table.
	DefaultBase = 0xe00ff003
)

// PowerUpNever makes the target never acknowledge a power up request.
const PowerUpNever = -1

// FaultHook is consulted before every transaction. A non-nil error is
// returned to the caller instead of performing the transaction; a
// probe.ErrTransferFault also latches the sticky error.
type FaultHook func(op string, addr uint32) error

type Options struct {
	DPIDR uint32
	// IDRs lists the AP IDRs from APSEL 0 upwards. Every AP beyond the
	// list reads an IDR of zero.
	IDRs []uint32
	// Base is the BASE register value of every AP.
	Base     uint32
	MemBase  uint32
	MemSize  uint32
	PageSize uint32
	// PowerUpDelay is the number of CTRL/STAT reads after a power up
	// request that still return no ACK, or PowerUpNever.
	PowerUpDelay int
	// IDCodeFailures is the number of IDCODE reads that fault before the
	// DP answers.
	IDCodeFailures int
	FaultHook      FaultHook
}

type apState struct {
	csw uint32
	tar uint32
}

// Target is a simulated debug target. It is safe for concurrent use.
type Target struct {
	mu   sync.Mutex
	opts Options
	mem  []byte
	aps  []apState

	protocol    probe.WireProtocol
	clock       uint32
	connected   bool
	synced      bool
	sticky      bool
	ctrlStat    uint32
	pwrReads    int
	idcodeFails int
	rdbuff      uint32
	inReset     bool

	calls map[string]int
}

var _ probe.Transport = (*Target)(nil)

// NewTarget builds a target from o, filling in defaults for zero fields.
func NewTarget(o Options) *Target {
	if o.DPIDR == 0 {
		o.DPIDR = DefaultDPIDR
	}
	if o.IDRs == nil {
		o.IDRs = []uint32{DefaultIDR}
	}
	if o.Base == 0 {
		o.Base = DefaultBase
	}
	if o.MemSize == 0 {
		o.MemSize = DefaultMemSize
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	return &Target{
		opts:        o,
		mem:         make([]byte, o.MemSize),
		aps:         make([]apState, len(o.IDRs)),
		idcodeFails: o.IDCodeFailures,
		calls:       make(map[string]int),
	}
}

// Calls returns how often op has been issued.
func (t *Target) Calls(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// ResetCalls zeroes all call counters.
func (t *Target) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = make(map[string]int)
}

// Sticky reports whether the sticky error flag is latched.
func (t *Target) Sticky() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sticky
}

// InReset reports whether the reset line is asserted.
func (t *Target) InReset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inReset
}

func (t *Target) Clock() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clock
}

// SetFaultHook replaces the fault hook.
func (t *Target) SetFaultHook(h FaultHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.FaultHook = h
}

// begin counts op and runs the fault hook. The caller holds t.mu.
func (t *Target) begin(op string, addr uint32) error {
	t.calls[op]++
	if t.opts.FaultHook == nil {
		return nil
	}
	err := t.opts.FaultHook(op, addr)
	if errors.Is(err, probe.ErrTransferFault) {
		t.sticky = true
	}
	return err
}

func (t *Target) fault() error {
	t.sticky = true
	return probe.ErrTransferFault
}

func (t *Target) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("connect", 0); err != nil {
		return err
	}
	t.connected = true
	return nil
}

func (t *Target) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("disconnect", 0); err != nil {
		return err
	}
	t.connected = false
	t.synced = false
	return nil
}

func (t *Target) SetWireProtocol(p probe.WireProtocol) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p != probe.SWD && p != probe.JTAG {
		return fmt.Errorf("%w: unsupported wire protocol %v", probe.ErrProbe, p)
	}
	t.protocol = p
	return nil
}

func (t *Target) WireProtocol() probe.WireProtocol {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protocol
}

func (t *Target) SetClock(hz uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hz == 0 {
		return fmt.Errorf("%w: clock of 0 Hz", probe.ErrProbe)
	}
	t.clock = hz
	return nil
}

func (t *Target) SwjSequence() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("swj_sequence", 0); err != nil {
		return err
	}
	if !t.connected {
		return fmt.Errorf("%w: not connected", probe.ErrProbe)
	}
	t.synced = true
	return nil
}

func (t *Target) checkLink() error {
	if !t.connected || !t.synced {
		return fmt.Errorf("%w: no line reset since connect", probe.ErrProbe)
	}
	return nil
}

func (t *Target) ReadDP(addr uint32) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("read_dp", addr); err != nil {
		return 0, err
	}
	if err := t.checkLink(); err != nil {
		return 0, err
	}
	switch addr {
	case dpIDCode:
		if t.idcodeFails > 0 {
			t.idcodeFails--
			return 0, t.fault()
		}
		return t.opts.DPIDR, nil
	case dpCtrlStat:
		return t.readCtrlStat(), nil
	case dpRdBuff:
		return t.rdbuff, nil
	}
	return 0, fmt.Errorf("%w: read of DP register %#x", probe.ErrProbe, addr)
}

func (t *Target) readCtrlStat() uint32 {
	v := t.ctrlStat
	if t.sticky {
		v |= stickyErr
	}
	if v&(cdbgPwrUpReq|csysPwrUpReq) == 0 {
		return v
	}
	t.pwrReads++
	if t.opts.PowerUpDelay != PowerUpNever && t.pwrReads > t.opts.PowerUpDelay {
		if v&cdbgPwrUpReq != 0 {
			v |= cdbgPwrUpAck
		}
		if v&csysPwrUpReq != 0 {
			v |= csysPwrUpAck
		}
	}
	return v
}

func (t *Target) poweredUp() bool {
	if t.ctrlStat&cdbgPwrUpReq == 0 {
		return false
	}
	return t.opts.PowerUpDelay != PowerUpNever && t.pwrReads > t.opts.PowerUpDelay
}

func (t *Target) WriteDP(addr uint32, value uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("write_dp", addr); err != nil {
		return err
	}
	if err := t.checkLink(); err != nil {
		return err
	}
	switch addr {
	case dpAbort:
		if t.protocol == probe.SWD && value&abortStkErrClr != 0 {
			t.sticky = false
		}
	case dpCtrlStat:
		// STICKYERR is write-one-to-clear over JTAG only.
		if t.protocol == probe.JTAG && value&stickyErr != 0 {
			t.sticky = false
		}
		if value&(cdbgPwrUpReq|csysPwrUpReq) == 0 {
			t.pwrReads = 0
		}
		t.ctrlStat = value & ctrlStatRW
	case dpSelect:
	default:
		return fmt.Errorf("%w: write of DP register %#x", probe.ErrProbe, addr)
	}
	return nil
}

// ap returns the state of an implemented AP, or nil.
func (t *Target) ap(addr uint32) *apState {
	n := int(addr >> 24)
	if n >= len(t.aps) {
		return nil
	}
	return &t.aps[n]
}

func (t *Target) checkAP() error {
	if err := t.checkLink(); err != nil {
		return err
	}
	if t.sticky || !t.poweredUp() {
		return probe.ErrTransferFault
	}
	return nil
}

func (t *Target) ReadAP(addr uint32) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("read_ap", addr); err != nil {
		return 0, err
	}
	return t.readAP(addr)
}

func (t *Target) readAP(addr uint32) (uint32, error) {
	if err := t.checkAP(); err != nil {
		return 0, err
	}
	ap := t.ap(addr)
	if ap == nil {
		return 0, nil
	}
	var v uint32
	switch addr & 0xff {
	case apCSW:
		v = ap.csw
	case apTAR:
		v = ap.tar
	case apDRW:
		var err error
		if v, err = t.readDRW(ap); err != nil {
			return 0, err
		}
	case apBase:
		v = t.opts.Base
	case apIDR:
		v = t.opts.IDRs[addr>>24]
	}
	t.rdbuff = v
	return v, nil
}

func (t *Target) WriteAP(addr uint32, value uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("write_ap", addr); err != nil {
		return err
	}
	return t.writeAP(addr, value)
}

func (t *Target) writeAP(addr uint32, value uint32) error {
	if err := t.checkAP(); err != nil {
		return err
	}
	ap := t.ap(addr)
	if ap == nil {
		return nil
	}
	switch addr & 0xff {
	case apCSW:
		ap.csw = value
	case apTAR:
		ap.tar = value
	case apDRW:
		return t.writeDRW(ap, value)
	}
	return nil
}

func (t *Target) ReadAPMultiple(addr uint32, count int) ([]uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("read_ap_multiple", addr); err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		v, err := t.readAP(addr)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *Target) WriteAPMultiple(addr uint32, values []uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("write_ap_multiple", addr); err != nil {
		return err
	}
	for _, v := range values {
		if err := t.writeAP(addr, v); err != nil {
			return err
		}
	}
	return nil
}

func (t *Target) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("reset", 0); err != nil {
		return err
	}
	t.resetAPs()
	return nil
}

func (t *Target) AssertReset(assert bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("assert_reset", 0); err != nil {
		return err
	}
	t.inReset = assert
	if assert {
		t.resetAPs()
	}
	return nil
}

func (t *Target) resetAPs() {
	for i := range t.aps {
		t.aps[i] = apState{}
	}
}

// transfer returns the access size in bytes selected by csw and checks
// that tar is aligned to it and inside memory.
func (t *Target) transfer(ap *apState) (int, int, error) {
	var size int
	switch ap.csw & cswSize {
	case 0:
		size = 1
	case 1:
		size = 2
	case 2:
		size = 4
	default:
		return 0, 0, t.fault()
	}
	if ap.tar%uint32(size) != 0 {
		return 0, 0, t.fault()
	}
	off := ap.tar - t.opts.MemBase
	if ap.tar < t.opts.MemBase || uint64(off)+uint64(size) > uint64(len(t.mem)) {
		log.Debugf("sim: access to %#08x outside memory", ap.tar)
		return 0, 0, t.fault()
	}
	return int(off), size, nil
}

// advance increments TAR after a DRW access, wrapping inside the
// auto-increment page.
func (t *Target) advance(ap *apState, size int) {
	switch ap.csw & cswAddrInc {
	case cswSAddrInc, cswPAddrInc:
		page := t.opts.PageSize
		ap.tar = ap.tar&^(page-1) | (ap.tar+uint32(size))&(page-1)
	}
}

// readDRW returns the addressed bytes in their byte lanes, other lanes
// read as zero.
func (t *Target) readDRW(ap *apState) (uint32, error) {
	off, size, err := t.transfer(ap)
	if err != nil {
		return 0, err
	}
	lane := int(ap.tar & 3)
	var v uint32
	for i := 0; i < size; i++ {
		v |= uint32(t.mem[off+i]) << (8 * (lane + i))
	}
	t.advance(ap, size)
	return v, nil
}

func (t *Target) writeDRW(ap *apState, value uint32) error {
	off, size, err := t.transfer(ap)
	if err != nil {
		return err
	}
	lane := int(ap.tar & 3)
	for i := 0; i < size; i++ {
		t.mem[off+i] = byte(value >> (8 * (lane + i)))
	}
	t.advance(ap, size)
	return nil
}
