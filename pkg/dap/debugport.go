// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dap implements the ARM CoreSight Debug Port and Access Port
// register protocol on top of a probe.Transport.
//
// A DebugPort owns the transport and every AccessPort created through it.
// Nothing in this package is safe for concurrent use; callers that share a
// DebugPort between goroutines must serialize access themselves, since the
// MEM-AP CSW cache and the CSW/TAR/DRW sequence are not atomic.
package dap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmhodges/clock"
	"github.com/u-root/coresight/config"
	"github.com/u-root/coresight/pkg/logger"
	"github.com/u-root/coresight/pkg/probe"
	"go.uber.org/multierr"
)

var (
	log  = logger.LogContainer.GetSimpleLogger()
	zlog = logger.LogContainer.GetLogger()
)

type state int

const (
	disconnected state = iota
	connecting
	connected
	initialized
)

var errNotAcked = errors.New("power up request not acknowledged")

type DebugPort struct {
	t     probe.Transport
	cfg   *config.Config
	clk   clock.Clock
	state state
	// powered is set once PowerUpDebug got both ACKs and cleared by
	// PowerDownDebug.
	powered bool
	aps     map[uint8]AccessPort
}

// NewDebugPort returns a DebugPort driving t. A nil config means
// config.DefaultConfig.
func NewDebugPort(t probe.Transport, c *config.Config) *DebugPort {
	if c == nil {
		c = config.DefaultConfig
	}
	return &DebugPort{
		t:   t,
		cfg: c.Copy(),
		clk: clock.New(),
		aps: make(map[uint8]AccessPort),
	}
}

// Open runs the whole bring-up: clock, Init, PowerUpDebug, AP discovery
// and creation of every AP found. APs of a type this package does not know
// are skipped.
func (dp *DebugPort) Open(ctx context.Context) (IDCode, error) {
	p, err := dp.cfg.WireProtocol()
	if err != nil {
		return IDCode{}, err
	}
	if dp.cfg.Probe.ClockHz != 0 {
		if err := dp.SetClock(dp.cfg.Probe.ClockHz); err != nil {
			return IDCode{}, err
		}
	}
	id, err := dp.Init(p)
	if err != nil {
		return IDCode{}, err
	}
	if err := dp.PowerUpDebug(ctx); err != nil {
		return IDCode{}, err
	}

	nums := dp.cfg.AccessPorts
	if len(nums) == 0 {
		if nums, err = dp.FindAPs(); err != nil {
			return IDCode{}, err
		}
	}
	for _, n := range nums {
		if err := dp.CreateAP(n); err != nil {
			if errors.Is(err, ErrUnsupportedAccessPort) {
				log.Warnf("Skipping AP%d: %v", n, err)
				continue
			}
			return IDCode{}, err
		}
	}
	return id, nil
}

// Close powers down the debug domain and disconnects the probe.
func (dp *DebugPort) Close() error {
	err := dp.PowerDownDebug()
	if derr := dp.t.Disconnect(); derr != nil {
		err = multierr.Append(err, &TransportError{Op: "disconnect", Err: derr})
	}
	dp.state = disconnected
	return err
}

func (dp *DebugPort) SetClock(hz uint32) error {
	if err := dp.t.SetClock(hz); err != nil {
		return &TransportError{Op: "set_clock", Err: err}
	}
	return nil
}

func (dp *DebugPort) WireProtocol() probe.WireProtocol {
	return dp.t.WireProtocol()
}

// Init connects to the target and returns its DPIDR. If the first IDCODE
// read faults the line reset is sent once more, since the DP may have
// taken the previous sequence for an invalid transfer.
func (dp *DebugPort) Init(p probe.WireProtocol) (IDCode, error) {
	if err := dp.t.SetWireProtocol(p); err != nil {
		return IDCode{}, &TransportError{Op: "set_wire_protocol", Err: err}
	}
	if err := dp.t.Connect(); err != nil {
		return IDCode{}, &TransportError{Op: "connect", Err: err}
	}
	dp.state = connecting
	dp.powered = false

	id, err := dp.resetAndReadIDCode()
	if errors.Is(err, ErrTransferFault) {
		log.Debugf("IDCODE read failed, resending line reset: %v", err)
		id, err = dp.resetAndReadIDCode()
	}
	if err != nil {
		return IDCode{}, err
	}
	dp.state = connected

	if err := dp.clearStickyErr(); err != nil {
		return IDCode{}, err
	}
	dp.state = initialized
	zlog.Info("Debug port initialized",
		logger.LogContainer.String("protocol", p.String()),
		logger.LogContainer.Hex("dpidr", id.Raw),
		logger.LogContainer.Int("version", int(id.Version)))
	return id, nil
}

func (dp *DebugPort) resetAndReadIDCode() (IDCode, error) {
	if err := dp.t.SwjSequence(); err != nil {
		return IDCode{}, &TransportError{Op: "swj_sequence", Err: err}
	}
	return dp.readIDCode()
}

func (dp *DebugPort) readIDCode() (IDCode, error) {
	v, err := dp.ReadReg(DP_IDCODE)
	if err != nil {
		return IDCode{}, err
	}
	return decodeIDCode(v), nil
}

func (dp *DebugPort) ReadReg(addr uint32) (uint32, error) {
	return dp.readDP(addr)
}

func (dp *DebugPort) WriteReg(addr uint32, value uint32) error {
	return dp.writeDP(addr, value)
}

// PowerUpDebug requests debug and system power and waits for both
// acknowledges. Polling is bounded by the PowerUp section of the config
// and by ctx.
func (dp *DebugPort) PowerUpDebug(ctx context.Context) error {
	// select bank 0 (to access DRW and TAR)
	if err := dp.WriteReg(DP_SELECT, 0); err != nil {
		return err
	}
	if err := dp.WriteReg(DP_CTRL_STAT, CSYSPWRUPREQ|CDBGPWRUPREQ); err != nil {
		return err
	}

	const ack = CDBGPWRUPACK | CSYSPWRUPACK
	polls := 0
	poll := func() error {
		polls++
		v, err := dp.ReadReg(DP_CTRL_STAT)
		if err != nil {
			return backoff.Permanent(err)
		}
		if v&ack != ack {
			return errNotAcked
		}
		return nil
	}
	if err := backoff.Retry(poll, dp.powerUpBackOff(ctx)); err != nil {
		if errors.Is(err, errNotAcked) {
			if cerr := ctx.Err(); cerr != nil {
				return fmt.Errorf("debug power up after %d polls: %w", polls, cerr)
			}
			return fmt.Errorf("%w after %d polls", ErrPowerUpTimeout, polls)
		}
		return err
	}
	log.Debugf("Debug power acknowledged after %d polls", polls)

	if err := dp.WriteReg(DP_CTRL_STAT, CSYSPWRUPREQ|CDBGPWRUPREQ|TRNNORMAL|MASKLANE); err != nil {
		return err
	}
	dp.powered = true
	return dp.WriteReg(DP_SELECT, 0)
}

func (dp *DebugPort) powerUpBackOff(ctx context.Context) backoff.BackOff {
	pc := dp.cfg.PowerUp
	if pc.MaxRetries == 0 && pc.Timeout <= 0 {
		pc.MaxRetries = config.DefaultConfig.PowerUp.MaxRetries
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(pc.Interval)
	eb.MaxInterval = time.Duration(pc.MaxInterval)
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.MaxElapsedTime = time.Duration(pc.Timeout)
	eb.Clock = dp.clk
	eb.Reset()

	var b backoff.BackOff = eb
	if pc.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, pc.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

func (dp *DebugPort) PowerDownDebug() error {
	dp.powered = false
	// select bank 0 (to access DRW and TAR)
	if err := dp.WriteReg(DP_SELECT, 0); err != nil {
		return err
	}
	return dp.WriteReg(DP_CTRL_STAT, 0)
}

// ResetAll resets the target. The CSW cache of every AP is dropped first.
func (dp *DebugPort) ResetAll() error {
	dp.resetDidOccur()
	if err := dp.t.Reset(); err != nil {
		return &TransportError{Op: "reset", Err: err}
	}
	return nil
}

// AssertResetAll drives the reset line. AP caches are dropped only when
// asserting.
func (dp *DebugPort) AssertResetAll(assert bool) error {
	if assert {
		dp.resetDidOccur()
	}
	if err := dp.t.AssertReset(assert); err != nil {
		return &TransportError{Op: "assert_reset", Err: err}
	}
	return nil
}

func (dp *DebugPort) resetDidOccur() {
	for _, ap := range dp.aps {
		ap.ResetDidOccur()
	}
}

// FindAPs scans APSEL upwards from 0 and stops at the first AP whose IDR
// reads as zero.
//
// A few MCUs lock up when an invalid AP is accessed. Those have to use a
// fixed AP list (config.Config.AccessPorts) instead.
func (dp *DebugPort) FindAPs() ([]uint8, error) {
	var valid []uint8
	for n := 0; n <= 0xff; n++ {
		ok, err := accessPortIsValid(dp, uint8(n))
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		valid = append(valid, uint8(n))
	}
	log.Infof("Found %d access ports", len(valid))
	return valid, nil
}

// CreateAP reads the IDR of AP n, builds the matching AccessPort and keeps
// it in the registry.
func (dp *DebugPort) CreateAP(n uint8) error {
	ap, err := createAccessPort(dp, n)
	if err != nil {
		return err
	}
	dp.aps[n] = ap
	zlog.Info("Access port created",
		logger.LogContainer.Int("ap", int(n)),
		logger.LogContainer.Hex("idr", uint32(ap.IDR())))
	return nil
}

// AccessPorts returns the numbers of all created APs in ascending order.
func (dp *DebugPort) AccessPorts() []uint8 {
	nums := make([]uint8, 0, len(dp.aps))
	for n := range dp.aps {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

func (dp *DebugPort) AccessPort(n uint8) (AccessPort, bool) {
	ap, ok := dp.aps[n]
	return ap, ok
}

// MemoryAccessPort returns AP n if it has been created and is a MEM-AP.
func (dp *DebugPort) MemoryAccessPort(n uint8) (*MemoryAccessPort, error) {
	ap, ok := dp.aps[n]
	if !ok {
		return nil, fmt.Errorf("AP%d not created: %w", n, ErrInvalidAccessPortNumber)
	}
	m, ok := ap.(*MemoryAccessPort)
	if !ok {
		return nil, fmt.Errorf("AP%d is not a MEM-AP: %w", n, ErrUnsupportedAccessPort)
	}
	return m, nil
}

func (dp *DebugPort) readDP(addr uint32) (uint32, error) {
	v, err := dp.t.ReadDP(addr)
	if err != nil {
		return 0, dp.handleError("read_dp", addr, err)
	}
	return v, nil
}

func (dp *DebugPort) writeDP(addr uint32, value uint32) error {
	if err := dp.t.WriteDP(addr, value); err != nil {
		return dp.handleError("write_dp", addr, err)
	}
	return nil
}

func (dp *DebugPort) readAP(addr uint32) (uint32, error) {
	v, err := dp.t.ReadAP(addr)
	if err != nil {
		return 0, dp.handleError("read_ap", addr, err)
	}
	return v, nil
}

func (dp *DebugPort) writeAP(addr uint32, value uint32) error {
	if err := dp.t.WriteAP(addr, value); err != nil {
		return dp.handleError("write_ap", addr, err)
	}
	return nil
}

func (dp *DebugPort) readAPMultiple(addr uint32, count int) ([]uint32, error) {
	v, err := dp.t.ReadAPMultiple(addr, count)
	if err != nil {
		return nil, dp.handleError("read_ap", addr, err)
	}
	return v, nil
}

func (dp *DebugPort) writeAPMultiple(addr uint32, values []uint32) error {
	if err := dp.t.WriteAPMultiple(addr, values); err != nil {
		return dp.handleError("write_ap", addr, err)
	}
	return nil
}

// handleError clears the sticky error flag after a transfer fault and
// wraps err. Every transport error passes through here exactly once.
func (dp *DebugPort) handleError(op string, addr uint32, err error) error {
	if errors.Is(err, ErrTransferFault) {
		if cerr := dp.clearStickyErr(); cerr != nil {
			log.Warnf("Clearing sticky error after %s failed: %v", op, cerr)
		}
	}
	return &TransportError{Op: op, Addr: addr, Err: err}
}

// clearStickyErr talks to the transport directly so that a failing clear
// does not recurse into handleError.
func (dp *DebugPort) clearStickyErr() error {
	var addr, value uint32
	switch dp.t.WireProtocol() {
	case probe.SWD:
		addr, value = DP_ABORT, ABORT_STKERRCLR
	case probe.JTAG:
		// CTRL/STAT also carries the power requests; keep them once
		// the debug domain is up.
		addr, value = DP_CTRL_STAT, CTRLSTAT_STICKYERR
		if dp.state == initialized && dp.powered {
			value |= CSYSPWRUPREQ | CDBGPWRUPREQ | TRNNORMAL | MASKLANE
		}
	default:
		return fmt.Errorf("unknown wire protocol %v", dp.t.WireProtocol())
	}
	if err := dp.t.WriteDP(addr, value); err != nil {
		return &TransportError{Op: "write_dp", Addr: addr, Err: err}
	}
	return nil
}
