// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/u-root/coresight/pkg/probe"
)

func powerUp(t *testing.T, tg *Target) {
	t.Helper()
	if err := tg.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := tg.SwjSequence(); err != nil {
		t.Fatal(err)
	}
	if err := tg.WriteDP(dpCtrlStat, cdbgPwrUpReq|csysPwrUpReq); err != nil {
		t.Fatal(err)
	}
	for i := 0; i <= tg.opts.PowerUpDelay; i++ {
		tg.ReadDP(dpCtrlStat)
	}
}

func TestIDCodeNeedsLineReset(t *testing.T) {
	tg := NewTarget(Options{})
	tg.Connect()
	if _, err := tg.ReadDP(dpIDCode); !errors.Is(err, probe.ErrProbe) {
		t.Errorf("Expected probe error before line reset, got %v", err)
	}
	tg.SwjSequence()
	if v, err := tg.ReadDP(dpIDCode); err != nil || v != DefaultDPIDR {
		t.Errorf("Expected IDCODE %#x, got %#x (%v)", DefaultDPIDR, v, err)
	}
}

func TestIDCodeFailures(t *testing.T) {
	tg := NewTarget(Options{IDCodeFailures: 1})
	tg.Connect()
	tg.SwjSequence()
	if _, err := tg.ReadDP(dpIDCode); !errors.Is(err, probe.ErrTransferFault) {
		t.Errorf("Expected first IDCODE read to fault, got %v", err)
	}
	if _, err := tg.ReadDP(dpIDCode); err != nil {
		t.Errorf("Expected second IDCODE read to succeed, got %v", err)
	}
	if tg.Calls("read_dp") != 2 {
		t.Errorf("Expected 2 DP reads, got %d", tg.Calls("read_dp"))
	}
}

func TestPowerUpDelay(t *testing.T) {
	tg := NewTarget(Options{PowerUpDelay: 2})
	tg.Connect()
	tg.SwjSequence()
	tg.WriteDP(dpCtrlStat, cdbgPwrUpReq|csysPwrUpReq)
	const ack = cdbgPwrUpAck | csysPwrUpAck
	for i := 0; i < 2; i++ {
		if v, _ := tg.ReadDP(dpCtrlStat); v&ack != 0 {
			t.Fatalf("Read %d: unexpected ACK %#08x", i, v)
		}
	}
	if v, _ := tg.ReadDP(dpCtrlStat); v&ack != ack {
		t.Errorf("Expected ACK after delay, got %#08x", v)
	}
	tg.WriteDP(dpCtrlStat, 0)
	if _, err := tg.ReadAP(apIDR); !errors.Is(err, probe.ErrTransferFault) {
		t.Errorf("Expected AP access to fault when powered down, got %v", err)
	}
}

func TestPowerUpNever(t *testing.T) {
	tg := NewTarget(Options{PowerUpDelay: PowerUpNever})
	tg.Connect()
	tg.SwjSequence()
	tg.WriteDP(dpCtrlStat, cdbgPwrUpReq|csysPwrUpReq)
	for i := 0; i < 100; i++ {
		if v, _ := tg.ReadDP(dpCtrlStat); v&cdbgPwrUpAck != 0 {
			t.Fatalf("Unexpected ACK %#08x", v)
		}
	}
}

func TestIDRs(t *testing.T) {
	tg := NewTarget(Options{IDRs: []uint32{0x84770001, 0x24770011}})
	powerUp(t, tg)
	for i, want := range []uint32{0x84770001, 0x24770011, 0} {
		if v, err := tg.ReadAP(uint32(i)<<24 | apIDR); err != nil || v != want {
			t.Errorf("AP%d IDR = %#x (%v), want %#x", i, v, err, want)
		}
	}
	if v, _ := tg.ReadAP(apBase); v != DefaultBase {
		t.Errorf("BASE = %#x, want %#x", v, DefaultBase)
	}
}

func TestStickySWD(t *testing.T) {
	tg := NewTarget(Options{MemSize: 0x100})
	powerUp(t, tg)
	tg.WriteAP(apCSW, 2)
	tg.WriteAP(apTAR, 0x100)
	if _, err := tg.ReadAP(apDRW); !errors.Is(err, probe.ErrTransferFault) {
		t.Fatalf("Expected fault outside memory, got %v", err)
	}
	if v, _ := tg.ReadDP(dpCtrlStat); v&stickyErr == 0 {
		t.Errorf("Expected STICKYERR in CTRL/STAT, got %#08x", v)
	}
	if err := tg.WriteAP(apTAR, 0); !errors.Is(err, probe.ErrTransferFault) {
		t.Errorf("Expected AP access to fault while sticky, got %v", err)
	}
	// JTAG style clear does nothing over SWD
	tg.WriteDP(dpCtrlStat, cdbgPwrUpReq|csysPwrUpReq|stickyErr)
	if !tg.Sticky() {
		t.Fatalf("Expected sticky to survive CTRL/STAT write over SWD")
	}
	tg.WriteDP(dpAbort, abortStkErrClr)
	if tg.Sticky() {
		t.Fatalf("Expected ABORT to clear sticky")
	}
	if err := tg.WriteAP(apTAR, 0); err != nil {
		t.Errorf("Expected AP access after clear, got %v", err)
	}
}

func TestStickyJTAG(t *testing.T) {
	tg := NewTarget(Options{})
	tg.SetWireProtocol(probe.JTAG)
	powerUp(t, tg)
	tg.SetFaultHook(func(op string, addr uint32) error {
		if op == "read_ap" {
			return probe.ErrTransferFault
		}
		return nil
	})
	if _, err := tg.ReadAP(apCSW); !errors.Is(err, probe.ErrTransferFault) {
		t.Fatalf("Expected injected fault, got %v", err)
	}
	tg.SetFaultHook(nil)
	tg.WriteDP(dpAbort, abortStkErrClr)
	if !tg.Sticky() {
		t.Fatalf("Expected ABORT.STKERRCLR to be ignored over JTAG")
	}
	tg.WriteDP(dpCtrlStat, cdbgPwrUpReq|csysPwrUpReq|stickyErr)
	if tg.Sticky() {
		t.Errorf("Expected CTRL/STAT write to clear sticky over JTAG")
	}
}

func TestFaultHookStall(t *testing.T) {
	tg := NewTarget(Options{})
	powerUp(t, tg)
	tg.SetFaultHook(func(op string, addr uint32) error {
		return probe.ErrStall
	})
	if err := tg.WriteAP(apTAR, 0); !errors.Is(err, probe.ErrStall) {
		t.Errorf("Expected stall, got %v", err)
	}
	if tg.Sticky() {
		t.Errorf("Expected a stall not to latch sticky")
	}
}

func TestByteLanes(t *testing.T) {
	tg := NewTarget(Options{})
	powerUp(t, tg)
	tg.Poke(0, []byte{0x11, 0x22, 0x33, 0x44})

	tg.WriteAP(apCSW, 0) // 8-bit, no increment
	tg.WriteAP(apTAR, 2)
	if v, _ := tg.ReadAP(apDRW); v != 0x00330000 {
		t.Errorf("8-bit read at 2 = %#08x, want 0x00330000", v)
	}
	tg.WriteAP(apDRW, 0xaabbccdd)

	tg.WriteAP(apCSW, 1) // 16-bit
	tg.WriteAP(apTAR, 2)
	if v, _ := tg.ReadAP(apDRW); v != 0x44bb0000 {
		t.Errorf("16-bit read at 2 = %#08x, want 0x44bb0000", v)
	}
	tg.WriteAP(apTAR, 1)
	if _, err := tg.ReadAP(apDRW); !errors.Is(err, probe.ErrTransferFault) {
		t.Errorf("Expected unaligned 16-bit access to fault, got %v", err)
	}
	tg.WriteDP(dpAbort, abortStkErrClr)

	got, _ := tg.Peek(0, 4)
	if diff := cmp.Diff([]byte{0x11, 0x22, 0xbb, 0x44}, got); diff != "" {
		t.Errorf("Memory mismatch (-want +got):\n%s", diff)
	}
}

func TestAutoIncrementWraps(t *testing.T) {
	tg := NewTarget(Options{PageSize: 0x10})
	powerUp(t, tg)
	for i := 0; i < 0x20; i++ {
		tg.Poke(uint32(i), []byte{byte(i)})
	}
	tg.WriteAP(apCSW, cswSAddrInc|2)
	tg.WriteAP(apTAR, 0x18)
	got, err := tg.ReadAPMultiple(apDRW, 3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0x1b1a1918, 0x1f1e1d1c, 0x13121110}, got); diff != "" {
		t.Errorf("Burst mismatch (-want +got):\n%s", diff)
	}
	if tg.Calls("read_ap_multiple") != 1 || tg.Calls("read_ap") != 0 {
		t.Errorf("Expected one burst, got %d bursts and %d reads", tg.Calls("read_ap_multiple"), tg.Calls("read_ap"))
	}
}

func TestWriteAPMultiple(t *testing.T) {
	tg := NewTarget(Options{MemBase: 0x20000000})
	powerUp(t, tg)
	tg.WriteAP(apCSW, cswSAddrInc|2)
	tg.WriteAP(apTAR, 0x20000004)
	if err := tg.WriteAPMultiple(apDRW, []uint32{0xdeadbeef, 0xabbababe}); err != nil {
		t.Fatal(err)
	}
	got, _ := tg.Peek(0x20000004, 8)
	want := []byte{0xef, 0xbe, 0xad, 0xde, 0xbe, 0xba, 0xba, 0xab}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Memory mismatch (-want +got):\n%s", diff)
	}
	if _, err := tg.Peek(0x1ffffffc, 4); err == nil {
		t.Errorf("Expected Peek below memory base to fail")
	}
}

func TestResetClearsAPState(t *testing.T) {
	tg := NewTarget(Options{})
	powerUp(t, tg)
	tg.WriteAP(apCSW, 0x23000052)
	tg.AssertReset(true)
	if !tg.InReset() {
		t.Errorf("Expected reset line asserted")
	}
	tg.AssertReset(false)
	if v, _ := tg.ReadAP(apCSW); v != 0 {
		t.Errorf("Expected CSW reset to 0, got %#08x", v)
	}
}

func TestImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/in.bin", []byte{1, 2, 3, 4, 5}, 0644)

	tg := NewTarget(Options{MemBase: 0x08000000, MemSize: 0x100})
	if err := tg.LoadImage(fs, "/in.bin", 0x08000010); err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if err := tg.SaveImage(fs, "/out.bin", 0x0800000f, 7); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	got, _ := afero.ReadFile(fs, "/out.bin")
	if diff := cmp.Diff([]byte{0, 1, 2, 3, 4, 5, 0}, got); diff != "" {
		t.Errorf("Image mismatch (-want +got):\n%s", diff)
	}
	if err := tg.LoadImage(fs, "/in.bin", 0x080000fe); err == nil {
		t.Errorf("Expected image past the end of memory to be rejected")
	}
	if err := tg.LoadImage(fs, "/missing.bin", 0x08000000); err == nil {
		t.Errorf("Expected missing image to fail")
	}
}
