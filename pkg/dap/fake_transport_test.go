// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dap

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/u-root/coresight/pkg/probe"
)

type op struct {
	kind  string
	addr  uint32
	data  uint32
	block []uint32
	err   error
	hook  func()
}

type fakeTransport struct {
	t        *testing.T
	ops      []op
	protocol probe.WireProtocol
	clock    uint32
}

func opstr(o *op) string {
	switch o.kind {
	case "read_dp", "write_dp", "read_ap", "write_ap":
		return fmt.Sprintf("{%s %s = %08x}", o.kind, RegisterName(o.kind[len(o.kind)-2:] == "ap", o.kind[0] == 'w', o.addr), o.data)
	case "read_ap_multiple", "write_ap_multiple":
		return fmt.Sprintf("{%s @ %08x, %d words}", o.kind, o.addr, len(o.block))
	}
	return "{" + o.kind + "}"
}

func (f *fakeTransport) next(kind string, addr uint32) op {
	f.t.Helper()
	if len(f.ops) == 0 {
		f.t.Fatalf("Unexpected %s on %08x, no more operations expected", kind, addr)
	}
	o := f.ops[0]
	f.ops = f.ops[1:]
	if o.kind != kind || o.addr != addr {
		f.t.Errorf("Expected %s, got %s on %08x", opstr(&o), kind, addr)
	}
	if o.hook != nil {
		o.hook()
	}
	return o
}

func (f *fakeTransport) Connect() error {
	return f.next("connect", 0).err
}

func (f *fakeTransport) Disconnect() error {
	return f.next("disconnect", 0).err
}

func (f *fakeTransport) SetWireProtocol(p probe.WireProtocol) error {
	f.protocol = p
	return nil
}

func (f *fakeTransport) WireProtocol() probe.WireProtocol {
	return f.protocol
}

func (f *fakeTransport) SetClock(hz uint32) error {
	f.clock = hz
	return nil
}

func (f *fakeTransport) SwjSequence() error {
	return f.next("swj_sequence", 0).err
}

func (f *fakeTransport) ReadDP(addr uint32) (uint32, error) {
	o := f.next("read_dp", addr)
	return o.data, o.err
}

func (f *fakeTransport) WriteDP(addr uint32, value uint32) error {
	o := f.next("write_dp", addr)
	if o.data != value {
		f.t.Errorf("Expected %s, got value %08x", opstr(&o), value)
	}
	return o.err
}

func (f *fakeTransport) ReadAP(addr uint32) (uint32, error) {
	o := f.next("read_ap", addr)
	return o.data, o.err
}

func (f *fakeTransport) WriteAP(addr uint32, value uint32) error {
	o := f.next("write_ap", addr)
	if o.data != value {
		f.t.Errorf("Expected %s, got value %08x", opstr(&o), value)
	}
	return o.err
}

func (f *fakeTransport) ReadAPMultiple(addr uint32, count int) ([]uint32, error) {
	o := f.next("read_ap_multiple", addr)
	if o.err != nil {
		return nil, o.err
	}
	if len(o.block) != count {
		f.t.Errorf("Expected %s, got %d words", opstr(&o), count)
	}
	return o.block, nil
}

func (f *fakeTransport) WriteAPMultiple(addr uint32, values []uint32) error {
	o := f.next("write_ap_multiple", addr)
	if diff := cmp.Diff(o.block, values); diff != "" {
		f.t.Errorf("Burst write mismatch (-want +got):\n%s", diff)
	}
	return o.err
}

func (f *fakeTransport) Reset() error {
	return f.next("reset", 0).err
}

func (f *fakeTransport) AssertReset(assert bool) error {
	o := f.next("assert_reset", 0)
	if (o.data != 0) != assert {
		f.t.Errorf("Expected assert_reset(%v), got %v", o.data != 0, assert)
	}
	return o.err
}

func (f *fakeTransport) Expect(kind string) {
	f.ops = append(f.ops, op{kind: kind})
}

func (f *fakeTransport) ExpectAssertReset(assert bool) {
	o := op{kind: "assert_reset"}
	if assert {
		o.data = 1
	}
	f.ops = append(f.ops, o)
}

func (f *fakeTransport) Fail(kind string, err error) {
	f.ops = append(f.ops, op{kind: kind, err: err})
}

func (f *fakeTransport) ExpectWriteDP(a uint32, d uint32) {
	f.ops = append(f.ops, op{kind: "write_dp", addr: a, data: d})
}

func (f *fakeTransport) FakeReadDP(a uint32, d uint32) {
	f.ops = append(f.ops, op{kind: "read_dp", addr: a, data: d})
}

func (f *fakeTransport) FailReadDP(a uint32, err error) {
	f.ops = append(f.ops, op{kind: "read_dp", addr: a, err: err})
}

func (f *fakeTransport) ExpectWriteAP(a uint32, d uint32) {
	f.ops = append(f.ops, op{kind: "write_ap", addr: a, data: d})
}

func (f *fakeTransport) FailWriteAP(a uint32, d uint32, err error) {
	f.ops = append(f.ops, op{kind: "write_ap", addr: a, data: d, err: err})
}

func (f *fakeTransport) FakeReadAP(a uint32, d uint32) {
	f.ops = append(f.ops, op{kind: "read_ap", addr: a, data: d})
}

func (f *fakeTransport) FailReadAP(a uint32, err error) {
	f.ops = append(f.ops, op{kind: "read_ap", addr: a, err: err})
}

func (f *fakeTransport) FakeReadAPMultiple(a uint32, d []uint32) {
	f.ops = append(f.ops, op{kind: "read_ap_multiple", addr: a, block: d})
}

func (f *fakeTransport) FailReadAPMultiple(a uint32, err error) {
	f.ops = append(f.ops, op{kind: "read_ap_multiple", addr: a, err: err})
}

func (f *fakeTransport) ExpectWriteAPMultiple(a uint32, d []uint32) {
	f.ops = append(f.ops, op{kind: "write_ap_multiple", addr: a, block: d})
}

// Hook runs fn when the most recently queued operation is consumed.
func (f *fakeTransport) Hook(fn func()) {
	f.ops[len(f.ops)-1].hook = fn
}

// Verify fails the test if expected operations were never issued.
func (f *fakeTransport) Verify() {
	f.t.Helper()
	for i := range f.ops {
		f.t.Errorf("Expected %s, never issued", opstr(&f.ops[i]))
	}
}

func newFakeTransport(t *testing.T) *fakeTransport {
	return &fakeTransport{t: t}
}
