// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"fmt"

	"github.com/spf13/afero"
)

func (t *Target) span(addr uint32, n int) (int, error) {
	off := uint64(addr) - uint64(t.opts.MemBase)
	if addr < t.opts.MemBase || off+uint64(n) > uint64(len(t.mem)) {
		return 0, fmt.Errorf("range %#08x+%#x outside simulated memory %#08x+%#x", addr, n, t.opts.MemBase, len(t.mem))
	}
	return int(off), nil
}

// Peek copies memory without going through the debug port.
func (t *Target) Peek(addr uint32, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	off, err := t.span(addr, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), t.mem[off:off+n]...), nil
}

// Poke writes memory without going through the debug port.
func (t *Target) Poke(addr uint32, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	off, err := t.span(addr, len(data))
	if err != nil {
		return err
	}
	copy(t.mem[off:], data)
	return nil
}

// LoadImage copies the raw contents of path into memory at addr.
func (t *Target) LoadImage(fs afero.Fs, path string, addr uint32) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	if err := t.Poke(addr, data); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	log.Debugf("sim: loaded %d bytes from %s at %#08x", len(data), path, addr)
	return nil
}

// SaveImage writes n bytes of memory starting at addr to path.
func (t *Target) SaveImage(fs afero.Fs, path string, addr uint32, n int) error {
	data, err := t.Peek(addr, n)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0644)
}
