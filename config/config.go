// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/u-root/coresight/pkg/probe"
)

type Probe struct {
	// "swd" or "jtag"
	WireProtocol string
	// SWCLK/TCK frequency, 0 leaves the probe default alone
	ClockHz uint32
}

// PowerUp bounds how long the debug port waits for CDBGPWRUPACK and
// CSYSPWRUPACK. At least one of MaxRetries and Timeout must be non-zero.
type PowerUp struct {
	MaxRetries  uint64
	Interval    Duration
	MaxInterval Duration
	Timeout     Duration
}

type Config struct {
	Probe   Probe
	PowerUp PowerUp
	// Address range within which a MEM-AP auto-increments TAR. 1 KiB is
	// the smallest size every MEM-AP supports.
	AutoIncrementPageSize uint32
	// Fixed list of APs to use instead of scanning. Some MCUs lock up when
	// an invalid APSEL is accessed.
	AccessPorts []uint8
}

var DefaultConfig = &Config{
	Probe: Probe{
		WireProtocol: "swd",
		ClockHz:      1000000,
	},
	PowerUp: PowerUp{
		MaxRetries:  100,
		Interval:    Duration(time.Millisecond),
		MaxInterval: Duration(50 * time.Millisecond),
		Timeout:     Duration(time.Second),
	},
	AutoIncrementPageSize: 0x400,
}

// Duration is a time.Duration that reads and writes as "1.5s" in JSON
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %v", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Copy returns a deep copy of c
func (c *Config) Copy() *Config {
	n := *c
	n.AccessPorts = append([]uint8(nil), c.AccessPorts...)
	return &n
}

// WireProtocol returns the parsed Probe.WireProtocol
func (c *Config) WireProtocol() (probe.WireProtocol, error) {
	return probe.ParseWireProtocol(c.Probe.WireProtocol)
}

func (c *Config) Validate() error {
	if _, err := c.WireProtocol(); err != nil {
		return err
	}
	if c.PowerUp.MaxRetries == 0 && c.PowerUp.Timeout <= 0 {
		return fmt.Errorf("power up polling needs MaxRetries or Timeout")
	}
	if c.PowerUp.Interval < 0 || c.PowerUp.MaxInterval < 0 {
		return fmt.Errorf("power up intervals must not be negative")
	}
	p := c.AutoIncrementPageSize
	if p < 4 || p&(p-1) != 0 {
		return fmt.Errorf("auto increment page size %#x is not a power of two >= 4", p)
	}
	return nil
}

// Load reads a JSON config from path on fs. Fields missing from the file
// keep their DefaultConfig value.
func Load(fs afero.Fs, path string) (*Config, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s failed: %v", path, err)
	}
	c := DefaultConfig.Copy()
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s failed: %v", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %v", path, err)
	}
	return c, nil
}

// Save writes c as indented JSON to path on fs
func Save(fs afero.Fs, path string, c *Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, b, 0644)
}
