// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// dapsim brings up a simulated CoreSight target through the dap and memory
// packages and dumps a range of its memory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/u-root/coresight/config"
	"github.com/u-root/coresight/pkg/dap"
	"github.com/u-root/coresight/pkg/logger"
	"github.com/u-root/coresight/pkg/memory"
	"github.com/u-root/coresight/pkg/metric"
	"github.com/u-root/coresight/pkg/probe"
	"github.com/u-root/coresight/pkg/probe/sim"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "", "JSON config file, defaults are used if empty")
	image      = flag.String("image", "", "Raw image loaded into simulated memory at -base")
	base       = flag.Uint("base", 0x20000000, "Base address of simulated memory")
	size       = flag.Uint("size", 0x10000, "Size of simulated memory in bytes")
	addr       = flag.Uint("addr", 0x20000000, "Address to dump from")
	length     = flag.Int("len", 64, "Number of elements to dump")
	width      = flag.Int("width", 32, "Access width: 8, 16 or 32")
	metrics    = flag.String("metrics", "", "Serve /metrics on this address and wait for interrupt")
	debug      = flag.Bool("debug", false, "Log register level events")

	log = logger.LogContainer.GetSimpleLogger()
)

func main() {
	flag.Parse()
	if *debug {
		logger.LogContainer.SetLevel(zapcore.DebugLevel)
	}
	if err := run(); err != nil {
		log.Fatalf("dapsim: %v", err)
	}
}

func run() error {
	fs := afero.NewOsFs()
	c := config.DefaultConfig
	if *configPath != "" {
		var err error
		if c, err = config.Load(fs, *configPath); err != nil {
			return err
		}
	}

	tg := sim.NewTarget(sim.Options{
		MemBase:  uint32(*base),
		MemSize:  uint32(*size),
		PageSize: c.AutoIncrementPageSize,
	})
	if *image != "" {
		if err := tg.LoadImage(fs, *image, uint32(*base)); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	dp := dap.NewDebugPort(probe.Instrument(tg, reg), c)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	id, err := dp.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := dp.Close(); err != nil {
			log.Errorf("Close: %v", err)
		}
	}()
	fmt.Printf("DPIDR %v\n", id)
	aps := dp.AccessPorts()
	for _, n := range aps {
		ap, _ := dp.AccessPort(n)
		fmt.Printf("AP%d  %v\n", n, ap.IDR())
	}
	if len(aps) == 0 {
		return fmt.Errorf("no usable access port")
	}
	m, err := memory.ForAccessPort(dp, aps[0])
	if err != nil {
		return err
	}
	if err := dump(os.Stdout, m, uint32(*addr), *length, *width); err != nil {
		return err
	}

	if *metrics != "" {
		mux := http.NewServeMux()
		metric.StartMetrics(mux, reg)
		srv := &http.Server{Addr: *metrics, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("Metrics server: %v", err)
			}
		}()
		log.Infof("Serving metrics on %s", *metrics)
		<-ctx.Done()
		return srv.Close()
	}
	return nil
}

func dump(w io.Writer, m *memory.Interface, addr uint32, n int, width int) error {
	var vals []uint32
	switch width {
	case 8:
		v, err := memory.ReadBlock[uint8](m, addr, n)
		if err != nil {
			return err
		}
		for _, x := range v {
			vals = append(vals, uint32(x))
		}
	case 16:
		v, err := memory.ReadBlock[uint16](m, addr, n)
		if err != nil {
			return err
		}
		for _, x := range v {
			vals = append(vals, uint32(x))
		}
	case 32:
		v, err := memory.ReadBlock[uint32](m, addr, n)
		if err != nil {
			return err
		}
		vals = v
	default:
		return fmt.Errorf("unsupported width %d", width)
	}

	digits := width / 4
	step := uint32(width / 8)
	perLine := 16 / int(step)
	for i := 0; i < len(vals); i += perLine {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%08x:", addr+uint32(i)*step)
		for j := i; j < i+perLine && j < len(vals); j++ {
			fmt.Fprintf(&sb, " %0*x", digits, vals[j])
		}
		fmt.Fprintln(w, sb.String())
	}
	return nil
}
