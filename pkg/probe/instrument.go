// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package probe

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/u-root/coresight/pkg/metric"
)

type instrumented struct {
	Transport
	calls *prometheus.CounterVec
	burst *prometheus.HistogramVec
}

// Instrument wraps t so that every register transaction is counted by
// operation and result in r.
func Instrument(t Transport, r prometheus.Registerer) Transport {
	return &instrumented{
		Transport: t,
		calls: metric.Counter(r, metric.MetricOpts{
			Namespace: "coresight",
			Subsystem: "probe",
			Name:      "transactions_total",
			Help:      "Register transactions issued to the debug probe.",
		}, []string{"op", "result"}),
		burst: metric.Histogram(r, metric.MetricOpts{
			Namespace: "coresight",
			Subsystem: "probe",
			Name:      "burst_words",
			Help:      "Number of words moved per AP burst transfer.",
		}, []string{"op"}, prometheus.ExponentialBuckets(1, 4, 6)),
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTransferFault):
		return "fault"
	case errors.Is(err, ErrStall):
		return "stall"
	}
	return "error"
}

func (i *instrumented) observe(op string, err error) {
	i.calls.WithLabelValues(op, result(err)).Inc()
}

func (i *instrumented) ReadDP(addr uint32) (uint32, error) {
	v, err := i.Transport.ReadDP(addr)
	i.observe("read_dp", err)
	return v, err
}

func (i *instrumented) WriteDP(addr uint32, value uint32) error {
	err := i.Transport.WriteDP(addr, value)
	i.observe("write_dp", err)
	return err
}

func (i *instrumented) ReadAP(addr uint32) (uint32, error) {
	v, err := i.Transport.ReadAP(addr)
	i.observe("read_ap", err)
	return v, err
}

func (i *instrumented) WriteAP(addr uint32, value uint32) error {
	err := i.Transport.WriteAP(addr, value)
	i.observe("write_ap", err)
	return err
}

func (i *instrumented) ReadAPMultiple(addr uint32, count int) ([]uint32, error) {
	v, err := i.Transport.ReadAPMultiple(addr, count)
	i.observe("read_ap_multiple", err)
	i.burst.WithLabelValues("read").Observe(float64(count))
	return v, err
}

func (i *instrumented) WriteAPMultiple(addr uint32, values []uint32) error {
	err := i.Transport.WriteAPMultiple(addr, values)
	i.observe("write_ap_multiple", err)
	i.burst.WithLabelValues("write").Observe(float64(len(values)))
	return err
}
