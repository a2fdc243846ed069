//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package llrp

import (
	"github.impcloud.net/RSP-Inventory-Suite/bap-sensor/internal/tagmem"
	"periph.io/x/periph/conn/physic"
	"time"
)

// DefaultTick is the longest inventory request a Port sends
// while running a sample window.
const DefaultTick = 100 * time.Millisecond

// Port implements tagmem.Port for one reader behind the device service.
// Like the reader it stands for, it is not safe for concurrent use.
type Port struct {
	ds     DSClient
	device string
	epc    string

	// Tick bounds each inventory request, and so the interval between onTick calls.
	Tick time.Duration
	// Now is used to measure sample windows.
	Now func() time.Time
}

func (ds DSClient) Port(device string) *Port {
	return &Port{ds: ds, device: device, Tick: DefaultTick, Now: time.Now}
}

func (p *Port) Device() string {
	return p.device
}

func (p *Port) Select(epc string) error {
	if err := p.ds.SelectTag(p.device, epc); err != nil {
		return err
	}
	p.epc = epc
	return nil
}

func (p *Port) Read(bank tagmem.MemoryBank, addr tagmem.Address, wordCount uint16) ([]byte, error) {
	return p.ds.ReadTag(p.device, p.epc, bank, addr, wordCount)
}

func (p *Port) Write(bank tagmem.MemoryBank, addr tagmem.Address, word tagmem.Word) error {
	return p.ds.WriteTag(p.device, p.epc, bank, addr, word)
}

func (p *Port) SampleWindow(d time.Duration, onTick func(tagmem.LinkStats)) (tagmem.LinkStats, error) {
	if d <= 0 {
		stats, err := p.ds.Inventory(p.device, 0)
		if err == nil && onTick != nil {
			onTick(stats)
		}
		return stats, err
	}

	var total tagmem.LinkStats
	start := p.Now()
	for elapsed := time.Duration(0); elapsed < d; elapsed = p.Now().Sub(start) {
		chunk := d - elapsed
		if chunk > p.Tick {
			chunk = p.Tick
		}

		stats, err := p.ds.Inventory(p.device, chunk)
		if err != nil {
			return total, err
		}
		if onTick != nil {
			onTick(stats)
		}
		total = total.Merge(stats)
	}
	return total, nil
}

// ReflectedPower reports the reader's raw I/Q reflected power at freq.
func (p *Port) ReflectedPower(freq physic.Frequency) (i, q int32, err error) {
	return p.ds.ReflectedPower(p.device, int64(freq/physic.KiloHertz))
}
